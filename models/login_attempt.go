package models

import (
	"time"

	"github.com/google/uuid"
)

// LoginAttempt records one password login, successful or not
type LoginAttempt struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Success   bool      `json:"success" db:"success"`
	IPAddress string    `json:"ip_address" db:"ip_address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the LoginAttempt model
func (LoginAttempt) TableName() string {
	return "login_attempts"
}

// NewLoginAttempt creates a login attempt stamped now
func NewLoginAttempt(email, ip string, success bool) *LoginAttempt {
	return &LoginAttempt{
		ID:        uuid.New(),
		Email:     NormalizeEmail(email),
		Success:   success,
		IPAddress: ip,
		CreatedAt: time.Now(),
	}
}
