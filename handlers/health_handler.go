package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/imu-filing/internal/pricing"
	"github.com/upb/imu-filing/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// StatusResponse describes the running build
type StatusResponse struct {
	Service     string       `json:"service"`
	Version     string       `json:"version"`
	Environment string       `json:"environment"`
	Gateway     string       `json:"payment_gateway"`
	PricingTier pricing.Tier `json:"pricing_tier"`
}

// Pinger is implemented by backing stores that can report their health
type Pinger interface {
	Ping(ctx context.Context) error
}

// TierReporter reports the pricing tier in force
type TierReporter interface {
	CurrentTier() pricing.Tier
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db      *sql.DB
	cache   Pinger
	status  StatusResponse
	pricing TierReporter
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and cache may be nil.
func NewHealthHandler(db *sql.DB, cache Pinger, status StatusResponse, pricing TierReporter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		cache:   cache,
		status:  status,
		pricing: pricing,
		logger:  logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness check - validates that the database and the draft cache are reachable
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.Warn("cache health check failed", zap.Error(err))
			checks["cache"] = "unhealthy"
			allHealthy = false
		} else {
			checks["cache"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	_ = utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response})
}

// HandleStatus handles GET /api/v1/status
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := h.status
	if h.pricing != nil {
		status.PricingTier = h.pricing.CurrentTier()
	}
	_ = utils.WriteOK(w, status)
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil // No database configured
	}

	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
