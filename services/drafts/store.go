// Package drafts keeps partially filled forms in Redis so a customer can
// resume on another tab or device until the draft expires.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/services"
)

const (
	defaultTTL       = 24 * time.Hour
	defaultKeyPrefix = "imu:draft:"

	// MaxPayloadBytes bounds a stored form state
	MaxPayloadBytes = 256 << 10
)

// Draft is an opaque form state
type Draft struct {
	ID        uuid.UUID       `json:"id"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Config holds draft store settings
type Config struct {
	TTL       time.Duration
	KeyPrefix string
}

// Store persists drafts in Redis with a TTL refreshed on every save
type Store struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a draft store
func NewStore(client *redis.Client, cfg Config, logger *zap.Logger) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	return &Store{
		client: client,
		ttl:    cfg.TTL,
		prefix: cfg.KeyPrefix,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Store) key(id uuid.UUID) string {
	return s.prefix + id.String()
}

// Create stores a new draft under a fresh id
func (s *Store) Create(ctx context.Context, data json.RawMessage) (*Draft, error) {
	return s.put(ctx, uuid.New(), data, false)
}

// Save replaces an existing draft and refreshes its TTL. Unknown or expired
// ids are not created.
func (s *Store) Save(ctx context.Context, id uuid.UUID, data json.RawMessage) (*Draft, error) {
	return s.put(ctx, id, data, true)
}

func (s *Store) put(ctx context.Context, id uuid.UUID, data json.RawMessage, existing bool) (*Draft, error) {
	if err := validatePayload(data); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	draft := &Draft{ID: id, Data: data, UpdatedAt: now, ExpiresAt: now.Add(s.ttl)}
	encoded, err := json.Marshal(draft)
	if err != nil {
		return nil, services.WrapInternal("failed to encode draft", err)
	}

	if existing {
		ok, err := s.client.SetXX(ctx, s.key(id), encoded, s.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Error("failed to save draft", zap.Error(err), zap.String("draft_id", id.String()))
			return nil, services.NewDomainError(services.ErrorTypeInternal, services.ErrCacheFailed.Message, err)
		}
		if !ok {
			return nil, services.NewNotFound(services.ErrDraftNotFound, id)
		}
		return draft, nil
	}

	if err := s.client.Set(ctx, s.key(id), encoded, s.ttl).Err(); err != nil {
		s.logger.Error("failed to save draft", zap.Error(err), zap.String("draft_id", id.String()))
		return nil, services.NewDomainError(services.ErrorTypeInternal, services.ErrCacheFailed.Message, err)
	}
	return draft, nil
}

// Load returns a draft that has not expired yet
func (s *Store) Load(ctx context.Context, id uuid.UUID) (*Draft, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, services.NewNotFound(services.ErrDraftNotFound, id)
		}
		s.logger.Error("failed to load draft", zap.Error(err), zap.String("draft_id", id.String()))
		return nil, services.NewDomainError(services.ErrorTypeInternal, services.ErrCacheFailed.Message, err)
	}

	var draft Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		s.logger.Warn("dropping unreadable draft", zap.Error(err), zap.String("draft_id", id.String()))
		_ = s.client.Del(ctx, s.key(id)).Err()
		return nil, services.NewNotFound(services.ErrDraftNotFound, id)
	}
	return &draft, nil
}

// Delete removes a draft
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		s.logger.Error("failed to delete draft", zap.Error(err), zap.String("draft_id", id.String()))
		return services.NewDomainError(services.ErrorTypeInternal, services.ErrCacheFailed.Message, err)
	}
	if n == 0 {
		return services.NewNotFound(services.ErrDraftNotFound, id)
	}
	return nil
}

// Ping checks the Redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func validatePayload(data json.RawMessage) error {
	if len(data) == 0 {
		return services.InvalidField("data", "data is required")
	}
	if len(data) > MaxPayloadBytes {
		return services.InvalidField("data", "draft is too large")
	}
	if !json.Valid(data) {
		return services.InvalidField("data", "data must be valid JSON")
	}
	return nil
}
