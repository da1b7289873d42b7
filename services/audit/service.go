package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/repositories"
	"github.com/upb/imu-filing/services"
)

// Meta describes who triggered an audited action and from where
type Meta struct {
	UserID    *uuid.UUID
	RequestID string
	IPAddress string
	UserAgent string
}

// Recorder accepts audit entries without blocking the caller
type Recorder interface {
	Record(meta Meta, action models.AuditAction, resourceType string, resourceID *uuid.UUID, details interface{})
}

// NopRecorder discards every entry
type NopRecorder struct{}

// Record implements Recorder
func (NopRecorder) Record(Meta, models.AuditAction, string, *uuid.UUID, interface{}) {}

// AuditEvent represents an event to be audited
type AuditEvent struct {
	Log *models.AuditLog
}

// AuditService persists audit logs through a buffered worker pool and serves the admin views
type AuditService struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	started     bool
	mu          sync.RWMutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

var (
	errNotStarted = errors.New("audit service not started")
	errBufferFull = errors.New("audit event buffer full")
)

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	if config.WorkerCount < 1 {
		config.WorkerCount = 1
	}
	return &AuditService{
		auditRepo:   auditRepo,
		logger:      logger,
		eventChan:   make(chan *AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits for the queued ones to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errNotStarted
	}
	s.started = false
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event and returns immediately. A full buffer drops the event.
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return errNotStarted
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)),
			zap.String("resource_type", event.Log.ResourceType))
		return errBufferFull
	}
}

// Record builds an audit log and queues it. Failures are logged, never returned.
func (s *AuditService) Record(meta Meta, action models.AuditAction, resourceType string, resourceID *uuid.UUID, details interface{}) {
	log := models.NewAuditLog(action, resourceType).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	if meta.UserID != nil {
		log.WithUser(*meta.UserID)
	}
	if resourceID != nil {
		log.WithResource(*resourceID)
	}
	if details != nil {
		log.WithDetails(details)
	}

	if err := s.LogEvent(&AuditEvent{Log: log}); err != nil && !errors.Is(err, errBufferFull) {
		s.logger.Warn("audit event not recorded",
			zap.Error(err),
			zap.String("action", string(action)),
			zap.String("request_id", meta.RequestID))
	}
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Log.Action)),
				zap.String("request_id", event.Log.RequestID))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) processEvent(event *AuditEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// List returns audit logs matching filter, newest first
func (s *AuditService) List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, int, error) {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, 0, services.InvalidField("to", "must be after from")
	}
	logs, total, err := s.auditRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, services.WrapError(services.ErrorTypeInternal, "failed to list audit logs", err)
	}
	return logs, total, nil
}

// Get returns one audit log
func (s *AuditService) Get(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	log, err := s.auditRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewNotFound(services.ErrAuditLogNotFound, id)
		}
		return nil, services.WrapError(services.ErrorTypeInternal, "failed to get audit log", err)
	}
	return log, nil
}

// SecurityEvents lists login, failed login, throttle and logout events
func (s *AuditService) SecurityEvents(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, int, error) {
	filter.Actions = models.SecurityActions
	return s.List(ctx, filter)
}
