package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/services"
	"github.com/upb/imu-filing/services/audit"
)

// MaxRows caps the submissions in one export
const MaxRows = 5000

// ContentType is the MIME type of the workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SubmissionLister returns submissions with their children loaded
type SubmissionLister interface {
	ListDetailed(ctx context.Context, filter models.SubmissionFilter) ([]*models.Submission, error)
}

// File is a rendered export
type File struct {
	Name    string
	Content []byte
	Rows    int
}

// Service renders submission exports
type Service struct {
	lister SubmissionLister
	audit  audit.Recorder
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates an export Service
func NewService(lister SubmissionLister, recorder audit.Recorder, logger *zap.Logger) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{lister: lister, audit: recorder, logger: logger, now: time.Now}
}

// Submissions exports the submissions matching filter, newest first
func (s *Service) Submissions(ctx context.Context, filter models.SubmissionFilter, meta audit.Meta) (*File, error) {
	if filter.Limit <= 0 || filter.Limit > MaxRows {
		filter.Limit = MaxRows
	}

	subs, err := s.lister.ListDetailed(ctx, filter)
	if err != nil {
		return nil, err
	}

	content, err := Workbook(subs)
	if err != nil {
		return nil, services.WrapInternal("failed to render export", err)
	}

	details := map[string]interface{}{"rows": len(subs)}
	if filter.Status != nil {
		details["status"] = *filter.Status
	}
	s.audit.Record(meta, models.AuditActionExport, models.ResourceSubmission, nil, details)
	s.logger.Info("submissions exported",
		zap.Int("rows", len(subs)),
		zap.Int("bytes", len(content)),
		zap.String("request_id", meta.RequestID))

	return &File{
		Name:    fmt.Sprintf("imu-submissions-%s.xlsx", s.now().UTC().Format("20060102-150405")),
		Content: content,
		Rows:    len(subs),
	}, nil
}
