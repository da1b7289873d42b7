package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/internal/pricing"
	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/services"
	"github.com/upb/imu-filing/services/audit"
)

func exportSubmission() *models.Submission {
	owner := models.Owner{ID: uuid.New(), FirstName: "Giulia", LastName: "Bianchi", Citizenship: "IT", IsResidentInItaly: true}
	dob := models.NewDate(1980, time.May, 4)
	owner.DateOfBirth = &dob
	price := decimal.RequireFromString("180000")
	purchased := models.NewDate(2025, time.March, 1)
	property := models.Property{
		ID:            uuid.New(),
		Address:       models.Address{Street: "Via Roma", StreetNumber: "1", City: "Roma", Province: "RM", PostalCode: "00184"},
		Cadastral:     &models.CadastralData{Sheet: "12", Parcel: "345", Category: "A/2"},
		ActivityType:  models.ActivityPurchased,
		PurchaseDate:  &purchased,
		PurchasePrice: &price,
		Occupancy: []models.OccupancyPeriod{
			{Status: models.OccupancyPersonalUse, Months: 9},
			{Status: models.OccupancyVacant, Months: 3},
		},
	}
	paidAt := time.Date(2026, 2, 11, 8, 30, 0, 0, time.UTC)
	return &models.Submission{
		ID:         uuid.New(),
		Contact:    models.Contact{Name: "Giulia Bianchi", Email: "giulia@example.com"},
		Owners:     []models.Owner{owner},
		Properties: []models.Property{property},
		Assignments: []models.Assignment{
			{OwnerID: owner.ID, PropertyID: property.ID, OwnershipPercentage: decimal.NewFromInt(100), ResidentAtProperty: true},
		},
		Pricing:   pricing.Calculate(1, 1, false, time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)),
		Status:    models.SubmissionPaid,
		CreatedAt: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
		PaidAt:    &paidAt,
	}
}

func TestWorkbook(t *testing.T) {
	sub := exportSubmission()
	content, err := Workbook([]*models.Submission{sub})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSubmissions, SheetOwners, SheetProperties}, f.GetSheetList())

	rows, err := f.GetRows(SheetSubmissions)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, submissionHeader, rows[0])
	assert.Equal(t, sub.ID.String(), rows[1][0])
	assert.Equal(t, "paid", rows[1][2])
	assert.Equal(t, "earlyBird", rows[1][9])
	assert.Equal(t, "295", rows[1][14])
	assert.Equal(t, "2026-02-11T08:30:00Z", rows[1][16])

	owners, err := f.GetRows(SheetOwners)
	require.NoError(t, err)
	require.Len(t, owners, 2)
	assert.Equal(t, "Giulia", owners[1][2])
	assert.Equal(t, "1980-05-04", owners[1][5])
	assert.Equal(t, "yes", owners[1][8])
	assert.Equal(t, "100% Via Roma 1, 00184 Roma (RM)", owners[1][11])

	properties, err := f.GetRows(SheetProperties)
	require.NoError(t, err)
	require.Len(t, properties, 2)
	assert.Equal(t, "fg. 12 part. 345 cat. A/2", properties[1][5])
	assert.Equal(t, "purchased", properties[1][6])
	assert.Equal(t, "personal_use 9m, vacant 3m", properties[1][11])
	assert.Equal(t, "Giulia Bianchi 100% (resident)", properties[1][13])
}

func TestWorkbook_Empty(t *testing.T) {
	content, err := Workbook(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetProperties)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, propertyHeader, rows[0])
}

type stubLister struct {
	filter models.SubmissionFilter
	subs   []*models.Submission
	err    error
}

func (s *stubLister) ListDetailed(_ context.Context, filter models.SubmissionFilter) ([]*models.Submission, error) {
	s.filter = filter
	return s.subs, s.err
}

type countingRecorder struct {
	actions []models.AuditAction
}

func (c *countingRecorder) Record(_ audit.Meta, action models.AuditAction, _ string, _ *uuid.UUID, _ interface{}) {
	c.actions = append(c.actions, action)
}

func TestService_Submissions(t *testing.T) {
	lister := &stubLister{subs: []*models.Submission{exportSubmission()}}
	recorder := &countingRecorder{}
	svc := NewService(lister, recorder, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	file, err := svc.Submissions(context.Background(), models.SubmissionFilter{Limit: 100000}, audit.Meta{})
	require.NoError(t, err)

	assert.Equal(t, MaxRows, lister.filter.Limit)
	assert.Equal(t, "imu-submissions-20260301-120000.xlsx", file.Name)
	assert.Equal(t, 1, file.Rows)
	assert.NotEmpty(t, file.Content)
	assert.Equal(t, []models.AuditAction{models.AuditActionExport}, recorder.actions)
}

func TestService_SubmissionsListError(t *testing.T) {
	lister := &stubLister{err: services.ErrInvalidStatus}
	svc := NewService(lister, nil, zap.NewNop())

	_, err := svc.Submissions(context.Background(), models.SubmissionFilter{}, audit.Meta{})
	assert.ErrorIs(t, err, services.ErrInvalidStatus)
}
