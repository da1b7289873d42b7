package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/repositories"
)

// SubmissionRepository implements the repositories.SubmissionRepository interface
type SubmissionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *DB, logger *zap.Logger) repositories.SubmissionRepository {
	return &SubmissionRepository{
		db:     db,
		logger: logger,
	}
}

const submissionColumns = `id, contact_name, contact_email, contact_phone, has_document_retrieval,
	pricing, status, stripe_session_id, notes, created_at, updated_at, paid_at`

// Create inserts the submission header followed by owners, properties and assignments
func (r *SubmissionRepository) Create(ctx context.Context, s *models.Submission) error {
	pricingJSON, err := json.Marshal(s.Pricing)
	if err != nil {
		return fmt.Errorf("failed to encode pricing: %w", err)
	}

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, `
		INSERT INTO submissions (
			id, contact_name, contact_email, contact_phone, has_document_retrieval,
			pricing, total_amount, status, stripe_session_id, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID,
		s.Contact.Name,
		s.Contact.Email,
		s.Contact.Phone,
		s.HasDocumentRetrieval,
		pricingJSON,
		s.Pricing.Total,
		s.Status,
		s.StripeSessionID,
		s.Notes,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", translateError(err))
	}

	for i := range s.Owners {
		if err := r.insertOwner(ctx, executor, &s.Owners[i]); err != nil {
			return err
		}
	}
	for i := range s.Properties {
		if err := r.insertProperty(ctx, executor, &s.Properties[i]); err != nil {
			return err
		}
	}
	for i := range s.Assignments {
		if err := r.insertAssignment(ctx, executor, &s.Assignments[i]); err != nil {
			return err
		}
	}

	r.logger.Debug("submission created",
		zap.String("id", s.ID.String()),
		zap.Int("owners", len(s.Owners)),
		zap.Int("properties", len(s.Properties)))
	return nil
}

func (r *SubmissionRepository) insertOwner(ctx context.Context, executor Executor, o *models.Owner) error {
	_, err := executor.ExecContext(ctx, `
		INSERT INTO owners (
			id, submission_id, position, first_name, last_name, tax_code, date_of_birth,
			citizenship, country_of_residence, is_resident_in_italy, email, phone
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID,
		o.SubmissionID,
		o.Position,
		o.FirstName,
		o.LastName,
		o.TaxCode,
		nullDate(o.DateOfBirth),
		o.Citizenship,
		o.CountryOfResidence,
		o.IsResidentInItaly,
		o.Email,
		o.Phone,
	)
	if err != nil {
		return fmt.Errorf("failed to insert owner: %w", translateError(err))
	}
	return nil
}

func (r *SubmissionRepository) insertProperty(ctx context.Context, executor Executor, p *models.Property) error {
	occupancyJSON, err := json.Marshal(p.Occupancy)
	if err != nil {
		return fmt.Errorf("failed to encode occupancy: %w", err)
	}
	var cadastralJSON interface{}
	if p.Cadastral != nil {
		data, err := json.Marshal(p.Cadastral)
		if err != nil {
			return fmt.Errorf("failed to encode cadastral data: %w", err)
		}
		cadastralJSON = data
	}

	_, err = executor.ExecContext(ctx, `
		INSERT INTO properties (
			id, submission_id, position, street, street_number, city, province, postal_code,
			cadastral, activity_type, purchase_date, purchase_price, sale_date, sale_price,
			occupancy, rental_income
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID,
		p.SubmissionID,
		p.Position,
		p.Address.Street,
		p.Address.StreetNumber,
		p.Address.City,
		strings.ToUpper(p.Address.Province),
		p.Address.PostalCode,
		cadastralJSON,
		p.ActivityType,
		nullDate(p.PurchaseDate),
		nullDecimal(p.PurchasePrice),
		nullDate(p.SaleDate),
		nullDecimal(p.SalePrice),
		occupancyJSON,
		nullDecimal(p.RentalIncome),
	)
	if err != nil {
		return fmt.Errorf("failed to insert property: %w", translateError(err))
	}
	return nil
}

func (r *SubmissionRepository) insertAssignment(ctx context.Context, executor Executor, a *models.Assignment) error {
	_, err := executor.ExecContext(ctx, `
		INSERT INTO assignments (
			id, submission_id, owner_id, property_id, ownership_percentage, resident_at_property
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID,
		a.SubmissionID,
		a.OwnerID,
		a.PropertyID,
		a.OwnershipPercentage,
		a.ResidentAtProperty,
	)
	if err != nil {
		return fmt.Errorf("failed to insert assignment: %w", translateError(err))
	}
	return nil
}

// GetByID retrieves a submission with its children
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	executor := GetExecutor(ctx, r.db)
	row := executor.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)

	s, err := scanSubmission(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get submission %s: %w", id, translateError(err))
	}

	if err := r.LoadDetails(ctx, []*models.Submission{s}); err != nil {
		return nil, err
	}
	return s, nil
}

// List retrieves submission headers matching the filter, newest first
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]*models.Submission, int, error) {
	where, args := submissionWhere(filter)
	executor := GetExecutor(ctx, r.db)

	var total int
	if err := executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	query := `SELECT ` + submissionColumns + ` FROM submissions` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating submission rows: %w", err)
	}
	return subs, total, nil
}

func submissionWhere(filter models.SubmissionFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if filter.Email != "" {
		add("contact_email ILIKE $%d", "%"+filter.Email+"%")
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// LoadDetails fetches the children of all given submissions with one query per table
func (r *SubmissionRepository) LoadDetails(ctx context.Context, subs []*models.Submission) error {
	if len(subs) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Submission, len(subs))
	ids := make([]string, 0, len(subs))
	for _, s := range subs {
		s.Owners, s.Properties, s.Assignments = []models.Owner{}, []models.Property{}, []models.Assignment{}
		byID[s.ID] = s
		ids = append(ids, s.ID.String())
	}
	executor := GetExecutor(ctx, r.db)

	if err := r.loadOwners(ctx, executor, ids, byID); err != nil {
		return err
	}
	if err := r.loadProperties(ctx, executor, ids, byID); err != nil {
		return err
	}
	return r.loadAssignments(ctx, executor, ids, byID)
}

func (r *SubmissionRepository) loadOwners(ctx context.Context, executor Executor, ids []string, byID map[uuid.UUID]*models.Submission) error {
	rows, err := executor.QueryContext(ctx, `
		SELECT id, submission_id, position, first_name, last_name, tax_code, date_of_birth,
		       citizenship, country_of_residence, is_resident_in_italy, email, phone
		FROM owners
		WHERE submission_id = ANY($1::uuid[])
		ORDER BY submission_id, position`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query owners: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o models.Owner
		var taxCode, country, email, phone sql.NullString
		var dob sql.NullTime
		if err := rows.Scan(&o.ID, &o.SubmissionID, &o.Position, &o.FirstName, &o.LastName, &taxCode, &dob,
			&o.Citizenship, &country, &o.IsResidentInItaly, &email, &phone); err != nil {
			return fmt.Errorf("failed to scan owner: %w", err)
		}
		o.TaxCode, o.CountryOfResidence, o.Email, o.Phone = taxCode.String, country.String, email.String, phone.String
		o.DateOfBirth = dateFromNull(dob)
		if s, ok := byID[o.SubmissionID]; ok {
			s.Owners = append(s.Owners, o)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating owner rows: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) loadProperties(ctx context.Context, executor Executor, ids []string, byID map[uuid.UUID]*models.Submission) error {
	rows, err := executor.QueryContext(ctx, `
		SELECT id, submission_id, position, street, street_number, city, province, postal_code,
		       cadastral, activity_type, purchase_date, purchase_price, sale_date, sale_price,
		       occupancy, rental_income
		FROM properties
		WHERE submission_id = ANY($1::uuid[])
		ORDER BY submission_id, position`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Property
		var streetNumber sql.NullString
		var cadastral, occupancy []byte
		var purchaseDate, saleDate sql.NullTime
		var purchasePrice, salePrice, rentalIncome decimal.NullDecimal
		if err := rows.Scan(&p.ID, &p.SubmissionID, &p.Position, &p.Address.Street, &streetNumber,
			&p.Address.City, &p.Address.Province, &p.Address.PostalCode, &cadastral, &p.ActivityType,
			&purchaseDate, &purchasePrice, &saleDate, &salePrice, &occupancy, &rentalIncome); err != nil {
			return fmt.Errorf("failed to scan property: %w", err)
		}
		p.Address.StreetNumber = streetNumber.String
		p.PurchaseDate, p.SaleDate = dateFromNull(purchaseDate), dateFromNull(saleDate)
		p.PurchasePrice, p.SalePrice, p.RentalIncome = decimalFromNull(purchasePrice), decimalFromNull(salePrice), decimalFromNull(rentalIncome)
		if len(cadastral) > 0 {
			p.Cadastral = &models.CadastralData{}
			if err := json.Unmarshal(cadastral, p.Cadastral); err != nil {
				return fmt.Errorf("failed to decode cadastral data: %w", err)
			}
		}
		if err := json.Unmarshal(occupancy, &p.Occupancy); err != nil {
			return fmt.Errorf("failed to decode occupancy: %w", err)
		}
		if s, ok := byID[p.SubmissionID]; ok {
			s.Properties = append(s.Properties, p)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating property rows: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) loadAssignments(ctx context.Context, executor Executor, ids []string, byID map[uuid.UUID]*models.Submission) error {
	rows, err := executor.QueryContext(ctx, `
		SELECT id, submission_id, owner_id, property_id, ownership_percentage, resident_at_property
		FROM assignments
		WHERE submission_id = ANY($1::uuid[])`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Assignment
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.OwnerID, &a.PropertyID, &a.OwnershipPercentage, &a.ResidentAtProperty); err != nil {
			return fmt.Errorf("failed to scan assignment: %w", err)
		}
		if s, ok := byID[a.SubmissionID]; ok {
			s.Assignments = append(s.Assignments, a)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating assignment rows: %w", err)
	}
	return nil
}

// Update persists the mutable header fields, including the pricing snapshot
func (r *SubmissionRepository) Update(ctx context.Context, s *models.Submission) error {
	pricingJSON, err := json.Marshal(s.Pricing)
	if err != nil {
		return fmt.Errorf("failed to encode pricing: %w", err)
	}

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `
		UPDATE submissions
		SET status = $2,
		    stripe_session_id = $3,
		    notes = $4,
		    paid_at = $5,
		    updated_at = $6,
		    pricing = $7,
		    total_amount = $8
		WHERE id = $1`,
		s.ID,
		s.Status,
		s.StripeSessionID,
		s.Notes,
		s.PaidAt,
		s.UpdatedAt,
		pricingJSON,
		s.Pricing.Total,
	)
	if err != nil {
		return fmt.Errorf("failed to update submission: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return fmt.Errorf("failed to update submission %s: %w", s.ID, err)
	}

	r.logger.Debug("submission updated", zap.String("id", s.ID.String()), zap.String("status", string(s.Status)))
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	s := &models.Submission{}
	var phone, sessionID, notes sql.NullString
	var pricingJSON []byte
	var paidAt sql.NullTime

	if err := row.Scan(&s.ID, &s.Contact.Name, &s.Contact.Email, &phone, &s.HasDocumentRetrieval,
		&pricingJSON, &s.Status, &sessionID, &notes, &s.CreatedAt, &s.UpdatedAt, &paidAt); err != nil {
		return nil, err
	}
	s.Contact.Phone = phone.String
	s.Notes = notes.String
	if sessionID.Valid {
		s.StripeSessionID = &sessionID.String
	}
	if paidAt.Valid {
		s.PaidAt = &paidAt.Time
	}
	if err := json.Unmarshal(pricingJSON, &s.Pricing); err != nil {
		return nil, fmt.Errorf("failed to decode pricing: %w", err)
	}
	return s, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func nullDate(d *models.Date) interface{} {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.Time
}

func dateFromNull(t sql.NullTime) *models.Date {
	if !t.Valid {
		return nil
	}
	return &models.Date{Time: t.Time}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalFromNull(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return &d.Decimal
}
