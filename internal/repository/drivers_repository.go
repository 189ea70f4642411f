package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/responseable/onboarding/internal/errors"
	"github.com/responseable/onboarding/internal/models"
)

// driverField pairs a tracked field name with its accessor. The update diff
// walks this table; fields not listed here never produce audit events.
type driverField struct {
	name string
	get  func(*models.Driver) string
}

var trackedDriverFields = []driverField{
	{"name", func(d *models.Driver) string { return d.Name }},
	{"first_name", func(d *models.Driver) string { return d.FirstName }},
	{"last_name", func(d *models.Driver) string { return d.LastName }},
	{"email", func(d *models.Driver) string { return d.Email }},
	{"phone", func(d *models.Driver) string { return d.Phone }},
	{"status", func(d *models.Driver) string { return string(d.Status) }},
	{"date_of_birth", func(d *models.Driver) string { return d.DateOfBirth }},
	{"national_insurance_number", func(d *models.Driver) string { return d.NationalInsuranceNumber }},
	{"right_to_work_check_code", func(d *models.Driver) string { return d.RightToWorkCheckCode }},
	{"induction_date", func(d *models.Driver) string { return d.InductionDate }},
	{"interview_date", func(d *models.Driver) string { return d.InterviewDate }},
	{"id_document_type", func(d *models.Driver) string { return d.IDDocumentType }},
	{"id_document_number", func(d *models.Driver) string { return d.IDDocumentNumber }},
	{"id_check_completed", func(d *models.Driver) string { return strconv.FormatBool(d.IDCheckCompleted) }},
	{"id_check_completed_at", func(d *models.Driver) string { return d.IDCheckCompletedAt }},
	{"drivers_license_number", func(d *models.Driver) string { return d.DriversLicenseNumber }},
	{"drivers_license_expiry_date", func(d *models.Driver) string { return d.DriversLicenseExpiryDate }},
	{"address_line_1", func(d *models.Driver) string { return d.AddressLine1 }},
	{"address_line_2", func(d *models.Driver) string { return d.AddressLine2 }},
	{"city", func(d *models.Driver) string { return d.City }},
	{"postcode", func(d *models.Driver) string { return d.Postcode }},
	{"emergency_contact_name", func(d *models.Driver) string { return d.EmergencyContactName }},
	{"emergency_contact_phone", func(d *models.Driver) string { return d.EmergencyContactPhone }},
	{"emergency_contact_relationship", func(d *models.Driver) string { return d.EmergencyContactRelationship }},
	{"vehicle_type", func(d *models.Driver) string { return d.VehicleType }},
	{"preferred_days_per_week", func(d *models.Driver) string { return d.PreferredDaysPerWeek }},
	{"preferred_start_date", func(d *models.Driver) string { return d.PreferredStartDate }},
	{"details_confirmed_by_driver", func(d *models.Driver) string { return d.DetailsConfirmedByDriver }},
	{"notes", func(d *models.Driver) string { return d.Notes }},
}

const driverColumns = `id, name, first_name, last_name, email, phone, status, applied_at,
		date_of_birth, national_insurance_number, right_to_work_check_code,
		induction_date, interview_date, id_document_type, id_document_number,
		id_check_completed, id_check_completed_at, drivers_license_number,
		drivers_license_expiry_date, address_line_1, address_line_2, city, postcode,
		emergency_contact_name, emergency_contact_phone, emergency_contact_relationship,
		vehicle_type, preferred_days_per_week, preferred_start_date,
		details_confirmed_by_driver, notes`

// DriversRepository handles data access for drivers and their audit trail.
type DriversRepository struct {
	db DB
}

// NewDriversRepository creates a new drivers repository.
func NewDriversRepository(db DB) *DriversRepository {
	return &DriversRepository{db: db}
}

func scanDriver(row pgx.Row) (*models.Driver, error) {
	var d models.Driver
	var status string
	err := row.Scan(
		&d.ID, &d.Name, &d.FirstName, &d.LastName, &d.Email, &d.Phone, &status, &d.AppliedAt,
		&d.DateOfBirth, &d.NationalInsuranceNumber, &d.RightToWorkCheckCode,
		&d.InductionDate, &d.InterviewDate, &d.IDDocumentType, &d.IDDocumentNumber,
		&d.IDCheckCompleted, &d.IDCheckCompletedAt, &d.DriversLicenseNumber,
		&d.DriversLicenseExpiryDate, &d.AddressLine1, &d.AddressLine2, &d.City, &d.Postcode,
		&d.EmergencyContactName, &d.EmergencyContactPhone, &d.EmergencyContactRelationship,
		&d.VehicleType, &d.PreferredDaysPerWeek, &d.PreferredStartDate,
		&d.DetailsConfirmedByDriver, &d.Notes,
	)
	if err != nil {
		return nil, err
	}

	// Legacy numeric codes are translated on the way out; writes always store text.
	d.Status = models.NormalizeDriverStatus(status)

	return &d, nil
}

// GetByID retrieves a driver with its audit trail, newest entries first.
func (r *DriversRepository) GetByID(ctx context.Context, id string) (*models.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`

	driver, err := scanDriver(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFoundError("driver", "driver not found")
		}
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}

	trail, err := r.loadAuditTrail(ctx, id)
	if err != nil {
		return nil, err
	}
	driver.AuditTrail = trail

	return driver, nil
}

// GetByEmail retrieves a driver by email, case-insensitively. The audit trail
// is not loaded.
func (r *DriversRepository) GetByEmail(ctx context.Context, email string) (*models.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE lower(email) = lower($1) LIMIT 1`

	driver, err := scanDriver(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFoundError("driver", "driver not found")
		}
		return nil, fmt.Errorf("failed to get driver by email: %w", err)
	}

	return driver, nil
}

func (r *DriversRepository) loadAuditTrail(ctx context.Context, driverID string) ([]models.AuditEvent, error) {
	query := `
		SELECT id, driver_id, actor, action, timestamp, field, old_value, new_value, note
		FROM audit_events
		WHERE driver_id = $1
		ORDER BY timestamp DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, driverID)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}
	defer rows.Close()

	events := []models.AuditEvent{}
	for rows.Next() {
		var e models.AuditEvent
		err := rows.Scan(&e.ID, &e.DriverID, &e.Actor, &e.Action, &e.Timestamp,
			&e.Field, &e.OldValue, &e.NewValue, &e.Note)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

// Create inserts a new driver and a CREATED audit event.
func (r *DriversRepository) Create(ctx context.Context, driver *models.Driver, actor string) (*models.Driver, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if driver.ID == "" {
		driver.ID = uuid.Must(uuid.NewV7()).String()
	}
	if driver.Status == "" {
		driver.Status = models.StatusAdditionalDetailsSent
	}
	if driver.AppliedAt == "" {
		driver.AppliedAt = time.Now().UTC().Format(time.RFC3339)
	}

	insert := `
		INSERT INTO drivers (` + driverColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)
	`

	_, err = tx.Exec(ctx, insert,
		driver.ID, driver.Name, driver.FirstName, driver.LastName, driver.Email, driver.Phone,
		string(driver.Status), driver.AppliedAt,
		driver.DateOfBirth, driver.NationalInsuranceNumber, driver.RightToWorkCheckCode,
		driver.InductionDate, driver.InterviewDate, driver.IDDocumentType, driver.IDDocumentNumber,
		driver.IDCheckCompleted, driver.IDCheckCompletedAt, driver.DriversLicenseNumber,
		driver.DriversLicenseExpiryDate, driver.AddressLine1, driver.AddressLine2, driver.City,
		driver.Postcode, driver.EmergencyContactName, driver.EmergencyContactPhone,
		driver.EmergencyContactRelationship, driver.VehicleType, driver.PreferredDaysPerWeek,
		driver.PreferredStartDate, driver.DetailsConfirmedByDriver, driver.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	auditInsert := `
		INSERT INTO audit_events (id, driver_id, actor, action, timestamp, field, old_value, new_value, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, auditInsert,
		uuid.Must(uuid.NewV7()).String(), driver.ID, actor, string(models.AuditCreated),
		time.Now().UTC(), "", "", "", "Driver record created",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record driver creation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit driver creation: %w", err)
	}

	return driver, nil
}

// Update replaces the driver row with next and writes one audit event per
// changed tracked field. Fields whose stringified values are equal produce
// no event; a status change is recorded as STATUS_CHANGED, every other change
// as UPDATED.
func (r *DriversRepository) Update(ctx context.Context, next *models.Driver, actor string) (*models.Driver, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanDriver(tx.QueryRow(ctx,
		`SELECT `+driverColumns+` FROM drivers WHERE id = $1 FOR UPDATE`, next.ID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFoundError("driver", "driver not found")
		}
		return nil, fmt.Errorf("failed to load driver for update: %w", err)
	}

	update := `
		UPDATE drivers SET
			name = $2, first_name = $3, last_name = $4, email = $5, phone = $6, status = $7,
			date_of_birth = $8, national_insurance_number = $9, right_to_work_check_code = $10,
			induction_date = $11, interview_date = $12, id_document_type = $13,
			id_document_number = $14, id_check_completed = $15, id_check_completed_at = $16,
			drivers_license_number = $17, drivers_license_expiry_date = $18,
			address_line_1 = $19, address_line_2 = $20, city = $21, postcode = $22,
			emergency_contact_name = $23, emergency_contact_phone = $24,
			emergency_contact_relationship = $25, vehicle_type = $26,
			preferred_days_per_week = $27, preferred_start_date = $28,
			details_confirmed_by_driver = $29, notes = $30
		WHERE id = $1
	`

	_, err = tx.Exec(ctx, update,
		next.ID, next.Name, next.FirstName, next.LastName, next.Email, next.Phone, string(next.Status),
		next.DateOfBirth, next.NationalInsuranceNumber, next.RightToWorkCheckCode,
		next.InductionDate, next.InterviewDate, next.IDDocumentType, next.IDDocumentNumber,
		next.IDCheckCompleted, next.IDCheckCompletedAt, next.DriversLicenseNumber,
		next.DriversLicenseExpiryDate, next.AddressLine1, next.AddressLine2, next.City, next.Postcode,
		next.EmergencyContactName, next.EmergencyContactPhone, next.EmergencyContactRelationship,
		next.VehicleType, next.PreferredDaysPerWeek, next.PreferredStartDate,
		next.DetailsConfirmedByDriver, next.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update driver: %w", err)
	}

	auditInsert := `
		INSERT INTO audit_events (id, driver_id, actor, action, timestamp, field, old_value, new_value, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	now := time.Now().UTC()
	for _, field := range trackedDriverFields {
		oldValue := field.get(current)
		newValue := field.get(next)
		if oldValue == newValue {
			continue
		}

		action := models.AuditUpdated
		note := field.name + " updated"
		if field.name == "status" {
			action = models.AuditStatusChanged
			note = fmt.Sprintf("Status changed from %s to %s", oldValue, newValue)
		}

		_, err = tx.Exec(ctx, auditInsert,
			uuid.Must(uuid.NewV7()).String(), next.ID, actor, string(action), now,
			field.name, oldValue, newValue, note,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to record driver change: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit driver update: %w", err)
	}

	next.AppliedAt = current.AppliedAt

	return next, nil
}

// buildDriverFilterConditions builds WHERE clause conditions and arguments from filters.
func buildDriverFilterConditions(filters *models.ListDriversFilters) (string, []any) {
	var conditions []string
	var args []any
	argCount := 1

	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		conditions = append(conditions, fmt.Sprintf(
			"(name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d)", argCount, argCount, argCount))
		args = append(args, pattern)
		argCount++
	}

	if filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
		args = append(args, filters.Status)
		argCount++
	}

	if filters.PageToken != "" {
		conditions = append(conditions, fmt.Sprintf("id > $%d", argCount))
		args = append(args, filters.PageToken)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

// List retrieves drivers ordered by id with keyset pagination. One extra row
// is fetched to decide whether a next page exists.
func (r *DriversRepository) List(ctx context.Context, filters *models.ListDriversFilters) (*models.ListDriversResponse, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + driverColumns + ` FROM drivers`
	whereClause, args := buildDriverFilterConditions(filters)
	query += whereClause
	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d", len(args)+1)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	defer rows.Close()

	drivers := []models.Driver{}
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver: %w", err)
		}
		drivers = append(drivers, *driver)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drivers: %w", err)
	}

	resp := &models.ListDriversResponse{Data: drivers}
	if len(drivers) > limit {
		resp.Data = drivers[:limit]
		resp.NextPageToken = drivers[limit-1].ID
	}

	return resp, nil
}

// BatchGet retrieves the drivers whose ids are in ids. Missing ids are
// silently skipped.
func (r *DriversRepository) BatchGet(ctx context.Context, ids []string) ([]models.Driver, error) {
	if len(ids) == 0 {
		return []models.Driver{}, nil
	}

	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = ANY($1) ORDER BY id ASC`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to batch get drivers: %w", err)
	}
	defer rows.Close()

	drivers := []models.Driver{}
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver: %w", err)
		}
		drivers = append(drivers, *driver)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drivers: %w", err)
	}

	return drivers, nil
}

// Stats returns driver counts grouped by status.
func (r *DriversRepository) Stats(ctx context.Context) (*models.DriverStats, error) {
	query := `SELECT status, COUNT(*) FROM drivers GROUP BY status`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get driver stats: %w", err)
	}
	defer rows.Close()

	stats := &models.DriverStats{ByStatus: map[models.DriverStatus]int64{}}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan driver stats: %w", err)
		}
		normalized := models.NormalizeDriverStatus(status)
		stats.ByStatus[normalized] += count
		stats.Total += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating driver stats: %w", err)
	}

	return stats, nil
}
