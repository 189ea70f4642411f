package typeform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/responseable/onboarding/internal/errors"
	"github.com/responseable/onboarding/internal/models"
)

// Actor is the audit actor recorded for changes applied from submissions.
const Actor = "typeform response"

// DriverStore is the driver access the handler needs.
type DriverStore interface {
	GetByID(ctx context.Context, id string) (*models.Driver, error)
	GetByEmail(ctx context.Context, email string) (*models.Driver, error)
	Update(ctx context.Context, next *models.Driver, actor string) (*models.Driver, error)
}

// Handler applies Typeform submission events to driver records.
type Handler struct {
	drivers DriverStore
	now     func() time.Time
}

// NewHandler creates a Typeform event handler.
func NewHandler(drivers DriverStore) *Handler {
	return &Handler{drivers: drivers, now: time.Now}
}

// stringFieldSetters maps submission keys to driver field setters. Blank
// values never reach these; a blank submission value leaves the field alone.
var stringFieldSetters = map[string]func(*models.Driver, string){
	"first_name":                     func(d *models.Driver, v string) { d.FirstName = v },
	"last_name":                      func(d *models.Driver, v string) { d.LastName = v },
	"email":                          func(d *models.Driver, v string) { d.Email = v },
	"phone_number":                   func(d *models.Driver, v string) { d.Phone = v },
	"date_of_birth":                  func(d *models.Driver, v string) { d.DateOfBirth = v },
	"national_insurance_number":      func(d *models.Driver, v string) { d.NationalInsuranceNumber = v },
	"right_to_work_check_code":       func(d *models.Driver, v string) { d.RightToWorkCheckCode = v },
	"induction_date":                 func(d *models.Driver, v string) { d.InductionDate = v },
	"interview_date":                 func(d *models.Driver, v string) { d.InterviewDate = v },
	"id_document_type":               func(d *models.Driver, v string) { d.IDDocumentType = v },
	"id_document_number":             func(d *models.Driver, v string) { d.IDDocumentNumber = v },
	"drivers_license_number":         func(d *models.Driver, v string) { d.DriversLicenseNumber = v },
	"drivers_license_expiry_date":    func(d *models.Driver, v string) { d.DriversLicenseExpiryDate = v },
	"address_line_1":                 func(d *models.Driver, v string) { d.AddressLine1 = v },
	"address_line_2":                 func(d *models.Driver, v string) { d.AddressLine2 = v },
	"city":                           func(d *models.Driver, v string) { d.City = v },
	"postcode":                       func(d *models.Driver, v string) { d.Postcode = v },
	"emergency_contact_name":         func(d *models.Driver, v string) { d.EmergencyContactName = v },
	"emergency_contact_phone":        func(d *models.Driver, v string) { d.EmergencyContactPhone = v },
	"emergency_contact_relationship": func(d *models.Driver, v string) { d.EmergencyContactRelationship = v },
	"vehicle_type":                   func(d *models.Driver, v string) { d.VehicleType = v },
	"id_check_completed_at":          func(d *models.Driver, v string) { d.IDCheckCompletedAt = v },
	"preferred_days_per_week":        func(d *models.Driver, v string) { d.PreferredDaysPerWeek = v },
	"preferred_start_date":           func(d *models.Driver, v string) { d.PreferredStartDate = v },
	"notes":                          func(d *models.Driver, v string) { d.Notes = v },
}

// Handle decodes the payload, resolves the target driver, merges submitted
// values over the record, and saves it with one audited update.
func (h *Handler) Handle(ctx context.Context, event *models.WebhookEvent) error {
	var payload WebhookPayload
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("invalid typeform payload: %w", err)
		}
	}

	fields := ParseFields(&payload)

	driver, err := h.resolveDriver(ctx, fields)
	if err != nil {
		return err
	}

	next := *driver
	h.applyFields(&next, fields)
	h.appendSubmissionNote(&next, &payload, event)

	if _, err := h.drivers.Update(ctx, &next, Actor); err != nil {
		return fmt.Errorf("update driver %s: %w", next.ID, err)
	}

	return nil
}

// resolveDriver finds the driver targeted by the submission: an explicit id
// hint wins, then email lookup.
func (h *Handler) resolveDriver(ctx context.Context, fields map[string]Value) (*models.Driver, error) {
	for _, key := range []string{"driverId", "monday_id", "driver_id"} {
		id := strings.TrimSpace(fields[key].Text)
		if id == "" {
			continue
		}
		driver, err := h.drivers.GetByID(ctx, id)
		if err == nil {
			return driver, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get driver %s: %w", id, err)
		}
	}

	email := strings.TrimSpace(fields["email"].Text)
	if email != "" {
		driver, err := h.drivers.GetByEmail(ctx, email)
		if err == nil {
			return driver, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get driver by email: %w", err)
		}
	}

	return nil, errors.New("driver not found for typeform submission")
}

// applyFields merges submitted values over the driver. Non-blank strings
// overwrite; boolean-only fields ignore non-boolean values.
func (h *Handler) applyFields(d *models.Driver, fields map[string]Value) {
	nameChanged := false

	for key, value := range fields {
		setter, ok := stringFieldSetters[key]
		if !ok {
			continue
		}
		if value.IsBool {
			continue
		}
		v := strings.TrimSpace(value.Text)
		if v == "" {
			continue
		}
		setter(d, v)
		if key == "first_name" || key == "last_name" {
			nameChanged = true
		}
	}

	if nameChanged {
		d.Name = strings.TrimSpace(d.FirstName + " " + d.LastName)
	}

	if v := fields["id_check_completed"]; v.IsBool {
		d.IDCheckCompleted = v.Bool
	}

	if v := fields["details_confirmed"]; v.IsBool {
		if v.Bool {
			d.DetailsConfirmedByDriver = "yes"
		} else {
			d.DetailsConfirmedByDriver = "no"
		}
	}

	if v := strings.TrimSpace(fields["preferred_start_day"].Text); v != "" && !fields["preferred_start_day"].IsBool {
		line := "Preferred start day (4-day week): " + v
		if !strings.Contains(d.Notes, line) {
			d.Notes = appendNoteLine(d.Notes, line)
		}
	}
}

// appendSubmissionNote records the submission on the driver's notes, once per
// delivery. The marker carries the provider-side event id so redeliveries of
// the same submission, even under a fresh row id, leave the notes unchanged.
func (h *Handler) appendSubmissionNote(d *models.Driver, payload *WebhookPayload, event *models.WebhookEvent) {
	marker := "(event " + event.ExternalEventID + ")"
	if strings.Contains(d.Notes, marker) {
		return
	}

	when := payload.FormResponse.SubmittedAt
	if when == "" {
		when = h.now().UTC().Format(time.RFC3339)
	}

	d.Notes = appendNoteLine(d.Notes, fmt.Sprintf("[Typeform] submission received at %s %s", when, marker))
}

func appendNoteLine(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
