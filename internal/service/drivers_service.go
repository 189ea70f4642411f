package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/responseable/onboarding/internal/errors"
	"github.com/responseable/onboarding/internal/models"
)

// DriversStore is the repository surface the drivers service depends on.
type DriversStore interface {
	GetByID(ctx context.Context, id string) (*models.Driver, error)
	GetByEmail(ctx context.Context, email string) (*models.Driver, error)
	List(ctx context.Context, filters *models.ListDriversFilters) (*models.ListDriversResponse, error)
	BatchGet(ctx context.Context, ids []string) ([]models.Driver, error)
	Create(ctx context.Context, driver *models.Driver, actor string) (*models.Driver, error)
	Update(ctx context.Context, next *models.Driver, actor string) (*models.Driver, error)
	Stats(ctx context.Context) (*models.DriverStats, error)
}

// FormInviter sends the additional-details form to a driver.
type FormInviter interface {
	SendAdditionalDetailsForm(ctx context.Context, driver *models.Driver) error
}

// DriversService implements driver reads and audited updates.
type DriversService struct {
	drivers DriversStore
	forms   FormInviter
}

// NewDriversService creates a drivers service. forms may be nil when form
// sending is disabled.
func NewDriversService(drivers DriversStore, forms FormInviter) *DriversService {
	return &DriversService{drivers: drivers, forms: forms}
}

// GetDriver returns a driver with its audit trail.
func (s *DriversService) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	return s.drivers.GetByID(ctx, id)
}

// ListDrivers returns a filtered driver page.
func (s *DriversService) ListDrivers(ctx context.Context, filters *models.ListDriversFilters) (*models.ListDriversResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}
	return s.drivers.List(ctx, filters)
}

// BatchGetDrivers returns the drivers for the given ids, skipping unknown ones.
func (s *DriversService) BatchGetDrivers(ctx context.Context, ids []string) ([]models.Driver, error) {
	return s.drivers.BatchGet(ctx, ids)
}

// CreateDriver registers a new driver record.
func (s *DriversService) CreateDriver(ctx context.Context, req *models.CreateDriverRequest, actor string) (*models.Driver, error) {
	status := models.StatusAdditionalDetailsSent
	if req.Status != "" {
		status = models.NormalizeDriverStatus(req.Status)
	}

	driver := &models.Driver{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Status:    status,
	}
	driver.Name = strings.TrimSpace(driver.FirstName + " " + driver.LastName)

	return s.drivers.Create(ctx, driver, actor)
}

// UpdateDriver applies a partial update and returns the refreshed record with
// its audit trail.
func (s *DriversService) UpdateDriver(ctx context.Context, id string, req *models.UpdateDriverRequest, actor string) (*models.Driver, error) {
	current, err := s.drivers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	next.AuditTrail = nil
	applyDriverPatch(&next, req)

	if _, err := s.drivers.Update(ctx, &next, actor); err != nil {
		return nil, err
	}

	return s.drivers.GetByID(ctx, id)
}

// GetStats returns driver counts by status.
func (s *DriversService) GetStats(ctx context.Context) (*models.DriverStats, error) {
	return s.drivers.Stats(ctx)
}

// SendAdditionalDetailsForm emails the driver a prefilled additional-details
// form.
func (s *DriversService) SendAdditionalDetailsForm(ctx context.Context, id string) error {
	if s.forms == nil {
		return apperrors.NewValidationError("forms", "form sending is not configured")
	}

	driver, err := s.drivers.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(driver.Email) == "" {
		return apperrors.NewValidationError("email", "driver has no email address")
	}

	if err := s.forms.SendAdditionalDetailsForm(ctx, driver); err != nil {
		return fmt.Errorf("send additional details form: %w", err)
	}

	return nil
}

func applyDriverPatch(d *models.Driver, req *models.UpdateDriverRequest) {
	nameChanged := false

	if req.FirstName != nil {
		d.FirstName = *req.FirstName
		nameChanged = true
	}
	if req.LastName != nil {
		d.LastName = *req.LastName
		nameChanged = true
	}
	if nameChanged {
		d.Name = strings.TrimSpace(d.FirstName + " " + d.LastName)
	}

	if req.Email != nil {
		d.Email = *req.Email
	}
	if req.Phone != nil {
		d.Phone = *req.Phone
	}
	if req.Status != nil {
		d.Status = models.NormalizeDriverStatus(*req.Status)
	}
	if req.DateOfBirth != nil {
		d.DateOfBirth = *req.DateOfBirth
	}
	if req.NationalInsuranceNumber != nil {
		d.NationalInsuranceNumber = *req.NationalInsuranceNumber
	}
	if req.RightToWorkCheckCode != nil {
		d.RightToWorkCheckCode = *req.RightToWorkCheckCode
	}
	if req.InductionDate != nil {
		d.InductionDate = *req.InductionDate
	}
	if req.InterviewDate != nil {
		d.InterviewDate = *req.InterviewDate
	}
	if req.IDDocumentType != nil {
		d.IDDocumentType = *req.IDDocumentType
	}
	if req.IDDocumentNumber != nil {
		d.IDDocumentNumber = *req.IDDocumentNumber
	}
	if req.IDCheckCompleted != nil {
		d.IDCheckCompleted = *req.IDCheckCompleted
	}
	if req.IDCheckCompletedAt != nil {
		d.IDCheckCompletedAt = *req.IDCheckCompletedAt
	}
	if req.DriversLicenseNumber != nil {
		d.DriversLicenseNumber = *req.DriversLicenseNumber
	}
	if req.DriversLicenseExpiryDate != nil {
		d.DriversLicenseExpiryDate = *req.DriversLicenseExpiryDate
	}
	if req.AddressLine1 != nil {
		d.AddressLine1 = *req.AddressLine1
	}
	if req.AddressLine2 != nil {
		d.AddressLine2 = *req.AddressLine2
	}
	if req.City != nil {
		d.City = *req.City
	}
	if req.Postcode != nil {
		d.Postcode = *req.Postcode
	}
	if req.EmergencyContactName != nil {
		d.EmergencyContactName = *req.EmergencyContactName
	}
	if req.EmergencyContactPhone != nil {
		d.EmergencyContactPhone = *req.EmergencyContactPhone
	}
	if req.EmergencyContactRelationship != nil {
		d.EmergencyContactRelationship = *req.EmergencyContactRelationship
	}
	if req.VehicleType != nil {
		d.VehicleType = *req.VehicleType
	}
	if req.PreferredDaysPerWeek != nil {
		d.PreferredDaysPerWeek = *req.PreferredDaysPerWeek
	}
	if req.PreferredStartDate != nil {
		d.PreferredStartDate = *req.PreferredStartDate
	}
	if req.DetailsConfirmedByDriver != nil {
		d.DetailsConfirmedByDriver = *req.DetailsConfirmedByDriver
	}
	if req.Notes != nil {
		d.Notes = *req.Notes
	}
}
