package models

import "time"

// DriverStatus is the onboarding stage of a driver application.
type DriverStatus string

const (
	StatusAdditionalDetailsSent      DriverStatus = "ADDITIONAL_DETAILS_SENT"
	StatusAdditionalDetailsCompleted DriverStatus = "ADDITIONAL_DETAILS_COMPLETED"
	StatusInternalDetailsSent        DriverStatus = "INTERNAL_DETAILS_SENT"
	StatusInternalDetailsCompleted   DriverStatus = "INTERNAL_DETAILS_COMPLETED"
	StatusAwaitingInduction          DriverStatus = "AWAITING_INDUCTION"
	StatusWithdrawn                  DriverStatus = "WITHDRAWN"
	StatusRejected                   DriverStatus = "REJECTED"
)

// legacyStatusCodes maps numeric status codes from the previous status model
// to current statuses. Rows written before the migration may still carry them.
var legacyStatusCodes = map[string]DriverStatus{
	"1": StatusAdditionalDetailsSent,
	"2": StatusAwaitingInduction,
	"3": StatusRejected,
}

// NormalizeDriverStatus translates a stored status value into a current
// DriverStatus. Legacy numeric codes are mapped through an explicit table;
// anything unrecognized falls back to ADDITIONAL_DETAILS_SENT.
func NormalizeDriverStatus(raw string) DriverStatus {
	if s, ok := legacyStatusCodes[raw]; ok {
		return s
	}
	switch DriverStatus(raw) {
	case StatusAdditionalDetailsSent, StatusAdditionalDetailsCompleted,
		StatusInternalDetailsSent, StatusInternalDetailsCompleted,
		StatusAwaitingInduction, StatusWithdrawn, StatusRejected:
		return DriverStatus(raw)
	}
	return StatusAdditionalDetailsSent
}

// IsValidDriverStatus reports whether s is one of the current statuses.
func IsValidDriverStatus(s string) bool {
	switch DriverStatus(s) {
	case StatusAdditionalDetailsSent, StatusAdditionalDetailsCompleted,
		StatusInternalDetailsSent, StatusInternalDetailsCompleted,
		StatusAwaitingInduction, StatusWithdrawn, StatusRejected:
		return true
	}
	return false
}

// Driver is a driver onboarding record. String fields use "" for unset;
// the merge update treats blank incoming values as "leave unchanged".
type Driver struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	FirstName string       `json:"first_name"`
	LastName  string       `json:"last_name"`
	Email     string       `json:"email"`
	Phone     string       `json:"phone"`
	Status    DriverStatus `json:"status"`
	AppliedAt string       `json:"applied_at"`

	DateOfBirth              string `json:"date_of_birth,omitempty"`
	NationalInsuranceNumber  string `json:"national_insurance_number,omitempty"`
	RightToWorkCheckCode     string `json:"right_to_work_check_code,omitempty"`
	InductionDate            string `json:"induction_date,omitempty"`
	InterviewDate            string `json:"interview_date,omitempty"`
	IDDocumentType           string `json:"id_document_type,omitempty"`
	IDDocumentNumber         string `json:"id_document_number,omitempty"`
	IDCheckCompleted         bool   `json:"id_check_completed"`
	IDCheckCompletedAt       string `json:"id_check_completed_at,omitempty"`
	DriversLicenseNumber     string `json:"drivers_license_number,omitempty"`
	DriversLicenseExpiryDate string `json:"drivers_license_expiry_date,omitempty"`
	AddressLine1             string `json:"address_line_1,omitempty"`
	AddressLine2             string `json:"address_line_2,omitempty"`
	City                     string `json:"city,omitempty"`
	Postcode                 string `json:"postcode,omitempty"`

	EmergencyContactName         string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone        string `json:"emergency_contact_phone,omitempty"`
	EmergencyContactRelationship string `json:"emergency_contact_relationship,omitempty"`

	VehicleType              string `json:"vehicle_type,omitempty"`
	PreferredDaysPerWeek     string `json:"preferred_days_per_week,omitempty"`
	PreferredStartDate       string `json:"preferred_start_date,omitempty"`
	DetailsConfirmedByDriver string `json:"details_confirmed_by_driver,omitempty"`
	Notes                    string `json:"notes,omitempty"`

	AuditTrail []AuditEvent `json:"audit_trail,omitempty"`
}

// AuditAction classifies an audit trail entry.
type AuditAction string

const (
	AuditCreated       AuditAction = "CREATED"
	AuditUpdated       AuditAction = "UPDATED"
	AuditStatusChanged AuditAction = "STATUS_CHANGED"
)

// AuditEvent records a single field change on a driver.
type AuditEvent struct {
	ID        string      `json:"id"`
	DriverID  string      `json:"driver_id"`
	Actor     string      `json:"actor"`
	Action    AuditAction `json:"action"`
	Timestamp time.Time   `json:"timestamp"`
	Field     string      `json:"field,omitempty"`
	OldValue  string      `json:"old_value,omitempty"`
	NewValue  string      `json:"new_value,omitempty"`
	Note      string      `json:"note,omitempty"`
}

// CreateDriverRequest represents the request to create a driver.
type CreateDriverRequest struct {
	FirstName string `json:"first_name" validate:"required,max=255"`
	LastName  string `json:"last_name" validate:"required,max=255"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,max=64"`
	Status    string `json:"status,omitempty" validate:"omitempty,driver_status"`
}

// UpdateDriverRequest carries a partial driver update from the admin API.
// Nil pointers leave the field untouched.
type UpdateDriverRequest struct {
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,max=255"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,max=255"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=64"`
	Status    *string `json:"status,omitempty" validate:"omitempty,driver_status"`

	DateOfBirth              *string `json:"date_of_birth,omitempty"`
	NationalInsuranceNumber  *string `json:"national_insurance_number,omitempty"`
	RightToWorkCheckCode     *string `json:"right_to_work_check_code,omitempty"`
	InductionDate            *string `json:"induction_date,omitempty"`
	InterviewDate            *string `json:"interview_date,omitempty"`
	IDDocumentType           *string `json:"id_document_type,omitempty"`
	IDDocumentNumber         *string `json:"id_document_number,omitempty"`
	IDCheckCompleted         *bool   `json:"id_check_completed,omitempty"`
	IDCheckCompletedAt       *string `json:"id_check_completed_at,omitempty"`
	DriversLicenseNumber     *string `json:"drivers_license_number,omitempty"`
	DriversLicenseExpiryDate *string `json:"drivers_license_expiry_date,omitempty"`
	AddressLine1             *string `json:"address_line_1,omitempty"`
	AddressLine2             *string `json:"address_line_2,omitempty"`
	City                     *string `json:"city,omitempty"`
	Postcode                 *string `json:"postcode,omitempty"`

	EmergencyContactName         *string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone        *string `json:"emergency_contact_phone,omitempty"`
	EmergencyContactRelationship *string `json:"emergency_contact_relationship,omitempty"`

	VehicleType              *string `json:"vehicle_type,omitempty"`
	PreferredDaysPerWeek     *string `json:"preferred_days_per_week,omitempty"`
	PreferredStartDate       *string `json:"preferred_start_date,omitempty"`
	DetailsConfirmedByDriver *string `json:"details_confirmed_by_driver,omitempty"`
	Notes                    *string `json:"notes,omitempty"`
}

// ListDriversFilters represents filters for listing drivers.
type ListDriversFilters struct {
	Search    string `form:"search" validate:"omitempty,max=255"`
	Status    string `form:"status" validate:"omitempty,driver_status"`
	Limit     int    `form:"limit" validate:"omitempty,min=1,max=200"`
	PageToken string `form:"page_token" validate:"omitempty,max=64"`
}

// ListDriversResponse is the page returned by the drivers list endpoint.
type ListDriversResponse struct {
	Data          []Driver `json:"data"`
	NextPageToken string   `json:"next_page_token,omitempty"`
}

// DriverStats aggregates driver counts by status.
type DriverStats struct {
	Total    int64                  `json:"total"`
	ByStatus map[DriverStatus]int64 `json:"by_status"`
}
