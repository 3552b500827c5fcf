package dto

// CreateApplicationRequest registers a new admission application. Every
// application starts in the applied state.
type CreateApplicationRequest struct {
	ApplicantName string `json:"applicant_name" validate:"required"`
	Class         string `json:"class" validate:"required"`
}

// ChangeStatusRequest moves an application along the workflow graph. Version
// is the version the caller last read; a stale value is rejected.
type ChangeStatusRequest struct {
	Status  string `json:"status" validate:"required"`
	Note    string `json:"note"`
	Version int    `json:"version" validate:"required,min=1"`
}

// EnrollStudentRequest finalizes an approved application into a student
// record. RollNumber is optional; when omitted the next free number in the
// section is assigned.
type EnrollStudentRequest struct {
	ApplicationID string `json:"application_id" validate:"required"`
	Section       string `json:"section" validate:"required"`
	RollNumber    *int   `json:"roll_number" validate:"omitempty,min=1"`
	BloodGroup    string `json:"blood_group" validate:"required"`
}

// SetCapacityRequest configures the seat ledger for a (class, section).
type SetCapacityRequest struct {
	TotalSeats int `json:"total_seats" validate:"required,min=1"`
}
