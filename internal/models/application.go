package models

import (
	"fmt"
	"time"
)

// ApplicationStatus represents a state in the admission workflow.
type ApplicationStatus string

// The ten admission workflow states.
const (
	StatusApplied              ApplicationStatus = "applied"
	StatusUnderReview          ApplicationStatus = "under_review"
	StatusDocumentVerification ApplicationStatus = "document_verification"
	StatusEntranceExam         ApplicationStatus = "entrance_exam"
	StatusInterview            ApplicationStatus = "interview"
	StatusApproved             ApplicationStatus = "approved"
	StatusWaitlisted           ApplicationStatus = "waitlisted"
	StatusRejected             ApplicationStatus = "rejected"
	StatusEnrolled             ApplicationStatus = "enrolled"
	StatusWithdrawn            ApplicationStatus = "withdrawn"
)

// ParseApplicationStatus converts a raw string into an ApplicationStatus.
func ParseApplicationStatus(raw string) (ApplicationStatus, error) {
	status := ApplicationStatus(raw)
	switch status {
	case StatusApplied, StatusUnderReview, StatusDocumentVerification,
		StatusEntranceExam, StatusInterview, StatusApproved,
		StatusWaitlisted, StatusRejected, StatusEnrolled, StatusWithdrawn:
		return status, nil
	}
	return "", fmt.Errorf("unknown application status %q", raw)
}

// IsTerminal reports whether no outgoing transitions exist for the status.
func (s ApplicationStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusEnrolled || s == StatusWithdrawn
}

// Application is a single admission request moving through the status graph.
type Application struct {
	ID                string            `db:"id" json:"id"`
	ApplicantName     string            `db:"applicant_name" json:"applicant_name"`
	Class             string            `db:"class" json:"class"`
	Status            ApplicationStatus `db:"status" json:"status"`
	WaitlistPosition  *int              `db:"waitlist_position" json:"waitlist_position,omitempty"`
	EnrolledStudentID *string           `db:"enrolled_student_id" json:"enrolled_student_id,omitempty"`
	Version           int               `db:"version" json:"version"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// StatusChange is an immutable audit record of one transition. FromStatus is
// nil only for the initial applied entry.
type StatusChange struct {
	ID            string             `db:"id" json:"id"`
	ApplicationID string             `db:"application_id" json:"application_id"`
	FromStatus    *ApplicationStatus `db:"from_status" json:"from_status,omitempty"`
	ToStatus      ApplicationStatus  `db:"to_status" json:"to_status"`
	ChangedBy     string             `db:"changed_by" json:"changed_by"`
	ChangedAt     time.Time          `db:"changed_at" json:"changed_at"`
	Note          *string            `db:"note" json:"note,omitempty"`
}

// ApplicationFilter constrains application listing queries.
type ApplicationFilter struct {
	Status    ApplicationStatus
	Class     string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
