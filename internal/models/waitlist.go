package models

import "time"

// WaitlistStatus captures the lifecycle of a waitlist entry.
type WaitlistStatus string

const (
	WaitlistStatusWaiting WaitlistStatus = "waiting"
	WaitlistStatusOffered WaitlistStatus = "offered"
	WaitlistStatusExpired WaitlistStatus = "expired"
)

// WaitlistEntry represents one application's place in a class's overflow
// queue. Positions are 1-indexed and gap-free within a class.
type WaitlistEntry struct {
	ID             string         `db:"id" json:"id"`
	ApplicationID  string         `db:"application_id" json:"application_id"`
	Class          string         `db:"class" json:"class"`
	Position       int            `db:"position" json:"position"`
	Status         WaitlistStatus `db:"status" json:"status"`
	AddedAt        time.Time      `db:"added_at" json:"added_at"`
	OfferExpiresAt *time.Time     `db:"offer_expires_at" json:"offer_expires_at,omitempty"`
}

// WaitlistEntryDetail enriches an entry with applicant context for listings.
type WaitlistEntryDetail struct {
	WaitlistEntry
	ApplicantName string `db:"applicant_name" json:"applicant_name"`
}
