package models

import "time"

// Student is the registry record created when an application is finalized.
type Student struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	FullName      string    `db:"full_name" json:"full_name"`
	Class         string    `db:"class" json:"class"`
	Section       string    `db:"section" json:"section"`
	RollNumber    int       `db:"roll_number" json:"roll_number"`
	BloodGroup    string    `db:"blood_group" json:"blood_group"`
	EnrolledAt    time.Time `db:"enrolled_at" json:"enrolled_at"`
}
