package models

import "time"

// ClassCapacity is the per (class, section) seat ledger.
type ClassCapacity struct {
	Class       string    `db:"class" json:"class"`
	Section     string    `db:"section" json:"section"`
	TotalSeats  int       `db:"total_seats" json:"total_seats"`
	FilledSeats int       `db:"filled_seats" json:"filled_seats"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// AvailableSeats derives the free seat count, never negative.
func (c ClassCapacity) AvailableSeats() int {
	if free := c.TotalSeats - c.FilledSeats; free > 0 {
		return free
	}
	return 0
}

// ClassCapacityRow is a ledger row joined with the class waitlist size.
type ClassCapacityRow struct {
	ClassCapacity
	AvailableSeats int `db:"available_seats" json:"available_seats"`
	WaitlistCount  int `db:"waitlist_count" json:"waitlist_count"`
}

// ClassCapacityRollup aggregates all sections of a class. It is a derived
// read-only view, never a write target.
type ClassCapacityRollup struct {
	Class          string `db:"class" json:"class"`
	Sections       int    `db:"sections" json:"sections"`
	TotalSeats     int    `db:"total_seats" json:"total_seats"`
	FilledSeats    int    `db:"filled_seats" json:"filled_seats"`
	AvailableSeats int    `db:"available_seats" json:"available_seats"`
	WaitlistCount  int    `db:"waitlist_count" json:"waitlist_count"`
}
