package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

// CapacityRepository owns the per (class, section) seat ledger. Counter
// updates are single guarded statements so a seat can never be double-booked
// and filled_seats never leaves the [0, total_seats] range.
type CapacityRepository struct {
	db *sqlx.DB
}

// NewCapacityRepository constructs the repository.
func NewCapacityRepository(db *sqlx.DB) *CapacityRepository {
	return &CapacityRepository{db: db}
}

const capacityRowColumns = `c.class, c.section, c.total_seats, c.filled_seats, c.updated_at,
        GREATEST(c.total_seats - c.filled_seats, 0) AS available_seats,
        (SELECT COUNT(*) FROM waitlist_entries w WHERE w.class = c.class) AS waitlist_count`

// Upsert creates or resizes a ledger row. Shrinking below the current filled
// count is rejected.
func (r *CapacityRepository) Upsert(ctx context.Context, class, section string, totalSeats int) (*models.ClassCapacityRow, error) {
	const upsert = `INSERT INTO class_capacity (class, section, total_seats, filled_seats, updated_at)
        VALUES ($1, $2, $3, 0, $4)
        ON CONFLICT (class, section) DO UPDATE
        SET total_seats = EXCLUDED.total_seats, updated_at = EXCLUDED.updated_at
        WHERE class_capacity.filled_seats <= EXCLUDED.total_seats`
	res, err := r.db.ExecContext(ctx, upsert, class, section, totalSeats, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("upsert class capacity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("upsert class capacity result: %w", err)
	}
	if affected == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("cannot shrink %s %s below its filled seats", class, section))
	}
	return r.Get(ctx, class, section)
}

// Get returns one ledger row with its waitlist count.
func (r *CapacityRepository) Get(ctx context.Context, class, section string) (*models.ClassCapacityRow, error) {
	query := `SELECT ` + capacityRowColumns + ` FROM class_capacity c WHERE c.class = $1 AND c.section = $2`
	var row models.ClassCapacityRow
	if err := r.db.GetContext(ctx, &row, query, class, section); err != nil {
		return nil, err
	}
	return &row, nil
}

// List returns every ledger row ordered by class then section.
func (r *CapacityRepository) List(ctx context.Context) ([]models.ClassCapacityRow, error) {
	query := `SELECT ` + capacityRowColumns + ` FROM class_capacity c ORDER BY c.class, c.section`
	var rows []models.ClassCapacityRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list class capacity: %w", err)
	}
	return rows, nil
}

// Rollup aggregates the ledger per class. Derived view, never a write target.
func (r *CapacityRepository) Rollup(ctx context.Context) ([]models.ClassCapacityRollup, error) {
	const query = `SELECT c.class,
        COUNT(*) AS sections,
        SUM(c.total_seats) AS total_seats,
        SUM(c.filled_seats) AS filled_seats,
        SUM(GREATEST(c.total_seats - c.filled_seats, 0)) AS available_seats,
        (SELECT COUNT(*) FROM waitlist_entries w WHERE w.class = c.class) AS waitlist_count
        FROM class_capacity c GROUP BY c.class ORDER BY c.class`
	var rollups []models.ClassCapacityRollup
	if err := r.db.SelectContext(ctx, &rollups, query); err != nil {
		return nil, fmt.Errorf("rollup class capacity: %w", err)
	}
	return rollups, nil
}

// AvailableSeats returns the free seat count for a section.
func (r *CapacityRepository) AvailableSeats(ctx context.Context, class, section string) (int, error) {
	const query = `SELECT GREATEST(total_seats - filled_seats, 0) FROM class_capacity WHERE class = $1 AND section = $2`
	var available int
	if err := r.db.GetContext(ctx, &available, query, class, section); err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no capacity ledger for %s %s", class, section))
		}
		return 0, fmt.Errorf("read available seats: %w", err)
	}
	return available, nil
}

// RecordAdmissionTx atomically debits one seat inside the caller's
// transaction, failing with ErrCapacityExceeded when the section is full.
func (r *CapacityRepository) RecordAdmissionTx(ctx context.Context, q sqlx.ExtContext, class, section string, now time.Time) error {
	const debit = `UPDATE class_capacity SET filled_seats = filled_seats + 1, updated_at = $3
        WHERE class = $1 AND section = $2 AND filled_seats < total_seats`
	res, err := q.ExecContext(ctx, debit, class, section, now)
	if err != nil {
		return fmt.Errorf("record admission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record admission result: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = sqlx.GetContext(ctx, q, &exists, `SELECT 1 FROM class_capacity WHERE class = $1 AND section = $2`, class, section)
	if err == sql.ErrNoRows {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no capacity ledger for %s %s", class, section))
	}
	if err != nil {
		return fmt.Errorf("check capacity ledger: %w", err)
	}
	return appErrors.Clone(appErrors.ErrCapacityExceeded, fmt.Sprintf("%s %s has no seats available", class, section))
}

// RecordAdmission is the standalone variant of RecordAdmissionTx.
func (r *CapacityRepository) RecordAdmission(ctx context.Context, class, section string) error {
	return r.RecordAdmissionTx(ctx, r.db, class, section, time.Now().UTC())
}

// RecordWithdrawal atomically frees one seat. A ledger already at zero is a
// precondition failure, not silent underflow.
func (r *CapacityRepository) RecordWithdrawal(ctx context.Context, class, section string) error {
	const credit = `UPDATE class_capacity SET filled_seats = filled_seats - 1, updated_at = $3
        WHERE class = $1 AND section = $2 AND filled_seats > 0`
	res, err := r.db.ExecContext(ctx, credit, class, section, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record withdrawal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record withdrawal result: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = r.db.GetContext(ctx, &exists, `SELECT 1 FROM class_capacity WHERE class = $1 AND section = $2`, class, section)
	if err == sql.ErrNoRows {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no capacity ledger for %s %s", class, section))
	}
	if err != nil {
		return fmt.Errorf("check capacity ledger: %w", err)
	}
	return appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("%s %s has no filled seats to withdraw", class, section))
}
