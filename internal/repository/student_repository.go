package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

const pqUniqueViolation = "23505"

// StudentRepository handles the student registry created by enrollment
// finalization.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student record.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, application_id, full_name, class, section, roll_number, blood_group, enrolled_at
        FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListBySection returns a section's students ordered by roll number.
func (r *StudentRepository) ListBySection(ctx context.Context, class, section string) ([]models.Student, error) {
	const query = `SELECT id, application_id, full_name, class, section, roll_number, blood_group, enrolled_at
        FROM students WHERE class = $1 AND section = $2 ORDER BY roll_number ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, class, section); err != nil {
		return nil, fmt.Errorf("list section students: %w", err)
	}
	return students, nil
}

// MaxRollNumberTx reads the highest roll number in a section inside the
// caller's transaction. Callers must already hold the section's enrollment
// lock; a bare read-then-write of this value is a correctness bug.
func (r *StudentRepository) MaxRollNumberTx(ctx context.Context, tx *sqlx.Tx, class, section string) (int, error) {
	var max int
	const query = `SELECT COALESCE(MAX(roll_number), 0) FROM students WHERE class = $1 AND section = $2`
	if err := tx.GetContext(ctx, &max, query, class, section); err != nil {
		return 0, fmt.Errorf("max roll number: %w", err)
	}
	return max, nil
}

// RollNumberTakenTx reports whether a roll number is already used in a
// section, inside the caller's transaction.
func (r *StudentRepository) RollNumberTakenTx(ctx context.Context, tx *sqlx.Tx, class, section string, rollNumber int) (bool, error) {
	var exists int
	const query = `SELECT 1 FROM students WHERE class = $1 AND section = $2 AND roll_number = $3`
	if err := tx.GetContext(ctx, &exists, query, class, section, rollNumber); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check roll number: %w", err)
	}
	return true, nil
}

// InsertTx persists a student inside the caller's transaction. The unique
// index on (class, section, roll_number) is the authoritative uniqueness
// check; a violation maps to ErrRollNumberConflict.
func (r *StudentRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, student *models.Student) error {
	const insert = `INSERT INTO students (id, application_id, full_name, class, section, roll_number, blood_group, enrolled_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, insert, student.ID, student.ApplicationID, student.FullName,
		student.Class, student.Section, student.RollNumber, student.BloodGroup, student.EnrolledAt); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pqUniqueViolation {
			return appErrors.Clone(appErrors.ErrRollNumberConflict,
				fmt.Sprintf("roll number %d already taken in %s %s", student.RollNumber, student.Class, student.Section))
		}
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

// NextRollNumber returns the UI hint max+1. It is read-only and not
// authoritative; finalization re-derives the number under the section lock.
func (r *StudentRepository) NextRollNumber(ctx context.Context, class, section string) (int, error) {
	var max int
	const query = `SELECT COALESCE(MAX(roll_number), 0) FROM students WHERE class = $1 AND section = $2`
	if err := r.db.GetContext(ctx, &max, query, class, section); err != nil {
		return 0, fmt.Errorf("next roll number: %w", err)
	}
	return max + 1, nil
}
