package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

// EnrollmentRepository performs the finalization write: seat debit, status
// transition, and student creation as one atomic unit. Roll-number
// allocation is serialized per (class, section) with an advisory transaction
// lock so concurrent finalizations can never pick the same number.
type EnrollmentRepository struct {
	db       *sqlx.DB
	students *StudentRepository
	capacity *CapacityRepository
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB, students *StudentRepository, capacity *CapacityRepository) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, students: students, capacity: capacity}
}

// FinalizeParams carries one validated finalization into storage.
type FinalizeParams struct {
	ApplicationID string
	Section       string
	RollNumber    *int
	BloodGroup    string
	Actor         string
	Now           time.Time
}

func lockSectionTx(ctx context.Context, tx *sqlx.Tx, class, section string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('enroll:' || $1 || ':' || $2))`, class, section); err != nil {
		return fmt.Errorf("lock section %s %s: %w", class, section, err)
	}
	return nil
}

// Finalize converts an approved application into an enrolled student.
// Ordering inside the transaction: validate, debit capacity, allocate roll
// number, create student, transition + attach; rollback undoes every step so
// a failed finalization leaves no partial state.
func (r *EnrollmentRepository) Finalize(ctx context.Context, params FinalizeParams) (student *models.Student, app *models.Application, change *models.StatusChange, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("begin finalize: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Application
	const lock = `SELECT id, applicant_name, class, status, enrolled_student_id, version, created_at, updated_at
        FROM applications WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lock, params.ApplicationID); err != nil {
		if err == sql.ErrNoRows {
			err = appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("application %s not found", params.ApplicationID))
		}
		return nil, nil, nil, err
	}
	if current.Status != models.StatusApproved {
		err = appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("application %s is %s, only approved applications can be enrolled", current.ID, current.Status))
		return nil, nil, nil, err
	}

	if err = lockSectionTx(ctx, tx, current.Class, params.Section); err != nil {
		return nil, nil, nil, err
	}

	if err = r.capacity.RecordAdmissionTx(ctx, tx, current.Class, params.Section, params.Now); err != nil {
		return nil, nil, nil, err
	}

	rollNumber := 0
	if params.RollNumber != nil {
		rollNumber = *params.RollNumber
		var taken bool
		if taken, err = r.students.RollNumberTakenTx(ctx, tx, current.Class, params.Section, rollNumber); err != nil {
			return nil, nil, nil, err
		}
		if taken {
			err = appErrors.Clone(appErrors.ErrRollNumberConflict,
				fmt.Sprintf("roll number %d already taken in %s %s", rollNumber, current.Class, params.Section))
			return nil, nil, nil, err
		}
	} else {
		var max int
		if max, err = r.students.MaxRollNumberTx(ctx, tx, current.Class, params.Section); err != nil {
			return nil, nil, nil, err
		}
		rollNumber = max + 1
	}

	student = &models.Student{
		ID:            uuid.NewString(),
		ApplicationID: current.ID,
		FullName:      current.ApplicantName,
		Class:         current.Class,
		Section:       params.Section,
		RollNumber:    rollNumber,
		BloodGroup:    params.BloodGroup,
		EnrolledAt:    params.Now,
	}
	if err = r.students.InsertTx(ctx, tx, student); err != nil {
		return nil, nil, nil, err
	}

	const update = `UPDATE applications SET status = $2, enrolled_student_id = $3, version = version + 1, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, update, current.ID, models.StatusEnrolled, student.ID, params.Now); err != nil {
		err = fmt.Errorf("mark application enrolled: %w", err)
		return nil, nil, nil, err
	}

	change = &models.StatusChange{
		ID:            uuid.NewString(),
		ApplicationID: current.ID,
		FromStatus:    &current.Status,
		ToStatus:      models.StatusEnrolled,
		ChangedBy:     params.Actor,
		ChangedAt:     params.Now,
	}
	if err = insertStatusChange(ctx, tx, change); err != nil {
		return nil, nil, nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, nil, fmt.Errorf("commit finalize: %w", err)
	}

	updated := current
	updated.Status = models.StatusEnrolled
	updated.EnrolledStudentID = &student.ID
	updated.Version = current.Version + 1
	updated.UpdatedAt = params.Now
	return student, &updated, change, nil
}
