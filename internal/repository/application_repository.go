package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

// WaitlistAction is the side effect a transition carries into the waitlist.
type WaitlistAction int

const (
	WaitlistActionNone WaitlistAction = iota
	WaitlistActionEnqueue
	WaitlistActionRemove
)

// ApplicationRepository handles persistence of applications and their
// append-only status history. Transitions and their waitlist side effects
// commit in a single transaction.
type ApplicationRepository struct {
	db       *sqlx.DB
	waitlist *WaitlistRepository
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB, waitlist *WaitlistRepository) *ApplicationRepository {
	return &ApplicationRepository{db: db, waitlist: waitlist}
}

const applicationColumns = `a.id, a.applicant_name, a.class, a.status, a.enrolled_student_id, a.version, a.created_at, a.updated_at,
        w.position AS waitlist_position`

const applicationFrom = ` FROM applications a
        LEFT JOIN waitlist_entries w ON w.application_id = a.id`

// Create persists a new application in the applied state together with its
// initial history entry.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application, actor string) (change *models.StatusChange, err error) {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	app.Status = models.StatusApplied
	app.Version = 1
	app.CreatedAt = now
	app.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin application create: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertApp = `INSERT INTO applications (id, applicant_name, class, status, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err = tx.ExecContext(ctx, insertApp, app.ID, app.ApplicantName, app.Class, app.Status, app.Version, app.CreatedAt, app.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert application: %w", err)
	}

	change = &models.StatusChange{
		ID:            uuid.NewString(),
		ApplicationID: app.ID,
		FromStatus:    nil,
		ToStatus:      models.StatusApplied,
		ChangedBy:     actor,
		ChangedAt:     now,
	}
	if err = insertStatusChange(ctx, tx, change); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit application create: %w", err)
	}
	return change, nil
}

// FindByID returns an application with its derived waitlist position.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + applicationFrom + ` WHERE a.id = $1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns applications filtered by the provided criteria.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Class != "" {
		conditions = append(conditions, fmt.Sprintf("a.class = $%d", len(args)+1))
		args = append(args, filter.Class)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("a.applicant_name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":     "a.created_at",
		"applicant_name": "a.applicant_name",
		"status":         "a.status",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "a.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		applicationColumns, applicationFrom, clause, orderBy, order, size, offset)

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := "SELECT COUNT(*)" + applicationFrom + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return apps, total, nil
}

// History returns the application's status changes in insertion order.
func (r *ApplicationRepository) History(ctx context.Context, applicationID string) ([]models.StatusChange, error) {
	const query = `SELECT id, application_id, from_status, to_status, changed_by, changed_at, note
        FROM status_changes WHERE application_id = $1 ORDER BY seq ASC`
	var changes []models.StatusChange
	if err := r.db.SelectContext(ctx, &changes, query, applicationID); err != nil {
		return nil, fmt.Errorf("load status history: %w", err)
	}
	return changes, nil
}

// ApplyTransitionParams carries one validated transition into storage.
type ApplyTransitionParams struct {
	ApplicationID   string
	Target          models.ApplicationStatus
	ExpectedVersion int
	Actor           string
	Note            *string
	WaitlistAction  WaitlistAction
	Now             time.Time
}

// ApplyTransition performs the version-checked status update, appends the
// StatusChange, and runs the waitlist side effect, all in one transaction.
// Nothing is recorded when any step fails.
func (r *ApplicationRepository) ApplyTransition(ctx context.Context, params ApplyTransitionParams) (app *models.Application, change *models.StatusChange, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transition: %w", err)
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
		return nil, nil, err
	}
	if current.Version != params.ExpectedVersion {
		err = appErrors.Clone(appErrors.ErrConcurrentModification,
			fmt.Sprintf("application %s is at version %d, caller expected %d", current.ID, current.Version, params.ExpectedVersion))
		return nil, nil, err
	}

	const update = `UPDATE applications SET status = $2, version = version + 1, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, update, current.ID, params.Target, params.Now); err != nil {
		return nil, nil, fmt.Errorf("update application status: %w", err)
	}

	change = &models.StatusChange{
		ID:            uuid.NewString(),
		ApplicationID: current.ID,
		FromStatus:    &current.Status,
		ToStatus:      params.Target,
		ChangedBy:     params.Actor,
		ChangedAt:     params.Now,
		Note:          params.Note,
	}
	if err = insertStatusChange(ctx, tx, change); err != nil {
		return nil, nil, err
	}

	updated := current
	updated.Status = params.Target
	updated.Version = current.Version + 1
	updated.UpdatedAt = params.Now

	switch params.WaitlistAction {
	case WaitlistActionEnqueue:
		var entry *models.WaitlistEntry
		entry, err = r.waitlist.EnqueueTx(ctx, tx, current.ID, current.Class, params.Now)
		if err != nil {
			return nil, nil, err
		}
		updated.WaitlistPosition = &entry.Position
	case WaitlistActionRemove:
		if _, _, err = r.waitlist.RemoveTx(ctx, tx, current.ID); err != nil {
			return nil, nil, err
		}
		updated.WaitlistPosition = nil
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit transition: %w", err)
	}
	return &updated, change, nil
}

func insertStatusChange(ctx context.Context, tx *sqlx.Tx, change *models.StatusChange) error {
	const insert = `INSERT INTO status_changes (id, application_id, from_status, to_status, changed_by, changed_at, note)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, insert, change.ID, change.ApplicationID, change.FromStatus, change.ToStatus, change.ChangedBy, change.ChangedAt, change.Note); err != nil {
		return fmt.Errorf("insert status change: %w", err)
	}
	return nil
}
