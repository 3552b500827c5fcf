package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

// allowedTransitions is the admission status graph. Any (from, to) pair not
// listed is illegal; rejected, enrolled and withdrawn have no outgoing edges.
var allowedTransitions = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.StatusApplied:              {models.StatusUnderReview, models.StatusRejected, models.StatusWithdrawn},
	models.StatusUnderReview:          {models.StatusDocumentVerification, models.StatusRejected, models.StatusWithdrawn},
	models.StatusDocumentVerification: {models.StatusEntranceExam, models.StatusInterview, models.StatusRejected, models.StatusWithdrawn},
	models.StatusEntranceExam:         {models.StatusInterview, models.StatusApproved, models.StatusRejected, models.StatusWithdrawn},
	models.StatusInterview:            {models.StatusApproved, models.StatusWaitlisted, models.StatusRejected, models.StatusWithdrawn},
	models.StatusApproved:             {models.StatusEnrolled, models.StatusWithdrawn},
	models.StatusWaitlisted:           {models.StatusApproved, models.StatusRejected, models.StatusWithdrawn},
}

// AllowedTargets returns the legal next states for a status.
func AllowedTargets(from models.ApplicationStatus) []models.ApplicationStatus {
	targets := allowedTransitions[from]
	out := make([]models.ApplicationStatus, len(targets))
	copy(out, targets)
	return out
}

// CanTransition reports whether from/to is an edge of the status graph.
func CanTransition(from, to models.ApplicationStatus) bool {
	for _, target := range allowedTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

type applicationStore interface {
	Create(ctx context.Context, app *models.Application, actor string) (*models.StatusChange, error)
	FindByID(ctx context.Context, id string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	History(ctx context.Context, applicationID string) ([]models.StatusChange, error)
	ApplyTransition(ctx context.Context, params repository.ApplyTransitionParams) (*models.Application, *models.StatusChange, error)
}

// TransitionService owns the admission status graph: it validates requested
// transitions, applies them atomically together with their waitlist side
// effects, and appends the audit history.
type TransitionService struct {
	repo      applicationStore
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	clock     func() time.Time
}

// NewTransitionService constructs TransitionService.
func NewTransitionService(repo applicationStore, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *TransitionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransitionService{repo: repo, validator: validate, logger: logger, metrics: metrics, clock: time.Now}
}

// WithClock overrides the time source, used by tests.
func (s *TransitionService) WithClock(clock func() time.Time) *TransitionService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Create registers a new application in the applied state.
func (s *TransitionService) Create(ctx context.Context, req dto.CreateApplicationRequest, actor string) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	app := &models.Application{ApplicantName: req.ApplicantName, Class: req.Class}
	if _, err := s.repo.Create(ctx, app, actor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}
	s.logger.Info("application created",
		zap.String("application_id", app.ID),
		zap.String("class", app.Class),
		zap.String("actor", actor))
	return app, nil
}

// List returns applications with pagination metadata.
func (s *TransitionService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, *models.Pagination, error) {
	apps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return apps, pagination, nil
}

// Get returns one application.
func (s *TransitionService) Get(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

// History returns the application's audit trail in chronological order.
func (s *TransitionService) History(ctx context.Context, id string) ([]models.StatusChange, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	changes, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status history")
	}
	return changes, nil
}

// ApplyTransition validates the requested edge against the status graph and
// applies it. The write, its StatusChange, and any waitlist side effect are
// one atomic unit; a failed side effect leaves no partial state.
func (s *TransitionService) ApplyTransition(ctx context.Context, id string, req dto.ChangeStatusRequest, actor string) (*models.Application, *models.StatusChange, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	target, err := models.ParseApplicationStatus(req.Status)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if !CanTransition(current.Status, target) {
		s.metrics.RecordTransition(string(current.Status), string(target), "rejected")
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move application from %s to %s", current.Status, target))
	}
	if target == models.StatusEnrolled {
		// Enrollment carries seat and roll-number preconditions, so it
		// only runs through finalization.
		s.metrics.RecordTransition(string(current.Status), string(target), "rejected")
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			"approved applications are enrolled through the enrollment endpoint")
	}

	var note *string
	if req.Note != "" {
		note = &req.Note
	}

	params := repository.ApplyTransitionParams{
		ApplicationID:   id,
		Target:          target,
		ExpectedVersion: req.Version,
		Actor:           actor,
		Note:            note,
		WaitlistAction:  waitlistActionFor(current.Status, target),
		Now:             s.clock().UTC(),
	}
	app, change, err := s.repo.ApplyTransition(ctx, params)
	if err != nil {
		s.metrics.RecordTransition(string(current.Status), string(target), "failed")
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return nil, nil, appErr
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply transition")
	}

	s.metrics.RecordTransition(string(current.Status), string(target), "applied")
	s.logger.Info("status transition applied",
		zap.String("application_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(target)),
		zap.String("actor", actor))
	return app, change, nil
}

// waitlistActionFor maps a validated transition to its waitlist side effect.
func waitlistActionFor(from, to models.ApplicationStatus) repository.WaitlistAction {
	switch to {
	case models.StatusWaitlisted:
		return repository.WaitlistActionEnqueue
	case models.StatusRejected, models.StatusWithdrawn:
		// Removal is idempotent, so this is safe even without an entry.
		return repository.WaitlistActionRemove
	case models.StatusApproved:
		if from == models.StatusWaitlisted {
			return repository.WaitlistActionRemove
		}
	}
	return repository.WaitlistActionNone
}
