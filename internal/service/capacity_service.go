package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

const (
	capacityCachePattern = "capacity:*"
	capacityRollupKey    = "capacity:rollup"
)

type capacityStore interface {
	Upsert(ctx context.Context, class, section string, totalSeats int) (*models.ClassCapacityRow, error)
	Get(ctx context.Context, class, section string) (*models.ClassCapacityRow, error)
	List(ctx context.Context) ([]models.ClassCapacityRow, error)
	Rollup(ctx context.Context) ([]models.ClassCapacityRollup, error)
	AvailableSeats(ctx context.Context, class, section string) (int, error)
	RecordAdmission(ctx context.Context, class, section string) error
	RecordWithdrawal(ctx context.Context, class, section string) error
}

type waitlistPromoter interface {
	CountByClass(ctx context.Context, class string) (int, error)
	PromoteHead(ctx context.Context, class string) (*models.WaitlistEntry, error)
}

// CapacityService owns the seat ledger. Counters only move through the
// guarded repository updates, and freeing a seat offers it to the class
// waitlist head.
type CapacityService struct {
	repo      capacityStore
	waitlist  waitlistPromoter
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCapacityService constructs CapacityService.
func NewCapacityService(repo capacityStore, waitlist waitlistPromoter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CapacityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityService{repo: repo, waitlist: waitlist, cache: cache, validator: validate, logger: logger}
}

// Setup creates or resizes the ledger for a (class, section).
func (s *CapacityService) Setup(ctx context.Context, class, section string, req dto.SetCapacityRequest) (*models.ClassCapacityRow, error) {
	if class == "" || section == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class and section are required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid capacity payload")
	}
	row, err := s.repo.Upsert(ctx, class, section, req.TotalSeats)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set capacity")
	}
	_ = s.cache.Invalidate(ctx, capacityCachePattern)
	s.logger.Info("class capacity configured",
		zap.String("class", class),
		zap.String("section", section),
		zap.Int("total_seats", req.TotalSeats))
	return row, nil
}

// Get returns one ledger row.
func (s *CapacityService) Get(ctx context.Context, class, section string) (*models.ClassCapacityRow, error) {
	row, err := s.repo.Get(ctx, class, section)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no capacity ledger for class and section")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load capacity")
	}
	return row, nil
}

// List returns all ledger rows, one per (class, section).
func (s *CapacityService) List(ctx context.Context) ([]models.ClassCapacityRow, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list capacity")
	}
	return rows, nil
}

// Rollup aggregates every section of each class into a derived read-only
// view, cached briefly since the admin dashboard polls it.
func (s *CapacityService) Rollup(ctx context.Context) ([]models.ClassCapacityRollup, error) {
	var cached []models.ClassCapacityRollup
	if hit, err := s.cache.Get(ctx, capacityRollupKey, &cached); err == nil && hit {
		return cached, nil
	}
	rollups, err := s.repo.Rollup(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate capacity")
	}
	_ = s.cache.Set(ctx, capacityRollupKey, rollups, 0)
	return rollups, nil
}

// AvailableSeats returns the free seat count for a section.
func (s *CapacityService) AvailableSeats(ctx context.Context, class, section string) (int, error) {
	available, err := s.repo.AvailableSeats(ctx, class, section)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return 0, appErr
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read available seats")
	}
	return available, nil
}

// RecordAdmission debits one seat from a section.
func (s *CapacityService) RecordAdmission(ctx context.Context, class, section string) error {
	if err := s.repo.RecordAdmission(ctx, class, section); err != nil {
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return appErr
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record admission")
	}
	_ = s.cache.Invalidate(ctx, capacityCachePattern)
	return nil
}

// RecordWithdrawal frees one seat and, when the class has queued entries,
// offers it to the waitlist head. Promotion considers the class as a whole
// since waitlists are class-scoped while seats are section-scoped.
func (s *CapacityService) RecordWithdrawal(ctx context.Context, class, section string) (*models.WaitlistEntry, error) {
	if err := s.repo.RecordWithdrawal(ctx, class, section); err != nil {
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record withdrawal")
	}
	_ = s.cache.Invalidate(ctx, capacityCachePattern)

	count, err := s.waitlist.CountByClass(ctx, class)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	promoted, err := s.waitlist.PromoteHead(ctx, class)
	if err != nil {
		return nil, err
	}
	s.logger.Info("seat withdrawn",
		zap.String("class", class),
		zap.String("section", section),
		zap.Bool("offer_made", promoted != nil))
	return promoted, nil
}
