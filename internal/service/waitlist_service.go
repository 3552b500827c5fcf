package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/export"
)

type waitlistStore interface {
	ListByClass(ctx context.Context, class string) ([]models.WaitlistEntryDetail, error)
	FindByApplication(ctx context.Context, applicationID string) (*models.WaitlistEntry, error)
	CountByClass(ctx context.Context, class string) (int, error)
	ClassesWithDueOffers(ctx context.Context, now time.Time) ([]string, error)
	Remove(ctx context.Context, applicationID string) (bool, string, error)
	PromoteHead(ctx context.Context, class string, expiresAt time.Time) (*models.WaitlistEntry, error)
	ExpireClass(ctx context.Context, class string, now time.Time, offerTTL time.Duration) (repository.ExpireResult, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// WaitlistService maintains the per-class overflow queues: FIFO positions,
// seat offers with deadlines, and the expiry cascade. Ordering is strictly
// first-waitlisted-first-served; entries are never re-ranked.
type WaitlistService struct {
	repo           waitlistStore
	exporter       csvRenderer
	offerTTL       time.Duration
	sweeperEnabled bool
	logger         *zap.Logger
	metrics        *MetricsService
	clock          func() time.Time
}

// NewWaitlistService constructs WaitlistService.
func NewWaitlistService(repo waitlistStore, offerTTL time.Duration, sweeperEnabled bool, logger *zap.Logger, metrics *MetricsService) *WaitlistService {
	if offerTTL <= 0 {
		offerTTL = 48 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WaitlistService{
		repo:           repo,
		exporter:       export.NewCSVExporter(),
		offerTTL:       offerTTL,
		sweeperEnabled: sweeperEnabled,
		logger:         logger,
		metrics:        metrics,
		clock:          time.Now,
	}
}

// WithClock overrides the time source, used by tests.
func (s *WaitlistService) WithClock(clock func() time.Time) *WaitlistService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// List returns the class waitlist ordered by position. When no background
// sweeper runs, due offers are expired first so readers never see a stale
// offer.
func (s *WaitlistService) List(ctx context.Context, class string) ([]models.WaitlistEntryDetail, error) {
	if class == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class is required")
	}
	if !s.sweeperEnabled {
		if _, err := s.expireClass(ctx, class); err != nil {
			return nil, err
		}
	}
	entries, err := s.repo.ListByClass(ctx, class)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list waitlist")
	}
	s.metrics.SetWaitlistDepth(class, len(entries))
	return entries, nil
}

// Remove drops an application from its waitlist and recompacts the remaining
// positions. Removing an application without an entry is a no-op.
func (s *WaitlistService) Remove(ctx context.Context, applicationID string) error {
	removed, class, err := s.repo.Remove(ctx, applicationID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove waitlist entry")
	}
	if removed {
		s.logger.Info("waitlist entry removed",
			zap.String("application_id", applicationID),
			zap.String("class", class))
	}
	return nil
}

// PromoteHead offers the freed seat to the entry at position 1. Without a
// head, or when the head already holds an offer, nothing changes.
func (s *WaitlistService) PromoteHead(ctx context.Context, class string) (*models.WaitlistEntry, error) {
	expiresAt := s.clock().UTC().Add(s.offerTTL)
	entry, err := s.repo.PromoteHead(ctx, class, expiresAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote waitlist head")
	}
	if entry != nil {
		s.metrics.RecordOfferEvent("promoted")
		s.logger.Info("waitlist head offered",
			zap.String("application_id", entry.ApplicationID),
			zap.String("class", class),
			zap.Time("offer_expires_at", expiresAt))
	}
	return entry, nil
}

// ExpireOffers sweeps every class holding a lapsed offer: the entry is
// removed, positions recompact, and the next head inherits the seat with a
// fresh deadline, cascading until a live entry or an empty queue.
func (s *WaitlistService) ExpireOffers(ctx context.Context) error {
	now := s.clock().UTC()
	classes, err := s.repo.ClassesWithDueOffers(ctx, now)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find due offers")
	}
	for _, class := range classes {
		if _, err := s.expireClass(ctx, class); err != nil {
			return err
		}
	}
	return nil
}

func (s *WaitlistService) expireClass(ctx context.Context, class string) (repository.ExpireResult, error) {
	result, err := s.repo.ExpireClass(ctx, class, s.clock().UTC(), s.offerTTL)
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire offers")
	}
	for _, expired := range result.Expired {
		s.metrics.RecordOfferEvent("expired")
		s.logger.Info("waitlist offer expired",
			zap.String("application_id", expired.ApplicationID),
			zap.String("class", class))
	}
	if result.Promoted != nil {
		s.metrics.RecordOfferEvent("promoted")
		s.logger.Info("waitlist head offered",
			zap.String("application_id", result.Promoted.ApplicationID),
			zap.String("class", class))
	}
	return result, nil
}

// ExportCSV renders the class waitlist as a CSV document.
func (s *WaitlistService) ExportCSV(ctx context.Context, class string) ([]byte, error) {
	entries, err := s.List(ctx, class)
	if err != nil {
		return nil, err
	}
	dataset := export.Dataset{
		Headers: []string{"Position", "Applicant", "Application ID", "Status", "Added At", "Offer Expires At"},
	}
	for _, entry := range entries {
		row := map[string]string{
			"Position":         strconv.Itoa(entry.Position),
			"Applicant":        entry.ApplicantName,
			"Application ID":   entry.ApplicationID,
			"Status":           string(entry.Status),
			"Added At":         entry.AddedAt.UTC().Format(time.RFC3339),
			"Offer Expires At": "",
		}
		if entry.OfferExpiresAt != nil {
			row["Offer Expires At"] = entry.OfferExpiresAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, row)
	}
	payload, err := s.exporter.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
			fmt.Sprintf("failed to export waitlist for %s", class))
	}
	return payload, nil
}

// CountByClass returns the waitlist length for a class.
func (s *WaitlistService) CountByClass(ctx context.Context, class string) (int, error) {
	count, err := s.repo.CountByClass(ctx, class)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count waitlist")
	}
	return count, nil
}
