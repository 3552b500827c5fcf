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

// WaitlistRepository persists per-class waitlist entries. Positions within a
// class stay 1-indexed and gap-free across every mutation; all writes for one
// class are serialized with a per-class advisory transaction lock so two
// recompactions can never interleave.
type WaitlistRepository struct {
	db *sqlx.DB
}

// NewWaitlistRepository constructs the repository.
func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

func lockClassTx(ctx context.Context, tx *sqlx.Tx, class string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('waitlist:' || $1))`, class); err != nil {
		return fmt.Errorf("lock waitlist class %s: %w", class, err)
	}
	return nil
}

// ListByClass returns the class waitlist ordered by position.
func (r *WaitlistRepository) ListByClass(ctx context.Context, class string) ([]models.WaitlistEntryDetail, error) {
	const query = `SELECT w.id, w.application_id, w.class, w.position, w.status, w.added_at, w.offer_expires_at,
        a.applicant_name
        FROM waitlist_entries w
        JOIN applications a ON a.id = w.application_id
        WHERE w.class = $1
        ORDER BY w.position ASC`
	var entries []models.WaitlistEntryDetail
	if err := r.db.SelectContext(ctx, &entries, query, class); err != nil {
		return nil, fmt.Errorf("list waitlist for %s: %w", class, err)
	}
	return entries, nil
}

// FindByApplication returns the entry for an application, if any.
func (r *WaitlistRepository) FindByApplication(ctx context.Context, applicationID string) (*models.WaitlistEntry, error) {
	const query = `SELECT id, application_id, class, position, status, added_at, offer_expires_at
        FROM waitlist_entries WHERE application_id = $1`
	var entry models.WaitlistEntry
	if err := r.db.GetContext(ctx, &entry, query, applicationID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// CountByClass returns the number of queued entries for a class.
func (r *WaitlistRepository) CountByClass(ctx context.Context, class string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM waitlist_entries WHERE class = $1`, class); err != nil {
		return 0, fmt.Errorf("count waitlist for %s: %w", class, err)
	}
	return count, nil
}

// ClassesWithDueOffers returns the classes holding an offer whose deadline has
// passed, used by the expiry sweep.
func (r *WaitlistRepository) ClassesWithDueOffers(ctx context.Context, now time.Time) ([]string, error) {
	const query = `SELECT DISTINCT class FROM waitlist_entries
        WHERE status = $1 AND offer_expires_at IS NOT NULL AND offer_expires_at <= $2`
	var classes []string
	if err := r.db.SelectContext(ctx, &classes, query, models.WaitlistStatusOffered, now); err != nil {
		return nil, fmt.Errorf("find due offers: %w", err)
	}
	return classes, nil
}

// EnqueueTx appends the application at position N+1 inside the caller's
// transaction. A second entry for the same (application, class) pair fails
// with ErrAlreadyWaitlisted.
func (r *WaitlistRepository) EnqueueTx(ctx context.Context, tx *sqlx.Tx, applicationID, class string, now time.Time) (*models.WaitlistEntry, error) {
	if err := lockClassTx(ctx, tx, class); err != nil {
		return nil, err
	}

	var existing int
	err := tx.GetContext(ctx, &existing, `SELECT 1 FROM waitlist_entries WHERE application_id = $1 AND class = $2`, applicationID, class)
	if err == nil {
		return nil, appErrors.Clone(appErrors.ErrAlreadyWaitlisted, fmt.Sprintf("application %s already waitlisted for %s", applicationID, class))
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check waitlist entry: %w", err)
	}

	var next int
	if err := tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist_entries WHERE class = $1`, class); err != nil {
		return nil, fmt.Errorf("next waitlist position: %w", err)
	}

	entry := &models.WaitlistEntry{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		Class:         class,
		Position:      next,
		Status:        models.WaitlistStatusWaiting,
		AddedAt:       now,
	}
	const insert = `INSERT INTO waitlist_entries (id, application_id, class, position, status, added_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, insert, entry.ID, entry.ApplicationID, entry.Class, entry.Position, entry.Status, entry.AddedAt); err != nil {
		return nil, fmt.Errorf("insert waitlist entry: %w", err)
	}
	return entry, nil
}

// RemoveTx deletes the application's entry and shifts every later position in
// its class down by one. Removing a missing entry is a no-op so transition
// side effects stay safely retryable.
func (r *WaitlistRepository) RemoveTx(ctx context.Context, tx *sqlx.Tx, applicationID string) (bool, string, error) {
	var entry models.WaitlistEntry
	const find = `SELECT id, application_id, class, position, status, added_at, offer_expires_at
        FROM waitlist_entries WHERE application_id = $1`
	if err := tx.GetContext(ctx, &entry, find, applicationID); err != nil {
		if err == sql.ErrNoRows {
			return false, "", nil
		}
		return false, "", fmt.Errorf("find waitlist entry: %w", err)
	}

	if err := lockClassTx(ctx, tx, entry.Class); err != nil {
		return false, "", err
	}

	// Re-read under the class lock; a concurrent recompaction may have moved it.
	if err := tx.GetContext(ctx, &entry, find, applicationID); err != nil {
		if err == sql.ErrNoRows {
			return false, "", nil
		}
		return false, "", fmt.Errorf("reload waitlist entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM waitlist_entries WHERE id = $1`, entry.ID); err != nil {
		return false, "", fmt.Errorf("delete waitlist entry: %w", err)
	}
	const recompact = `UPDATE waitlist_entries SET position = position - 1 WHERE class = $1 AND position > $2`
	if _, err := tx.ExecContext(ctx, recompact, entry.Class, entry.Position); err != nil {
		return false, "", fmt.Errorf("recompact waitlist for %s: %w", entry.Class, err)
	}
	return true, entry.Class, nil
}

// Remove is the standalone variant of RemoveTx running its own transaction.
func (r *WaitlistRepository) Remove(ctx context.Context, applicationID string) (removed bool, class string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, "", fmt.Errorf("begin waitlist remove: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	removed, class, err = r.RemoveTx(ctx, tx, applicationID)
	if err != nil {
		return false, "", err
	}
	if err = tx.Commit(); err != nil {
		return false, "", fmt.Errorf("commit waitlist remove: %w", err)
	}
	return removed, class, nil
}

// PromoteHeadTx marks the entry at position 1 as offered with the given
// deadline. A missing head or one that already holds an unexpired offer is a
// no-op returning nil.
func (r *WaitlistRepository) PromoteHeadTx(ctx context.Context, tx *sqlx.Tx, class string, expiresAt time.Time) (*models.WaitlistEntry, error) {
	if err := lockClassTx(ctx, tx, class); err != nil {
		return nil, err
	}

	var head models.WaitlistEntry
	const find = `SELECT id, application_id, class, position, status, added_at, offer_expires_at
        FROM waitlist_entries WHERE class = $1 AND position = 1`
	if err := tx.GetContext(ctx, &head, find, class); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find waitlist head: %w", err)
	}
	if head.Status == models.WaitlistStatusOffered {
		return nil, nil
	}

	const promote = `UPDATE waitlist_entries SET status = $2, offer_expires_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, promote, head.ID, models.WaitlistStatusOffered, expiresAt); err != nil {
		return nil, fmt.Errorf("promote waitlist head: %w", err)
	}
	head.Status = models.WaitlistStatusOffered
	head.OfferExpiresAt = &expiresAt
	return &head, nil
}

// PromoteHead is the standalone variant of PromoteHeadTx.
func (r *WaitlistRepository) PromoteHead(ctx context.Context, class string, expiresAt time.Time) (entry *models.WaitlistEntry, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin waitlist promote: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	entry, err = r.PromoteHeadTx(ctx, tx, class, expiresAt)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit waitlist promote: %w", err)
	}
	return entry, nil
}

// ExpireResult reports what one class sweep changed.
type ExpireResult struct {
	Expired  []models.WaitlistEntry
	Promoted *models.WaitlistEntry
}

// ExpireClass removes every offered head whose deadline passed, recompacts,
// and promotes the next head with a fresh deadline. The cascade runs in one
// transaction and stops at the first live entry or an empty waitlist.
func (r *WaitlistRepository) ExpireClass(ctx context.Context, class string, now time.Time, offerTTL time.Duration) (result ExpireResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin waitlist expire: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockClassTx(ctx, tx, class); err != nil {
		return result, err
	}

	const findHead = `SELECT id, application_id, class, position, status, added_at, offer_expires_at
        FROM waitlist_entries WHERE class = $1 AND position = 1`
	for {
		var head models.WaitlistEntry
		if err = tx.GetContext(ctx, &head, findHead, class); err != nil {
			if err == sql.ErrNoRows {
				err = nil
				break
			}
			return result, fmt.Errorf("find waitlist head: %w", err)
		}

		if head.Status != models.WaitlistStatusOffered || head.OfferExpiresAt == nil || head.OfferExpiresAt.After(now) {
			break
		}

		head.Status = models.WaitlistStatusExpired
		if _, err = tx.ExecContext(ctx, `DELETE FROM waitlist_entries WHERE id = $1`, head.ID); err != nil {
			return result, fmt.Errorf("delete expired entry: %w", err)
		}
		if _, err = tx.ExecContext(ctx, `UPDATE waitlist_entries SET position = position - 1 WHERE class = $1 AND position > 1`, class); err != nil {
			return result, fmt.Errorf("recompact waitlist for %s: %w", class, err)
		}
		result.Expired = append(result.Expired, head)

		// The expired offer's seat is still free, so the new head inherits it.
		var next models.WaitlistEntry
		if err = tx.GetContext(ctx, &next, findHead, class); err != nil {
			if err == sql.ErrNoRows {
				err = nil
				break
			}
			return result, fmt.Errorf("find next waitlist head: %w", err)
		}
		if next.Status == models.WaitlistStatusWaiting {
			expiresAt := now.Add(offerTTL)
			if _, err = tx.ExecContext(ctx, `UPDATE waitlist_entries SET status = $2, offer_expires_at = $3 WHERE id = $1`,
				next.ID, models.WaitlistStatusOffered, expiresAt); err != nil {
				return result, fmt.Errorf("promote next waitlist head: %w", err)
			}
			next.Status = models.WaitlistStatusOffered
			next.OfferExpiresAt = &expiresAt
			result.Promoted = &next
			break
		}
	}

	if err = tx.Commit(); err != nil {
		return result, fmt.Errorf("commit waitlist expire: %w", err)
	}
	return result, nil
}
