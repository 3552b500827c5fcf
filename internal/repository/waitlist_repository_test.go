package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

func newWaitlistRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var waitlistEntryColumns = []string{"id", "application_id", "class", "position", "status", "added_at", "offer_expires_at"}

func TestWaitlistRepositoryRemoveRecompactsLaterPositions(t *testing.T) {
	db, mock, cleanup := newWaitlistRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	entry := sqlmock.NewRows(waitlistEntryColumns).
		AddRow("wl-2", "app-2", "Grade 1", 2, models.WaitlistStatusWaiting, time.Now(), nil)
	reread := sqlmock.NewRows(waitlistEntryColumns).
		AddRow("wl-2", "app-2", "Grade 1", 2, models.WaitlistStatusWaiting, time.Now(), nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM waitlist_entries WHERE application_id = $1")).
		WithArgs("app-2").
		WillReturnRows(entry)
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext('waitlist:' || $1))")).
		WithArgs("Grade 1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM waitlist_entries WHERE application_id = $1")).
		WithArgs("app-2").
		WillReturnRows(reread)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM waitlist_entries WHERE id = $1")).
		WithArgs("wl-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE waitlist_entries SET position = position - 1 WHERE class = $1 AND position > $2")).
		WithArgs("Grade 1", 2).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	removed, class, err := repo.Remove(context.Background(), "app-2")
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, "Grade 1", class)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryRemoveMissingEntryIsNoop(t *testing.T) {
	db, mock, cleanup := newWaitlistRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM waitlist_entries WHERE application_id = $1")).
		WithArgs("app-9").
		WillReturnRows(sqlmock.NewRows(waitlistEntryColumns))
	mock.ExpectCommit()

	removed, _, err := repo.Remove(context.Background(), "app-9")
	require.NoError(t, err)
	require.False(t, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryPromoteHeadSkipsExistingOffer(t *testing.T) {
	db, mock, cleanup := newWaitlistRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	head := sqlmock.NewRows(waitlistEntryColumns).
		AddRow("wl-1", "app-1", "Grade 1", 1, models.WaitlistStatusOffered, time.Now(), time.Now().Add(time.Hour))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext('waitlist:' || $1))")).
		WithArgs("Grade 1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM waitlist_entries WHERE class = $1 AND position = 1")).
		WithArgs("Grade 1").
		WillReturnRows(head)
	mock.ExpectCommit()

	entry, err := repo.PromoteHead(context.Background(), "Grade 1", time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	require.Nil(t, entry)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryExpireClassCascadesToNextHead(t *testing.T) {
	db, mock, cleanup := newWaitlistRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lapsed := now.Add(-time.Minute)

	expiredHead := sqlmock.NewRows(waitlistEntryColumns).
		AddRow("wl-1", "app-1", "Grade 1", 1, models.WaitlistStatusOffered, now.Add(-72*time.Hour), lapsed)
	nextHead := sqlmock.NewRows(waitlistEntryColumns).
		AddRow("wl-2", "app-2", "Grade 1", 1, models.WaitlistStatusWaiting, now.Add(-48*time.Hour), nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext('waitlist:' || $1))")).
		WithArgs("Grade 1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM waitlist_entries WHERE class = $1 AND position = 1")).
		WithArgs("Grade 1").
		WillReturnRows(expiredHead)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM waitlist_entries WHERE id = $1")).
		WithArgs("wl-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE waitlist_entries SET position = position - 1 WHERE class = $1 AND position > 1")).
		WithArgs("Grade 1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM waitlist_entries WHERE class = $1 AND position = 1")).
		WithArgs("Grade 1").
		WillReturnRows(nextHead)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE waitlist_entries SET status = $2, offer_expires_at = $3 WHERE id = $1")).
		WithArgs("wl-2", models.WaitlistStatusOffered, now.Add(48*time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.ExpireClass(context.Background(), "Grade 1", now, 48*time.Hour)
	require.NoError(t, err)
	require.Len(t, result.Expired, 1)
	require.Equal(t, "app-1", result.Expired[0].ApplicationID)
	require.NotNil(t, result.Promoted)
	require.Equal(t, "app-2", result.Promoted.ApplicationID)
	require.Equal(t, models.WaitlistStatusOffered, result.Promoted.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryExpireClassLeavesLiveOfferAlone(t *testing.T) {
	db, mock, cleanup := newWaitlistRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	liveHead := sqlmock.NewRows(waitlistEntryColumns).
		AddRow("wl-1", "app-1", "Grade 1", 1, models.WaitlistStatusOffered, now.Add(-time.Hour), now.Add(time.Hour))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext('waitlist:' || $1))")).
		WithArgs("Grade 1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM waitlist_entries WHERE class = $1 AND position = 1")).
		WithArgs("Grade 1").
		WillReturnRows(liveHead)
	mock.ExpectCommit()

	result, err := repo.ExpireClass(context.Background(), "Grade 1", now, 48*time.Hour)
	require.NoError(t, err)
	require.Empty(t, result.Expired)
	require.Nil(t, result.Promoted)
	require.NoError(t, mock.ExpectationsWereMet())
}
