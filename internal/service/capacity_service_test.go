package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

type fakeCapacityStore struct {
	row          *models.ClassCapacityRow
	rows         []models.ClassCapacityRow
	rollups      []models.ClassCapacityRollup
	available    int
	availableErr error
	admissions   int
	withdrawals  int
	upserted     []int
}

func (f *fakeCapacityStore) Upsert(_ context.Context, class, section string, totalSeats int) (*models.ClassCapacityRow, error) {
	f.upserted = append(f.upserted, totalSeats)
	return &models.ClassCapacityRow{ClassCapacity: models.ClassCapacity{Class: class, Section: section, TotalSeats: totalSeats}}, nil
}

func (f *fakeCapacityStore) Get(context.Context, string, string) (*models.ClassCapacityRow, error) {
	return f.row, nil
}

func (f *fakeCapacityStore) List(context.Context) ([]models.ClassCapacityRow, error) {
	return f.rows, nil
}

func (f *fakeCapacityStore) Rollup(context.Context) ([]models.ClassCapacityRollup, error) {
	return f.rollups, nil
}

func (f *fakeCapacityStore) AvailableSeats(context.Context, string, string) (int, error) {
	return f.available, f.availableErr
}

func (f *fakeCapacityStore) RecordAdmission(context.Context, string, string) error {
	f.admissions++
	return nil
}

func (f *fakeCapacityStore) RecordWithdrawal(context.Context, string, string) error {
	f.withdrawals++
	return nil
}

type fakeWaitlistPromoter struct {
	count    int
	promoted *models.WaitlistEntry
	calls    int
}

func (f *fakeWaitlistPromoter) CountByClass(context.Context, string) (int, error) {
	return f.count, nil
}

func (f *fakeWaitlistPromoter) PromoteHead(context.Context, string) (*models.WaitlistEntry, error) {
	f.calls++
	return f.promoted, nil
}

func TestCapacitySetupValidatesSeats(t *testing.T) {
	svc := NewCapacityService(&fakeCapacityStore{}, &fakeWaitlistPromoter{}, nil, nil, nil)

	_, err := svc.Setup(context.Background(), "Grade 1", "A", dto.SetCapacityRequest{TotalSeats: 0})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Setup(context.Background(), "", "A", dto.SetCapacityRequest{TotalSeats: 10})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCapacitySetupUpserts(t *testing.T) {
	store := &fakeCapacityStore{}
	svc := NewCapacityService(store, &fakeWaitlistPromoter{}, nil, nil, nil)

	row, err := svc.Setup(context.Background(), "Grade 1", "A", dto.SetCapacityRequest{TotalSeats: 30})
	require.NoError(t, err)
	require.Equal(t, 30, row.TotalSeats)
	require.Equal(t, []int{30}, store.upserted)
}

func TestWithdrawalOffersSeatToWaitlistHead(t *testing.T) {
	store := &fakeCapacityStore{}
	expires := time.Now().Add(48 * time.Hour)
	promoter := &fakeWaitlistPromoter{
		count:    2,
		promoted: &models.WaitlistEntry{ApplicationID: "app-1", Class: "Grade 1", Position: 1, Status: models.WaitlistStatusOffered, OfferExpiresAt: &expires},
	}
	svc := NewCapacityService(store, promoter, nil, nil, nil)

	promoted, err := svc.RecordWithdrawal(context.Background(), "Grade 1", "A")
	require.NoError(t, err)
	require.Equal(t, 1, store.withdrawals)
	require.Equal(t, 1, promoter.calls)
	require.NotNil(t, promoted)
	require.Equal(t, "app-1", promoted.ApplicationID)
	require.Equal(t, models.WaitlistStatusOffered, promoted.Status)
}

func TestWithdrawalWithEmptyWaitlistMakesNoOffer(t *testing.T) {
	store := &fakeCapacityStore{}
	promoter := &fakeWaitlistPromoter{count: 0}
	svc := NewCapacityService(store, promoter, nil, nil, nil)

	promoted, err := svc.RecordWithdrawal(context.Background(), "Grade 1", "A")
	require.NoError(t, err)
	require.Equal(t, 1, store.withdrawals)
	require.Zero(t, promoter.calls)
	require.Nil(t, promoted)
}
