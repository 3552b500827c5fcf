package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

type fakeApplicationStore struct {
	app        *models.Application
	appErr     error
	applied    *repository.ApplyTransitionParams
	applyErr   error
	created    *models.Application
	history    []models.StatusChange
	listResult []models.Application
	listTotal  int
}

func (f *fakeApplicationStore) Create(_ context.Context, app *models.Application, _ string) (*models.StatusChange, error) {
	app.ID = "app-created"
	app.Status = models.StatusApplied
	app.Version = 1
	f.created = app
	return &models.StatusChange{ApplicationID: app.ID, ToStatus: models.StatusApplied}, nil
}

func (f *fakeApplicationStore) FindByID(context.Context, string) (*models.Application, error) {
	if f.appErr != nil {
		return nil, f.appErr
	}
	return f.app, nil
}

func (f *fakeApplicationStore) List(context.Context, models.ApplicationFilter) ([]models.Application, int, error) {
	return f.listResult, f.listTotal, nil
}

func (f *fakeApplicationStore) History(context.Context, string) ([]models.StatusChange, error) {
	return f.history, nil
}

func (f *fakeApplicationStore) ApplyTransition(_ context.Context, params repository.ApplyTransitionParams) (*models.Application, *models.StatusChange, error) {
	f.applied = &params
	if f.applyErr != nil {
		return nil, nil, f.applyErr
	}
	updated := *f.app
	updated.Status = params.Target
	updated.Version = params.ExpectedVersion + 1
	change := &models.StatusChange{
		ApplicationID: params.ApplicationID,
		FromStatus:    &f.app.Status,
		ToStatus:      params.Target,
		ChangedBy:     params.Actor,
		ChangedAt:     params.Now,
	}
	return &updated, change, nil
}

func allStatuses() []models.ApplicationStatus {
	return []models.ApplicationStatus{
		models.StatusApplied, models.StatusUnderReview, models.StatusDocumentVerification,
		models.StatusEntranceExam, models.StatusInterview, models.StatusApproved,
		models.StatusWaitlisted, models.StatusRejected, models.StatusEnrolled, models.StatusWithdrawn,
	}
}

func TestTransitionGraphCompleteness(t *testing.T) {
	legal := map[models.ApplicationStatus]map[models.ApplicationStatus]bool{
		models.StatusApplied:              {models.StatusUnderReview: true, models.StatusRejected: true, models.StatusWithdrawn: true},
		models.StatusUnderReview:          {models.StatusDocumentVerification: true, models.StatusRejected: true, models.StatusWithdrawn: true},
		models.StatusDocumentVerification: {models.StatusEntranceExam: true, models.StatusInterview: true, models.StatusRejected: true, models.StatusWithdrawn: true},
		models.StatusEntranceExam:         {models.StatusInterview: true, models.StatusApproved: true, models.StatusRejected: true, models.StatusWithdrawn: true},
		models.StatusInterview:            {models.StatusApproved: true, models.StatusWaitlisted: true, models.StatusRejected: true, models.StatusWithdrawn: true},
		models.StatusApproved:             {models.StatusEnrolled: true, models.StatusWithdrawn: true},
		models.StatusWaitlisted:           {models.StatusApproved: true, models.StatusRejected: true, models.StatusWithdrawn: true},
	}

	for _, from := range allStatuses() {
		for _, to := range allStatuses() {
			want := legal[from][to]
			require.Equalf(t, want, CanTransition(from, to), "edge %s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	for _, status := range []models.ApplicationStatus{models.StatusRejected, models.StatusEnrolled, models.StatusWithdrawn} {
		require.True(t, status.IsTerminal())
		require.Empty(t, AllowedTargets(status))
	}
}

func TestApplyTransitionRejectsIllegalEdge(t *testing.T) {
	store := &fakeApplicationStore{app: &models.Application{ID: "app-1", Class: "Grade 1", Status: models.StatusApplied, Version: 1}}
	svc := NewTransitionService(store, nil, nil, nil)

	_, _, err := svc.ApplyTransition(context.Background(), "app-1",
		dto.ChangeStatusRequest{Status: "enrolled", Version: 1}, "registrar-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	require.Nil(t, store.applied)
}

func TestApplyTransitionEnrollmentOnlyThroughFinalizer(t *testing.T) {
	store := &fakeApplicationStore{app: &models.Application{ID: "app-1", Class: "Grade 1", Status: models.StatusApproved, Version: 2}}
	svc := NewTransitionService(store, nil, nil, nil)

	_, _, err := svc.ApplyTransition(context.Background(), "app-1",
		dto.ChangeStatusRequest{Status: "enrolled", Version: 2}, "registrar-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	require.Nil(t, store.applied)
}

func TestApplyTransitionRejectsUnknownStatus(t *testing.T) {
	store := &fakeApplicationStore{app: &models.Application{ID: "app-1", Status: models.StatusApplied, Version: 1}}
	svc := NewTransitionService(store, nil, nil, nil)

	_, _, err := svc.ApplyTransition(context.Background(), "app-1",
		dto.ChangeStatusRequest{Status: "accepted", Version: 1}, "registrar-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApplyTransitionMissingApplication(t *testing.T) {
	store := &fakeApplicationStore{appErr: sql.ErrNoRows}
	svc := NewTransitionService(store, nil, nil, nil)

	_, _, err := svc.ApplyTransition(context.Background(), "app-9",
		dto.ChangeStatusRequest{Status: "under_review", Version: 1}, "registrar-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestApplyTransitionCarriesVersionAndActor(t *testing.T) {
	store := &fakeApplicationStore{app: &models.Application{ID: "app-1", Class: "Grade 1", Status: models.StatusApplied, Version: 4}}
	now := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	svc := NewTransitionService(store, nil, nil, nil).WithClock(func() time.Time { return now })

	app, change, err := svc.ApplyTransition(context.Background(), "app-1",
		dto.ChangeStatusRequest{Status: "under_review", Version: 4, Note: "documents received"}, "registrar-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusUnderReview, app.Status)
	require.Equal(t, 5, app.Version)
	require.Equal(t, "registrar-1", change.ChangedBy)

	require.NotNil(t, store.applied)
	require.Equal(t, 4, store.applied.ExpectedVersion)
	require.Equal(t, now, store.applied.Now)
	require.NotNil(t, store.applied.Note)
	require.Equal(t, "documents received", *store.applied.Note)
}

func TestApplyTransitionWaitlistSideEffects(t *testing.T) {
	cases := []struct {
		name   string
		from   models.ApplicationStatus
		to     string
		action repository.WaitlistAction
	}{
		{"interview to waitlisted enqueues", models.StatusInterview, "waitlisted", repository.WaitlistActionEnqueue},
		{"waitlisted to approved dequeues", models.StatusWaitlisted, "approved", repository.WaitlistActionRemove},
		{"waitlisted to rejected dequeues", models.StatusWaitlisted, "rejected", repository.WaitlistActionRemove},
		{"waitlisted to withdrawn dequeues", models.StatusWaitlisted, "withdrawn", repository.WaitlistActionRemove},
		{"applied to under_review is plain", models.StatusApplied, "under_review", repository.WaitlistActionNone},
		{"entrance_exam to approved is plain", models.StatusEntranceExam, "approved", repository.WaitlistActionNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeApplicationStore{app: &models.Application{ID: "app-1", Class: "Grade 1", Status: tc.from, Version: 1}}
			svc := NewTransitionService(store, nil, nil, nil)

			_, _, err := svc.ApplyTransition(context.Background(), "app-1",
				dto.ChangeStatusRequest{Status: tc.to, Version: 1}, "registrar-1")
			require.NoError(t, err)
			require.NotNil(t, store.applied)
			require.Equal(t, tc.action, store.applied.WaitlistAction)
		})
	}
}

func TestCreateStartsInApplied(t *testing.T) {
	store := &fakeApplicationStore{}
	svc := NewTransitionService(store, nil, nil, nil)

	app, err := svc.Create(context.Background(), dto.CreateApplicationRequest{ApplicantName: "Rani Putri", Class: "Grade 1"}, "registrar-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusApplied, app.Status)
	require.Equal(t, 1, app.Version)
}

func TestCreateValidatesPayload(t *testing.T) {
	svc := NewTransitionService(&fakeApplicationStore{}, nil, nil, nil)

	_, err := svc.Create(context.Background(), dto.CreateApplicationRequest{ApplicantName: "Rani Putri"}, "registrar-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
