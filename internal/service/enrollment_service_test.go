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

type fakeEnrollmentStore struct {
	params  *repository.FinalizeParams
	student *models.Student
	err     error
}

func (f *fakeEnrollmentStore) Finalize(_ context.Context, params repository.FinalizeParams) (*models.Student, *models.Application, *models.StatusChange, error) {
	f.params = &params
	if f.err != nil {
		return nil, nil, nil, f.err
	}
	app := &models.Application{ID: params.ApplicationID, Status: models.StatusEnrolled, EnrolledStudentID: &f.student.ID}
	change := &models.StatusChange{ApplicationID: params.ApplicationID, ToStatus: models.StatusEnrolled}
	return f.student, app, change, nil
}

type fakeStudentReader struct {
	student *models.Student
	next    int
}

func (f *fakeStudentReader) FindByID(context.Context, string) (*models.Student, error) {
	if f.student == nil {
		return nil, sql.ErrNoRows
	}
	return f.student, nil
}

func (f *fakeStudentReader) NextRollNumber(context.Context, string, string) (int, error) {
	return f.next, nil
}

type fakeApplicationReader struct {
	app *models.Application
	err error
}

func (f *fakeApplicationReader) FindByID(context.Context, string) (*models.Application, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.app, nil
}

type fakeCapacityReader struct {
	available int
	err       error
}

func (f *fakeCapacityReader) AvailableSeats(context.Context, string, string) (int, error) {
	return f.available, f.err
}

func TestFinalizeRejectsUnapprovedApplication(t *testing.T) {
	apps := &fakeApplicationReader{app: &models.Application{ID: "app-1", Class: "Grade 1", Status: models.StatusInterview}}
	store := &fakeEnrollmentStore{}
	svc := NewEnrollmentService(store, &fakeStudentReader{}, apps, &fakeCapacityReader{available: 3}, nil, nil, nil)

	_, _, err := svc.Finalize(context.Background(), dto.EnrollStudentRequest{
		ApplicationID: "app-1", Section: "A", BloodGroup: "O+",
	}, "registrar-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	require.Nil(t, store.params)
}

func TestFinalizeRejectsFullSection(t *testing.T) {
	apps := &fakeApplicationReader{app: &models.Application{ID: "app-1", Class: "Grade 1", Status: models.StatusApproved}}
	store := &fakeEnrollmentStore{}
	svc := NewEnrollmentService(store, &fakeStudentReader{}, apps, &fakeCapacityReader{available: 0}, nil, nil, nil)

	_, _, err := svc.Finalize(context.Background(), dto.EnrollStudentRequest{
		ApplicationID: "app-1", Section: "A", BloodGroup: "O+",
	}, "registrar-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrCapacityExceeded.Code, appErrors.FromError(err).Code)
	require.Nil(t, store.params)
}

func TestFinalizeMissingApplication(t *testing.T) {
	apps := &fakeApplicationReader{err: sql.ErrNoRows}
	svc := NewEnrollmentService(&fakeEnrollmentStore{}, &fakeStudentReader{}, apps, &fakeCapacityReader{available: 1}, nil, nil, nil)

	_, _, err := svc.Finalize(context.Background(), dto.EnrollStudentRequest{
		ApplicationID: "app-9", Section: "A", BloodGroup: "O+",
	}, "registrar-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestFinalizeCarriesActorAndClock(t *testing.T) {
	apps := &fakeApplicationReader{app: &models.Application{ID: "app-1", Class: "Grade 1", Status: models.StatusApproved}}
	store := &fakeEnrollmentStore{student: &models.Student{ID: "stu-1", ApplicationID: "app-1", FullName: "Rani Putri", Class: "Grade 1", Section: "A", RollNumber: 4}}
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	svc := NewEnrollmentService(store, &fakeStudentReader{}, apps, &fakeCapacityReader{available: 2}, nil, nil, nil).
		WithClock(func() time.Time { return now })

	student, app, err := svc.Finalize(context.Background(), dto.EnrollStudentRequest{
		ApplicationID: "app-1", Section: "A", BloodGroup: "O+",
	}, "registrar-1")
	require.NoError(t, err)
	require.Equal(t, "stu-1", student.ID)
	require.Equal(t, models.StatusEnrolled, app.Status)
	require.Equal(t, "registrar-1", store.params.Actor)
	require.Equal(t, now, store.params.Now)
	require.Nil(t, store.params.RollNumber)
}

func TestFinalizePropagatesRollNumberConflict(t *testing.T) {
	apps := &fakeApplicationReader{app: &models.Application{ID: "app-1", Class: "Grade 1", Status: models.StatusApproved}}
	store := &fakeEnrollmentStore{err: appErrors.Clone(appErrors.ErrRollNumberConflict, "roll number 7 already taken in Grade 1 A")}
	svc := NewEnrollmentService(store, &fakeStudentReader{}, apps, &fakeCapacityReader{available: 2}, nil, nil, nil)

	roll := 7
	_, _, err := svc.Finalize(context.Background(), dto.EnrollStudentRequest{
		ApplicationID: "app-1", Section: "A", RollNumber: &roll, BloodGroup: "O+",
	}, "registrar-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrRollNumberConflict.Code, appErrors.FromError(err).Code)
}

func TestNextRollNumberRequiresClassAndSection(t *testing.T) {
	svc := NewEnrollmentService(&fakeEnrollmentStore{}, &fakeStudentReader{next: 5}, &fakeApplicationReader{}, &fakeCapacityReader{}, nil, nil, nil)

	_, err := svc.NextRollNumber(context.Background(), "", "A")
	require.Error(t, err)

	next, err := svc.NextRollNumber(context.Background(), "Grade 1", "A")
	require.NoError(t, err)
	require.Equal(t, 5, next)
}

func TestOfferLetterOnlyForApprovedOrEnrolled(t *testing.T) {
	apps := &fakeApplicationReader{app: &models.Application{ID: "app-1", ApplicantName: "Rani Putri", Class: "Grade 1", Status: models.StatusApplied}}
	svc := NewEnrollmentService(&fakeEnrollmentStore{}, &fakeStudentReader{}, apps, &fakeCapacityReader{}, nil, nil, nil)

	_, err := svc.OfferLetter(context.Background(), "app-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestOfferLetterRendersPDF(t *testing.T) {
	apps := &fakeApplicationReader{app: &models.Application{ID: "app-1", ApplicantName: "Rani Putri", Class: "Grade 1", Status: models.StatusApproved}}
	svc := NewEnrollmentService(&fakeEnrollmentStore{}, &fakeStudentReader{}, apps, &fakeCapacityReader{}, nil, nil, nil)

	payload, err := svc.OfferLetter(context.Background(), "app-1")
	require.NoError(t, err)
	require.NotEmpty(t, payload)
	require.Equal(t, "%PDF", string(payload[:4]))
}
