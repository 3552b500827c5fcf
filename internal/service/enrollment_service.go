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
	"github.com/noah-isme/sma-admissions-api/pkg/export"
)

type enrollmentStore interface {
	Finalize(ctx context.Context, params repository.FinalizeParams) (*models.Student, *models.Application, *models.StatusChange, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	NextRollNumber(ctx context.Context, class, section string) (int, error)
}

type applicationReader interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
}

type capacityReader interface {
	AvailableSeats(ctx context.Context, class, section string) (int, error)
}

type letterRenderer interface {
	RenderLetter(letter export.Letter) ([]byte, error)
}

// EnrollmentService finalizes approved applications into enrolled students.
// Seat debit, roll-number allocation, status transition, and student creation
// commit as one unit.
type EnrollmentService struct {
	repo         enrollmentStore
	students     studentReader
	applications applicationReader
	capacity     capacityReader
	letters      letterRenderer
	validator    *validator.Validate
	logger       *zap.Logger
	metrics      *MetricsService
	clock        func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentStore, students studentReader, applications applicationReader, capacity capacityReader, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:         repo,
		students:     students,
		applications: applications,
		capacity:     capacity,
		letters:      export.NewPDFExporter(),
		validator:    validate,
		logger:       logger,
		metrics:      metrics,
		clock:        time.Now,
	}
}

// WithClock overrides the time source, used by tests.
func (s *EnrollmentService) WithClock(clock func() time.Time) *EnrollmentService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Finalize converts an approved application into a student record. The
// repository re-checks every precondition under the section lock; the checks
// here only produce friendly errors without opening a transaction.
func (s *EnrollmentService) Finalize(ctx context.Context, req dto.EnrollStudentRequest, actor string) (*models.Student, *models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	app, err := s.applications.FindByID(ctx, req.ApplicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.Status != models.StatusApproved {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("application is %s, only approved applications can be enrolled", app.Status))
	}

	available, err := s.capacity.AvailableSeats(ctx, app.Class, req.Section)
	if err != nil {
		return nil, nil, err
	}
	if available == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrCapacityExceeded,
			fmt.Sprintf("%s %s has no seats available", app.Class, req.Section))
	}

	params := repository.FinalizeParams{
		ApplicationID: req.ApplicationID,
		Section:       req.Section,
		RollNumber:    req.RollNumber,
		BloodGroup:    req.BloodGroup,
		Actor:         actor,
		Now:           s.clock().UTC(),
	}
	student, updated, _, err := s.repo.Finalize(ctx, params)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return nil, nil, appErr
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize enrollment")
	}

	s.metrics.RecordEnrollment()
	s.logger.Info("enrollment finalized",
		zap.String("application_id", req.ApplicationID),
		zap.String("student_id", student.ID),
		zap.String("class", student.Class),
		zap.String("section", student.Section),
		zap.Int("roll_number", student.RollNumber),
		zap.String("actor", actor))
	return student, updated, nil
}

// NextRollNumber returns the max+1 hint for the UI. It is not authoritative;
// finalization re-derives the number under the section lock.
func (s *EnrollmentService) NextRollNumber(ctx context.Context, class, section string) (int, error) {
	if class == "" || section == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "class and section are required")
	}
	next, err := s.students.NextRollNumber(ctx, class, section)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute next roll number")
	}
	return next, nil
}

// OfferLetter renders the admission letter for an approved or enrolled
// application.
func (s *EnrollmentService) OfferLetter(ctx context.Context, applicationID string) ([]byte, error) {
	app, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.Status != models.StatusApproved && app.Status != models.StatusEnrolled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("letters are only issued for approved or enrolled applications, not %s", app.Status))
	}

	letter := export.Letter{
		Title:     "Admission Letter",
		Recipient: app.ApplicantName,
		Fields: []export.LetterField{
			{Label: "Application ID", Value: app.ID},
			{Label: "Class", Value: app.Class},
			{Label: "Status", Value: string(app.Status)},
		},
		Footer: "This letter is generated by the admissions office and requires no signature.",
	}

	switch app.Status {
	case models.StatusApproved:
		letter.Paragraphs = []string{
			fmt.Sprintf("Dear %s,", app.ApplicantName),
			fmt.Sprintf("We are pleased to inform you that your application for %s has been approved. Please complete enrollment to secure your seat.", app.Class),
		}
	case models.StatusEnrolled:
		letter.Paragraphs = []string{
			fmt.Sprintf("Dear %s,", app.ApplicantName),
			fmt.Sprintf("Your enrollment for %s is confirmed. We look forward to welcoming you.", app.Class),
		}
		if app.EnrolledStudentID != nil {
			student, err := s.students.FindByID(ctx, *app.EnrolledStudentID)
			if err == nil {
				letter.Fields = append(letter.Fields,
					export.LetterField{Label: "Section", Value: student.Section},
					export.LetterField{Label: "Roll Number", Value: fmt.Sprintf("%d", student.RollNumber)},
				)
			}
		}
	}

	payload, err := s.letters.RenderLetter(letter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render letter")
	}
	return payload, nil
}
