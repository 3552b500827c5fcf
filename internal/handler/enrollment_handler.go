package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/response"
)

type enrollmentService interface {
	Finalize(ctx context.Context, req dto.EnrollStudentRequest, actor string) (*models.Student, *models.Application, error)
	NextRollNumber(ctx context.Context, class, section string) (int, error)
}

// EnrollmentHandler exposes the enrollment finalization endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Create godoc
// @Summary Finalize an approved application into a student
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.EnrollStudentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req dto.EnrollStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, app, err := h.enrollments.Finalize(c.Request.Context(), req, claimsFromContext(c).Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"student": student, "application": app})
}

// NextRollNumber godoc
// @Summary Suggest the next free roll number for a section
// @Tags Enrollments
// @Produce json
// @Param class query string true "Class"
// @Param section query string true "Section"
// @Success 200 {object} response.Envelope
// @Router /enrollments/next-roll-number [get]
func (h *EnrollmentHandler) NextRollNumber(c *gin.Context) {
	next, err := h.enrollments.NextRollNumber(c.Request.Context(), c.Query("class"), c.Query("section"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"next_roll_number": next}, nil)
}
