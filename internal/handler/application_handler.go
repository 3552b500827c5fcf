package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/response"
)

type applicationService interface {
	Create(ctx context.Context, req dto.CreateApplicationRequest, actor string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Application, error)
	History(ctx context.Context, id string) ([]models.StatusChange, error)
	ApplyTransition(ctx context.Context, id string, req dto.ChangeStatusRequest, actor string) (*models.Application, *models.StatusChange, error)
}

type letterService interface {
	OfferLetter(ctx context.Context, applicationID string) ([]byte, error)
}

// ApplicationHandler exposes the admission application endpoints.
type ApplicationHandler struct {
	transitions applicationService
	letters     letterService
}

// NewApplicationHandler constructs ApplicationHandler.
func NewApplicationHandler(transitions applicationService, letters letterService) *ApplicationHandler {
	return &ApplicationHandler{transitions: transitions, letters: letters}
}

// Create godoc
// @Summary Register admission application
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.CreateApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Create(c *gin.Context) {
	var req dto.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	app, err := h.transitions.Create(c.Request.Context(), req, claimsFromContext(c).Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// List godoc
// @Summary List admission applications
// @Tags Applications
// @Produce json
// @Param status query string false "Filter by status"
// @Param class query string false "Filter by class"
// @Param search query string false "Search applicant name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	var filter models.ApplicationFilter
	filter.Status = models.ApplicationStatus(strings.ToLower(c.Query("status")))
	filter.Class = c.Query("class")
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	apps, pagination, err := h.transitions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, pagination)
}

// Get godoc
// @Summary Get admission application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.transitions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// History godoc
// @Summary Status change history
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/history [get]
func (h *ApplicationHandler) History(c *gin.Context) {
	changes, err := h.transitions.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, changes, nil)
}

// ChangeStatus godoc
// @Summary Move application along the admission workflow
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ChangeStatusRequest true "Target status and expected version"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/status [put]
func (h *ApplicationHandler) ChangeStatus(c *gin.Context) {
	var req dto.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	app, change, err := h.transitions.ApplyTransition(c.Request.Context(), c.Param("id"), req, claimsFromContext(c).Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"application": app, "change": change}, nil)
}

// OfferLetter godoc
// @Summary Download the admission letter PDF
// @Tags Applications
// @Produce application/pdf
// @Param id path string true "Application ID"
// @Success 200 {file} binary
// @Router /applications/{id}/offer-letter [get]
func (h *ApplicationHandler) OfferLetter(c *gin.Context) {
	payload, err := h.letters.OfferLetter(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, "admission-letter.pdf", "application/pdf", payload)
}
