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

type capacityService interface {
	Setup(ctx context.Context, class, section string, req dto.SetCapacityRequest) (*models.ClassCapacityRow, error)
	Get(ctx context.Context, class, section string) (*models.ClassCapacityRow, error)
	List(ctx context.Context) ([]models.ClassCapacityRow, error)
	Rollup(ctx context.Context) ([]models.ClassCapacityRollup, error)
	RecordWithdrawal(ctx context.Context, class, section string) (*models.WaitlistEntry, error)
}

// CapacityHandler exposes the seat ledger endpoints.
type CapacityHandler struct {
	capacity capacityService
}

// NewCapacityHandler constructs CapacityHandler.
func NewCapacityHandler(capacity capacityService) *CapacityHandler {
	return &CapacityHandler{capacity: capacity}
}

// List godoc
// @Summary List seat ledgers per class and section
// @Tags Capacity
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /class-capacity [get]
func (h *CapacityHandler) List(c *gin.Context) {
	rows, err := h.capacity.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Rollup godoc
// @Summary Aggregate seat usage per class
// @Tags Capacity
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /class-capacity/rollup [get]
func (h *CapacityHandler) Rollup(c *gin.Context) {
	rollups, err := h.capacity.Rollup(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rollups, nil)
}

// Get godoc
// @Summary Get the seat ledger for a class section
// @Tags Capacity
// @Produce json
// @Param class path string true "Class"
// @Param section path string true "Section"
// @Success 200 {object} response.Envelope
// @Router /class-capacity/{class}/{section} [get]
func (h *CapacityHandler) Get(c *gin.Context) {
	row, err := h.capacity.Get(c.Request.Context(), c.Param("class"), c.Param("section"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// Put godoc
// @Summary Create or resize the seat ledger for a class section
// @Tags Capacity
// @Accept json
// @Produce json
// @Param class path string true "Class"
// @Param section path string true "Section"
// @Param payload body dto.SetCapacityRequest true "Capacity payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /class-capacity/{class}/{section} [put]
func (h *CapacityHandler) Put(c *gin.Context) {
	var req dto.SetCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	row, err := h.capacity.Setup(c.Request.Context(), c.Param("class"), c.Param("section"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// Withdraw godoc
// @Summary Free a seat and offer it to the waitlist head
// @Tags Capacity
// @Produce json
// @Param class path string true "Class"
// @Param section path string true "Section"
// @Success 200 {object} response.Envelope
// @Router /class-capacity/{class}/{section}/withdrawals [post]
func (h *CapacityHandler) Withdraw(c *gin.Context) {
	promoted, err := h.capacity.RecordWithdrawal(c.Request.Context(), c.Param("class"), c.Param("section"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"offered": promoted}, nil)
}
