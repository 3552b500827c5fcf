package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/pkg/response"
)

type waitlistService interface {
	List(ctx context.Context, class string) ([]models.WaitlistEntryDetail, error)
	ExportCSV(ctx context.Context, class string) ([]byte, error)
}

// WaitlistHandler exposes the per-class waitlist endpoints.
type WaitlistHandler struct {
	waitlists waitlistService
}

// NewWaitlistHandler constructs WaitlistHandler.
func NewWaitlistHandler(waitlists waitlistService) *WaitlistHandler {
	return &WaitlistHandler{waitlists: waitlists}
}

// List godoc
// @Summary List the class waitlist in queue order
// @Tags Waitlist
// @Produce json
// @Param class path string true "Class"
// @Success 200 {object} response.Envelope
// @Router /waitlist/{class} [get]
func (h *WaitlistHandler) List(c *gin.Context) {
	entries, err := h.waitlists.List(c.Request.Context(), c.Param("class"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Export godoc
// @Summary Export the class waitlist as CSV
// @Tags Waitlist
// @Produce text/csv
// @Param class path string true "Class"
// @Success 200 {file} binary
// @Router /waitlist/{class}/export [get]
func (h *WaitlistHandler) Export(c *gin.Context) {
	class := c.Param("class")
	payload, err := h.waitlists.ExportCSV(c.Request.Context(), class)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, "waitlist-"+class+".csv", "text/csv", payload)
}
