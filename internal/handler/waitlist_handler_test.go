package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

type fakeWaitlistSrv struct {
	entries []models.WaitlistEntryDetail
	csv     []byte
	err     error
}

func (f *fakeWaitlistSrv) List(context.Context, string) ([]models.WaitlistEntryDetail, error) {
	return f.entries, f.err
}

func (f *fakeWaitlistSrv) ExportCSV(context.Context, string) ([]byte, error) {
	return f.csv, f.err
}

func TestWaitlistHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewWaitlistHandler(&fakeWaitlistSrv{
		entries: []models.WaitlistEntryDetail{
			{WaitlistEntry: models.WaitlistEntry{ApplicationID: "app-1", Position: 1}, ApplicantName: "Rani Putri"},
		},
	})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/waitlist/Grade%201", nil)
	c.Params = gin.Params{{Key: "class", Value: "Grade 1"}}

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rani Putri")
}

func TestWaitlistHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewWaitlistHandler(&fakeWaitlistSrv{csv: []byte("Position,Applicant\n1,Rani Putri\n")})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/waitlist/Grade%201/export", nil)
	c.Params = gin.Params{{Key: "class", Value: "Grade 1"}}

	handler.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Position,Applicant"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "waitlist-Grade 1.csv")
}
