package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	exporter := NewCSVExporter()
	payload, err := exporter.Render(Dataset{
		Headers: []string{"Position", "Applicant"},
		Rows: []map[string]string{
			{"Position": "1", "Applicant": "Rani Putri"},
			{"Position": "2", "Applicant": "Budi Santoso"},
		},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "Position,Applicant", lines[0])
	require.Equal(t, "1,Rani Putri", lines[1])
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	exporter := NewCSVExporter()
	_, err := exporter.Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterRenderLetter(t *testing.T) {
	exporter := NewPDFExporter()
	payload, err := exporter.RenderLetter(Letter{
		Title:      "Admission Letter",
		Recipient:  "Rani Putri",
		Paragraphs: []string{"Dear Rani Putri,", "Your application has been approved."},
		Fields: []LetterField{
			{Label: "Class", Value: "Grade 1"},
			{Label: "Status", Value: "approved"},
		},
		Footer: "Generated by the admissions office.",
	})
	require.NoError(t, err)
	require.NotEmpty(t, payload)
	require.Equal(t, "%PDF", string(payload[:4]))
}

func TestPDFExporterLetterRequiresTitle(t *testing.T) {
	exporter := NewPDFExporter()
	_, err := exporter.RenderLetter(Letter{})
	require.Error(t, err)
}
