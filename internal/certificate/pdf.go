// Package certificate renders completion certificates.
package certificate

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"

	"github.com/msomdec/microlearn/internal/domain"
)

// namespace scopes certificate IDs derived from learner key and issue time.
var namespace = uuid.MustParse("6f1c2a9e-4b7d-5e3a-9c1f-0d8e2b4a6c70")

// PDFIssuer renders an A4 certificate. Output depends only on the learner,
// the record and the configured course name.
type PDFIssuer struct {
	course string
}

// NewPDFIssuer creates a PDFIssuer for the named course.
func NewPDFIssuer(course string) *PDFIssuer {
	if course == "" {
		course = "microlearning module"
	}
	return &PDFIssuer{course: course}
}

// Filename returns the download name for key's certificate.
func Filename(key domain.LearnerKey) string {
	return fmt.Sprintf("certificate_%s.pdf", key)
}

// ID returns the certificate identifier for a completed record.
func ID(rec *domain.ProgressRecord) string {
	return uuid.NewSHA1(namespace, []byte(string(rec.Key)+"|"+rec.IssuedAt.UTC().Format("20060102T150405Z"))).String()
}

// Issue implements service.Issuer.
func (p *PDFIssuer) Issue(ctx context.Context, learner *domain.Learner, rec *domain.ProgressRecord) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIssuanceFailure, err)
	}
	if learner == nil || rec == nil || !rec.Completed || rec.IssuedAt == nil {
		return nil, fmt.Errorf("%w: record is not a completed issuance", domain.ErrIssuanceFailure)
	}
	issued := rec.IssuedAt.UTC()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(issued)
	pdf.SetModificationDate(issued)
	pdf.SetCatalogSort(true)
	pdf.SetTitle("Certificate of Completion", true)
	pdf.SetAuthor("microlearn", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, 190, 277, "D")

	line := func(style string, size float64, text string, gap float64) {
		pdf.SetFont("Helvetica", style, size)
		pdf.CellFormat(0, size/2+2, tr(text), "", 1, "C", false, 0, "")
		pdf.Ln(gap)
	}

	pdf.SetY(50)
	line("B", 28, "Certificate of Completion", 14)
	line("", 14, "This is to certify that", 6)
	line("B", 20, fmt.Sprintf("%s (RegNo: %s)", learner.Name, learner.Key), 6)
	if details := detailLine(learner); details != "" {
		line("", 14, details, 6)
	}
	line("", 14, fmt.Sprintf("has successfully completed the %s.", p.course), 20)
	line("", 12, "Issued on: "+issued.Format("02-01-2006"), 4)
	line("I", 9, "Certificate ID: "+ID(rec), 0)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIssuanceFailure, err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIssuanceFailure, err)
	}
	return buf.Bytes(), nil
}

// detailLine formats "from Dept - Year N - Section S", skipping blanks.
func detailLine(l *domain.Learner) string {
	var parts []string
	if v := l.Attribute("Dept"); v != "" {
		parts = append(parts, v)
	}
	if v := l.Attribute("Year"); v != "" {
		parts = append(parts, "Year "+v)
	}
	if v := l.Attribute("Section"); v != "" {
		parts = append(parts, "Section "+v)
	}
	if len(parts) == 0 {
		return ""
	}
	return "from " + strings.Join(parts, " - ")
}
