package certificate_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/msomdec/microlearn/internal/certificate"
	"github.com/msomdec/microlearn/internal/domain"
)

func completedRecord(at time.Time) *domain.ProgressRecord {
	return &domain.ProgressRecord{Key: "REG1", Name: "Alice", Completed: true, IssuedAt: &at}
}

var learner = &domain.Learner{
	Key:        "REG1",
	Name:       "Alice Zoë",
	Attributes: map[string]string{"Dept": "CSE", "Year": "2", "Section": "A"},
}

func TestIssueProducesPDF(t *testing.T) {
	issuer := certificate.NewPDFIssuer("")
	doc, err := issuer.Issue(context.Background(), learner, completedRecord(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !bytes.HasPrefix(doc, []byte("%PDF-")) {
		t.Fatalf("expected PDF header, got %q", doc[:8])
	}
}

func TestIssueIsDeterministicPerIssuance(t *testing.T) {
	issuer := certificate.NewPDFIssuer("Data Privacy Basics")
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	a, err := issuer.Issue(context.Background(), learner, completedRecord(at))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	b, err := issuer.Issue(context.Background(), learner, completedRecord(at))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("expected identical documents for the same issuance")
	}

	c, err := issuer.Issue(context.Background(), learner, completedRecord(at.Add(24*time.Hour)))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Fatal("expected a different document for a different issuance time")
	}
}

func TestIssueRejectsIncompleteRecord(t *testing.T) {
	issuer := certificate.NewPDFIssuer("")
	_, err := issuer.Issue(context.Background(), learner, &domain.ProgressRecord{Key: "REG1"})
	if !errors.Is(err, domain.ErrIssuanceFailure) {
		t.Fatalf("expected ErrIssuanceFailure, got %v", err)
	}
}

func TestIDAndFilename(t *testing.T) {
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	if certificate.ID(completedRecord(at)) != certificate.ID(completedRecord(at)) {
		t.Fatal("expected stable certificate ID")
	}
	if certificate.ID(completedRecord(at)) == certificate.ID(completedRecord(at.Add(time.Second))) {
		t.Fatal("expected distinct IDs for distinct issuance times")
	}
	if got := certificate.Filename("REG1"); got != "certificate_REG1.pdf" {
		t.Fatalf("unexpected filename %q", got)
	}
}
