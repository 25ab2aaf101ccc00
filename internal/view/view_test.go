package view_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	"github.com/msomdec/microlearn/internal/domain"
	"github.com/msomdec/microlearn/internal/view"
)

var site = view.Site{CourseName: "Lab Safety", VideoURL: "https://www.youtube.com/embed/abc"}

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func TestHomePageEscapesInput(t *testing.T) {
	html := render(t, view.HomePage(site, view.HomeForm{
		CSRFToken: "tok",
		RegNo:     `"><script>alert(1)</script>`,
		Message:   "Registration number not found.",
	}))

	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Fatal("registration number was not escaped")
	}
	for _, want := range []string{`action="/learn"`, `name="gorilla.csrf.Token" value="tok"`, "Registration number not found.", "<title>Start · Lab Safety</title>"} {
		if !strings.Contains(html, want) {
			t.Errorf("expected %q in page", want)
		}
	}
}

func TestWatchPagePollsStatus(t *testing.T) {
	html := render(t, view.WatchPage(site, "Alice", 150*time.Second, 180*time.Second))

	for _, want := range []string{
		`src="https://www.youtube.com/embed/abc"`,
		`id="countdown"`,
		`data-on-interval__duration.1s="@get(&#39;/watch/status&#39;)"`,
		"Time remaining: 150 seconds",
		`<progress value="30" max="180">`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("expected %q in page", want)
		}
	}
}

func TestWatchPageSanitizesVideoURL(t *testing.T) {
	bad := view.Site{CourseName: "x", VideoURL: "javascript:alert(1)"}
	html := render(t, view.WatchPage(bad, "Alice", time.Second, time.Second))
	if strings.Contains(html, "javascript:") {
		t.Fatal("unsafe video URL rendered")
	}
}

func TestCertificatePage(t *testing.T) {
	issued := time.Date(2026, 5, 1, 10, 3, 0, 0, time.UTC)
	html := render(t, view.CertificatePage(site, view.CertificateView{
		Learner:       &domain.Learner{Key: "REG1", Name: "Alice", Contact: "alice@example.com"},
		Record:        &domain.ProgressRecord{Key: "REG1", Completed: true, IssuedAt: &issued, Notified: true},
		CertificateID: "abc-123",
	}))

	for _, want := range []string{"Alice", "REG1", "01-05-2026", "abc-123", `href="/certificate/download"`, "emailed to alice@example.com"} {
		if !strings.Contains(html, want) {
			t.Errorf("expected %q in page", want)
		}
	}
}

func TestCertificatePageWithoutNotification(t *testing.T) {
	issued := time.Now()
	html := render(t, view.CertificatePage(site, view.CertificateView{
		Learner: &domain.Learner{Key: "REG2", Name: "Bob"},
		Record:  &domain.ProgressRecord{Key: "REG2", Completed: true, IssuedAt: &issued},
	}))
	if strings.Contains(html, "emailed") {
		t.Fatal("expected no email line without a contact")
	}
}

func TestErrorPageEscapesMessage(t *testing.T) {
	html := render(t, view.ErrorPage(site, "<b>store down</b>"))

	if strings.Contains(html, "<b>store down</b>") {
		t.Fatal("error message was not escaped")
	}
	for _, want := range []string{"<!doctype html>", `class="notice" role="status"`, "&lt;b&gt;store down&lt;/b&gt;", `href="/"`} {
		if !strings.Contains(html, want) {
			t.Errorf("expected %q in page", want)
		}
	}
}

func TestNoticeIsEmptyWithoutMessage(t *testing.T) {
	if html := render(t, view.Notice("", true)); html != "" {
		t.Fatalf("expected no output, got %q", html)
	}
	if html := render(t, view.Notice("Saved", true)); !strings.Contains(html, `class="notice ok"`) {
		t.Fatalf("expected success styling, got %q", html)
	}
}
