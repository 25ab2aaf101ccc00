// Package view holds the portal's templ components. The *_templ.go files
// are generated from the .templ sources with `templ generate`.
package view

//go:generate templ generate

import (
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/msomdec/microlearn/internal/domain"
)

// Site holds the values shared by every page.
type Site struct {
	CourseName string
	VideoURL   string
}

// HomeForm is the state of the registration number form.
type HomeForm struct {
	CSRFToken string
	RegNo     string
	Message   string
}

// CertificateView is what the certificate page shows.
type CertificateView struct {
	Learner       *domain.Learner
	Record        *domain.ProgressRecord
	CertificateID string
}

// videoSrc sanitizes the configured embed URL.
func videoSrc(u string) string {
	return string(templ.URL(u))
}

func seconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}

func elapsedSeconds(remaining, required time.Duration) string {
	return strconv.FormatInt(int64(required/time.Second)-int64(remaining/time.Second), 10)
}

func issuedOn(rec *domain.ProgressRecord) string {
	if rec == nil || rec.IssuedAt == nil {
		return ""
	}
	return rec.IssuedAt.Format("02-01-2006")
}
