package handler

import (
	"net/http"
	"time"

	"github.com/msomdec/microlearn/internal/service"
	"github.com/msomdec/microlearn/internal/view"
)

// Deps are the services the HTTP layer needs.
type Deps struct {
	Completion   *service.CompletionService
	Tokens       *service.SessionTokens
	Admin        *service.AdminAuth
	Export       *service.ExportService
	Limiter      *service.TokenBucket
	Site         view.Site
	SessionTTL   time.Duration
	CookieSecure bool
}

// RegisterRoutes sets up all HTTP routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, d Deps) {
	learner := NewLearnerHandler(d.Completion, d.Tokens, d.Site, d.SessionTTL, d.CookieSecure)
	admin := NewAdminHandler(d.Admin, d.Export)

	withSession := func(h http.HandlerFunc) http.Handler {
		return RequireSession(d.Tokens, h)
	}

	mux.HandleFunc("GET /healthz", HandleHealthz)
	mux.HandleFunc("GET /", learner.HandleHome)
	mux.Handle("POST /learn", RateLimit(d.Limiter, http.HandlerFunc(learner.HandleBegin)))
	mux.Handle("GET /watch", withSession(learner.HandleWatch))
	mux.Handle("GET /watch/status", withSession(learner.HandleStatus))
	mux.Handle("GET /certificate", withSession(learner.HandleCertificate))
	mux.Handle("GET /certificate/download", withSession(learner.HandleDownload))
	mux.Handle("GET /admin/progress.xlsx", RateLimit(d.Limiter, http.HandlerFunc(admin.HandleExport)))
}
