package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/csrf"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/msomdec/microlearn/internal/certificate"
	"github.com/msomdec/microlearn/internal/domain"
	"github.com/msomdec/microlearn/internal/service"
	"github.com/msomdec/microlearn/internal/view"
)

// LearnerHandler serves the learner-facing pages: registration number
// entry, the timed video and the certificate.
type LearnerHandler struct {
	completion   *service.CompletionService
	tokens       *service.SessionTokens
	site         view.Site
	sessionTTL   time.Duration
	cookieSecure bool
}

// NewLearnerHandler creates a new LearnerHandler.
func NewLearnerHandler(completion *service.CompletionService, tokens *service.SessionTokens, site view.Site, sessionTTL time.Duration, cookieSecure bool) *LearnerHandler {
	return &LearnerHandler{
		completion:   completion,
		tokens:       tokens,
		site:         site,
		sessionTTL:   sessionTTL,
		cookieSecure: cookieSecure,
	}
}

// HandleHome renders the registration number form.
func (h *LearnerHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	view.HomePage(h.site, view.HomeForm{CSRFToken: csrf.Token(r)}).Render(r.Context(), w)
}

// HandleBegin looks up the submitted registration number and starts a
// viewing session, or skips straight to the certificate for learners
// who already completed.
// POST /learn
func (h *LearnerHandler) HandleBegin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	regno := r.PostFormValue("regno")

	out, err := h.completion.Begin(r.Context(), regno)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			h.renderForm(w, r, http.StatusUnprocessableEntity, regno, "Please enter your registration number.")
		case errors.Is(err, domain.ErrUnknownLearner):
			h.renderForm(w, r, http.StatusNotFound, regno, "Registration number not found.")
		case errors.Is(err, domain.ErrProgressStoreUnavailable):
			slog.Error("begin session", "error", err)
			h.renderForm(w, r, http.StatusServiceUnavailable, regno, "Progress records are temporarily unavailable. Please try again shortly.")
		default:
			slog.Error("begin session", "error", err)
			h.renderForm(w, r, http.StatusInternalServerError, regno, "An unexpected error occurred. Please try again.")
		}
		return
	}

	if out.Session == nil {
		token, err := h.tokens.SignKey(out.Learner.Key)
		if err != nil {
			slog.Error("sign session", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		h.setSession(w, token)
		http.Redirect(w, r, "/certificate", http.StatusSeeOther)
		return
	}

	token, err := h.tokens.Sign(out.Session)
	if err != nil {
		slog.Error("sign session", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.setSession(w, token)
	slog.Info("viewing session started", "key", out.Learner.Key)
	http.Redirect(w, r, "/watch", http.StatusSeeOther)
}

// HandleWatch renders the video page with the remaining time.
func (h *LearnerHandler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	out, err := h.completion.Check(r.Context(), session)
	if err != nil {
		h.handleCheckError(w, r, err)
		return
	}

	if out.Decision.Action != service.ActionWait {
		http.Redirect(w, r, "/certificate", http.StatusSeeOther)
		return
	}
	view.WatchPage(h.site, out.Learner.Name, out.Decision.Remaining, out.Session.RequiredDuration).Render(r.Context(), w)
}

// HandleStatus is polled by the watch page. It patches the countdown
// while the learner waits and redirects once the certificate is issued.
// GET /watch/status
func (h *LearnerHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	out, err := h.completion.Check(r.Context(), session)

	sse := datastar.NewSSE(w, r)
	if err != nil {
		var notice string
		switch {
		case errors.Is(err, domain.ErrUnknownLearner):
			sse.Redirect("/")
			return
		case errors.Is(err, domain.ErrProgressStoreUnavailable):
			notice = "Progress records are temporarily unavailable. Retrying…"
		case errors.Is(err, domain.ErrIssuanceFailure):
			notice = "Your certificate could not be generated yet. Retrying…"
		default:
			notice = "Something went wrong. Retrying…"
		}
		slog.Error("check session", "key", session.Key, "error", err)
		sse.PatchElementTempl(
			view.CountdownNotice(notice),
			datastar.WithSelectorID("countdown"),
			datastar.WithModeInner(),
		)
		return
	}

	if out.Decision.Action != service.ActionWait {
		sse.Redirect("/certificate")
		return
	}
	sse.PatchElementTempl(
		view.Countdown(out.Decision.Remaining, out.Session.RequiredDuration),
		datastar.WithSelectorID("countdown"),
		datastar.WithModeInner(),
	)
}

// HandleCertificate renders the completion page.
func (h *LearnerHandler) HandleCertificate(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	learner, rec, err := h.completion.Completed(r.Context(), session.Key)
	if err != nil {
		if errors.Is(err, domain.ErrNotCompleted) {
			http.Redirect(w, r, "/watch", http.StatusSeeOther)
			return
		}
		h.handleCheckError(w, r, err)
		return
	}

	view.CertificatePage(h.site, view.CertificateView{
		Learner:       learner,
		Record:        rec,
		CertificateID: certificate.ID(rec),
	}).Render(r.Context(), w)
}

// HandleDownload streams the certificate PDF.
// GET /certificate/download
func (h *LearnerHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	doc, learner, _, err := h.completion.Certificate(r.Context(), session.Key)
	if err != nil {
		if errors.Is(err, domain.ErrNotCompleted) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		h.handleCheckError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+certificate.Filename(learner.Key)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

func (h *LearnerHandler) handleCheckError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownLearner):
		// The roster no longer lists this learner.
		h.clearSession(w)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, domain.ErrProgressStoreUnavailable):
		slog.Error("progress store", "error", err)
		h.renderError(w, r, http.StatusServiceUnavailable, "Progress records are temporarily unavailable. Please try again shortly.")
	case errors.Is(err, domain.ErrIssuanceFailure):
		slog.Error("issue certificate", "error", err)
		h.renderError(w, r, http.StatusInternalServerError, "Your certificate could not be generated. Please reload the page.")
	default:
		slog.Error("learner request", "error", err)
		h.renderError(w, r, http.StatusInternalServerError, "An unexpected error occurred. Please try again.")
	}
}

func (h *LearnerHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, regno, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	view.HomePage(h.site, view.HomeForm{
		CSRFToken: csrf.Token(r),
		RegNo:     regno,
		Message:   message,
	}).Render(r.Context(), w)
}

func (h *LearnerHandler) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	view.ErrorPage(h.site, message).Render(r.Context(), w)
}

func (h *LearnerHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessionTTL / time.Second),
	})
}

func (h *LearnerHandler) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
