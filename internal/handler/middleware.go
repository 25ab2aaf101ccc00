package handler

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/csrf"

	"github.com/msomdec/microlearn/internal/domain"
	"github.com/msomdec/microlearn/internal/service"
)

type contextKey string

const sessionContextKey contextKey = "session"

// sessionCookie carries the signed completion session.
const sessionCookie = "mlp_session"

// SessionFromContext extracts the completion session from the request
// context. Returns nil if the request carried no valid session.
func SessionFromContext(ctx context.Context) *domain.CompletionSession {
	session, _ := ctx.Value(sessionContextKey).(*domain.CompletionSession)
	return session
}

// RequireSession is middleware for pages that only make sense after the
// learner entered a registration number. It validates the session cookie
// and injects the session into the request context. Requests without a
// valid session are sent back to the start page.
func RequireSession(tokens *service.SessionTokens, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := sessionFromRequest(r, tokens)
		if err != nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromRequest(r *http.Request, tokens *service.SessionTokens) (*domain.CompletionSession, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, domain.ErrNoSession
	}
	return tokens.Parse(cookie.Value)
}

// RateLimit throttles requests per client IP. Limited requests get 429
// with a Retry-After header.
func RateLimit(limiter *service.TokenBucket, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !limiter.Allow(ip) {
			secs := int(limiter.RetryAfter(ip).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			http.Error(w, "Too many attempts. Please wait and try again.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP uses the connection address. Forwarding headers are ignored
// because clients can set them freely.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SecurityHeaders sets the response headers every page carries. The CSP
// admits the datastar bundle and embedded video players.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-eval' https://cdn.jsdelivr.net; frame-src https://www.youtube.com https://www.youtube-nocookie.com https://player.vimeo.com; connect-src 'self'; img-src 'self' data:")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// CSRF protects form posts with gorilla/csrf. authKey must be 32 bytes.
// When secure is false the requests are marked as plain HTTP so the
// origin check accepts http:// referers during local development.
func CSRF(authKey []byte, secure bool, trustedOrigins []string) func(http.Handler) http.Handler {
	protect := csrf.Protect(
		authKey,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.TrustedOrigins(trustedOrigins),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			msg := "Forbidden"
			if reason := csrf.FailureReason(r); reason != nil {
				msg += ": " + reason.Error()
			}
			http.Error(w, msg, http.StatusForbidden)
		})),
	)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !secure {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}
