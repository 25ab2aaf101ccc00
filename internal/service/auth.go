package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/msomdec/microlearn/internal/domain"
)

// SessionTokens signs completion sessions into tamper-proof cookie values,
// so the watch start time cannot be moved back by the client.
type SessionTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionTokens creates a new SessionTokens. ttl bounds how long a
// session cookie stays valid.
func NewSessionTokens(secret string, ttl time.Duration) *SessionTokens {
	return &SessionTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

type sessionClaims struct {
	WatchStart int64 `json:"ws"`
	Required   int64 `json:"dur"`
	jwt.RegisteredClaims
}

// Sign returns a signed token for session.
func (t *SessionTokens) Sign(session *domain.CompletionSession) (string, error) {
	now := t.now()
	claims := sessionClaims{
		WatchStart: session.WatchStart.Unix(),
		Required:   int64(session.RequiredDuration / time.Second),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(session.Key),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// SignKey returns a signed token that only identifies a learner, used once
// the learner has completed and no timer is needed.
func (t *SessionTokens) SignKey(key domain.LearnerKey) (string, error) {
	return t.Sign(&domain.CompletionSession{Key: key, WatchStart: t.now()})
}

// Parse validates tokenString and returns the session it carries.
func (t *SessionTokens) Parse(tokenString string) (*domain.CompletionSession, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return nil, domain.ErrUnauthorized
	}

	key, err := domain.NormalizeKey(claims.Subject)
	if err != nil || claims.Required < 0 {
		return nil, domain.ErrUnauthorized
	}

	return &domain.CompletionSession{
		Key:              key,
		WatchStart:       time.Unix(claims.WatchStart, 0).UTC(),
		RequiredDuration: time.Duration(claims.Required) * time.Second,
	}, nil
}

// AdminAuth checks the operator password for the progress export.
type AdminAuth struct {
	hash []byte
}

// NewAdminAuth creates an AdminAuth from a bcrypt hash. An empty hash
// disables admin access.
func NewAdminAuth(bcryptHash string) *AdminAuth {
	return &AdminAuth{hash: []byte(bcryptHash)}
}

// Enabled reports whether an admin password is configured.
func (a *AdminAuth) Enabled() bool {
	return len(a.hash) > 0
}

// Verify returns domain.ErrUnauthorized unless password matches.
func (a *AdminAuth) Verify(password string) error {
	if !a.Enabled() {
		return domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return domain.ErrUnauthorized
		}
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return nil
}
