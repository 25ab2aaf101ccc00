package domain

import "errors"

var (
	ErrNotFound                 = errors.New("not found")
	ErrInvalidInput             = errors.New("invalid input")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrConflict                 = errors.New("revision conflict")
	ErrConfiguration            = errors.New("configuration error")
	ErrRosterUnavailable        = errors.New("roster unavailable")
	ErrMalformedRoster          = errors.New("malformed roster")
	ErrUnknownLearner           = errors.New("registration number not found")
	ErrProgressStoreUnavailable = errors.New("progress store unavailable")
	ErrIssuanceFailure          = errors.New("certificate issuance failed")
	ErrNotificationFailure      = errors.New("notification failed")
	ErrNoSession                = errors.New("no completion session")
	ErrNotCompleted             = errors.New("learner has not completed the module")
)
