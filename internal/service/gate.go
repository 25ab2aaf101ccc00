package service

import (
	"fmt"
	"time"

	"github.com/msomdec/microlearn/internal/domain"
)

// Action is the completion gate's verdict for one interaction.
type Action string

const (
	ActionIssue       Action = "ISSUE"
	ActionWait        Action = "WAIT"
	ActionAlreadyDone Action = "ALREADY_DONE"
)

// Decision is the result of Evaluate.
type Decision struct {
	Action    Action
	Remaining time.Duration
	// Record is the new progress record to persist. Only set for ActionIssue.
	Record *domain.ProgressRecord
}

// RemainingSeconds returns the whole seconds left, truncated and never
// negative.
func (d Decision) RemainingSeconds() int {
	if d.Remaining <= 0 {
		return 0
	}
	return int(d.Remaining / time.Second)
}

// Evaluate decides whether the learner may obtain a certificate at now.
// It performs no I/O; persisting an ActionIssue record is the caller's job.
//
// The only trusted input is the elapsed server time since the session's
// watch start. A completed record always wins, with or without a session.
func Evaluate(key domain.LearnerKey, learner *domain.Learner, existing *domain.ProgressRecord, session *domain.CompletionSession, now time.Time) (Decision, error) {
	if learner == nil {
		return Decision{}, domain.ErrUnknownLearner
	}
	if learner.Key != key {
		return Decision{}, fmt.Errorf("%w: roster record %s does not match key %s", domain.ErrInvalidInput, learner.Key, key)
	}

	if existing != nil && existing.Completed {
		return Decision{Action: ActionAlreadyDone}, nil
	}

	if session == nil {
		return Decision{}, domain.ErrNoSession
	}
	if session.Key != key {
		return Decision{}, fmt.Errorf("%w: session belongs to %s, not %s", domain.ErrInvalidInput, session.Key, key)
	}

	elapsed := session.Elapsed(now)
	if elapsed < session.RequiredDuration {
		return Decision{Action: ActionWait, Remaining: session.RequiredDuration - elapsed}, nil
	}

	issuedAt := now.UTC().Truncate(time.Second)
	return Decision{
		Action: ActionIssue,
		Record: &domain.ProgressRecord{
			Key:       key,
			Name:      learner.Name,
			Completed: true,
			IssuedAt:  &issuedAt,
		},
	}, nil
}
