package roster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/msomdec/microlearn/internal/aescrypt"
	"github.com/msomdec/microlearn/internal/domain"
)

// Roster is an in-memory, read-only learner index. It implements
// domain.Roster.
type Roster struct {
	learners map[domain.LearnerKey]domain.Learner
}

// New indexes learners by key.
func New(learners []domain.Learner) *Roster {
	m := make(map[domain.LearnerKey]domain.Learner, len(learners))
	for _, l := range learners {
		m[l.Key] = l
	}
	return &Roster{learners: m}
}

// Get returns the learner for key, or domain.ErrUnknownLearner.
func (r *Roster) Get(_ context.Context, key domain.LearnerKey) (*domain.Learner, error) {
	l, ok := r.learners[key]
	if !ok {
		return nil, domain.ErrUnknownLearner
	}
	return &l, nil
}

// Len returns the number of learners.
func (r *Roster) Len() int {
	return len(r.learners)
}

// Load fetches, decrypts and parses the roster. Every failure is wrapped in
// domain.ErrRosterUnavailable; the process cannot serve without a roster.
func Load(ctx context.Context, src Source, format Format, secret string) (*Roster, error) {
	blob, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrRosterUnavailable, src, err)
	}

	plain, err := aescrypt.DecryptBytes(blob, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt: %v", domain.ErrRosterUnavailable, err)
	}

	learners, err := Parse(plain, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRosterUnavailable, err)
	}

	slog.Info("roster loaded", "source", src.String(), "learners", len(learners))
	return New(learners), nil
}
