package domain

import "time"

// CompletionSession tracks one viewing of the module video. It is owned by
// the calling layer and never persisted; abandoning it leaves no trace.
type CompletionSession struct {
	Key              LearnerKey
	WatchStart       time.Time
	RequiredDuration time.Duration
}

// Elapsed returns the time watched at now, never negative.
func (s *CompletionSession) Elapsed(now time.Time) time.Duration {
	d := now.Sub(s.WatchStart)
	if d < 0 {
		return 0
	}
	return d
}
