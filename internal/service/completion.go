package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/msomdec/microlearn/internal/domain"
)

// Issuer renders a certificate document for a completed learner.
type Issuer interface {
	Issue(ctx context.Context, learner *domain.Learner, record *domain.ProgressRecord) ([]byte, error)
}

// Notifier delivers an issued certificate. It reports success and never
// returns an error; delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, to, name string, document []byte) bool
}

// CompletionConfig tunes a CompletionService.
type CompletionConfig struct {
	RequiredDuration time.Duration
	// FailOpen treats an unreachable progress store as "no progress yet"
	// instead of refusing to evaluate.
	FailOpen bool
	// CallTimeout bounds each collaborator call. Zero disables it.
	CallTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// CompletionService runs the roster → progress → gate → issue → notify →
// persist sequence for one interaction.
//
// Completions are serialized per learner, so concurrent checks of the same
// session issue and notify at most once. Progress writes are serialized
// across learners to keep one completion from overwriting another.
type CompletionService struct {
	roster   domain.Roster
	progress domain.ProgressStore
	issuer   Issuer
	notifier Notifier
	cfg      CompletionConfig

	locks   sync.Map // domain.LearnerKey -> *sync.Mutex
	writeMu sync.Mutex
}

// NewCompletionService creates a new CompletionService. notifier may be nil.
func NewCompletionService(roster domain.Roster, progress domain.ProgressStore, issuer Issuer, notifier Notifier, cfg CompletionConfig) *CompletionService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CompletionService{
		roster:   roster,
		progress: progress,
		issuer:   issuer,
		notifier: notifier,
		cfg:      cfg,
	}
}

// RequiredDuration returns the configured viewing time.
func (s *CompletionService) RequiredDuration() time.Duration {
	return s.cfg.RequiredDuration
}

// Outcome is the result of one gated interaction.
type Outcome struct {
	Learner  *domain.Learner
	Session  *domain.CompletionSession // nil once the learner has completed
	Decision Decision
	// Document is the certificate rendered during an ISSUE transition.
	Document []byte
}

// Lookup normalizes rawKey and resolves it against the roster.
func (s *CompletionService) Lookup(ctx context.Context, rawKey string) (*domain.Learner, error) {
	key, err := domain.NormalizeKey(rawKey)
	if err != nil {
		return nil, err
	}
	return s.roster.Get(ctx, key)
}

// Begin starts a visit. A completed learner short-circuits to
// ActionAlreadyDone; anyone else gets a fresh session starting now, so
// revisiting restarts the timer.
func (s *CompletionService) Begin(ctx context.Context, rawKey string) (*Outcome, error) {
	learner, err := s.Lookup(ctx, rawKey)
	if err != nil {
		return nil, err
	}

	snap, err := s.readSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	now := s.cfg.Now()
	var session *domain.CompletionSession
	if rec := snap.Lookup(learner.Key); rec == nil || !rec.Completed {
		session = &domain.CompletionSession{
			Key:              learner.Key,
			WatchStart:       now,
			RequiredDuration: s.cfg.RequiredDuration,
		}
	}
	return s.decide(ctx, learner, snap, session, now)
}

// Check re-evaluates an existing session. When the required time has
// elapsed it issues the certificate and persists the completion.
func (s *CompletionService) Check(ctx context.Context, session *domain.CompletionSession) (*Outcome, error) {
	if session == nil {
		return nil, domain.ErrNoSession
	}
	// A session never requires less than the configured viewing time.
	if session.RequiredDuration < s.cfg.RequiredDuration {
		adjusted := *session
		adjusted.RequiredDuration = s.cfg.RequiredDuration
		session = &adjusted
	}
	learner, err := s.roster.Get(ctx, session.Key)
	if err != nil {
		return nil, err
	}

	snap, err := s.readSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.decide(ctx, learner, snap, session, s.cfg.Now())
}

// Completed returns the learner and their progress record, or
// domain.ErrNotCompleted if they have not finished yet.
func (s *CompletionService) Completed(ctx context.Context, key domain.LearnerKey) (*domain.Learner, *domain.ProgressRecord, error) {
	learner, err := s.roster.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	snap, err := s.readSnapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	rec := snap.Lookup(key)
	if rec == nil || !rec.Completed {
		return learner, nil, domain.ErrNotCompleted
	}
	return learner, rec, nil
}

// Certificate renders the certificate of a learner who has completed.
func (s *CompletionService) Certificate(ctx context.Context, key domain.LearnerKey) ([]byte, *domain.Learner, *domain.ProgressRecord, error) {
	learner, rec, err := s.Completed(ctx, key)
	if err != nil {
		return nil, learner, nil, err
	}

	doc, err := s.issue(ctx, learner, rec)
	if err != nil {
		return nil, learner, rec, err
	}
	return doc, learner, rec, nil
}

func (s *CompletionService) decide(ctx context.Context, learner *domain.Learner, snap *domain.ProgressSnapshot, session *domain.CompletionSession, now time.Time) (*Outcome, error) {
	decision, err := Evaluate(learner.Key, learner, snap.Lookup(learner.Key), session, now)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Learner: learner, Session: session, Decision: decision}
	switch decision.Action {
	case ActionAlreadyDone:
		out.Session = nil
	case ActionIssue:
		doc, done, err := s.complete(ctx, learner, decision.Record)
		if err != nil {
			return nil, err
		}
		if done {
			out.Decision = Decision{Action: ActionAlreadyDone}
		}
		out.Document = doc
		out.Session = nil
	}
	return out, nil
}

// complete performs the Watching → Completed transition: issue, notify,
// then persist. It holds the learner's lock throughout and reports
// alreadyDone when the re-read under that lock finds the learner
// completed, in which case nothing is issued or written.
//
// Once started, the transition runs to the end even if ctx is cancelled:
// an emailed certificate is always recorded.
func (s *CompletionService) complete(ctx context.Context, learner *domain.Learner, rec *domain.ProgressRecord) (doc []byte, alreadyDone bool, err error) {
	unlock := s.lock(learner.Key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	ctx = context.WithoutCancel(ctx)

	// The snapshot that led here may be stale, or empty under fail-open.
	snap, err := s.readStrict(ctx)
	if err != nil {
		return nil, false, err
	}
	if existing := snap.Lookup(learner.Key); existing != nil && existing.Completed {
		return nil, true, nil
	}

	doc, err = s.issue(ctx, learner, rec)
	if err != nil {
		return nil, false, err
	}

	final := *rec
	if learner.Contact != "" && s.notifier != nil {
		final.Notified = s.notify(ctx, learner, doc)
	}

	if err := s.persist(ctx, final); err != nil {
		return nil, false, fmt.Errorf("persist completion for %s: %w", learner.Key, err)
	}

	slog.Info("certificate issued", "key", learner.Key, "notified", final.Notified)
	return doc, false, nil
}

// persist merges rec into the latest stored snapshot and writes it back.
func (s *CompletionService) persist(ctx context.Context, rec domain.ProgressRecord) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap, err := s.readStrict(ctx)
	if err != nil {
		return err
	}
	next := snap.Clone()
	next.Put(rec)

	wctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.progress.Write(wctx, next)
}

// lock acquires the per-learner mutex and returns its release.
func (s *CompletionService) lock(key domain.LearnerKey) func() {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *CompletionService) issue(ctx context.Context, learner *domain.Learner, rec *domain.ProgressRecord) ([]byte, error) {
	ictx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc, err := s.issuer.Issue(ictx, learner, rec)
	if err != nil {
		if errors.Is(err, domain.ErrIssuanceFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrIssuanceFailure, err)
	}
	return doc, nil
}

func (s *CompletionService) notify(ctx context.Context, learner *domain.Learner, doc []byte) (ok bool) {
	nctx, cancel := s.withTimeout(ctx)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("notifier panicked", "key", learner.Key, "panic", r)
			ok = false
		}
	}()

	ok = s.notifier.Notify(nctx, learner.Contact, learner.Name, doc)
	if !ok {
		slog.Warn("certificate notification failed", "key", learner.Key, "error", domain.ErrNotificationFailure)
	}
	return ok
}

// readSnapshot reads progress under the configured failure policy.
func (s *CompletionService) readSnapshot(ctx context.Context) (*domain.ProgressSnapshot, error) {
	snap, err := s.readStrict(ctx)
	if err == nil {
		return snap, nil
	}
	if !s.cfg.FailOpen || !errors.Is(err, domain.ErrProgressStoreUnavailable) {
		return nil, err
	}

	slog.Warn("progress store unavailable, continuing without progress", "error", err)
	snap = domain.NewProgressSnapshot()
	snap.Degraded = true
	return snap, nil
}

func (s *CompletionService) readStrict(ctx context.Context) (*domain.ProgressSnapshot, error) {
	rctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.progress.ReadAll(rctx)
}

func (s *CompletionService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.CallTimeout)
}
