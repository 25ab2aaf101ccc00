package domain

import (
	"context"
	"maps"
	"time"
)

// ProgressRecord marks a learner's completion. It is created on the first
// completion and never deleted.
type ProgressRecord struct {
	Key       LearnerKey
	Name      string
	Completed bool
	IssuedAt  *time.Time
	Notified  bool
}

// ProgressSnapshot is the whole progress collection as read from the store.
// It is mutated in memory and written back wholesale.
type ProgressSnapshot struct {
	Records  map[LearnerKey]ProgressRecord
	Revision string // Backing store version token; empty when the store did not exist
	Degraded bool   // Loaded empty after a failed read under a fail-open policy
}

// NewProgressSnapshot returns an empty snapshot.
func NewProgressSnapshot() *ProgressSnapshot {
	return &ProgressSnapshot{Records: make(map[LearnerKey]ProgressRecord)}
}

// Lookup returns the record for key, or nil.
func (s *ProgressSnapshot) Lookup(key LearnerKey) *ProgressRecord {
	rec, ok := s.Records[key]
	if !ok {
		return nil
	}
	return &rec
}

// Put stores rec under its key.
func (s *ProgressSnapshot) Put(rec ProgressRecord) {
	if s.Records == nil {
		s.Records = make(map[LearnerKey]ProgressRecord)
	}
	s.Records[rec.Key] = rec
}

// Clone returns a deep enough copy for independent mutation.
func (s *ProgressSnapshot) Clone() *ProgressSnapshot {
	return &ProgressSnapshot{
		Records:  maps.Clone(s.Records),
		Revision: s.Revision,
		Degraded: s.Degraded,
	}
}

// ProgressStore persists the progress collection. Writes replace the whole
// collection; concurrent writers race and the last write wins unless the
// implementation enforces the snapshot's revision.
type ProgressStore interface {
	ReadAll(ctx context.Context) (*ProgressSnapshot, error)
	ReadOne(ctx context.Context, key LearnerKey) (*ProgressRecord, error)
	Write(ctx context.Context, snapshot *ProgressSnapshot) error
}

// BlobStore abstracts a versioned named-document store such as a repository
// file-contents API or a database table.
type BlobStore interface {
	// Get returns the document and its revision, or ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, string, error)
	// Put creates the document when revision is empty and updates it
	// otherwise. A stale revision yields ErrConflict. It returns the new
	// revision.
	Put(ctx context.Context, name string, data []byte, revision string) (string, error)
}
