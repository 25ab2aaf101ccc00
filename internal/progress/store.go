// Package progress persists the learner progress collection as a single
// JSON document, optionally AES Crypt encrypted, on top of a versioned blob
// store.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/msomdec/microlearn/internal/aescrypt"
	"github.com/msomdec/microlearn/internal/domain"
)

// TimestampLayout is the on-disk issuance timestamp format. It carries no
// zone: timestamps are wall-clock time in Options.Location, which must
// match whatever else writes the document.
const TimestampLayout = "2006-01-02 15:04:05"

// Options configures a Store.
type Options struct {
	// Name of the document in the blob store, e.g. "progress.json.aes".
	Name string
	// Secret encrypts the document when non-empty.
	Secret string
	// ConditionalWrites makes Write supply the snapshot's own revision so a
	// concurrent update is rejected with domain.ErrConflict. When false the
	// latest revision is fetched just before writing and the last write wins.
	ConditionalWrites bool
	// Location the stored timestamps are written in. Nil means UTC.
	Location *time.Location
}

// Store implements domain.ProgressStore.
type Store struct {
	blobs domain.BlobStore
	opts  Options
}

// NewStore creates a Store over blobs.
func NewStore(blobs domain.BlobStore, opts Options) *Store {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Store{blobs: blobs, opts: opts}
}

type entry struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
	Timestamp string `json:"timestamp,omitempty"`
	Notified  bool   `json:"notified"`
}

// ReadAll loads the whole collection. A document that does not exist yet
// yields an empty snapshot.
func (s *Store) ReadAll(ctx context.Context) (*domain.ProgressSnapshot, error) {
	data, rev, err := s.blobs.Get(ctx, s.opts.Name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewProgressSnapshot(), nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrProgressStoreUnavailable, s.opts.Name, err)
	}

	snap, err := s.decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrProgressStoreUnavailable, s.opts.Name, err)
	}
	snap.Revision = rev
	return snap, nil
}

// ReadOne returns the record for key, or nil when the learner has none.
func (s *Store) ReadOne(ctx context.Context, key domain.LearnerKey) (*domain.ProgressRecord, error) {
	snap, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Lookup(key), nil
}

// Write replaces the stored collection with snapshot and updates its
// revision.
func (s *Store) Write(ctx context.Context, snapshot *domain.ProgressSnapshot) error {
	data, err := s.encode(snapshot)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	if s.opts.ConditionalWrites {
		rev, err := s.blobs.Put(ctx, s.opts.Name, data, snapshot.Revision)
		if err != nil {
			return s.writeError(err)
		}
		snapshot.Revision = rev
		snapshot.Degraded = false
		return nil
	}

	rev, err := s.putLatest(ctx, data)
	if errors.Is(err, domain.ErrConflict) {
		// Someone wrote between our revision fetch and the put.
		slog.Warn("progress write raced, retrying once", "document", s.opts.Name)
		rev, err = s.putLatest(ctx, data)
	}
	if err != nil {
		return s.writeError(err)
	}
	snapshot.Revision = rev
	snapshot.Degraded = false
	return nil
}

func (s *Store) putLatest(ctx context.Context, data []byte) (string, error) {
	_, current, err := s.blobs.Get(ctx, s.opts.Name)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	return s.blobs.Put(ctx, s.opts.Name, data, current)
}

func (s *Store) writeError(err error) error {
	if errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("write %s: %w", s.opts.Name, err)
	}
	return fmt.Errorf("%w: write %s: %v", domain.ErrProgressStoreUnavailable, s.opts.Name, err)
}

func (s *Store) decode(data []byte) (*domain.ProgressSnapshot, error) {
	if s.opts.Secret != "" {
		plain, err := aescrypt.DecryptBytes(data, s.opts.Secret)
		if err != nil {
			return nil, err
		}
		data = plain
	}

	var doc map[string]entry
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	snap := domain.NewProgressSnapshot()
	for rawKey, e := range doc {
		key, err := domain.NormalizeKey(rawKey)
		if err != nil {
			slog.Warn("skipping progress entry with empty key")
			continue
		}
		rec := domain.ProgressRecord{
			Key:       key,
			Name:      e.Name,
			Completed: e.Completed,
			Notified:  e.Notified,
		}
		if e.Timestamp != "" {
			ts, err := time.ParseInLocation(TimestampLayout, e.Timestamp, s.opts.Location)
			if err != nil {
				return nil, fmt.Errorf("entry %s: parse timestamp: %w", key, err)
			}
			ts = ts.UTC()
			rec.IssuedAt = &ts
		}
		if existing := snap.Lookup(key); existing != nil && existing.Completed {
			continue
		}
		snap.Put(rec)
	}
	return snap, nil
}

func (s *Store) encode(snapshot *domain.ProgressSnapshot) ([]byte, error) {
	doc := make(map[string]entry, len(snapshot.Records))
	for key, rec := range snapshot.Records {
		e := entry{Name: rec.Name, Completed: rec.Completed, Notified: rec.Notified}
		if rec.IssuedAt != nil {
			e.Timestamp = rec.IssuedAt.In(s.opts.Location).Format(TimestampLayout)
		}
		doc[string(key)] = e
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, err
	}
	if s.opts.Secret == "" {
		return data, nil
	}
	return aescrypt.EncryptBytes(data, s.opts.Secret)
}
