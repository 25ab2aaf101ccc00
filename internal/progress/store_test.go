package progress_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/msomdec/microlearn/internal/domain"
	"github.com/msomdec/microlearn/internal/progress"
)

const testSecret = "progress-secret"

func newStore(blobs domain.BlobStore, conditional bool) *progress.Store {
	return progress.NewStore(blobs, progress.Options{
		Name:              "progress.json.aes",
		Secret:            testSecret,
		ConditionalWrites: conditional,
	})
}

func completed(key domain.LearnerKey, name string, at time.Time) domain.ProgressRecord {
	return domain.ProgressRecord{Key: key, Name: name, Completed: true, IssuedAt: &at}
}

func TestReadAllMissingDocumentIsEmpty(t *testing.T) {
	store := newStore(progress.NewMemoryBlobs(), false)

	snap, err := store.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(snap.Records) != 0 || snap.Revision != "" {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(progress.NewMemoryBlobs(), false)

	issued := time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	snap := domain.NewProgressSnapshot()
	rec := completed("REG1", "Alice", issued)
	rec.Notified = true
	snap.Put(rec)

	if err := store.Write(ctx, snap); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if snap.Revision == "" {
		t.Fatal("expected revision after write")
	}

	got, err := store.ReadOne(ctx, "REG1")
	if err != nil {
		t.Fatalf("ReadOne: %v", err)
	}
	if got == nil {
		t.Fatal("expected record")
	}
	if got.Key != "REG1" || got.Name != "Alice" || !got.Completed || !got.Notified {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.IssuedAt == nil || !got.IssuedAt.Equal(issued.Truncate(time.Second)) {
		t.Fatalf("expected issued_at %v to the second, got %v", issued.Truncate(time.Second), got.IssuedAt)
	}

	missing, err := store.ReadOne(ctx, "REG2")
	if err != nil {
		t.Fatalf("ReadOne missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown key, got %+v", missing)
	}
}

func TestDocumentIsEncrypted(t *testing.T) {
	ctx := context.Background()
	blobs := progress.NewMemoryBlobs()
	store := newStore(blobs, false)

	snap := domain.NewProgressSnapshot()
	snap.Put(completed("REG1", "Alice", time.Now()))
	if err := store.Write(ctx, snap); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, _, err := blobs.Get(ctx, "progress.json.aes")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(raw[:3]) != "AES" {
		t.Fatalf("expected AES Crypt document, got %q", raw[:10])
	}

	wrong := progress.NewStore(blobs, progress.Options{Name: "progress.json.aes", Secret: "other"})
	if _, err := wrong.ReadAll(ctx); !errors.Is(err, domain.ErrProgressStoreUnavailable) {
		t.Fatalf("expected ErrProgressStoreUnavailable with wrong secret, got %v", err)
	}
}

func TestPlaintextDocumentNormalizesKeys(t *testing.T) {
	ctx := context.Background()
	blobs := progress.NewMemoryBlobs()
	doc := `{" reg1 ": {"name": "Alice", "completed": true, "timestamp": "2026-01-02 03:04:05"}}`
	if _, err := blobs.Put(ctx, "progress.json", []byte(doc), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	store := progress.NewStore(blobs, progress.Options{Name: "progress.json"})
	rec, err := store.ReadOne(ctx, "REG1")
	if err != nil {
		t.Fatalf("ReadOne: %v", err)
	}
	if rec == nil || !rec.Completed {
		t.Fatalf("expected completed record for normalized key, got %+v", rec)
	}
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if !rec.IssuedAt.Equal(want) {
		t.Fatalf("expected %v, got %v", want, rec.IssuedAt)
	}
}

func TestTimestampsUseConfiguredLocation(t *testing.T) {
	ctx := context.Background()
	ist := time.FixedZone("IST", 5*60*60+30*60)
	blobs := progress.NewMemoryBlobs()
	doc := `{"REG1": {"name": "Alice", "completed": true, "timestamp": "2026-05-01 10:00:00"}}`
	if _, err := blobs.Put(ctx, "progress.json", []byte(doc), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	store := progress.NewStore(blobs, progress.Options{Name: "progress.json", Location: ist})
	snap, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := time.Date(2026, 5, 1, 4, 30, 0, 0, time.UTC)
	if got := snap.Lookup("REG1").IssuedAt; !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	snap.Put(completed("REG2", "Bob", time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)))
	if err := store.Write(ctx, snap); err != nil {
		t.Fatalf("Write: %v", err)
	}
	raw, _, err := blobs.Get(ctx, "progress.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for _, ts := range []string{`"2026-05-01 10:00:00"`, `"2026-05-02 17:30:00"`} {
		if !strings.Contains(string(raw), ts) {
			t.Fatalf("expected local timestamp %s in document:\n%s", ts, raw)
		}
	}
}

// Two sessions read the same snapshot before either writes. Each writes its
// whole snapshot back; the second write silently replaces the first. This is
// the documented last-writer-wins limitation of whole-collection writes.
func TestConcurrentSnapshotsLoseFirstUpdate(t *testing.T) {
	ctx := context.Background()
	store := newStore(progress.NewMemoryBlobs(), false)
	now := time.Now().UTC()

	first, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll first: %v", err)
	}
	second, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll second: %v", err)
	}

	first.Put(completed("REG1", "Alice", now))
	second.Put(completed("REG2", "Bob", now))

	if err := store.Write(ctx, first); err != nil {
		t.Fatalf("Write first: %v", err)
	}
	if err := store.Write(ctx, second); err != nil {
		t.Fatalf("Write second: %v", err)
	}

	final, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll final: %v", err)
	}
	if final.Lookup("REG2") == nil {
		t.Fatal("expected last writer's record REG2")
	}
	if final.Lookup("REG1") != nil {
		t.Fatal("expected REG1 to be lost: last write wins")
	}
}

func TestConditionalWritesRejectStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newStore(progress.NewMemoryBlobs(), true)
	now := time.Now().UTC()

	first, _ := store.ReadAll(ctx)
	second, _ := store.ReadAll(ctx)

	first.Put(completed("REG1", "Alice", now))
	second.Put(completed("REG2", "Bob", now))

	if err := store.Write(ctx, first); err != nil {
		t.Fatalf("Write first: %v", err)
	}
	err := store.Write(ctx, second)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale snapshot, got %v", err)
	}

	// Re-reading and re-applying succeeds and keeps both.
	retry, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll retry: %v", err)
	}
	retry.Put(completed("REG2", "Bob", now))
	if err := store.Write(ctx, retry); err != nil {
		t.Fatalf("Write retry: %v", err)
	}
	final, _ := store.ReadAll(ctx)
	if final.Lookup("REG1") == nil || final.Lookup("REG2") == nil {
		t.Fatalf("expected both records, got %v", final.Records)
	}
}

type failingBlobs struct{ err error }

func (f failingBlobs) Get(context.Context, string) ([]byte, string, error) {
	return nil, "", f.err
}

func (f failingBlobs) Put(context.Context, string, []byte, string) (string, error) {
	return "", f.err
}

func TestBackendFailureIsStoreUnavailable(t *testing.T) {
	store := newStore(failingBlobs{err: errors.New("connection refused")}, false)

	if _, err := store.ReadAll(context.Background()); !errors.Is(err, domain.ErrProgressStoreUnavailable) {
		t.Fatalf("ReadAll: expected ErrProgressStoreUnavailable, got %v", err)
	}
	if err := store.Write(context.Background(), domain.NewProgressSnapshot()); !errors.Is(err, domain.ErrProgressStoreUnavailable) {
		t.Fatalf("Write: expected ErrProgressStoreUnavailable, got %v", err)
	}
}
