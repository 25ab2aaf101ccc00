package progress

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/msomdec/microlearn/internal/domain"
)

// MemoryBlobs is an in-process domain.BlobStore for local development and
// tests. Revisions are increasing counters. Like the database and GitHub
// backends, calls fail once ctx is done.
type MemoryBlobs struct {
	mu   sync.Mutex
	docs map[string]memoryDoc
	seq  int
}

type memoryDoc struct {
	data []byte
	rev  string
}

// NewMemoryBlobs returns an empty store.
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{docs: make(map[string]memoryDoc)}
}

func (m *MemoryBlobs) Get(ctx context.Context, name string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("get %s: %w", name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[name]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	return append([]byte(nil), doc.data...), doc.rev, nil
}

func (m *MemoryBlobs) Put(ctx context.Context, name string, data []byte, revision string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, exists := m.docs[name]
	switch {
	case revision == "" && exists:
		return "", domain.ErrConflict
	case revision != "" && (!exists || doc.rev != revision):
		return "", domain.ErrConflict
	}

	m.seq++
	rev := strconv.Itoa(m.seq)
	m.docs[name] = memoryDoc{data: append([]byte(nil), data...), rev: rev}
	return rev, nil
}
