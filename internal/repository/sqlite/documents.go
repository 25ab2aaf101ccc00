package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/msomdec/microlearn/internal/domain"
)

// DocumentStore implements domain.BlobStore on a SQLite table. The
// revision of a document is the SHA-256 of its content.
type DocumentStore struct {
	db *sql.DB
}

// NewDocumentStore creates a new SQLite-backed DocumentStore.
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db.SqlDB}
}

func (s *DocumentStore) Get(ctx context.Context, name string) ([]byte, string, error) {
	var (
		data     []byte
		revision string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT data, revision FROM documents WHERE name = ?", name,
	).Scan(&data, &revision)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", domain.ErrNotFound
		}
		return nil, "", fmt.Errorf("get document: %w", err)
	}
	return data, revision, nil
}

func (s *DocumentStore) Put(ctx context.Context, name string, data []byte, revision string) (string, error) {
	next := contentRevision(data)
	now := time.Now().UTC()

	if revision == "" {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO documents (name, data, revision, updated_at) VALUES (?, ?, ?, ?)",
			name, data, next, now,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return "", domain.ErrConflict
			}
			return "", fmt.Errorf("insert document: %w", err)
		}
		return next, nil
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE documents SET data = ?, revision = ?, updated_at = ? WHERE name = ? AND revision = ?",
		data, next, now, name, revision,
	)
	if err != nil {
		return "", fmt.Errorf("update document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return "", domain.ErrConflict
	}
	return next, nil
}

func contentRevision(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
