package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
)

// ErrModified is returned when a script that was already applied no longer
// matches the checksum recorded for it.
var ErrModified = errors.New("migrations: applied script was modified")

type script struct {
	name     string
	body     string
	checksum string
}

// Run brings the schema up to date. Scripts in FS run in name order, each in
// one transaction with its schema_migrations row; scripts already recorded
// are skipped after their checksum is verified.
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			checksum   TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	recorded, err := recordedChecksums(ctx, db)
	if err != nil {
		return fmt.Errorf("load schema_migrations: %w", err)
	}

	scripts, err := loadScripts()
	if err != nil {
		return err
	}

	pending := 0
	for _, s := range scripts {
		if sum, ok := recorded[s.name]; ok {
			if sum != s.checksum {
				return fmt.Errorf("%w: %s", ErrModified, s.name)
			}
			continue
		}
		if err := apply(ctx, db, s); err != nil {
			return fmt.Errorf("migrate %s: %w", s.name, err)
		}
		slog.Info("schema migration applied", "script", s.name)
		pending++
	}

	slog.Debug("schema ready", "scripts", len(scripts), "applied_now", pending)
	return nil
}

func recordedChecksums(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT filename, checksum FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := make(map[string]string)
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, err
		}
		sums[name] = sum
	}
	return sums, rows.Err()
}

func loadScripts() ([]script, error) {
	names, err := fs.Glob(FS, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("glob scripts: %w", err)
	}
	slices.Sort(names)

	scripts := make([]script, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(FS, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		sum := sha256.Sum256(body)
		scripts = append(scripts, script{name: name, body: string(body), checksum: hex.EncodeToString(sum[:])})
	}
	return scripts, nil
}

func apply(ctx context.Context, db *sql.DB, s script) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (filename, checksum) VALUES (?, ?)", s.name, s.checksum,
	); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}
