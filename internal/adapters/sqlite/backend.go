// Package sqlite provides the durable credential tier backed by a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // driver registration

	"github.com/eduadmin/portal/internal/migrate"
	"github.com/eduadmin/portal/internal/ports"
)

// Ensure compile-time conformance to ports.
var _ ports.StorageBackend = (*Backend)(nil)

// Options configures a Backend.
type Options struct {
	// Path is the SQLite file. Parent directories are created as needed.
	Path string
	// Origin identifies this process in change records.
	Origin string
	Logger *slog.Logger
}

// Revision is the shared change counter for the credentials table.
type Revision struct {
	Value  int64
	Kind   ports.ChangeKind
	Origin string
}

// Backend is a key-value StorageBackend over the credentials table.
type Backend struct {
	db     *sql.DB
	path   string
	origin string
	logger *slog.Logger
}

// Open opens (or creates) the SQLite file at opts.Path and applies migrations.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	if opts.Path == "" {
		return nil, errors.New("sqlite path is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", opts.Path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	logger.InfoContext(ctx, "durable credential store ready", "path", opts.Path)
	return &Backend{db: db, path: opts.Path, origin: opts.Origin, logger: logger}, nil
}

// Path returns the SQLite file path.
func (b *Backend) Path() string { return b.path }

// Close releases the database handle.
func (b *Backend) Close() error { return b.db.Close() }

func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := b.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get credential[%s]: %w", key, err)
	}
	return value, true, nil
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	return b.write(ctx, ports.ChangeSaved, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value)
		if err != nil {
			return fmt.Errorf("set credential[%s]: %w", key, err)
		}
		return nil
	})
}

func (b *Backend) Remove(ctx context.Context, key string) error {
	return b.write(ctx, ports.ChangeSaved, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete credential[%s]: %w", key, err)
		}
		return nil
	})
}

func (b *Backend) Clear(ctx context.Context) error {
	return b.write(ctx, ports.ChangeCleared, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
			return fmt.Errorf("clear credentials: %w", err)
		}
		return nil
	})
}

// Revision reads the current change counter.
func (b *Backend) Revision(ctx context.Context) (Revision, error) {
	var (
		rev  Revision
		kind string
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT revision, kind, origin FROM credential_revisions WHERE id = 1`,
	).Scan(&rev.Value, &kind, &rev.Origin)
	if err != nil {
		return Revision{}, fmt.Errorf("read revision: %w", err)
	}
	rev.Kind = ports.ChangeKind(kind)
	return rev, nil
}

// write runs fn and bumps the revision in one transaction.
func (b *Backend) write(ctx context.Context, kind ports.ChangeKind, fn func(*sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			b.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE credential_revisions SET revision = revision + 1, kind = ?, origin = ? WHERE id = 1`,
		string(kind), b.origin,
	); err != nil {
		return fmt.Errorf("bump revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
