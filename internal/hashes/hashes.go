// Package hashes persists per-artifact change records: the last-known
// pull/push timestamps and the content hash of the last-synchronized
// payload, keyed by tenant and local path.
//
// The store answers "is this item modified since last sync" without
// re-downloading or re-uploading unchanged content. Records are written
// only after a successful transfer, so a failed transfer is retried on
// the next run regardless of timestamp options.
//
// The database is embedded SQLite (ncruces/go-sqlite3) with WAL mode for
// concurrent readers during writes. Concurrent transfers for different
// paths write independent records; same-path concurrency is not a
// supported scenario for a single-invocation CLI.
package hashes

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Record is one change-tracking entry for a (tenant, path) pair.
type Record struct {
	Tenant    string
	Path      string
	LastPull  string
	LastPush  string
	MD5       string
	UpdatedAt time.Time
}

// Store wraps the sqlite connection holding the change records.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates the store at the given path, creating the parent directory
// and the schema as needed. The caller must Close the store when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create hashes directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open hashes database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping hashes database: %w", err)
	}

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection after a WAL checkpoint.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close hashes database: %w", err)
	}
	s.conn = nil
	return nil
}

// initSchema creates the hashes table. Idempotent.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS hashes (
		tenant     TEXT NOT NULL,
		path       TEXT NOT NULL,
		last_pull  TEXT NOT NULL DEFAULT '',
		last_push  TEXT NOT NULL DEFAULT '',
		md5        TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant, path)
	);

	CREATE INDEX IF NOT EXISTS idx_hashes_tenant ON hashes(tenant);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize hashes schema: %w", err)
	}
	return nil
}

// Get returns the record for (tenant, path), or nil when none exists.
func (s *Store) Get(ctx context.Context, tenant, path string) (*Record, error) {
	query := `
	SELECT tenant, path, last_pull, last_push, md5, updated_at
	FROM hashes
	WHERE tenant = ? AND path = ?
	`
	row := s.conn.QueryRowContext(ctx, query, tenant, path)

	var rec Record
	var updatedAt string
	err := row.Scan(&rec.Tenant, &rec.Path, &rec.LastPull, &rec.LastPush, &rec.MD5, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read hash record for %s: %w", path, err)
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}

// IsRemoteModified reports whether the remote item at path should be
// pulled: true when no record exists (first-time transfer) or when the
// server modification marker differs from the last recorded pull.
func (s *Store) IsRemoteModified(ctx context.Context, tenant, path, marker string) (bool, error) {
	rec, err := s.Get(ctx, tenant, path)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.LastPull == "" {
		return true, nil
	}
	return rec.LastPull != marker, nil
}

// IsLocalModified reports whether the local item at path should be
// pushed: true when no record exists or when the local content hash
// differs from the last recorded push marker.
func (s *Store) IsLocalModified(ctx context.Context, tenant, path, marker string) (bool, error) {
	rec, err := s.Get(ctx, tenant, path)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.LastPush == "" {
		return true, nil
	}
	return rec.LastPush != marker, nil
}

// SetLastPullTimestamp records a successful pull. Only the pull marker
// and content hash are touched; push state is preserved.
func (s *Store) SetLastPullTimestamp(ctx context.Context, tenant, path, marker, md5sum string) error {
	return s.upsert(ctx, tenant, path, "last_pull", marker, md5sum)
}

// SetLastPushTimestamp records a successful push.
func (s *Store) SetLastPushTimestamp(ctx context.Context, tenant, path, marker, md5sum string) error {
	return s.upsert(ctx, tenant, path, "last_push", marker, md5sum)
}

func (s *Store) upsert(ctx context.Context, tenant, path, column, marker, md5sum string) error {
	query := fmt.Sprintf(`
	INSERT INTO hashes (tenant, path, %[1]s, md5, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(tenant, path) DO UPDATE SET
		%[1]s = excluded.%[1]s,
		md5 = excluded.md5,
		updated_at = excluded.updated_at
	`, column)

	_, err := s.conn.ExecContext(ctx, query,
		tenant, path, marker, md5sum, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert hash record for %s: %w", path, err)
	}
	return nil
}

// DeleteRecord removes the record for a locally deleted item.
// Returns nil if no record exists (idempotent).
func (s *Store) DeleteRecord(ctx context.Context, tenant, path string) error {
	_, err := s.conn.ExecContext(ctx,
		"DELETE FROM hashes WHERE tenant = ? AND path = ?", tenant, path)
	if err != nil {
		return fmt.Errorf("failed to delete hash record for %s: %w", path, err)
	}
	return nil
}

// Count returns the number of records for a tenant.
func (s *Store) Count(ctx context.Context, tenant string) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM hashes WHERE tenant = ?", tenant).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count hash records: %w", err)
	}
	return count, nil
}

// CompareMD5Hashes reports byte-exact hash equality. Callers that treat
// a missing hash as "unknown" must guard for the empty string themselves.
func CompareMD5Hashes(a, b string) bool {
	return a == b
}

// MD5Sum returns the hex MD5 digest of the payload.
func MD5Sum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
