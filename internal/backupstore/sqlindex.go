package backupstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect picks the placeholder syntax SQLIndex's queries use; Postgres and
// SQLite agree on everything else this index needs (ON CONFLICT/EXCLUDED
// upsert, standard DDL types).
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLIndex is the standard-profile BackupIndex, backed by either Postgres
// (via pgx's database/sql driver) or embedded SQLite (modernc.org/sqlite),
// selected upstream by storageBackend. It is a queryable cache over the
// filesystem pairs; it can always be rebuilt from a directory scan and is
// never consulted as the source of truth for Get/GetContent.
type SQLIndex struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLIndex wraps an already-migrated *sql.DB. The backups table is
// created by the goose migrations under internal/database/migrations, not
// here.
func NewSQLIndex(db *sql.DB, dialect Dialect) *SQLIndex {
	return &SQLIndex{db: db, dialect: dialect}
}

func (i *SQLIndex) upsertQuery() string {
	if i.dialect == DialectSQLite {
		return `
INSERT INTO backups (id, fingerprint, reason, size, created_at, filename)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	fingerprint = EXCLUDED.fingerprint,
	reason = EXCLUDED.reason,
	size = EXCLUDED.size,
	created_at = EXCLUDED.created_at,
	filename = EXCLUDED.filename`
	}
	return `
INSERT INTO backups (id, fingerprint, reason, size, created_at, filename)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
	fingerprint = EXCLUDED.fingerprint,
	reason = EXCLUDED.reason,
	size = EXCLUDED.size,
	created_at = EXCLUDED.created_at,
	filename = EXCLUDED.filename`
}

func (i *SQLIndex) deleteQuery() string {
	if i.dialect == DialectSQLite {
		return `DELETE FROM backups WHERE id = ?`
	}
	return `DELETE FROM backups WHERE id = $1`
}

func (i *SQLIndex) Upsert(ctx context.Context, b Backup) error {
	_, err := i.db.ExecContext(ctx, i.upsertQuery(), b.ID, b.Fingerprint, b.Reason, b.Size, b.CreatedAt, b.Filename)
	if err != nil {
		return fmt.Errorf("backupstore: index upsert: %w", err)
	}
	return nil
}

func (i *SQLIndex) Delete(ctx context.Context, id string) error {
	_, err := i.db.ExecContext(ctx, i.deleteQuery(), id)
	if err != nil {
		return fmt.Errorf("backupstore: index delete: %w", err)
	}
	return nil
}

// List returns every indexed backup ordered by created_at descending. It
// exists for fast listing against the standard profile's index; callers
// needing the authoritative view should still prefer Store.List, which
// reads the filesystem directly.
func (i *SQLIndex) List(ctx context.Context) ([]Backup, error) {
	rows, err := i.db.QueryContext(ctx, `
SELECT id, fingerprint, reason, size, created_at, filename
FROM backups
ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("backupstore: index list: %w", err)
	}
	defer rows.Close()

	var out []Backup
	for rows.Next() {
		var b Backup
		if err := rows.Scan(&b.ID, &b.Fingerprint, &b.Reason, &b.Size, &b.CreatedAt, &b.Filename); err != nil {
			return nil, fmt.Errorf("backupstore: index scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
