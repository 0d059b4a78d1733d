// Package backupstore implements content-addressed configuration snapshots:
// identical bytes always collapse to the same record, and a rotating
// retention bound keeps the filesystem footprint flat.
package backupstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/singbox-orbit/node-agent/internal/atomicfile"
	"github.com/singbox-orbit/node-agent/internal/metrics"
)

// Backup is an immutable snapshot record. Two snapshots of byte-identical
// content carry equal ID and Fingerprint.
type Backup struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Reason      string    `json:"reason"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
	Filename    string    `json:"filename"`
}

// BackupIndex mirrors Backup Records into a queryable store (Postgres or
// embedded SQLite, depending on deployment profile) for fast listing
// without a directory scan. The filesystem pair remains the source of
// truth; an index write failure is logged and never fails the triggering
// Store call.
type BackupIndex interface {
	Upsert(ctx context.Context, b Backup) error
	Delete(ctx context.Context, id string) error
}

// NoopIndex is the lite-profile BackupIndex: the directory scan behind
// List is already the full source of truth, so there is nothing to mirror.
type NoopIndex struct{}

func (NoopIndex) Upsert(ctx context.Context, b Backup) error { return nil }
func (NoopIndex) Delete(ctx context.Context, id string) error { return nil }

// Store is a directory of content-addressed backups: each id has a data
// file (config-<id>.json) and a metadata sidecar (config-<id>.meta.json).
type Store struct {
	dir      string
	maxCount int
	logger   *slog.Logger
	index    BackupIndex
	metrics  *metrics.BackupMetrics

	// mu serializes create/rotate/delete so dedup lookups and rotation
	// counts observe a consistent directory listing.
	mu sync.Mutex
}

// New constructs a Store rooted at dir, creating it if necessary. maxCount
// is the rotation bound: after every Create, list().length is trimmed back
// down to maxCount by deleting the oldest surplus entries. index may be nil
// (defaults to NoopIndex); logger may be nil (defaults to slog.Default()).
func New(dir string, maxCount int, index BackupIndex, logger *slog.Logger, m *metrics.BackupMetrics) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backupstore: create dir %s: %w", dir, err)
	}
	if index == nil {
		index = NoopIndex{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, maxCount: maxCount, logger: logger, index: index, metrics: m}, nil
}

func (s *Store) dataPath(id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("config-%s.json", id))
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("config-%s.meta.json", id))
}

func fingerprintOf(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func generateID(now time.Time) string {
	ts := strings.NewReplacer("-", "", ":", "", ".", "").Replace(now.UTC().Format(time.RFC3339Nano))
	return fmt.Sprintf("%s_%s", ts[:15], randomBase36(6))
}

func randomBase36(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36Alphabet[rand.IntN(len(base36Alphabet))]
	}
	return string(b)
}

// Create computes the SHA-256 fingerprint of content. If a backup with that
// fingerprint already exists it is returned unchanged (reason is discarded
// on a dedup hit). Otherwise a new id is generated, the content and a
// metadata sidecar are written, the index is upserted (best-effort), and
// rotation runs.
func (s *Store) Create(ctx context.Context, content []byte, reason string) (Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp := fingerprintOf(content)

	existing, err := s.listLocked()
	if err != nil {
		return Backup{}, fmt.Errorf("backupstore: listing existing backups: %w", err)
	}
	for _, b := range existing {
		if b.Fingerprint == fp {
			if s.metrics != nil {
				s.metrics.ObserveCreate(true, len(content))
			}
			return b, nil
		}
	}

	id := generateID(time.Now())
	b := Backup{
		ID:          id,
		Fingerprint: fp,
		Reason:      reason,
		Size:        int64(len(content)),
		CreatedAt:   time.Now().UTC(),
		Filename:    fmt.Sprintf("config-%s.json", id),
	}

	if err := atomicfile.Write(s.dataPath(id), content, 0o644); err != nil {
		return Backup{}, fmt.Errorf("backupstore: writing content: %w", err)
	}
	metaBytes, err := json.Marshal(b)
	if err != nil {
		return Backup{}, fmt.Errorf("backupstore: marshaling metadata: %w", err)
	}
	if err := atomicfile.Write(s.metaPath(id), metaBytes, 0o644); err != nil {
		return Backup{}, fmt.Errorf("backupstore: writing metadata: %w", err)
	}

	if err := s.index.Upsert(ctx, b); err != nil {
		s.logger.Warn("backup index upsert failed", "id", id, "error", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveCreate(false, len(content))
	}

	s.rotateLocked(ctx, append(existing, b))

	return b, nil
}

// List enumerates metadata sidecars, sorted by CreatedAt descending.
// Corrupt sidecars are skipped with a debug log rather than failing the
// whole call.
func (s *Store) List() ([]Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *Store) listLocked() ([]Backup, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("backupstore: reading dir: %w", err)
	}

	var backups []Backup
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".meta.json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.logger.Debug("skipping unreadable backup metadata", "file", e.Name(), "error", err)
			continue
		}
		var b Backup
		if err := json.Unmarshal(raw, &b); err != nil {
			s.logger.Debug("skipping corrupt backup metadata", "file", e.Name(), "error", err)
			continue
		}
		backups = append(backups, b)
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].ID > backups[j].ID
		}
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Get loads the metadata sidecar for id. It returns ok=false (not an error)
// when the sidecar is missing or unreadable.
func (s *Store) Get(id string) (b Backup, ok bool) {
	raw, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		return Backup{}, false
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		s.logger.Debug("corrupt backup metadata on Get", "id", id, "error", err)
		return Backup{}, false
	}
	return b, true
}

// GetContent loads the data file paired with id. It returns ok=false (not
// an error) when the file is missing.
func (s *Store) GetContent(id string) (content []byte, ok bool) {
	raw, err := os.ReadFile(s.dataPath(id))
	if err != nil {
		return nil, false
	}
	return raw, true
}

// Delete removes both files for id. It reports true iff the metadata
// sidecar existed prior to the call.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(ctx, id)
}

func (s *Store) deleteLocked(ctx context.Context, id string) bool {
	_, metaErr := os.Stat(s.metaPath(id))
	existed := metaErr == nil

	os.Remove(s.dataPath(id))
	os.Remove(s.metaPath(id))

	if existed {
		if err := s.index.Delete(ctx, id); err != nil {
			s.logger.Warn("backup index delete failed", "id", id, "error", err)
		}
	}
	return existed
}

// rotateLocked deletes the oldest surplus entries once the list exceeds
// maxCount. Failures are logged, never surfaced: a rotation problem must
// never fail the Create that triggered it.
func (s *Store) rotateLocked(ctx context.Context, current []Backup) {
	if s.maxCount <= 0 || len(current) <= s.maxCount {
		return
	}

	sort.Slice(current, func(i, j int) bool {
		if current[i].CreatedAt.Equal(current[j].CreatedAt) {
			return current[i].ID > current[j].ID
		}
		return current[i].CreatedAt.After(current[j].CreatedAt)
	})

	surplus := current[s.maxCount:]
	for _, b := range surplus {
		s.deleteLocked(ctx, b.ID)
		if s.metrics != nil {
			s.metrics.ObserveRotation()
		}
	}
	s.logger.Debug("rotated backups", "deleted", len(surplus), "retained", s.maxCount)
}
