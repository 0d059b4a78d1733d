// Package configstore holds the active sing-box configuration document and
// enforces the write discipline every mutation must follow: validate before
// persisting, snapshot before overwriting, write atomically, reload only on
// success.
package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/singbox-orbit/node-agent/internal/apperr"
	"github.com/singbox-orbit/node-agent/internal/backupstore"
	"github.com/singbox-orbit/node-agent/internal/metrics"
	"github.com/singbox-orbit/node-agent/internal/rwlock"
	"github.com/singbox-orbit/node-agent/internal/validator"
)

// errNoChange signals from within a mutate callback that the requested
// operation is a no-op (e.g. deleting an already-absent item): mutate
// aborts before validating, snapshotting, or writing anything.
var errNoChange = errors.New("configstore: no change")

// Reloader is the Process Supervisor's view from the Config Store's
// perspective. Defined here rather than imported from internal/supervisor
// to avoid a package cycle (the supervisor also consults the Config Store
// at start/reload time).
type Reloader interface {
	IsRunning() bool
	Reload(ctx context.Context) error
}

// DistLock is the standard-profile advisory lock the write path acquires
// right after the local write lock (step 1) and holds through step 8, when
// multiple agent processes share one config path over a network
// filesystem. It is not taken before the local write lock.
// internal/lockcoord.Lock satisfies this.
type DistLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Options configures a Store.
type Options struct {
	Path              string
	BackupsEnabled    bool
	AutoReloadEnabled bool
	LockTimeout       time.Duration
}

// Store is the JSON document store for the active sing-box configuration.
type Store struct {
	path              string
	backupsEnabled    bool
	autoReloadEnabled bool

	lock      *rwlock.RWLock
	backups   *backupstore.Store
	validator *validator.Validator
	reloader  Reloader
	distLock  DistLock
	metrics   *metrics.ConfigStoreMetrics
	logger    *slog.Logger

	cacheMu sync.Mutex
	cache   Document
}

// New constructs a Store. backups, reloader, and distLock may all be nil:
// nil backups/reloader disable steps 5 and 7 respectively regardless of the
// Options flags; nil distLock means the lite profile, where the in-process
// RWLock is the only lock.
func New(opts Options, backups *backupstore.Store, v *validator.Validator, reloader Reloader, distLock DistLock, logger *slog.Logger, m *metrics.ConfigStoreMetrics) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = rwlock.DefaultTimeout
	}
	return &Store{
		path:              opts.Path,
		backupsEnabled:    opts.BackupsEnabled,
		autoReloadEnabled: opts.AutoReloadEnabled,
		lock:              rwlock.New(timeout),
		backups:           backups,
		validator:         v,
		reloader:          reloader,
		distLock:          distLock,
		metrics:           m,
		logger:            logger,
	}
}

// InvalidateCache forces the next read to reload the document from disk.
func (s *Store) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache = nil
	s.cacheMu.Unlock()
}

func (s *Store) readLocked(ctx context.Context) (Document, error) {
	s.cacheMu.Lock()
	if s.cache != nil {
		doc := s.cache
		s.cacheMu.Unlock()
		if s.metrics != nil {
			s.metrics.ObserveRead("document")
		}
		return doc, nil
	}
	s.cacheMu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.NotFound, "configuration file not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "reading configuration file", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperr.Wrap(apperr.BadRequest, "configuration file is not valid JSON", err)
	}

	s.cacheMu.Lock()
	s.cache = doc
	s.cacheMu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveRead("document")
	}
	return doc, nil
}

// Get returns the current document.
func (s *Store) Get(ctx context.Context) (Document, error) {
	h, err := s.lock.AcquireRead(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "acquiring config store read lock", err)
	}
	defer h.Release()

	doc, err := s.readLocked(ctx)
	if err != nil {
		return nil, err
	}
	return deepClone(doc).(Document), nil
}

// Set replaces the whole document. reason is forwarded by the caller (the
// API layer), typically "api-update" or a caller-supplied tag such as
// "manual".
func (s *Store) Set(ctx context.Context, document Document, reason string) (Document, error) {
	return s.mutate(ctx, reason, func(current Document) (Document, error) {
		return deepClone(document).(Document), nil
	})
}

// Patch deep-merges partial into the current document.
func (s *Store) Patch(ctx context.Context, partial Document, reason string) (Document, error) {
	return s.mutate(ctx, reason, func(current Document) (Document, error) {
		merged := deepMerge(current, partial)
		doc, ok := merged.(Document)
		if !ok {
			return nil, apperr.New(apperr.BadRequest, "patched document is not an object")
		}
		return doc, nil
	})
}

// mutate runs the eight-step write discipline with validation and backup
// snapshotting both unconditional (subject only to the store-wide
// BackupsEnabled flag): acquire write lock (+ standard-profile distributed
// lock), read current document, compute the candidate via fn, validate,
// snapshot, atomic write, auto-reload, release.
func (s *Store) mutate(ctx context.Context, reason string, fn func(current Document) (Document, error)) (Document, error) {
	return s.mutateOpts(ctx, reason, true, s.backupsEnabled, fn)
}

// ImportOptions controls the per-call write discipline for Import, which
// differs from Set/Patch: the Diff/Import/Export component chooses
// whether to validate and whether to snapshot on each call rather than
// having both unconditional.
type ImportOptions struct {
	Validate     bool
	CreateBackup bool
}

// Import writes candidate as the new document under the options the
// Diff/Import/Export component's Import operation calls for, rather than
// Set/Patch's fixed validate-and-snapshot-always discipline.
func (s *Store) Import(ctx context.Context, candidate Document, reason string, opts ImportOptions) (Document, error) {
	return s.mutateOpts(ctx, reason, opts.Validate, opts.CreateBackup && s.backupsEnabled, func(current Document) (Document, error) {
		return deepClone(candidate).(Document), nil
	})
}

// mutateOpts is the write discipline mutate and Import both build on.
// validate and createBackup parameterize steps 4 and 5; every other step
// is unconditional.
func (s *Store) mutateOpts(ctx context.Context, reason string, validate bool, createBackup bool, fn func(current Document) (Document, error)) (Document, error) {
	start := time.Now()

	// Step 1.
	h, err := s.lock.AcquireWrite(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "acquiring config store write lock", err)
	}
	defer h.Release()

	if s.metrics != nil {
		s.metrics.ObserveLockWait(time.Since(start))
	}

	if s.distLock != nil {
		acquired, err := s.distLock.Acquire(ctx)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "acquiring distributed config lock", err)
		}
		if !acquired {
			return nil, apperr.New(apperr.Internal, "distributed config lock held by another process")
		}
		defer s.distLock.Release(ctx)
	}

	// Step 2.
	current, err := s.readLocked(ctx)
	if err != nil {
		return nil, err
	}

	// Step 3.
	candidate, err := fn(current)
	if err != nil {
		return nil, err
	}

	// Step 4.
	if validate {
		candidateBytes, err := json.Marshal(candidate)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "marshaling candidate document", err)
		}
		result, err := s.validator.Validate(ctx, candidateBytes)
		if err != nil {
			return nil, err
		}
		if !result.Valid {
			messages := make([]string, len(result.Errors))
			for i, e := range result.Errors {
				messages[i] = e.Message
			}
			if s.metrics != nil {
				s.metrics.ObserveWrite(reason, "validation_error", time.Since(start))
			}
			return nil, apperr.New(apperr.ConfigValidationError, strings.Join(messages, "; "))
		}
	}

	// Step 5.
	if createBackup && s.backups != nil {
		if currentBytes, readErr := os.ReadFile(s.path); readErr == nil {
			if _, err := s.backups.Create(ctx, currentBytes, reason); err != nil {
				s.logger.Warn("backup snapshot before write failed", "reason", reason, "error", err)
			}
		} else if !os.IsNotExist(readErr) {
			s.logger.Warn("reading current config for backup snapshot failed", "error", readErr)
		}
	}

	// Step 6. The temp filename follows <path>.<uuid>.tmp exactly, so it
	// is written directly here rather than through internal/atomicfile's
	// generic (differently named) temp file.
	indented, err := json.MarshalIndent(candidate, "", "  ")
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "marshaling configuration document", err)
	}
	tmpPath := fmt.Sprintf("%s.%s.tmp", s.path, uuid.NewString())
	if err := os.WriteFile(tmpPath, indented, 0o644); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "writing temp configuration file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return nil, apperr.Wrap(apperr.Internal, "renaming configuration file into place", err)
	}

	s.cacheMu.Lock()
	s.cache = candidate
	s.cacheMu.Unlock()

	// Step 7.
	if s.autoReloadEnabled && s.reloader != nil && s.reloader.IsRunning() {
		if err := s.reloader.Reload(ctx); err != nil {
			s.logger.Warn("auto-reload after config write failed", "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveWrite(reason, "success", time.Since(start))
	}

	// Step 8: deferred h.Release() above.
	return candidate, nil
}
