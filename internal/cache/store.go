package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"nbafetcher/internal/table"
)

var (
	// ErrCacheMiss indicates the requested key is not cached.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheWrite indicates an entry could not be persisted. A failed write
	// must never silently appear to succeed; callers decide whether to treat
	// it as fatal.
	ErrCacheWrite = errors.New("cache write failed")

	// ErrInvalidParameter indicates a request used an option the upstream
	// endpoints do not recognize.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Store persists entries as JSON files under a root directory. The filesystem
// is abstracted behind afero so tests can run against an in-memory or
// read-only filesystem.
//
// The store is best-effort on reads: any read-side fault (missing file,
// unreadable file, corrupt JSON, schema mismatch) is reported as ErrCacheMiss
// because the cache is never a source of truth. Write-side faults propagate.
type Store struct {
	fs            afero.Fs
	root          string
	schemaVersion int
	logger        zerolog.Logger
}

// NewStore creates a store rooted at root on the given filesystem, accepting
// only entries tagged with schemaVersion.
func NewStore(fs afero.Fs, root string, schemaVersion int, logger zerolog.Logger) *Store {
	return &Store{
		fs:            fs,
		root:          root,
		schemaVersion: schemaVersion,
		logger:        logger,
	}
}

// Get retrieves the entry for key. It returns ErrCacheMiss if the key is
// absent, the file cannot be read, or the entry's schema version does not
// match the store's.
func (s *Store) Get(key Key) (*Entry, error) {
	path := s.path(key)

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if !os.IsNotExist(err) {
			// Unreadable entry. Downgrade to a miss so one bad file never
			// blocks a fetch, but record that it happened.
			cacheErrors.WithLabelValues("get").Inc()
			s.logger.Warn().Err(err).Str("key", key.String()).Msg("cache read failed, treating as miss")
		}
		cacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("corrupt cache entry, treating as miss")
		cacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	if entry.SchemaVersion != s.schemaVersion {
		s.logger.Debug().
			Str("key", key.String()).
			Int("entry_version", entry.SchemaVersion).
			Int("current_version", s.schemaVersion).
			Msg("schema version mismatch, treating as miss")
		cacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	cacheHits.Inc()
	return &entry, nil
}

// Put persists payload under key with the current timestamp and schema
// version. The write goes to a temp file first and is renamed into place, so
// a concurrent reader never observes a half-written entry.
func (s *Store) Put(key Key, payload *table.Table) error {
	entry := Entry{
		SchemaVersion: s.schemaVersion,
		CachedAt:      time.Now().UTC(),
		Payload:       payload,
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		cacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("%w: marshal entry for %s: %v", ErrCacheWrite, key.String(), err)
	}

	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		cacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("%w: create cache root: %v", ErrCacheWrite, err)
	}

	tmp, err := afero.TempFile(s.fs, s.root, "entry-*.tmp")
	if err != nil {
		cacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("%w: create temp file: %v", ErrCacheWrite, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		cacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("%w: write temp file: %v", ErrCacheWrite, err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		cacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("%w: close temp file: %v", ErrCacheWrite, err)
	}

	if err := s.fs.Rename(tmpName, s.path(key)); err != nil {
		s.fs.Remove(tmpName)
		cacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("%w: rename entry for %s: %v", ErrCacheWrite, key.String(), err)
	}

	s.logger.Debug().Str("key", key.String()).Int("rows", payload.NumRows()).Msg("cached entry")
	return nil
}

// Invalidate removes the entry for key. A missing entry is not an error.
func (s *Store) Invalidate(key Key) error {
	err := s.fs.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		cacheErrors.WithLabelValues("invalidate").Inc()
		return fmt.Errorf("invalidate %s: %w", key.String(), err)
	}
	return nil
}

// path maps a key to its file location: a SHA-256 of the canonical key string
// keeps filenames filesystem-safe regardless of parameter contents.
func (s *Store) path(key Key) string {
	sum := sha256.Sum256([]byte(key.String()))
	return filepath.Join(s.root, hex.EncodeToString(sum[:])+".json")
}
