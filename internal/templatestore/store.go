package templatestore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"facegate/internal/device"
	"facegate/internal/logging"
)

// Entry pairs a template with the identity it was enrolled under.
type Entry struct {
	Template device.Template
	Identity string
}

// Store is the in-memory template database.
type Store struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	entries   []Entry
	cursor    int
	exhausted bool
}

// New returns an empty store persisted at path. An empty path disables persistence.
func New(path string, logger *slog.Logger) *Store {
	return &Store{
		path:      path,
		logger:    logging.NewComponentLogger(logger, "templatestore"),
		exhausted: true,
	}
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// normalizeIdentity drops one trailing NUL written by older producers.
func normalizeIdentity(identity string) string {
	return strings.TrimSuffix(identity, "\x00")
}

func (s *Store) indexLocked(identity string) int {
	for i, entry := range s.entries {
		if entry.Identity == identity {
			return i
		}
	}
	return -1
}

// Push appends a copy of tpl under identity. It returns false without
// changing the store when identity is already present.
func (s *Store) Push(tpl device.Template, identity string) bool {
	identity = normalizeIdentity(identity)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(identity) >= 0 {
		return false
	}
	s.entries = append(s.entries, Entry{Template: tpl.Clone(), Identity: identity})
	s.exhausted = false
	return true
}

// Contains reports whether identity is stored.
func (s *Store) Contains(identity string) bool {
	identity = normalizeIdentity(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(identity) >= 0
}

// Remove drops identity and releases its template.
func (s *Store) Remove(identity string) bool {
	identity = normalizeIdentity(identity)
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	removed := false
	for i := range s.entries {
		if s.entries[i].Identity == identity {
			s.entries[i].Template.Release()
			removed = true
			continue
		}
		kept = append(kept, s.entries[i])
	}
	clear(s.entries[len(kept):])
	s.entries = kept
	if s.cursor >= len(s.entries) {
		s.cursor = 0
	}
	if len(s.entries) == 0 {
		s.exhausted = true
	}
	return removed
}

// RemoveAll drops every entry. It always succeeds.
func (s *Store) RemoveAll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(nil)
	return true
}

func (s *Store) resetLocked(entries []Entry) {
	for i := range s.entries {
		s.entries[i].Template.Release()
	}
	s.entries = entries
	s.cursor = 0
	s.exhausted = len(entries) == 0
}

// Replace swaps the template stored under identity for a copy of tpl.
func (s *Store) Replace(identity string, tpl device.Template) bool {
	identity = normalizeIdentity(identity)
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(identity)
	if idx < 0 {
		return false
	}
	s.entries[idx].Template.Release()
	s.entries[idx].Template = tpl.Clone()
	return true
}

// ResetScan rewinds the cursor to the first entry.
func (s *Store) ResetScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = 0
	s.exhausted = len(s.entries) == 0
}

// Next returns the entry under the cursor and advances it. The returned
// template is a copy owned by the caller. After the last entry the cursor
// wraps and the following call reports exhaustion with a zero Entry until
// ResetScan or Push.
func (s *Store) Next() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exhausted || len(s.entries) == 0 {
		return Entry{}, true
	}
	entry := s.entries[s.cursor]
	s.cursor++
	if s.cursor >= len(s.entries) {
		s.cursor = 0
		s.exhausted = true
	}
	return Entry{Template: entry.Template.Clone(), Identity: entry.Identity}, false
}

// ListIdentities returns identities in insertion order.
func (s *Store) ListIdentities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.entries))
	for i, entry := range s.entries {
		ids[i] = entry.Identity
	}
	return ids
}

// Len reports the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Load replaces the contents with the database file. Failures are logged and
// leave the store empty; a missing file is not a failure.
func (s *Store) Load() {
	if s.path == "" {
		return
	}
	entries, err := s.load()
	s.mu.Lock()
	s.resetLocked(entries)
	s.mu.Unlock()
	if err != nil {
		logging.WarnWithContext(s.logger, "failed to load template database", "template_store_load_failed",
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "restore the database file or re-enroll users"),
			logging.String(logging.FieldImpact, "matching runs against an empty database"))
		return
	}
	s.logger.Debug("template database loaded",
		logging.String("path", s.path),
		logging.Int("entries", len(entries)))
}

// Save writes the database file. Failures are logged and never returned.
func (s *Store) Save() {
	if s.path == "" {
		return
	}
	if err := s.save(); err != nil {
		logging.WarnWithContext(s.logger, "failed to save template database", "template_store_save_failed",
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions and free space in the data directory"),
			logging.String(logging.FieldImpact, "changes are lost when the process exits"))
	}
}

func (s *Store) load() ([]Entry, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	lock := flock.New(s.path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock database: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read database: %w", err)
	}
	return decode(data)
}

func (s *Store) save() error {
	s.mu.RLock()
	data, err := encode(s.entries)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock database: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp database: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write database: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	return nil
}
