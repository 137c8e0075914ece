package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"facegate/internal/device"
	"facegate/internal/logging"
)

// stateFile holds device-side users and settings. An empty path keeps the
// state in memory only.
type stateFile struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	data persistedState
}

type persistedState struct {
	Users    []string          `json:"users"`
	Settings device.AuthConfig `json:"settings"`
}

func loadState(path string, logger *slog.Logger) *stateFile {
	s := &stateFile{path: path, logger: logger}
	if path == "" {
		return s
	}
	if err := s.load(); err != nil {
		logger.Warn("failed to load simulator state",
			logging.String(logging.FieldEventType, "simulator_state_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the state file to reset the simulator"),
			logging.String(logging.FieldImpact, "simulated device starts with no enrolled users"))
	}
	return s
}

func (s *stateFile) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read state: %w", err)
	}
	var decoded persistedState
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("parse state: %w", err)
	}
	s.data = decoded
	return nil
}

// saveLocked writes the state atomically. Callers hold s.mu.
func (s *stateFile) saveLocked() {
	if s.path == "" {
		return
	}
	if err := s.write(); err != nil {
		logging.WarnWithContext(s.logger, "failed to save simulator state", "simulator_state_save_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the data directory"),
			logging.String(logging.FieldImpact, "simulated users are lost when the process exits"))
	}
}

func (s *stateFile) write() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

func (s *stateFile) users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data.Users)
}

func (s *stateFile) hasUser(identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.data.Users, identity)
}

func (s *stateFile) addUser(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.data.Users, identity) {
		return
	}
	s.data.Users = append(s.data.Users, identity)
	s.saveLocked()
}

func (s *stateFile) removeUser(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.Index(s.data.Users, identity)
	if idx < 0 {
		return false
	}
	s.data.Users = slices.Delete(s.data.Users, idx, idx+1)
	s.saveLocked()
	return true
}

func (s *stateFile) removeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Users = nil
	s.saveLocked()
}

func (s *stateFile) settings() device.AuthConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Settings
}

func (s *stateFile) setSettings(cfg device.AuthConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Settings = cfg
	s.saveLocked()
}
