// Package state persists the daemon's operational state document across
// restarts: activity flag, event counter, and recent errors.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/artisan-hosting/mailing-server/internal/fsutil"
)

// maxErrorLog bounds the persisted error history.
const maxErrorLog = 50

// AppState is the persisted state document.
type AppState struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Data         string    `json:"data"`
	IsActive     bool      `json:"is_active"`
	EventCounter uint64    `json:"event_counter"`
	LastUpdated  time.Time `json:"last_updated"`
	ErrorLog     []string  `json:"error_log"`
}

// Store owns the state document and serializes every mutation to disk.
// All methods are safe for concurrent use.
type Store struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
	st AppState
}

// NewStore creates a Store for the document at path.
func NewStore(path, name, version string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With("component", "state"),
		st: AppState{
			Name:    name,
			Version: version,
		},
	}
}

// Load reads the previous state document or initializes a fresh one. A
// loaded document is reset for the new process: inactive, initializing,
// error log cleared, version updated. The result is persisted immediately.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		var prev AppState
		if err := json.Unmarshal(data, &prev); err != nil {
			s.logger.Warn("previous state unreadable, starting fresh", "error", err)
		} else {
			s.logger.Info("loaded previous state", "events", prev.EventCounter)
			prev.Name = s.st.Name
			prev.Version = s.st.Version
			s.st = prev
		}
	case errors.Is(err, os.ErrNotExist):
		s.logger.Info("no previous state, creating new one")
	default:
		return fmt.Errorf("state: read %s: %w", s.path, err)
	}

	s.st.IsActive = false
	s.st.Data = "Initializing"
	s.st.ErrorLog = nil
	return s.persistLocked()
}

// SetActive updates the activity flag and status text and persists.
func (s *Store) SetActive(active bool, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.IsActive = active
	s.st.Data = data
	return s.persistLocked()
}

// BumpEvents increments the event counter and persists.
func (s *Store) BumpEvents() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.EventCounter++
	return s.persistLocked()
}

// RecordError appends to the bounded error history and persists.
func (s *Store) RecordError(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.ErrorLog = append(s.st.ErrorLog, msg)
	if len(s.st.ErrorLog) > maxErrorLog {
		s.st.ErrorLog = s.st.ErrorLog[len(s.st.ErrorLog)-maxErrorLog:]
	}
	return s.persistLocked()
}

// WindDown marks the daemon inactive for shutdown and persists.
func (s *Store) WindDown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.IsActive = false
	s.st.Data = "Shutting down"
	return s.persistLocked()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.st
	snap.ErrorLog = append([]string(nil), s.st.ErrorLog...)
	return snap
}

func (s *Store) persistLocked() error {
	s.st.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(&s.st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("state: write %s: %w", s.path, err)
	}
	return nil
}
