package state

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	return NewStore(path, "mailing_server", "1.0.0", discardLogger()), path
}

func TestStore_LoadFresh(t *testing.T) {
	s, path := newTestStore(t)

	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	snap := s.Snapshot()
	if snap.Name != "mailing_server" {
		t.Errorf("Name = %q, want %q", snap.Name, "mailing_server")
	}
	if snap.IsActive {
		t.Error("fresh state should be inactive")
	}
	if snap.Data != "Initializing" {
		t.Errorf("Data = %q, want %q", snap.Data, "Initializing")
	}

	// Document was persisted.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("state document not written: %v", err)
	}
}

func TestStore_LoadPreservesEventCounter(t *testing.T) {
	s, path := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := s.BumpEvents(); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.RecordError("smtp timeout"); err != nil {
		t.Fatal(err)
	}

	// New process over the same document.
	s2 := NewStore(path, "mailing_server", "1.0.1", discardLogger())
	if err := s2.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	snap := s2.Snapshot()
	if snap.EventCounter != 3 {
		t.Errorf("EventCounter = %d, want 3", snap.EventCounter)
	}
	if snap.Version != "1.0.1" {
		t.Errorf("Version = %q, want updated %q", snap.Version, "1.0.1")
	}
	if len(snap.ErrorLog) != 0 {
		t.Errorf("ErrorLog = %v, want cleared on load", snap.ErrorLog)
	}
	if snap.IsActive {
		t.Error("loaded state should start inactive")
	}
}

func TestStore_LoadCorruptDocumentStartsFresh(t *testing.T) {
	s, path := newTestStore(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := s.Snapshot().EventCounter; got != 0 {
		t.Errorf("EventCounter = %d, want 0 after corrupt load", got)
	}
}

func TestStore_WindDown(t *testing.T) {
	s, path := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if err := s.SetActive(true, "Running"); err != nil {
		t.Fatal(err)
	}
	if err := s.WindDown(); err != nil {
		t.Fatalf("WindDown() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc AppState
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("persisted document unreadable: %v", err)
	}
	if doc.IsActive {
		t.Error("persisted state still active after wind-down")
	}
	if doc.Data != "Shutting down" {
		t.Errorf("Data = %q, want %q", doc.Data, "Shutting down")
	}
}

func TestStore_ErrorLogBounded(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < maxErrorLog+25; i++ {
		if err := s.RecordError("err"); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(s.Snapshot().ErrorLog); got != maxErrorLog {
		t.Errorf("ErrorLog length = %d, want %d", got, maxErrorLog)
	}
}
