package spool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/artisan-hosting/mailing-server/internal/protocol"
	"github.com/artisan-hosting/mailing-server/internal/telemetry"
)

// fakeSender records sent emails and fails on configured subjects.
type fakeSender struct {
	mu      sync.Mutex
	sent    []protocol.Email
	failOn  map[string]error
	sendErr error
}

func (f *fakeSender) Send(_ context.Context, email protocol.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if err, ok := f.failOn[email.Subject]; ok {
		return err
	}
	f.sent = append(f.sent, email)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(cfg Config, sender *fakeSender) *Dispatcher {
	return NewDispatcher(cfg, sender, telemetry.NewMetrics(), discardLogger())
}

func TestDispatcher_DispatchSendsQueued(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(Config{RateLimit: 5}, sender)

	d.Enqueue(protocol.Email{Subject: "a", Body: "1"})
	d.Enqueue(protocol.Email{Subject: "b", Body: "2"})

	d.dispatch(context.Background())

	if got := sender.sentCount(); got != 2 {
		t.Errorf("sent = %d, want 2", got)
	}
	if got := d.Len(); got != 0 {
		t.Errorf("queue depth after dispatch = %d, want 0", got)
	}
}

func TestDispatcher_RateLimitBudgetPerCycle(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(Config{RateLimit: 3}, sender)

	for i := 0; i < 8; i++ {
		d.Enqueue(protocol.Email{Subject: "s", Body: "b"})
	}

	d.dispatch(context.Background())

	if got := sender.sentCount(); got != 3 {
		t.Errorf("sent = %d, want 3 (budget)", got)
	}
	if got := d.Len(); got != 5 {
		t.Errorf("queue depth = %d, want 5 retained", got)
	}
}

func TestDispatcher_ExpiredMessagesDiscarded(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(Config{TTL: time.Millisecond, RateLimit: 5}, sender)

	d.Enqueue(protocol.Email{Subject: "stale", Body: "b"})
	time.Sleep(5 * time.Millisecond)

	d.dispatch(context.Background())

	if got := sender.sentCount(); got != 0 {
		t.Errorf("sent = %d, want 0 (expired)", got)
	}
	if got := d.Len(); got != 0 {
		t.Errorf("queue depth = %d, want 0 after expiry", got)
	}
}

func TestDispatcher_FailedSendsRetainedAndRecorded(t *testing.T) {
	sender := &fakeSender{sendErr: errors.New("relay unreachable")}
	d := newTestDispatcher(Config{RateLimit: 5}, sender)

	d.Enqueue(protocol.Email{Subject: "s", Body: "b"})
	d.dispatch(context.Background())

	if got := d.Len(); got != 1 {
		t.Errorf("queue depth = %d, want 1 (failed message retained)", got)
	}

	errs := d.Errors()
	if len(errs) != 1 {
		t.Fatalf("errors = %d, want 1", len(errs))
	}
	if errs[0].Detail != "relay unreachable" {
		t.Errorf("Detail = %q, want %q", errs[0].Detail, "relay unreachable")
	}
	if len(errs[0].Hash) != hashLen {
		t.Errorf("Hash length = %d, want %d", len(errs[0].Hash), hashLen)
	}

	// Relay recovers: the retained message goes out next cycle.
	sender.mu.Lock()
	sender.sendErr = nil
	sender.mu.Unlock()

	d.dispatch(context.Background())
	if got := sender.sentCount(); got != 1 {
		t.Errorf("sent after recovery = %d, want 1", got)
	}
}

func TestDispatcher_SameErrorSameHash(t *testing.T) {
	sender := &fakeSender{sendErr: errors.New("relay unreachable")}
	d := newTestDispatcher(Config{RateLimit: 5}, sender)

	d.Enqueue(protocol.Email{Subject: "a", Body: "1"})
	d.Enqueue(protocol.Email{Subject: "b", Body: "2"})
	d.dispatch(context.Background())

	errs := d.Errors()
	if len(errs) != 2 {
		t.Fatalf("errors = %d, want 2", len(errs))
	}
	if errs[0].Hash != errs[1].Hash {
		t.Errorf("hashes differ for identical errors: %q vs %q", errs[0].Hash, errs[1].Hash)
	}
}

func TestDispatcher_Clear(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(Config{}, sender)

	d.Enqueue(protocol.Email{Subject: "a", Body: "1"})
	d.Enqueue(protocol.Email{Subject: "b", Body: "2"})

	if dropped := d.Clear(); dropped != 2 {
		t.Errorf("Clear() = %d, want 2", dropped)
	}
	if got := d.Len(); got != 0 {
		t.Errorf("queue depth = %d, want 0", got)
	}
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := &fakeSender{}
	d := newTestDispatcher(Config{Interval: 10 * time.Millisecond, RateLimit: 5}, sender)
	d.Enqueue(protocol.Email{Subject: "s", Body: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	// Let at least one cycle fire.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}

	if got := sender.sentCount(); got != 1 {
		t.Errorf("sent = %d, want 1 from the running loop", got)
	}
}
