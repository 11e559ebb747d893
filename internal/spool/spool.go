// Package spool queues accepted emails and dispatches them to the SMTP
// relay on a fixed cycle with a per-cycle send budget.
package spool

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"

	"github.com/artisan-hosting/mailing-server/internal/mailer"
	"github.com/artisan-hosting/mailing-server/internal/protocol"
	"github.com/artisan-hosting/mailing-server/internal/telemetry"
)

// maxErrorRecords bounds the in-memory delivery error history.
const maxErrorRecords = 100

// hashLen is the length of the short error hash, matching the truncated
// digests in the daemon's logs.
const hashLen = 10

// DefaultInterval is the default dispatch cycle interval.
const DefaultInterval = 30 * time.Second

// DefaultTTL is the default queued message time-to-live.
const DefaultTTL = 5 * time.Minute

// DefaultRateLimit is the default send budget per dispatch cycle.
const DefaultRateLimit = 5

// QueuedMessage is an accepted email waiting for dispatch.
type QueuedMessage struct {
	ID         uuid.UUID
	Email      protocol.Email
	ReceivedAt time.Time
}

// ErrorRecord is a failed delivery attempt.
type ErrorRecord struct {
	// Hash is a short content hash of the error text, used to spot
	// repeating failures in the logs.
	Hash       string
	Detail     string
	OccurredAt time.Time
}

// Config holds the dispatcher's settings.
type Config struct {
	// Interval is the dispatch cycle interval.
	Interval time.Duration

	// TTL is how long a queued message stays deliverable.
	TTL time.Duration

	// RateLimit is the maximum send attempts per cycle.
	RateLimit int
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
}

// Dispatcher owns the message queue and the dispatch loop. All methods
// are safe for concurrent use with a running loop.
type Dispatcher struct {
	cfg     Config
	sender  mailer.Sender
	metrics *telemetry.Metrics
	logger  *slog.Logger
	limiter *rate.Limiter

	mu     sync.Mutex
	queue  []QueuedMessage
	errors []ErrorRecord
}

// NewDispatcher creates a Dispatcher. Config defaults are applied
// automatically.
func NewDispatcher(cfg Config, sender mailer.Sender, metrics *telemetry.Metrics, logger *slog.Logger) *Dispatcher {
	cfg.ApplyDefaults()
	return &Dispatcher{
		cfg:     cfg,
		sender:  sender,
		metrics: metrics,
		logger:  logger.With("component", "spool"),
		limiter: rate.NewLimiter(rate.Every(cfg.Interval/time.Duration(cfg.RateLimit)), cfg.RateLimit),
	}
}

// Enqueue adds an email to the queue and returns its assigned ID.
func (d *Dispatcher) Enqueue(email protocol.Email) uuid.UUID {
	msg := QueuedMessage{
		ID:         uuid.New(),
		Email:      email,
		ReceivedAt: time.Now(),
	}

	d.mu.Lock()
	d.queue = append(d.queue, msg)
	depth := len(d.queue)
	d.mu.Unlock()

	d.metrics.Received.Inc()
	d.metrics.QueueDepth.Set(float64(depth))
	d.logger.Debug("email queued", "id", msg.ID, "subject", email.Subject)
	return msg.ID
}

// Len returns the current queue depth.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Clear drops every queued message and returns how many were dropped.
// Called on reload.
func (d *Dispatcher) Clear() int {
	d.mu.Lock()
	dropped := len(d.queue)
	d.queue = nil
	d.mu.Unlock()

	d.metrics.QueueDepth.Set(0)
	if dropped > 0 {
		d.logger.Info("queue cleared", "dropped", dropped)
	}
	return dropped
}

// Errors returns a copy of the delivery error history.
func (d *Dispatcher) Errors() []ErrorRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ErrorRecord(nil), d.errors...)
}

// Run executes the dispatch loop until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.dispatch(ctx)
		}
	}
}

// dispatch runs one cycle: expired messages are discarded, then up to
// RateLimit delivery attempts are made. Failed messages stay queued for
// the next cycle; the failure is recorded.
func (d *Dispatcher) dispatch(ctx context.Context) {
	now := time.Now()

	d.mu.Lock()
	pending := d.queue
	d.queue = nil
	d.mu.Unlock()

	var retained []QueuedMessage
	attempts := 0

	for _, msg := range pending {
		if now.Sub(msg.ReceivedAt) > d.cfg.TTL {
			d.metrics.Expired.Inc()
			d.logger.Info("expired email discarded", "id", msg.ID, "subject", msg.Email.Subject)
			continue
		}

		if attempts >= d.cfg.RateLimit || !d.limiter.Allow() {
			retained = append(retained, msg)
			continue
		}
		attempts++

		if err := d.sender.Send(ctx, msg.Email); err != nil {
			d.metrics.SendFailures.Inc()
			d.recordError(err)
			d.logger.Error("delivery failed", "id", msg.ID, "error", err)
			retained = append(retained, msg)
			continue
		}

		d.metrics.Sent.Inc()
		d.logger.Info("email dispatched", "id", msg.ID,
			"attempt", attempts, "budget", d.cfg.RateLimit)
	}

	d.mu.Lock()
	// Retained messages keep their place ahead of anything that arrived
	// during the cycle.
	d.queue = append(retained, d.queue...)
	depth := len(d.queue)
	errCount := len(d.errors)
	d.mu.Unlock()

	d.metrics.QueueDepth.Set(float64(depth))
	if errCount > 0 {
		d.logger.Warn("delivery errors on record", "count", errCount)
	}
}

func (d *Dispatcher) recordError(err error) {
	sum := blake2b.Sum256([]byte(err.Error()))
	rec := ErrorRecord{
		Hash:       hex.EncodeToString(sum[:])[:hashLen],
		Detail:     err.Error(),
		OccurredAt: time.Now(),
	}

	d.mu.Lock()
	d.errors = append(d.errors, rec)
	if len(d.errors) > maxErrorRecords {
		d.errors = d.errors[len(d.errors)-maxErrorRecords:]
	}
	d.mu.Unlock()
}
