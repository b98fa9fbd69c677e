// Package outbox relays committed auction events from storage to a Publisher.
//
// Events are written to the outbox in the same transaction as the state change that produced
// them. The Relay drains unsent events in commit order, publishes them, and marks them sent.
// Delivery is at-least-once: a crash between publish and mark replays the event, and
// subscribers drop duplicates by sequence number.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tourney-auction/go/internal/auction/events"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Publisher delivers one committed event to subscribers.
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

type Config struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   200 * time.Millisecond,
	}
}

type Option func(*Relay)

func WithClock(c clockwork.Clock) Option {
	return func(r *Relay) { r.clock = c }
}

func WithMetrics(m MetricsCollector) Option {
	return func(r *Relay) { r.metrics = m }
}

// Relay moves events from the outbox to a Publisher. It is woken by Notify after every commit
// and polls as a fallback.
type Relay struct {
	store     store.Store
	publisher Publisher
	cfg       Config
	clock     clockwork.Clock
	metrics   MetricsCollector
	wake      chan struct{}

	mu        sync.Mutex
	running   bool
	published uint64
	lastSent  time.Time
	lastErr   error
}

func NewRelay(st store.Store, publisher Publisher, cfg Config, opts ...Option) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	r := &Relay{
		store:     st,
		publisher: publisher,
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		metrics:   &NoOpMetricsCollector{},
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notify wakes the relay. It never blocks.
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run drains the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("outbox relay already running")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	log.Info().
		Dur("poll_interval", r.cfg.PollInterval).
		Int("batch_size", r.cfg.BatchSize).
		Msg("outbox relay started")

	ticker := r.clock.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	r.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox relay stopped")
			return nil
		case <-r.wake:
			r.drain(ctx)
		case <-ticker.Chan():
			r.drain(ctx)
		}
	}
}

func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.Flush(ctx)
		r.setErr(err)
		if err != nil {
			log.Error().Err(err).Msg("failed to relay outbox events")
			return
		}
		if n < r.cfg.BatchSize {
			return
		}
	}
}

// Flush publishes one batch of unsent events and returns how many were published. Publishing
// stops at the first event that still fails after retries so later events of the same
// partition never overtake it.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	start := r.clock.Now()

	var batch []models.OutboxEvent
	err := r.store.Run(ctx, func(tx store.Tx) error {
		var err error
		batch, err = tx.FetchUnsent(ctx, r.cfg.BatchSize)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unsent events: %w", err)
	}
	r.metrics.RecordOutboxLag(len(batch))
	if len(batch) == 0 {
		return 0, nil
	}

	sent := make([]uuid.UUID, 0, len(batch))
	var pubErr error
	for _, ev := range batch {
		if pubErr = r.publishWithRetry(ctx, events.FromOutbox(ev)); pubErr != nil {
			pubErr = fmt.Errorf("event %s (%s seq %d): %w", ev.ID, ev.Key(), ev.Seq, pubErr)
			break
		}
		sent = append(sent, ev.ID)
	}

	if len(sent) > 0 {
		err = r.store.Run(ctx, func(tx store.Tx) error {
			return tx.MarkSent(ctx, sent)
		})
		if err != nil {
			return 0, fmt.Errorf("failed to mark events as sent: %w", err)
		}
		r.mu.Lock()
		r.published += uint64(len(sent))
		r.lastSent = r.clock.Now()
		r.mu.Unlock()
	}

	r.metrics.RecordBatchProcessed(len(sent), r.clock.Since(start))
	log.Debug().
		Int("total", len(batch)).
		Int("published", len(sent)).
		Msg("relayed outbox events")

	if pubErr != nil {
		return len(sent), pubErr
	}
	return len(sent), nil
}

// publishWithRetry attempts to publish an event with linear backoff.
func (r *Relay) publishWithRetry(ctx context.Context, env events.Envelope) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 && r.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(r.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		start := r.clock.Now()
		err := r.publisher.Publish(ctx, env)
		r.metrics.RecordPublishAttempt(env.EventType, attempt+1, err == nil)
		if err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", env.EventID.String()).
				Msg("failed to publish, retrying")
			continue
		}
		r.metrics.RecordEventProcessed(env.EventType, true, r.clock.Since(start))
		return nil
	}

	r.metrics.RecordEventProcessed(env.EventType, false, 0)
	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

func (r *Relay) setErr(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

// Stats reports how many events were published, when the last batch was marked sent, and the
// error of the last drain, if any.
func (r *Relay) Stats() (published uint64, lastSent time.Time, lastErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.published, r.lastSent, r.lastErr
}

// Running reports whether Run is active.
func (r *Relay) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
