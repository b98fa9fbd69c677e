// Package coordinator runs the auction: it is the single writer for round transitions in a
// partition and owns the live countdown of every round in progress.
//
// Every command takes the partition's in-process lock, then runs one store transaction (which
// takes the storage-level partition lock as well). Lost serialization races are retried with
// linear backoff before ErrConcurrencyConflict reaches the caller.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/auction/queue"
	"github.com/mcdev12/tourney-auction/go/internal/auction/round"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Coordinator serializes auction commands per partition.
type Coordinator struct {
	store    store.Store
	queue    *queue.App
	clock    clockwork.Clock
	cfg      Config
	ticks    TickSink
	notifier Notifier
	metrics  Metrics

	locks      *partitionLocks
	instanceID string

	liveMu sync.Mutex
	live   map[models.PartitionKey]*live

	wakeCh     chan struct{}
	workCh     chan models.PartitionKey
	inFlight   map[models.PartitionKey]bool
	inFlightMu sync.Mutex
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithTickSink sets where transient timer events go.
func WithTickSink(s TickSink) Option {
	return func(co *Coordinator) { co.ticks = s }
}

// WithNotifier sets who is told about committed outbox events.
func WithNotifier(n Notifier) Option {
	return func(co *Coordinator) { co.notifier = n }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) Option {
	return func(co *Coordinator) { co.metrics = m }
}

// New creates a Coordinator over st.
func New(st store.Store, cfg Config, opts ...Option) *Coordinator {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = round.TickLength
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	c := &Coordinator{
		store:      st,
		clock:      clockwork.NewRealClock(),
		cfg:        cfg,
		metrics:    NoOpMetrics{},
		locks:      newPartitionLocks(),
		instanceID: uuid.New().String()[:8],
		live:       make(map[models.PartitionKey]*live),
		wakeCh:     make(chan struct{}, 1),
		workCh:     make(chan models.PartitionKey, cfg.NumWorkers*2),
		inFlight:   make(map[models.PartitionKey]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.queue = queue.NewApp(guardedStore{c}, c.clock)
	return c
}

// Queue returns the queue App whose mutations run under the coordinator's partition locks.
func (c *Coordinator) Queue() *queue.App {
	return c.queue
}

// Enqueue appends players to the partition queue, reporting progress per item.
func (c *Coordinator) Enqueue(ctx context.Context, key models.PartitionKey, playerIDs []uuid.UUID, progress func(queue.EnqueueProgress)) (*queue.EnqueueReport, error) {
	return c.queue.Enqueue(ctx, key, playerIDs, progress)
}

// Remove deletes an unprocessed queue entry.
func (c *Coordinator) Remove(ctx context.Context, entryID uuid.UUID) ([]models.QueueEntry, error) {
	return c.queue.Remove(ctx, entryID)
}

// Reorder moves a queue entry.
func (c *Coordinator) Reorder(ctx context.Context, entryID uuid.UUID, newPosition int) ([]models.QueueEntry, error) {
	return c.queue.Reorder(ctx, entryID, newPosition)
}

// exec runs fn in a partition transaction, retrying lost serialization races. The caller
// must hold the partition lock.
func (c *Coordinator) exec(ctx context.Context, key models.PartitionKey, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.store.RunInTx(ctx, key, fn)
		if err == nil {
			c.notify()
			return nil
		}
		if !errors.Is(err, auctionerr.ErrConcurrencyConflict) || attempt >= c.cfg.MaxConflictRetries {
			return err
		}

		c.metrics.ConflictRetried()
		log.Warn().
			Err(err).
			Str("partition", key.String()).
			Int("retry", attempt+1).
			Str("instance", c.instanceID).
			Msg("concurrency conflict, retrying")

		if backoff := c.cfg.ConflictBackoff * time.Duration(attempt+1); backoff > 0 {
			select {
			case <-c.clock.After(backoff):
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			}
		}
	}
}

func (c *Coordinator) notify() {
	if c.notifier != nil {
		c.notifier.Notify()
	}
}

// roundKey looks up which partition a round belongs to.
func (c *Coordinator) roundKey(ctx context.Context, roundID uuid.UUID) (models.PartitionKey, error) {
	var key models.PartitionKey
	err := c.store.Run(ctx, func(tx store.Tx) error {
		r, err := tx.GetRound(ctx, roundID)
		if err != nil {
			return err
		}
		key = r.Key()
		return nil
	})
	return key, err
}

func (c *Coordinator) getLive(key models.PartitionKey) *live {
	c.liveMu.Lock()
	defer c.liveMu.Unlock()
	return c.live[key]
}

func (c *Coordinator) setLive(key models.PartitionKey, l *live) {
	c.liveMu.Lock()
	defer c.liveMu.Unlock()
	if l == nil {
		delete(c.live, key)
		return
	}
	c.live[key] = l
}

func (c *Coordinator) liveKeys() []models.PartitionKey {
	c.liveMu.Lock()
	defer c.liveMu.Unlock()
	keys := make([]models.PartitionKey, 0, len(c.live))
	for k := range c.live {
		keys = append(keys, k)
	}
	return keys
}

// guardedStore routes queue mutations through the partition lock and conflict retries.
type guardedStore struct {
	c *Coordinator
}

func (g guardedStore) RunInTx(ctx context.Context, key models.PartitionKey, fn func(tx store.Tx) error) error {
	unlock, err := g.c.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return g.c.exec(ctx, key, fn)
}

func (g guardedStore) Run(ctx context.Context, fn func(tx store.Tx) error) error {
	return g.c.store.Run(ctx, fn)
}

func (c *Coordinator) lock(ctx context.Context, key models.PartitionKey) (func(), error) {
	unlock, err := c.locks.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to lock partition %s: %w", key, err)
	}
	return unlock, nil
}
