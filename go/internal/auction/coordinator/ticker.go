package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mcdev12/tourney-auction/go/internal/auction/events"
	"github.com/mcdev12/tourney-auction/go/internal/auction/round"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Run drives the timers of every live round until ctx is done. Each tick fans the live
// partitions out to a worker pool; a partition still being handled is skipped.
func (c *Coordinator) Run(ctx context.Context) error {
	log.Info().
		Str("instance", c.instanceID).
		Int("workers", c.cfg.NumWorkers).
		Dur("tick_interval", c.cfg.TickInterval).
		Msg("coordinator timer loop started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < c.cfg.NumWorkers; i++ {
		wg.Add(1)
		go c.worker(workerCtx, &wg, i)
	}

	defer func() {
		log.Info().Str("instance", c.instanceID).Msg("shutting down timer workers")
		cancelWorkers()
		wg.Wait()
	}()

	ticker := c.clock.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", c.instanceID).Msg("coordinator timer loop stopped")
			return nil
		case <-c.wakeCh:
			log.Debug().Str("instance", c.instanceID).Msg("timer loop woken")
		case <-ticker.Chan():
			c.dispatch(ctx)
		}
	}
}

func (c *Coordinator) dispatch(ctx context.Context) {
	for _, key := range c.liveKeys() {
		c.inFlightMu.Lock()
		if c.inFlight[key] {
			c.inFlightMu.Unlock()
			log.Debug().Str("partition", key.String()).Msg("skipping partition already in flight")
			continue
		}
		c.inFlight[key] = true
		c.inFlightMu.Unlock()

		select {
		case c.workCh <- key:
		case <-ctx.Done():
			c.doneInFlight(key)
			return
		}
	}
}

func (c *Coordinator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case key := <-c.workCh:
			if err := c.Tick(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().
					Err(err).
					Str("partition", key.String()).
					Int("worker_id", workerID).
					Msg("timer tick failed")
			}
			c.doneInFlight(key)
		}
	}
}

func (c *Coordinator) doneInFlight(key models.PartitionKey) {
	c.inFlightMu.Lock()
	delete(c.inFlight, key)
	c.inFlightMu.Unlock()
}

func (c *Coordinator) wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

// Tick advances the partition's round timer by one second and handles a timer that has run
// out: with no bid the round is cancelled, with a bid it is committed when auto-commit is on
// and otherwise left for the conductor. Persistence failures stall the round.
func (c *Coordinator) Tick(ctx context.Context, key models.PartitionKey) error {
	unlock, err := c.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	l := c.getLive(key)
	if l == nil || l.timer.State().Stalled || l.settled {
		return nil
	}

	if !l.timer.Complete() {
		if l.timer.Paused() {
			return nil
		}
		l.timer.Tick()
		c.broadcastTick(ctx, key, l)
		if !l.timer.Complete() {
			return nil
		}
	}
	return c.settle(ctx, key, l)
}

func (c *Coordinator) broadcastTick(ctx context.Context, key models.PartitionKey, l *live) {
	if c.ticks == nil {
		return
	}
	env, err := events.NewTransient(key, events.TypeTimerTick, events.TimerTickPayload{
		RoundID:    l.roundID,
		Timer:      l.timer.State(),
		ServerTime: c.clock.Now(),
	}, c.clock.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed to build timer tick")
		return
	}
	if err := c.ticks.PublishTransient(ctx, env); err != nil {
		log.Warn().Err(err).Str("partition", key.String()).Msg("failed to publish timer tick")
	}
}

// settle handles a round whose timer reached complete. The caller holds the partition lock.
func (c *Coordinator) settle(ctx context.Context, key models.PartitionKey, l *live) error {
	var r *models.Round
	err := c.store.Run(ctx, func(tx store.Tx) error {
		var err error
		r, err = tx.GetRound(ctx, l.roundID)
		return err
	})
	if err != nil {
		return c.stall(ctx, key, l, fmt.Errorf("read round: %w", err))
	}

	high := r.HighestBid()
	switch {
	case high == nil:
		_, err = c.cancelLocked(ctx, key, r.ID, events.CancelReasonTimeout)
	case c.cfg.AutoCommitOnComplete:
		_, err = c.commitLocked(ctx, key, r.ID, high.TeamID, high.Amount)
	default:
		l.settled = true
		log.Info().
			Str("partition", key.String()).
			Str("round_id", r.ID.String()).
			Int64("highest_bid", high.Amount).
			Msg("timer complete, waiting for conductor")
		return nil
	}
	if err != nil {
		return c.stall(ctx, key, l, err)
	}
	return nil
}

// stall stops the round's timer and tells subscribers why. Nothing is retried until the
// conductor resumes the timer.
func (c *Coordinator) stall(ctx context.Context, key models.PartitionKey, l *live, cause error) error {
	l.timer.Stall(cause.Error())
	c.metrics.RoundStalled()
	log.Error().
		Err(cause).
		Str("partition", key.String()).
		Str("round_id", l.roundID.String()).
		Msg("round stalled")

	payload := events.RoundStalledPayload{RoundID: l.roundID, Reason: cause.Error(), Timer: l.timer.State()}
	err := c.store.RunInTx(ctx, key, func(tx store.Tx) error {
		_, err := events.Append(ctx, tx, key, events.TypeRoundStalled, payload)
		return err
	})
	if err == nil {
		c.notify()
		return cause
	}

	// storage is refusing writes; reach live subscribers directly
	if c.ticks != nil {
		env, envErr := events.NewTransient(key, events.TypeRoundStalled, payload, c.clock.Now())
		if envErr == nil {
			if pubErr := c.ticks.PublishTransient(ctx, env); pubErr != nil {
				log.Error().Err(pubErr).Str("partition", key.String()).Msg("failed to broadcast stall")
			}
		}
	}
	return errors.Join(cause, err)
}

// Recover rebuilds timers for rounds left in progress by a previous process.
func (c *Coordinator) Recover(ctx context.Context) error {
	var rounds []models.Round
	err := c.store.Run(ctx, func(tx store.Tx) error {
		var err error
		rounds, err = tx.ListInProgressRounds(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to list rounds in progress: %w", err)
	}

	for _, r := range rounds {
		c.setLive(r.Key(), &live{
			roundID: r.ID,
			timer:   round.RestoreTimer(c.cfg.Durations, len(r.Bids) > 0),
		})
		log.Info().
			Str("partition", r.Key().String()).
			Str("round_id", r.ID.String()).
			Int("bids", len(r.Bids)).
			Msg("recovered round timer")
	}
	c.wake()
	return nil
}
