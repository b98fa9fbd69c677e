package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/tourney-auction/go/internal/auction/events"
	"github.com/mcdev12/tourney-auction/go/internal/auction/outbox"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const DefaultTimerSubjectPrefix = "auction.timer"

// TimerRelay carries transient events (timer ticks, unpersisted stall notices) between
// processes over core NATS. They are fire-and-forget: a missed tick is corrected by the next.
type TimerRelay struct {
	nc     *nats.Conn
	prefix string
	broker *Broker
}

func NewTimerRelay(nc *nats.Conn, prefix string, broker *Broker) *TimerRelay {
	if prefix == "" {
		prefix = DefaultTimerSubjectPrefix
	}
	return &TimerRelay{nc: nc, prefix: prefix, broker: broker}
}

// PublishTransient implements the coordinator's tick sink.
func (t *TimerRelay) PublishTransient(_ context.Context, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal transient event: %w", err)
	}
	subject := outbox.Subject(t.prefix, env.Key(), env.EventType)
	if err := t.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Start subscribes to every partition's transient events and feeds them to the broker.
func (t *TimerRelay) Start(ctx context.Context) error {
	sub, err := t.nc.Subscribe(t.prefix+".>", func(msg *nats.Msg) {
		var env events.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("bad transient event")
			return
		}
		env.Seq = 0
		_ = t.broker.PublishTransient(ctx, env)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s.>: %w", t.prefix, err)
	}

	log.Info().Str("subject", t.prefix+".>").Msg("timer relay started")
	<-ctx.Done()
	return sub.Unsubscribe()
}
