// Package gateway fans auction events out to websocket subscribers.
//
// The Broker keeps a bounded replay buffer of committed events per partition. A subscriber
// that reconnects with the last sequence it saw gets the missing events replayed, or a Resync
// event when the gap is no longer in the buffer.
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tourney-auction/go/internal/auction/events"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Resync reasons.
const (
	ResyncOutOfRange = "out_of_range"
	ResyncUnknown    = "unknown_position"
	ResyncGap        = "gap"
	ResyncSlow       = "slow_consumer"
)

type BrokerConfig struct {
	ReplayBuffer   int `yaml:"replay_buffer"`   // committed events kept per partition
	SubscriberSize int `yaml:"subscriber_size"` // per-subscriber channel capacity
}

func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{ReplayBuffer: 512, SubscriberSize: 256}
}

// Subscription receives the events of one partition. C is closed when the subscriber is
// dropped or unsubscribed.
type Subscription struct {
	ID  uuid.UUID
	Key models.PartitionKey
	C   <-chan events.Envelope

	ch      chan events.Envelope
	dropped bool
}

type partition struct {
	ring    []events.Envelope // oldest first, contiguous by seq
	lastSeq int64
	subs    map[uuid.UUID]*Subscription
}

func (p *partition) oldestSeq() int64 {
	if len(p.ring) == 0 {
		return p.lastSeq + 1
	}
	return p.ring[0].Seq
}

// Broker is the in-process fan-out point. It implements the outbox Publisher for committed
// events and the coordinator TickSink for transient ones.
type Broker struct {
	cfg   BrokerConfig
	clock clockwork.Clock

	mu         sync.Mutex
	partitions map[models.PartitionKey]*partition
}

func NewBroker(cfg BrokerConfig, clock clockwork.Clock) *Broker {
	if cfg.ReplayBuffer <= 0 {
		cfg.ReplayBuffer = DefaultBrokerConfig().ReplayBuffer
	}
	if cfg.SubscriberSize <= 0 {
		cfg.SubscriberSize = DefaultBrokerConfig().SubscriberSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Broker{cfg: cfg, clock: clock, partitions: make(map[models.PartitionKey]*partition)}
}

func (b *Broker) part(key models.PartitionKey) *partition {
	p, ok := b.partitions[key]
	if !ok {
		p = &partition{subs: make(map[uuid.UUID]*Subscription)}
		b.partitions[key] = p
	}
	return p
}

// Publish accepts a committed event. Duplicates (seq already seen) are dropped. A jump in
// sequence empties the replay buffer and tells current subscribers to resync.
func (b *Broker) Publish(_ context.Context, env events.Envelope) error {
	if env.Transient() {
		return b.PublishTransient(context.Background(), env)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.part(env.Key())
	switch {
	case env.Seq <= p.lastSeq:
		log.Debug().
			Str("partition", env.Key().String()).
			Int64("seq", env.Seq).
			Msg("dropping duplicate event")
		return nil
	case p.lastSeq != 0 && env.Seq > p.lastSeq+1:
		log.Warn().
			Str("partition", env.Key().String()).
			Int64("last_seq", p.lastSeq).
			Int64("seq", env.Seq).
			Msg("sequence gap, resetting replay buffer")
		p.ring = nil
		b.fanout(p, b.resync(env.Key(), p.lastSeq, env.Seq, ResyncGap))
	}

	p.ring = append(p.ring, env)
	if over := len(p.ring) - b.cfg.ReplayBuffer; over > 0 {
		p.ring = append(p.ring[:0:0], p.ring[over:]...)
	}
	p.lastSeq = env.Seq
	b.fanout(p, env)
	return nil
}

// PublishTransient fans out an unsequenced event without buffering it.
func (b *Broker) PublishTransient(_ context.Context, env events.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.partitions[env.Key()]; ok {
		b.fanout(p, env)
	}
	return nil
}

// fanout must be called with b.mu held. Subscribers whose channel is full are dropped.
func (b *Broker) fanout(p *partition, env events.Envelope) {
	for id, sub := range p.subs {
		select {
		case sub.ch <- env:
		default:
			log.Warn().
				Str("subscription_id", id.String()).
				Str("partition", sub.Key.String()).
				Msg("subscriber buffer full, dropping subscriber")
			sub.dropped = true
			close(sub.ch)
			delete(p.subs, id)
		}
	}
}

// Subscribe registers a subscriber. If afterSeq is non-nil, committed events with a higher
// sequence still in the buffer are delivered first; when they are not, the first event is a
// Resync. Replay and registration happen atomically so no event is missed in between.
func (b *Broker) Subscribe(key models.PartitionKey, afterSeq *int64) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.part(key)

	var backlog []events.Envelope
	if afterSeq != nil {
		backlog = b.replay(key, p, *afterSeq)
	}

	size := b.cfg.SubscriberSize
	if len(backlog) > size {
		size = len(backlog)
	}
	ch := make(chan events.Envelope, size)
	for _, env := range backlog {
		ch <- env
	}

	sub := &Subscription{ID: uuid.New(), Key: key, C: ch, ch: ch}
	p.subs[sub.ID] = sub
	return sub
}

func (b *Broker) replay(key models.PartitionKey, p *partition, after int64) []events.Envelope {
	switch {
	case after == p.lastSeq:
		return nil
	case after > p.lastSeq:
		return []events.Envelope{b.resync(key, after, p.oldestSeq(), ResyncUnknown)}
	case after+1 < p.oldestSeq():
		return []events.Envelope{b.resync(key, after, p.oldestSeq(), ResyncOutOfRange)}
	}
	var out []events.Envelope
	for _, env := range p.ring {
		if env.Seq > after {
			out = append(out, env)
		}
	}
	return out
}

func (b *Broker) resync(key models.PartitionKey, last, oldest int64, reason string) events.Envelope {
	payload, _ := json.Marshal(events.ResyncPayload{LastSeq: last, OldestSeq: oldest, Reason: reason})
	return events.Envelope{
		EventID:      uuid.New(),
		EventType:    events.TypeResync,
		TournamentID: key.TournamentID,
		Category:     key.Category,
		Timestamp:    b.clock.Now(),
		Payload:      payload,
	}
}

// Unsubscribe removes the subscriber and closes its channel. It is safe to call after the
// subscriber was dropped.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.partitions[sub.Key]
	if !ok {
		return
	}
	if _, ok := p.subs[sub.ID]; ok {
		delete(p.subs, sub.ID)
		close(sub.ch)
	}
}

// Dropped reports whether the broker dropped the subscriber for being slow.
func (b *Broker) Dropped(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sub.dropped
}

// LastSeq returns the highest committed sequence seen for the partition.
func (b *Broker) LastSeq(key models.PartitionKey) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.partitions[key]; ok {
		return p.lastSeq
	}
	return 0
}

type PartitionStats struct {
	TournamentID uuid.UUID `json:"tournament_id"`
	Category     string    `json:"category"`
	LastSeq      int64     `json:"last_seq"`
	Buffered     int       `json:"buffered"`
	Subscribers  int       `json:"subscribers"`
}

type BrokerStats struct {
	Partitions  []PartitionStats `json:"partitions"`
	Subscribers int              `json:"total_subscribers"`
	Time        time.Time        `json:"time"`
}

func (b *Broker) Stats() BrokerStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := BrokerStats{Partitions: []PartitionStats{}, Time: b.clock.Now()}
	for key, p := range b.partitions {
		stats.Partitions = append(stats.Partitions, PartitionStats{
			TournamentID: key.TournamentID,
			Category:     key.Category,
			LastSeq:      p.lastSeq,
			Buffered:     len(p.ring),
			Subscribers:  len(p.subs),
		})
		stats.Subscribers += len(p.subs)
	}
	return stats
}
