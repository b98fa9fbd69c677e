package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tourney-auction/go/internal/auction/events"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPartition = models.PartitionKey{TournamentID: uuid.MustParse("0b3e5f38-62c1-4f5c-8f0e-31c5b1d8a001"), Category: "bowlers"}

func committed(seq int64) events.Envelope {
	return events.Envelope{
		EventID:      uuid.New(),
		EventType:    events.TypeBidRecorded,
		TournamentID: testPartition.TournamentID,
		Category:     testPartition.Category,
		Seq:          seq,
		Payload:      json.RawMessage(`{}`),
	}
}

func publishRange(t *testing.T, b *Broker, from, to int64) {
	t.Helper()
	for s := from; s <= to; s++ {
		require.NoError(t, b.Publish(context.Background(), committed(s)))
	}
}

func drain(sub *Subscription) []events.Envelope {
	var out []events.Envelope
	for {
		select {
		case env, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func seqsOf(envs []events.Envelope) []int64 {
	out := make([]int64, len(envs))
	for i, e := range envs {
		out[i] = e.Seq
	}
	return out
}

func resyncOf(t *testing.T, env events.Envelope) events.ResyncPayload {
	t.Helper()
	require.Equal(t, events.TypeResync, env.EventType)
	var p events.ResyncPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p
}

func ptr(n int64) *int64 { return &n }

func newTestBroker(buffer int) *Broker {
	return NewBroker(BrokerConfig{ReplayBuffer: buffer, SubscriberSize: 16}, clockwork.NewFakeClock())
}

func TestLiveSubscriberReceivesInOrder(t *testing.T) {
	b := newTestBroker(8)
	sub := b.Subscribe(testPartition, nil)

	publishRange(t, b, 1, 3)
	assert.Equal(t, []int64{1, 2, 3}, seqsOf(drain(sub)))
	assert.EqualValues(t, 3, b.LastSeq(testPartition))
}

func TestDuplicatesAreDropped(t *testing.T) {
	b := newTestBroker(8)
	sub := b.Subscribe(testPartition, nil)

	publishRange(t, b, 1, 2)
	publishRange(t, b, 1, 2)
	publishRange(t, b, 3, 3)
	assert.Equal(t, []int64{1, 2, 3}, seqsOf(drain(sub)))
}

func TestReplayAfterSeq(t *testing.T) {
	b := newTestBroker(8)
	publishRange(t, b, 1, 5)

	sub := b.Subscribe(testPartition, ptr(2))
	assert.Equal(t, []int64{3, 4, 5}, seqsOf(drain(sub)))

	publishRange(t, b, 6, 6)
	assert.Equal(t, []int64{6}, seqsOf(drain(sub)))
}

func TestReplayUpToDate(t *testing.T) {
	b := newTestBroker(8)
	publishRange(t, b, 1, 5)

	sub := b.Subscribe(testPartition, ptr(5))
	assert.Empty(t, drain(sub))
}

func TestReplayOutOfRangeRequestsResync(t *testing.T) {
	b := newTestBroker(3)
	publishRange(t, b, 1, 10)

	sub := b.Subscribe(testPartition, ptr(4))
	got := drain(sub)
	require.Len(t, got, 1)
	p := resyncOf(t, got[0])
	assert.Equal(t, ResyncOutOfRange, p.Reason)
	assert.EqualValues(t, 4, p.LastSeq)
	assert.EqualValues(t, 8, p.OldestSeq)

	// the oldest buffered event's predecessor is still replayable
	sub = b.Subscribe(testPartition, ptr(7))
	assert.Equal(t, []int64{8, 9, 10}, seqsOf(drain(sub)))
}

func TestReplayAheadOfBrokerRequestsResync(t *testing.T) {
	b := newTestBroker(8)
	publishRange(t, b, 1, 2)

	sub := b.Subscribe(testPartition, ptr(40))
	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, ResyncUnknown, resyncOf(t, got[0]).Reason)
}

func TestSequenceGapResetsBuffer(t *testing.T) {
	b := newTestBroker(8)
	publishRange(t, b, 1, 3)
	sub := b.Subscribe(testPartition, nil)

	require.NoError(t, b.Publish(context.Background(), committed(7)))
	got := drain(sub)
	require.Len(t, got, 2)
	assert.Equal(t, ResyncGap, resyncOf(t, got[0]).Reason)
	assert.EqualValues(t, 7, got[1].Seq)

	late := b.Subscribe(testPartition, ptr(3))
	got = drain(late)
	require.Len(t, got, 1)
	assert.Equal(t, ResyncOutOfRange, resyncOf(t, got[0]).Reason)
}

func TestTransientEventsAreNotBuffered(t *testing.T) {
	b := newTestBroker(8)
	sub := b.Subscribe(testPartition, nil)

	tick, err := events.NewTransient(testPartition, events.TypeTimerTick, events.TimerTickPayload{}, time.Now())
	require.NoError(t, err)
	require.NoError(t, b.PublishTransient(context.Background(), tick))
	require.NoError(t, b.Publish(context.Background(), tick))

	assert.Len(t, drain(sub), 2)
	assert.Zero(t, b.LastSeq(testPartition))

	replayed := b.Subscribe(testPartition, ptr(0))
	assert.Empty(t, drain(replayed))
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b := NewBroker(BrokerConfig{ReplayBuffer: 8, SubscriberSize: 2}, clockwork.NewFakeClock())
	slow := b.Subscribe(testPartition, nil)
	fast := b.Subscribe(testPartition, nil)

	publishRange(t, b, 1, 2)
	assert.Len(t, drain(fast), 2)

	publishRange(t, b, 3, 3)
	assert.True(t, b.Dropped(slow))
	assert.False(t, b.Dropped(fast))

	got := drain(slow)
	assert.Equal(t, []int64{1, 2}, seqsOf(got))
	_, open := <-slow.C
	assert.False(t, open)

	// unsubscribing a dropped subscriber is harmless
	b.Unsubscribe(slow)
	assert.Equal(t, 1, b.Stats().Subscribers)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := newTestBroker(8)
	sub := b.Subscribe(testPartition, nil)
	b.Unsubscribe(sub)

	_, open := <-sub.C
	assert.False(t, open)
	b.Unsubscribe(sub)
}
