package coordinator

import (
	"context"
	"sync"

	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// partitionLocks is a keyed mutex whose Lock honours context cancellation.
type partitionLocks struct {
	mu    sync.Mutex
	slots map[models.PartitionKey]chan struct{}
}

func newPartitionLocks() *partitionLocks {
	return &partitionLocks{slots: make(map[models.PartitionKey]chan struct{})}
}

func (l *partitionLocks) slot(key models.PartitionKey) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Lock blocks until key is free or ctx is done. The returned func releases the lock.
func (l *partitionLocks) Lock(ctx context.Context, key models.PartitionKey) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
