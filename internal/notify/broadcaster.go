package notify

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/agentrun/pkg/models"
)

// DefaultSubscriberBuffer is the channel size given to each subscriber.
const DefaultSubscriberBuffer = 256

// sendTimeout is how long Notify waits on a full subscriber before dropping.
const sendTimeout = 100 * time.Millisecond

// Subscription is one observer's view of a Broadcaster.
type Subscription struct {
	id uint64
	ch chan models.Observation
}

// C returns the channel observations arrive on. It is closed by
// Unsubscribe or when the Broadcaster is closed.
func (s *Subscription) C() <-chan models.Observation {
	return s.ch
}

// Broadcaster fans observations out to any number of subscribers.
// A subscriber that does not drain its channel loses observations rather
// than stalling the others.
type Broadcaster struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
	closed     bool

	droppedCount atomic.Uint64
}

// NewBroadcaster creates a Broadcaster whose subscribers get channels of
// bufferSize. A non-positive size uses DefaultSubscriberBuffer.
func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Broadcaster{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a new observer. Subscribing to a closed Broadcaster
// returns a subscription whose channel is already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, ch: make(chan models.Observation, b.bufferSize)}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the subscription and closes its channel.
// Safe to call more than once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Notify delivers obs to every subscriber. If a subscriber's channel is
// full it waits briefly, then drops the observation for that subscriber.
func (b *Broadcaster) Notify(obs models.Observation) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		b.deliver(sub, obs)
	}
}

func (b *Broadcaster) deliver(sub *Subscription, obs models.Observation) {
	select {
	case sub.ch <- obs:
		return
	default:
	}

	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()

	select {
	case sub.ch <- obs:
	case <-timer.C:
		count := b.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[notify] WARNING: subscriber %d is full, dropped observation (total dropped: %d): type=%s task=%s",
				sub.id, count, obs.Type, obs.TaskID)
		}
	}
}

// Subscribers returns the number of current subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// DroppedCount returns the total number of observations dropped.
func (b *Broadcaster) DroppedCount() uint64 {
	return b.droppedCount.Load()
}

// Close closes every subscriber channel. Later Notify calls are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
