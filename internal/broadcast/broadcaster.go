// Package broadcast fans workflow events out to any number of observers.
package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"github.com/agenthands/minutes/internal/core/model"
	"github.com/agenthands/minutes/internal/metrics"
)

const DefaultQueueSize = 64

// Subscription is one observer's bounded event queue.
type Subscription struct {
	id     uint64
	ch     chan model.WorkflowEvent
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

// Events yields events in publish order. The channel is closed when the
// subscription is removed from its broadcaster.
func (s *Subscription) Events() <-chan model.WorkflowEvent { return s.ch }

// Close marks the subscription dead. The broadcaster drops it on the next
// publish or reset.
func (s *Subscription) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) dead() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// offer enqueues ev, evicting the oldest queued event when the queue is full.
// It never blocks and reports how many events were evicted.
func (s *Subscription) offer(ev model.WorkflowEvent) (dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	for {
		select {
		case s.ch <- ev:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			dropped++
		default:
		}
	}
}

func (s *Subscription) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case <-s.ch:
		default:
			return
		}
	}
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.Close()
}

// Broadcaster is a registry of subscriptions. Publish never blocks on a slow
// or absent consumer.
type Broadcaster struct {
	mu        sync.Mutex
	subs      map[uint64]*Subscription
	nextID    uint64
	queueSize int
	closed    bool
	logger    *zap.Logger
}

func New(queueSize int, logger *zap.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:      make(map[uint64]*Subscription),
		queueSize: queueSize,
		logger:    logger,
	}
}

// Subscribe attaches a new observer. It receives only events published after
// this call returns.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &Subscription{
		id:   b.nextID,
		ch:   make(chan model.WorkflowEvent, b.queueSize),
		done: make(chan struct{}),
	}
	if b.closed {
		s.shutdown()
		return s
	}
	b.subs[s.id] = s
	metrics.SetSubscribers(len(b.subs))
	b.logger.Debug("subscriber attached", zap.Uint64("subscriber", s.id))
	return s
}

func (b *Broadcaster) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(s)
}

// remove must be called with b.mu held.
func (b *Broadcaster) remove(s *Subscription) {
	if _, ok := b.subs[s.id]; !ok {
		return
	}
	delete(b.subs, s.id)
	s.shutdown()
	metrics.SetSubscribers(len(b.subs))
	b.logger.Debug("subscriber detached", zap.Uint64("subscriber", s.id))
}

// Publish delivers ev to every live subscriber. Dead subscribers found along
// the way are removed.
func (b *Broadcaster) Publish(ev model.WorkflowEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		if s.dead() {
			b.remove(s)
			continue
		}
		if n := s.offer(ev); n > 0 {
			metrics.RecordBroadcastDropped(n)
			b.logger.Debug("subscriber queue full, dropped oldest",
				zap.Uint64("subscriber", s.id), zap.Int("dropped", n))
		}
	}
}

// Reset prepares the registry for a new run: dead subscribers are removed
// and queued events from the previous run are discarded. Live subscribers
// stay attached.
func (b *Broadcaster) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.dead() {
			b.remove(s)
			continue
		}
		s.drain()
	}
}

func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close detaches every subscriber and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, s := range b.subs {
		b.remove(s)
	}
}
