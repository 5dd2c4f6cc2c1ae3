package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultQueueSize bounds each subscriber's delivery queue.
	DefaultQueueSize = 100
	// DefaultReplaySize bounds the rolling replay buffer new subscribers
	// receive on attach.
	DefaultReplaySize = 1000
)

// Options configure a Bus. Zero values select the defaults.
type Options struct {
	QueueSize  int
	ReplaySize int
}

// Bus is the process-wide activity fan-out. Safe for concurrent use.
// Publish never blocks: each subscriber has a bounded queue, and on overflow
// the subscriber's oldest event is dropped and a subscriber_lag warning is
// injected in its place.
type Bus struct {
	queueSize int

	mu   sync.RWMutex
	subs map[string]*Subscription

	// Rolling replay buffer. Guarded by mu (writes happen on Publish,
	// reads on Subscribe).
	replay []Event
	max    int

	published uint64
	dropped   uint64
}

// Subscription is one consumer's attachment to the bus.
type Subscription struct {
	id         string
	incidentID string // "" subscribes to everything
	ch         chan Event

	mu      sync.Mutex
	dropped uint64
	lagging bool
	closed  bool
}

// New creates a Bus.
func New(opts Options) *Bus {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.ReplaySize <= 0 {
		opts.ReplaySize = DefaultReplaySize
	}
	return &Bus{
		queueSize: opts.QueueSize,
		subs:      make(map[string]*Subscription),
		max:       opts.ReplaySize,
	}
}

// Publish delivers the event to every matching subscriber and records it in
// the replay buffer. The event's timestamp is stamped if unset.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.Lock()
	b.published++
	b.replay = append(b.replay, evt)
	if len(b.replay) > b.max {
		// Drop the oldest slice prefix in place to avoid unbounded growth.
		b.replay = b.replay[len(b.replay)-b.max:]
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if !s.matches(evt) {
			continue
		}
		if !s.offer(evt) {
			b.mu.Lock()
			b.dropped++
			b.mu.Unlock()
		}
	}
}

// Subscribe attaches a consumer. incidentID filters delivery to one incident;
// pass "" for the full stream. Recent history matching the filter is replayed
// into the queue before live events arrive.
func (b *Bus) Subscribe(incidentID string) *Subscription {
	sub := &Subscription{
		id:         uuid.New().String(),
		incidentID: incidentID,
		ch:         make(chan Event, b.queueSize),
	}

	b.mu.Lock()
	// Replay most recent history first so attach sees context. Only the
	// newest queueSize matching events fit; older ones are skipped.
	matching := make([]Event, 0, len(b.replay))
	for _, evt := range b.replay {
		if sub.matches(evt) {
			matching = append(matching, evt)
		}
	}
	if len(matching) > b.queueSize {
		matching = matching[len(matching)-b.queueSize:]
	}
	for _, evt := range matching {
		sub.ch <- evt
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	return sub
}

// Unsubscribe detaches the consumer and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	_, present := b.subs[sub.id]
	delete(b.subs, sub.id)
	b.mu.Unlock()

	if present {
		sub.close()
	}
}

// Close detaches every subscriber and closes their channels. Publish after
// Close still records to the replay buffer but delivers to nobody.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// Stats reports bus counters for the health surface.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Replay      int    `json:"replay"`
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		Subscribers: len(b.subs),
		Published:   b.published,
		Dropped:     b.dropped,
		Replay:      len(b.replay),
	}
}

// Events returns the subscriber's delivery channel. The channel is closed by
// Unsubscribe.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Dropped returns how many events this subscriber has lost to overflow.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) matches(evt Event) bool {
	return s.incidentID == "" || s.incidentID == evt.IncidentID
}

// offer enqueues without blocking. On overflow it drops the subscriber's
// oldest event and, once per lag burst, replaces it with a subscriber_lag
// warning so the consumer knows its view has gaps. Returns false when an
// event was dropped.
func (s *Subscription) offer(evt Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	select {
	case s.ch <- evt:
		s.lagging = false
		return true
	default:
	}

	// Queue full: drop-oldest, then retry. The drain and send cannot race
	// with another producer for this subscriber because offer holds s.mu.
	select {
	case <-s.ch:
		s.dropped++
	default:
	}

	if !s.lagging {
		s.lagging = true
		slog.Warn("Event bus subscriber lagging, dropping oldest events",
			"subscriber_id", s.id, "incident_id", s.incidentID)
		lag := Event{
			Timestamp:  time.Now(),
			Level:      LevelWarning,
			Message:    MessageSubscriberLag,
			IncidentID: evt.IncidentID,
		}
		select {
		case s.ch <- lag:
		default:
		}
		// The original event is sacrificed to make the gap visible.
		s.dropped++
		return false
	}

	select {
	case s.ch <- evt:
	default:
		s.dropped++
		return false
	}
	return false
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
