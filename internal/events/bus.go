package events

import (
	"sync"
	"sync/atomic"
)

// Collection names a document collection in the store.
type Collection string

const (
	CollectionAvatars Collection = "avatars"
	CollectionUsers   Collection = "users"
)

// ChangeKind represents the type of write that produced a change.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Change carries only identifiers; subscribers re-read the documents they need.
type Change struct {
	Collection Collection `json:"collection"`
	Kind       ChangeKind `json:"kind"`
	OwnerID    string     `json:"owner_id"`
	DocID      string     `json:"doc_id"`
	Origin     string     `json:"origin,omitempty"`
}

// Filter selects the changes a subscriber receives.
type Filter func(Change) bool

// ForOwner matches changes to the owner's avatars and to the owner's user document.
func ForOwner(ownerID string) Filter {
	return func(c Change) bool {
		return c.OwnerID == ownerID
	}
}

// Subscription is a standing listener on the bus. C is closed by Close.
type Subscription struct {
	C      <-chan Change
	ch     chan Change
	filter Filter
	bus    *Bus
	id     uint64
	once   sync.Once
}

// Close detaches the subscription and releases its channel.
func (s *Subscription) Close() {
	s.once.Do(func() { s.bus.unsubscribe(s.id) })
}

// Bus is an in-process pub-sub that fans every change out to all matching
// subscribers. Publishing never blocks: a subscriber whose buffer is full
// already has a pending tick, and every tick triggers a full re-read, so the
// dropped change is covered by the one still queued.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	queues  map[uint64]*Queue
	nextID  uint64
	buffer  int
	origin  string
	dropped atomic.Uint64
	closed  bool
}

// NewBus creates a bus whose subscribers get the given buffer size.
// origin stamps locally published changes so relays can tell them apart.
func NewBus(buffer int, origin string) *Bus {
	if buffer <= 0 {
		buffer = 1
	}
	return &Bus{
		subs:   make(map[uint64]*Subscription),
		queues: make(map[uint64]*Queue),
		buffer: buffer,
		origin: origin,
	}
}

// Origin returns the identifier stamped on locally published changes.
func (b *Bus) Origin() string { return b.origin }

// Publish stamps the local origin (when unset) and fans the change out.
// Returns the number of subscribers that received it.
func (b *Bus) Publish(evt Change) int {
	if evt.Origin == "" {
		evt.Origin = b.origin
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}

	delivered := 0
	for _, s := range b.subs {
		if s.filter != nil && !s.filter(evt) {
			continue
		}
		select {
		case s.ch <- evt:
			delivered++
		default:
			b.dropped.Add(1)
		}
	}
	for _, q := range b.queues {
		if q.filter != nil && !q.filter(evt) {
			continue
		}
		q.push(evt)
		delivered++
	}
	return delivered
}

// Subscribe registers a listener. A nil filter receives every change.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Change, b.buffer)
	s := &Subscription{C: ch, ch: ch, filter: filter, bus: b}
	if b.closed {
		close(ch)
		return s
	}
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	return s
}

// SubscribeQueue registers a listener that never loses a change to a full
// buffer. Pending changes are kept per collection and owner, so a burst
// touching the same owner collapses to its latest change.
func (b *Bus) SubscribeQueue(filter Filter) *Queue {
	b.mu.Lock()
	defer b.mu.Unlock()

	ready := make(chan struct{}, 1)
	q := &Queue{Ready: ready, ready: ready, filter: filter, bus: b, pending: make(map[queueKey]Change)}
	if b.closed {
		close(ready)
		return q
	}
	b.nextID++
	q.id = b.nextID
	b.queues[q.id] = q
	return q
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(s.ch)
	}
	if q, ok := b.queues[id]; ok {
		delete(b.queues, id)
		close(q.ready)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs) + len(b.queues)
}

// Dropped returns how many deliveries were coalesced into a pending tick.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close closes every subscription; later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
	for id, q := range b.queues {
		delete(b.queues, id)
		close(q.ready)
	}
}

type queueKey struct {
	collection Collection
	owner      string
}

// Queue is a coalescing listener. Ready receives a signal whenever changes
// are pending and is closed when the queue is detached; Drain may still
// return the changes pushed before that.
type Queue struct {
	Ready  <-chan struct{}
	ready  chan struct{}
	filter Filter
	bus    *Bus
	id     uint64
	once   sync.Once

	mu      sync.Mutex
	pending map[queueKey]Change
	order   []queueKey
}

// push runs under the bus read lock, which excludes closing ready.
func (q *Queue) push(evt Change) {
	k := queueKey{collection: evt.Collection, owner: evt.OwnerID}
	q.mu.Lock()
	if _, ok := q.pending[k]; !ok {
		q.order = append(q.order, k)
	}
	q.pending[k] = evt
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Drain returns the pending changes in first-arrival order and empties the queue.
func (q *Queue) Drain() []Change {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return nil
	}
	out := make([]Change, 0, len(q.order))
	for _, k := range q.order {
		out = append(out, q.pending[k])
	}
	q.pending = make(map[queueKey]Change)
	q.order = nil
	return out
}

// Close detaches the queue.
func (q *Queue) Close() {
	q.once.Do(func() { q.bus.unsubscribe(q.id) })
}
