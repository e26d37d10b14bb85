package mailbox

import (
	"sync"
	"sync/atomic"
)

// Refcounted is implemented by payloads whose storage is recycled, such as
// pooled sample buffers. Put takes over the producer's reference and adds
// one per subscription; each subscriber releases its reference when done.
type Refcounted interface {
	Retain(n int32)
	Release()
}

// Stats counts mailbox traffic.
type Stats struct {
	Puts          int64
	Subscriptions int
	// InFlight is the number of messages queued but not yet read, summed
	// over subscriptions.
	InFlight int
}

// Mailbox is a named publish/subscribe queue. Every subscription sees every
// message put after it subscribed, in put order, exactly once. Put and Get
// never block; the lock guards only queue bookkeeping.
type Mailbox[T any] struct {
	name string

	mu   sync.Mutex
	subs []*Subscription[T]

	puts atomic.Int64
}

// New creates an unregistered mailbox. Most callers use Register instead.
func New[T any](name string) *Mailbox[T] {
	return &Mailbox[T]{name: name}
}

func (m *Mailbox[T]) Name() string {
	return m.name
}

// SubscribeOption configures a subscription.
type SubscribeOption func(s *subscribeOpts)

type subscribeOpts struct {
	notify chan<- struct{}
}

// WithNotify asks the mailbox to signal ch, without blocking, whenever a
// message is queued for the subscription. Several subscriptions may share
// one channel so a stage can wait on all of its mailboxes at once.
func WithNotify(ch chan<- struct{}) SubscribeOption {
	return func(s *subscribeOpts) {
		s.notify = ch
	}
}

// Subscribe creates a cursor positioned after every message already put.
func (m *Mailbox[T]) Subscribe(opts ...SubscribeOption) *Subscription[T] {
	var o subscribeOpts
	for _, opt := range opts {
		opt(&o)
	}

	s := &Subscription[T]{
		mbox:   m,
		notify: o.notify,
	}

	m.mu.Lock()
	m.subs = append(m.subs, s)
	m.mu.Unlock()

	return s
}

// Unsubscribe detaches s. Anything still queued for it is released.
func (m *Mailbox[T]) Unsubscribe(s *Subscription[T]) {
	m.mu.Lock()
	for i, sub := range m.subs {
		if sub == s {
			m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	s.Flush()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Put publishes msg to every current subscription.
func (m *Mailbox[T]) Put(msg T) {
	m.puts.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if rc, ok := any(msg).(Refcounted); ok {
		rc.Retain(int32(len(m.subs)))
		rc.Release()
	}

	for _, s := range m.subs {
		s.push(msg)
	}
}

func (m *Mailbox[T]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{
		Puts:          m.puts.Load(),
		Subscriptions: len(m.subs),
	}
	for _, s := range m.subs {
		st.InFlight += s.Pending()
	}
	return st
}
