package mailbox

import "sync"

// Subscription is one reader's cursor into a Mailbox.
type Subscription[T any] struct {
	mbox   *Mailbox[T]
	notify chan<- struct{}

	mu     sync.Mutex
	queue  []T
	head   int
	closed bool
}

func (s *Subscription[T]) push(msg T) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	if s.notify != nil {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

// Get returns the oldest unread message, or ok=false if there is none.
// It never blocks.
func (s *Subscription[T]) Get() (msg T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.head == len(s.queue) {
		return msg, false
	}

	msg = s.queue[s.head]
	var zero T
	s.queue[s.head] = zero
	s.head++

	switch {
	case s.head == len(s.queue):
		s.queue = s.queue[:0]
		s.head = 0
	case s.head > 64 && s.head*2 > len(s.queue):
		n := copy(s.queue, s.queue[s.head:])
		for i := n; i < len(s.queue); i++ {
			s.queue[i] = zero
		}
		s.queue = s.queue[:n]
		s.head = 0
	}

	return msg, true
}

// Pending is the number of unread messages.
func (s *Subscription[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) - s.head
}

// Flush drops every unread message, releasing recycled payloads.
func (s *Subscription[T]) Flush() {
	for {
		msg, ok := s.Get()
		if !ok {
			return
		}
		if rc, ok := any(msg).(Refcounted); ok {
			rc.Release()
		}
	}
}

// Mailbox returns the mailbox s reads from.
func (s *Subscription[T]) Mailbox() *Mailbox[T] {
	return s.mbox
}
