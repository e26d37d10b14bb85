package mailbox

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrMailboxExists  = errors.New("mailbox already exists")
	ErrMailboxMissing = errors.New("mailbox does not exist")
	ErrWrongType      = errors.New("mailbox holds a different message type")
)

type named interface {
	Name() string
	Stats() Stats
}

// Registry maps names to mailboxes so stages built independently can find
// each other. A registry belongs to one runtime; there is no process-wide
// instance.
type Registry struct {
	mu    sync.RWMutex
	boxes map[string]named
}

func NewRegistry() *Registry {
	return &Registry{boxes: make(map[string]named)}
}

// Register creates a mailbox of message type T under name.
func Register[T any](r *Registry, name string) (*Mailbox[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.boxes[name]; ok {
		return nil, fmt.Errorf("register %s: %w", name, ErrMailboxExists)
	}
	m := New[T](name)
	r.boxes[name] = m
	return m, nil
}

// Lookup finds the mailbox called name, which must carry messages of type T.
func Lookup[T any](r *Registry, name string) (*Mailbox[T], error) {
	r.mu.RLock()
	box, ok := r.boxes[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("lookup %s: %w", name, ErrMailboxMissing)
	}
	m, ok := box.(*Mailbox[T])
	if !ok {
		return nil, fmt.Errorf("lookup %s: %w", name, ErrWrongType)
	}
	return m, nil
}

// Names lists registered mailboxes in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.boxes))
	for name := range r.boxes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats snapshots every mailbox's counters.
func (r *Registry) Stats() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ret := make(map[string]Stats, len(r.boxes))
	for name, box := range r.boxes {
		ret[name] = box.Stats()
	}
	return ret
}
