package thread

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Registry supervises a set of threads. Startup is two-phase: every thread
// subscribes before any thread runs, so no stage can miss a message put by
// another stage that started first.
type Registry struct {
	logger zerolog.Logger

	mu      sync.Mutex
	threads []Thread
	names   map[string]struct{}
	started bool

	eg errgroup.Group
}

type RegistryOption func(r *Registry)

func WithRegistryLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger: log.Logger,
		names:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers t. It refuses threads built for another kernel version and
// duplicate names.
func (r *Registry) Add(t Thread) error {
	b := t.base()
	if b.version != KernelVersion {
		return fmt.Errorf("add %s (version %q, kernel %q): %w", t.Name(), b.version, KernelVersion, ErrVersionMismatch)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("add %s: registry already started", t.Name())
	}
	if _, ok := r.names[t.Name()]; ok {
		return fmt.Errorf("add %s: %w", t.Name(), ErrDuplicateName)
	}
	r.names[t.Name()] = struct{}{}
	r.threads = append(r.threads, t)
	return nil
}

// Threads returns the registered threads in registration order.
func (r *Registry) Threads() []Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Thread(nil), r.threads...)
}

// States snapshots each thread's lifecycle state by name.
func (r *Registry) States() map[string]State {
	ret := make(map[string]State)
	for _, t := range r.Threads() {
		ret[t.Name()] = t.base().State()
	}
	return ret
}

// SubscribeAll runs the subscribe phase for every thread.
func (r *Registry) SubscribeAll(reg *mailbox.Registry) error {
	for _, t := range r.Threads() {
		if err := t.Subscribe(reg); err != nil {
			return Wrap(t.Name(), fmt.Errorf("subscribe: %w", err))
		}
		t.base().setState(Subscribed)
		r.logger.Debug().Str("stage", t.Name()).Msg("subscribed")
	}
	return nil
}

// StartAll launches every thread's Run on its own goroutine. The first
// failure of any thread is passed to onFailure, which the kernel uses to
// broadcast STOP to the rest.
func (r *Registry) StartAll(onFailure func(error)) error {
	threads := r.Threads()
	for _, t := range threads {
		if t.base().State() != Subscribed {
			return Wrap(t.Name(), ErrNotSubscribed)
		}
	}

	r.mu.Lock()
	r.started = true
	r.mu.Unlock()

	var once sync.Once
	fail := func(err error) {
		once.Do(func() {
			if onFailure != nil {
				onFailure(err)
			}
		})
	}

	for _, t := range threads {
		t := t
		t.base().setState(Running)
		r.eg.Go(func() error {
			err := r.run(t)
			if err != nil {
				r.logger.Error().Err(err).Str("stage", t.Name()).Msg("stage failed")
				fail(err)
			} else {
				r.logger.Debug().Str("stage", t.Name()).Msg("stage finished")
			}
			return err
		})
	}
	return nil
}

func (r *Registry) run(t Thread) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Str("stage", t.Name()).Str("stack", string(debug.Stack())).Msg("stage panicked")
			err = Wrap(t.Name(), fmt.Errorf("panic: %v", p))
		}
	}()
	return Wrap(t.Name(), t.Run())
}

// JoinAll waits for every started thread and returns the first error.
func (r *Registry) JoinAll() error {
	err := r.eg.Wait()
	for _, t := range r.Threads() {
		t.base().setState(Joined)
	}
	return err
}

// ShutdownAll calls Shutdown on every thread in reverse registration order.
func (r *Registry) ShutdownAll() error {
	threads := r.Threads()
	var errs []error
	for i := len(threads) - 1; i >= 0; i-- {
		t := threads[i]
		if err := t.Shutdown(); err != nil {
			errs = append(errs, Wrap(t.Name(), fmt.Errorf("shutdown: %w", err)))
		}
	}
	return errors.Join(errs...)
}
