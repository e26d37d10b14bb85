package thread

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// KernelVersion is stamped into every Base and checked when a thread is
// added to a registry, so a stage compiled against another kernel is
// refused before anything runs.
const KernelVersion = "rigcore-1"

const defaultIdle = 10 * time.Millisecond

// State is a thread's lifecycle position.
type State int32

const (
	Created State = iota
	Subscribed
	Running
	Stopping
	Joined
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Subscribed:
		return "SUBSCRIBED"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Joined:
		return "JOINED"
	default:
		return fmt.Sprintf("STATE(%d)", int32(s))
	}
}

// Thread is a supervised stage. Implementations embed *Base, which supplies
// the lifecycle bookkeeping and the command loop.
type Thread interface {
	Name() string
	// Subscribe looks up and subscribes to every mailbox the thread reads.
	Subscribe(reg *mailbox.Registry) error
	// Run executes the stage loop until STOP or an error.
	Run() error
	// Shutdown releases resources after every thread has been joined.
	Shutdown() error

	base() *Base
}

// HandlerFunc handles one command.
type HandlerFunc func(cmd command.Command) error

type handlerKey struct {
	kind   command.Kind
	target command.Target
}

// Base carries the state shared by every stage: its name, lifecycle,
// command subscriptions and handler table.
type Base struct {
	name    string
	version string
	logger  zerolog.Logger
	state   atomic.Int32

	wake     chan struct{}
	idle     time.Duration
	timer    *time.Timer
	cmdSubs  []*mailbox.Subscription[command.Command]
	handlers map[handlerKey]HandlerFunc
	byKind   map[command.Kind]HandlerFunc
	stopSeen bool
}

type Option func(b *Base)

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Base) {
		b.logger = logger
	}
}

// WithIdle sets how long the loop sleeps when there is nothing to do.
func WithIdle(d time.Duration) Option {
	return func(b *Base) {
		b.idle = d
	}
}

// WithVersion overrides the kernel version a stage claims to be built for.
func WithVersion(v string) Option {
	return func(b *Base) {
		b.version = v
	}
}

func NewBase(name string, opts ...Option) *Base {
	b := &Base{
		name:     name,
		version:  KernelVersion,
		logger:   log.Logger,
		wake:     make(chan struct{}, 1),
		idle:     defaultIdle,
		handlers: make(map[handlerKey]HandlerFunc),
		byKind:   make(map[command.Kind]HandlerFunc),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With().Str("stage", name).Logger()
	return b
}

func (b *Base) base() *Base { return b }

func (b *Base) Name() string { return b.name }

func (b *Base) State() State { return State(b.state.Load()) }

func (b *Base) setState(s State) { b.state.Store(int32(s)) }

// Logger is the stage's logger, tagged with its name.
func (b *Base) Logger() *zerolog.Logger { return &b.logger }

// Wake is the channel the loop waits on when idle. Pass it to
// mailbox.WithNotify for data mailboxes so a put ends the idle sleep.
func (b *Base) Wake() chan<- struct{} { return b.wake }

// Idle returns the current idle interval.
func (b *Base) Idle() time.Duration { return b.idle }

// SetIdle changes the idle interval; only the stage's own loop calls it.
func (b *Base) SetIdle(d time.Duration) { b.idle = d }

// Listen subscribes the loop to a command mailbox.
func (b *Base) Listen(m *mailbox.Mailbox[command.Command]) {
	b.cmdSubs = append(b.cmdSubs, m.Subscribe(mailbox.WithNotify(b.wake)))
}

// Handle registers fn for one kind/target pair. Registering the same pair
// twice is a wiring bug and panics.
func (b *Base) Handle(kind command.Kind, target command.Target, fn HandlerFunc) {
	key := handlerKey{kind: kind, target: target}
	if _, ok := b.handlers[key]; ok {
		panic(fmt.Errorf("%s: duplicate handler for %s %s", b.name, kind, target))
	}
	b.handlers[key] = fn
}

// HandleKind registers a fallback for every target of kind that has no
// specific handler.
func (b *Base) HandleKind(kind command.Kind, fn HandlerFunc) {
	if _, ok := b.byKind[kind]; ok {
		panic(fmt.Errorf("%s: duplicate handler for kind %s", b.name, kind))
	}
	b.byKind[kind] = fn
}

// Handles reports whether a handler exists for kind/target.
func (b *Base) Handles(kind command.Kind, target command.Target) bool {
	_, ok := b.handlers[handlerKey{kind: kind, target: target}]
	return ok
}

// Shutdown is a no-op; stages holding resources override it.
func (b *Base) Shutdown() error { return nil }

// Stopping reports whether the loop has seen STOP.
func (b *Base) Stopping() bool { return b.stopSeen }

func (b *Base) dispatch(cmd command.Command) error {
	if fn, ok := b.handlers[handlerKey{kind: cmd.Kind, target: cmd.Target}]; ok {
		return fn(cmd)
	}
	if fn, ok := b.byKind[cmd.Kind]; ok {
		return fn(cmd)
	}
	return nil
}

// drain dispatches every pending command on every subscription. It stops
// early at STOP.
func (b *Base) drain() (int, error) {
	count := 0
	for _, sub := range b.cmdSubs {
		for {
			cmd, ok := sub.Get()
			if !ok {
				break
			}
			count++
			if err := b.dispatch(cmd); err != nil {
				return count, fmt.Errorf("handling %s: %w", cmd, err)
			}
			if cmd.IsStop() {
				b.stopSeen = true
				return count, nil
			}
		}
	}
	return count, nil
}

func (b *Base) idleWait() {
	if b.timer == nil {
		b.timer = time.NewTimer(b.idle)
	} else {
		b.timer.Reset(b.idle)
	}

	select {
	case <-b.wake:
		if !b.timer.Stop() {
			<-b.timer.C
		}
	case <-b.timer.C:
	}
}

// Loop is the stage run loop: dispatch all pending commands, then do one
// quantum of work, sleeping for the idle interval when neither produced
// anything. It returns nil once STOP has been seen, after the current
// quantum. work may be nil for purely command-driven stages.
func (b *Base) Loop(work func() (bool, error)) error {
	for {
		n, err := b.drain()
		if err != nil {
			return err
		}
		if b.stopSeen {
			b.setState(Stopping)
			return nil
		}

		busy := false
		if work != nil {
			if busy, err = work(); err != nil {
				return err
			}
		}

		if n == 0 && !busy {
			b.idleWait()
		}
	}
}
