package thread

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echo is a stage that records every SET it sees and optionally puts one
// REP on the command mailbox when it starts running.
type echo struct {
	*Base

	cmd     *mailbox.Mailbox[command.Command]
	greet   bool
	failOn  command.Target
	mu      sync.Mutex
	seen    []command.Target
	quantum int
}

func newEcho(name string, opts ...Option) *echo {
	e := &echo{Base: NewBase(name, append(opts, WithIdle(time.Millisecond))...)}
	e.HandleKind(command.Set, func(c command.Command) error {
		if c.Target == e.failOn {
			return errors.New("boom")
		}
		e.mu.Lock()
		e.seen = append(e.seen, c.Target)
		e.mu.Unlock()
		return nil
	})
	e.HandleKind(command.Report, func(c command.Command) error {
		e.mu.Lock()
		e.seen = append(e.seen, c.Target)
		e.mu.Unlock()
		return nil
	})
	return e
}

func (e *echo) Subscribe(reg *mailbox.Registry) error {
	m, err := mailbox.Lookup[command.Command](reg, "CMD")
	if err != nil {
		return err
	}
	e.cmd = m
	e.Listen(m)
	return nil
}

func (e *echo) Run() error {
	if e.greet {
		e.cmd.Put(command.New(command.Report, command.InitSetupComplete))
	}
	return e.Loop(func() (bool, error) {
		e.quantum++
		return false, nil
	})
}

func (e *echo) targets() []command.Target {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]command.Target(nil), e.seen...)
}

type panicker struct{ *Base }

func (p *panicker) Subscribe(*mailbox.Registry) error { return nil }
func (p *panicker) Run() error                        { panic("bad stage") }

func setup(t *testing.T) (*mailbox.Registry, *mailbox.Mailbox[command.Command]) {
	reg := mailbox.NewRegistry()
	cmd, err := mailbox.Register[command.Command](reg, "CMD")
	require.NoError(t, err)
	return reg, cmd
}

func join(t *testing.T, r *Registry) error {
	done := make(chan error, 1)
	go func() { done <- r.JoinAll() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("threads did not stop")
		return nil
	}
}

func TestStartupMessageSeenByAllStages(t *testing.T) {
	reg, cmd := setup(t)
	r := NewRegistry()

	first := newEcho("first")
	first.greet = true
	second := newEcho("second")
	require.NoError(t, r.Add(first))
	require.NoError(t, r.Add(second))

	require.NoError(t, r.SubscribeAll(reg))
	assert.Equal(t, Subscribed, first.State())
	require.NoError(t, r.StartAll(nil))

	require.Eventually(t, func() bool {
		return len(second.targets()) == 1
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, []command.Target{command.InitSetupComplete}, second.targets())

	cmd.Put(command.New(command.Set, command.Stop))
	require.NoError(t, join(t, r))
	assert.Equal(t, Joined, first.State())
	assert.Equal(t, Joined, second.State())
}

func TestStopEndsLoop(t *testing.T) {
	reg, cmd := setup(t)
	r := NewRegistry()
	e := newEcho("e")
	require.NoError(t, r.Add(e))
	require.NoError(t, r.SubscribeAll(reg))
	require.NoError(t, r.StartAll(nil))

	cmd.Put(command.NewInt(command.Set, command.RXMode, 1))
	cmd.Put(command.New(command.Set, command.Stop))
	// Commands after STOP are not dispatched.
	cmd.Put(command.NewInt(command.Set, command.TXMode, 1))

	require.NoError(t, join(t, r))
	assert.Equal(t, []command.Target{command.RXMode, command.Stop}, e.targets())
}

func TestHandlerErrorIsAttributed(t *testing.T) {
	reg, cmd := setup(t)
	r := NewRegistry()

	bad := newEcho("bad")
	bad.failOn = command.RXRFGain
	good := newEcho("good")
	require.NoError(t, r.Add(bad))
	require.NoError(t, r.Add(good))
	require.NoError(t, r.SubscribeAll(reg))

	var failures []error
	require.NoError(t, r.StartAll(func(err error) {
		failures = append(failures, err)
		cmd.Put(command.New(command.Set, command.Stop))
	}))

	cmd.Put(command.NewInt(command.Set, command.RXRFGain, 50))
	err := join(t, r)

	var se *StageError
	require.True(t, errors.As(err, &se), "error %v is not a StageError", err)
	assert.Equal(t, "bad", se.Stage)
	assert.Len(t, failures, 1)
}

func TestPanicBecomesStageError(t *testing.T) {
	reg, _ := setup(t)
	r := NewRegistry()
	require.NoError(t, r.Add(&panicker{NewBase("panicky")}))
	require.NoError(t, r.SubscribeAll(reg))
	require.NoError(t, r.StartAll(nil))

	err := join(t, r)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "panicky", se.Stage)
}

func TestAddChecks(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(newEcho("a")))
	assert.ErrorIs(t, r.Add(newEcho("a")), ErrDuplicateName)
	assert.ErrorIs(t, r.Add(newEcho("b", WithVersion("old"))), ErrVersionMismatch)
}

func TestStartBeforeSubscribe(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(newEcho("a")))
	assert.ErrorIs(t, r.StartAll(nil), ErrNotSubscribed)
}

func TestSubscribeFailureNamesStage(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(newEcho("lonely")))
	err := r.SubscribeAll(mailbox.NewRegistry())

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "lonely", se.Stage)
	assert.ErrorIs(t, err, mailbox.ErrMailboxMissing)
}

func TestDuplicateHandlerPanics(t *testing.T) {
	b := NewBase("x")
	b.Handle(command.Get, command.RXMode, func(command.Command) error { return nil })
	assert.Panics(t, func() {
		b.Handle(command.Get, command.RXMode, func(command.Command) error { return nil })
	})
	assert.True(t, b.Handles(command.Get, command.RXMode))
	assert.False(t, b.Handles(command.Set, command.RXMode))
}

func TestSpecificHandlerWins(t *testing.T) {
	b := NewBase("x")
	var got string
	b.HandleKind(command.Get, func(command.Command) error { got = "kind"; return nil })
	b.Handle(command.Get, command.RXMode, func(command.Command) error { got = "target"; return nil })

	require.NoError(t, b.dispatch(command.New(command.Get, command.RXMode)))
	assert.Equal(t, "target", got)
	require.NoError(t, b.dispatch(command.New(command.Get, command.TXMode)))
	assert.Equal(t, "kind", got)
}

func TestShutdownAllCollectsErrors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&failingShutdown{Base: NewBase("s1")}))
	require.NoError(t, r.Add(&failingShutdown{Base: NewBase("s2")}))
	err := r.ShutdownAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s1")
	assert.Contains(t, err.Error(), "s2")
}

type failingShutdown struct{ *Base }

func (f *failingShutdown) Subscribe(*mailbox.Registry) error { return nil }
func (f *failingShutdown) Run() error                        { return nil }
func (f *failingShutdown) Shutdown() error                   { return errors.New("device busy") }
