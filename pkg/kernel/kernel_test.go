package kernel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/norasector/rigcore/pkg/thread"
	"github.com/norasector/rigcore/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idler struct {
	*thread.Base
	err error
}

func (i *idler) Subscribe(reg *mailbox.Registry) error {
	cmd, err := mailbox.Lookup[command.Command](reg, MailboxCommand)
	if err != nil {
		return err
	}
	i.Listen(cmd)
	return nil
}

func (i *idler) Run() error {
	return i.Loop(func() (bool, error) {
		return false, i.err
	})
}

func runAsync(k *Kernel, ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- k.Run(ctx) }()
	return ch
}

func wait(t *testing.T, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("kernel did not stop")
		return nil
	}
}

func TestStandardMailboxes(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	assert.Equal(t, []string{"CMD", "CW", "RX", "SPEC", "TX"}, k.Mailboxes().Names())
}

func TestKernelsAreIndependent(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)
	assert.NotSame(t, a.Commands(), b.Commands())
}

func TestStopJoinsEveryStage(t *testing.T) {
	k, err := New(WithStatsInterval(0))
	require.NoError(t, err)

	stages := []*idler{
		{Base: thread.NewBase("one")},
		{Base: thread.NewBase("two")},
		{Base: thread.NewBase("three")},
	}
	for _, s := range stages {
		require.NoError(t, k.Add(s))
	}

	ch := runAsync(k, context.Background())
	require.Eventually(t, func() bool {
		for _, st := range k.Threads().States() {
			if st != thread.Running {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)

	k.Stop()
	require.NoError(t, wait(t, ch))
	for name, st := range k.Threads().States() {
		assert.Equal(t, thread.Joined, st, name)
	}
}

func TestContextCancelStops(t *testing.T) {
	k, err := New(WithStatsInterval(0))
	require.NoError(t, err)
	require.NoError(t, k.Add(&idler{Base: thread.NewBase("one")}))

	ctx, cancel := context.WithCancel(context.Background())
	ch := runAsync(k, ctx)
	cancel()
	require.NoError(t, wait(t, ch))
}

func TestStageFailureStopsOthers(t *testing.T) {
	metrics := &util.RecordingWriteAPI{}
	k, err := New(WithStatsInterval(0), WithInfluxDB(metrics))
	require.NoError(t, err)

	require.NoError(t, k.Add(&idler{Base: thread.NewBase("healthy")}))
	require.NoError(t, k.Add(&idler{Base: thread.NewBase("radio"), err: errors.New("usb disconnected")}))

	err = wait(t, runAsync(k, context.Background()))
	var se *thread.StageError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, "radio", se.Stage)

	require.Eventually(t, func() bool {
		return len(metrics.Points()) > 0
	}, time.Second, time.Millisecond)
	assert.Equal(t, "kernel.stage_failure", metrics.Points()[0])
}

func TestSetupErrorAbortsBeforeStart(t *testing.T) {
	k, err := New(WithStatsInterval(0))
	require.NoError(t, err)

	bad := &missing{Base: thread.NewBase("bad")}
	good := &idler{Base: thread.NewBase("good")}
	require.NoError(t, k.Add(good))
	require.NoError(t, k.Add(bad))

	err = k.Run(context.Background())
	assert.ErrorIs(t, err, mailbox.ErrMailboxMissing)
	assert.Equal(t, thread.Subscribed, good.State())
}

type missing struct{ *thread.Base }

func (m *missing) Subscribe(reg *mailbox.Registry) error {
	_, err := mailbox.Lookup[command.Command](reg, "NOPE")
	return err
}

func (m *missing) Run() error { return nil }

func TestStatsReporter(t *testing.T) {
	metrics := &util.RecordingWriteAPI{}
	k, err := New(WithStatsInterval(time.Millisecond), WithInfluxDB(metrics))
	require.NoError(t, err)
	require.NoError(t, k.Add(&idler{Base: thread.NewBase("one")}))

	ch := runAsync(k, context.Background())
	require.Eventually(t, func() bool {
		return len(metrics.Points()) >= 5
	}, 2*time.Second, time.Millisecond)
	k.Stop()
	require.NoError(t, wait(t, ch))
	assert.Contains(t, metrics.Points(), "kernel.mailbox")
}

func TestNegativeStatsInterval(t *testing.T) {
	_, err := New(WithStatsInterval(-time.Second))
	assert.Error(t, err)
}

func TestStartedAfterSubscribe(t *testing.T) {
	k, err := New(WithStatsInterval(0))
	require.NoError(t, err)
	require.NoError(t, k.Add(&idler{Base: thread.NewBase("one")}))

	select {
	case <-k.Started():
		t.Fatal("started before Run")
	default:
	}

	ch := runAsync(k, context.Background())
	select {
	case <-k.Started():
	case <-time.After(time.Second):
		t.Fatal("never started")
	}
	assert.Equal(t, 1, k.Commands().Stats().Subscriptions)

	k.Stop()
	require.NoError(t, wait(t, ch))
}
