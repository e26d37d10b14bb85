package rfio

import (
	"context"
	"math/cmplx"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/norasector/rigcore/pkg/buffer"
	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/kernel"
	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/norasector/rigcore/pkg/radio"
	"github.com/norasector/rigcore/pkg/radio/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlock = 10000

type rig struct {
	t     *testing.T
	k     *kernel.Kernel
	radio *sim.Radio
	cmds  *mailbox.Subscription[command.Command]
	rx    *mailbox.Subscription[*buffer.Buffer[complex64]]
	tx    *mailbox.Mailbox[*buffer.Buffer[complex64]]
	pool  *buffer.Pool[complex64]
}

func start(t *testing.T) *rig {
	t.Helper()
	r := sim.New(sim.WithTone(1000, 0.5))
	require.NoError(t, r.SetTXEnable(true))

	s, err := NewStreamer(r, testBlock)
	require.NoError(t, err)
	k, err := kernel.New(kernel.WithStatsInterval(0))
	require.NoError(t, err)
	require.NoError(t, k.Add(s))

	rx, err := mailbox.Lookup[*buffer.Buffer[complex64]](k.Mailboxes(), kernel.MailboxRX)
	require.NoError(t, err)
	tx, err := mailbox.Lookup[*buffer.Buffer[complex64]](k.Mailboxes(), kernel.MailboxTX)
	require.NoError(t, err)

	g := &rig{
		t:     t,
		k:     k,
		radio: r,
		cmds:  k.Commands().Subscribe(),
		rx:    rx.Subscribe(),
		tx:    tx,
		pool:  buffer.NewPool[complex64](testBlock, 4, 16),
	}
	done := make(chan error, 1)
	go func() { done <- k.Run(context.Background()) }()
	select {
	case <-k.Started():
	case err := <-done:
		t.Fatalf("kernel exited before starting: %v", err)
	}
	t.Cleanup(func() {
		k.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("streamer did not stop")
		}
		r.Close()
	})
	return g
}

func (g *rig) expect(kind command.Kind, target command.Target) command.Command {
	g.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		cmd, ok := g.cmds.Get()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		if cmd.Kind == kind && cmd.Target == target {
			return cmd
		}
	}
	g.t.Fatalf("no %s %s seen", kind, target)
	return command.Command{}
}

func (g *rig) sync(cmd command.Command) command.Command {
	g.t.Helper()
	g.k.Send(cmd)
	return g.expect(command.Report, cmd.Target)
}

func (g *rig) sendTX(v complex64) {
	b := g.pool.Get()
	for i := range b.Data {
		b.Data[i] = v
	}
	g.tx.Put(b)
}

func TestRXBlocksAreFixedSize(t *testing.T) {
	g := start(t)

	var blocks []*buffer.Buffer[complex64]
	require.Eventually(t, func() bool {
		if b, ok := g.rx.Get(); ok {
			blocks = append(blocks, b)
		}
		return len(blocks) == 3
	}, 3*time.Second, time.Millisecond)

	for i, b := range blocks {
		assert.Equal(t, testBlock, b.Len)
		assert.Equal(t, i, b.Seq)
		for _, v := range b.Samples() {
			require.InDelta(t, 0.5, cmplx.Abs(complex128(v)), 1e-4)
		}
		b.Release()
	}
}

func TestTXOnlyWhileOn(t *testing.T) {
	g := start(t)

	g.sendTX(0.5)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, g.radio.TXCapture())

	assert.Equal(t, int32(1), g.sync(command.NewInt(command.Set, command.TXState, command.StateTXOn)).Int())
	g.sendTX(0.5)
	g.sendTX(0.5)
	require.Eventually(t, func() bool {
		return len(g.radio.TXCapture()) == 2*testBlock
	}, 3*time.Second, time.Millisecond)
	for _, v := range g.radio.TXCapture() {
		require.Equal(t, complex64(0.5), v)
	}

	assert.Equal(t, int32(0), g.sync(command.NewInt(command.Set, command.TXState, command.StateRXOn)).Int())
	g.sendTX(0.25)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, g.radio.TXCapture(), 2*testBlock)
}

func TestBeaconKeysCarrier(t *testing.T) {
	g := start(t)
	g.k.Send(command.NewInt(command.Set, command.TXBeacon, 1))
	g.sync(command.New(command.Get, command.TXState))
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, g.radio.TXCapture(), "beacon keyed with the transmitter off")

	g.sync(command.NewInt(command.Set, command.TXState, command.StateTXOn))
	require.Eventually(t, func() bool {
		return len(g.radio.TXCapture()) > 0
	}, 3*time.Second, time.Millisecond)
	for _, v := range g.radio.TXCapture() {
		require.Equal(t, complex64(1), v)
	}

	g.sync(command.NewInt(command.Set, command.TXState, command.StateRXOn))
	time.Sleep(30 * time.Millisecond)
	n := len(g.radio.TXCapture())
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, g.radio.TXCapture(), n)
}

func TestRecording(t *testing.T) {
	g := start(t)
	path := filepath.Join(t.TempDir(), "rx.cs8")

	g.k.Send(command.NewString(command.Set, command.RFRecordStart, path))
	var seen int
	require.Eventually(t, func() bool {
		if b, ok := g.rx.Get(); ok {
			seen++
			b.Release()
		}
		return seen >= 3
	}, 3*time.Second, time.Millisecond)
	g.k.Send(command.New(command.Set, command.RFRecordStop))
	g.sync(command.New(command.Get, command.TXState))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Zero(t, len(data)%(2*testBlock))

	for _, v := range radio.FromCS8(data) {
		require.InDelta(t, 0.5, cmplx.Abs(complex128(v)), 0.05)
	}
}

func TestRecordingBadPath(t *testing.T) {
	g := start(t)
	path := filepath.Join(t.TempDir(), "missing", "rx.cs8")
	g.k.Send(command.NewString(command.Set, command.RFRecordStart, path))
	assert.Contains(t, g.expect(command.Report, command.StatusMessage).Str, "RF record failed")
}

func TestNewStreamerChecks(t *testing.T) {
	_, err := NewStreamer(sim.New(), 0)
	assert.Error(t, err)
	_, err = NewStreamer(sim.New(), 100, WithRingBlocks(1))
	assert.Error(t, err)
}
