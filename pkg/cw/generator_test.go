package cw

import (
	"context"
	"testing"
	"time"

	"github.com/norasector/rigcore/pkg/buffer"
	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/kernel"
	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRate  = 48000
	testBlock = 2400
)

type harness struct {
	t    *testing.T
	k    *kernel.Kernel
	cmds *mailbox.Subscription[command.Command]
	env  *mailbox.Subscription[*buffer.Buffer[float32]]
}

func start(t *testing.T) *harness {
	t.Helper()
	k, err := kernel.New(kernel.WithStatsInterval(0))
	require.NoError(t, err)
	g, err := NewGenerator(testRate, testBlock)
	require.NoError(t, err)
	require.NoError(t, k.Add(g))

	env, err := mailbox.Lookup[*buffer.Buffer[float32]](k.Mailboxes(), kernel.MailboxCW)
	require.NoError(t, err)
	h := &harness{t: t, k: k, cmds: k.Commands().Subscribe(), env: env.Subscribe()}

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
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("generator did not stop")
		}
	})
	return h
}

func (h *harness) expect(target command.Target) command.Command {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		cmd, ok := h.cmds.Get()
		if !ok {
			h.drain()
			time.Sleep(time.Millisecond)
			continue
		}
		if cmd.Kind == command.Report && cmd.Target == target {
			return cmd
		}
	}
	h.t.Fatalf("no REP %s seen", target)
	return command.Command{}
}

// drain consumes envelope blocks as the transmitter would and returns the
// samples.
func (h *harness) drain() []float32 {
	var ret []float32
	for {
		b, ok := h.env.Get()
		if !ok {
			return ret
		}
		require.Equal(h.t, testBlock, b.Len)
		ret = append(ret, b.Samples()...)
		b.Release()
	}
}

func (h *harness) keyDown() {
	h.k.Send(command.NewInt(command.Set, command.TXMode, int32(command.ModCWUpper)))
	h.k.Send(command.NewInt(command.Set, command.TXState, command.StateTXOn))
}

func TestSendsCharactersAndMarker(t *testing.T) {
	h := start(t)
	h.k.Send(command.NewInt(command.Set, command.TXCWSpeed, 20))
	assert.Equal(t, int32(20), h.expect(command.TXCWSpeed).Int())
	h.keyDown()
	h.k.Send(command.NewString(command.Set, command.TXCWText, "eT"))
	h.k.Send(command.NewInt(command.Set, command.TXCWMarker, 7))

	first := h.expect(command.CWCharSent)
	assert.Equal(t, "e", first.Str)
	assert.Equal(t, int32(0), first.Tag)
	second := h.expect(command.CWCharSent)
	assert.Equal(t, "T", second.Str)
	assert.Equal(t, int32(1), second.Tag)

	assert.Equal(t, int32(7), h.expect(command.TXCWMarker).Int())
	h.expect(command.TXCWEmpty)
}

func TestEnvelopeLength(t *testing.T) {
	h := start(t)
	h.k.Send(command.NewInt(command.Set, command.TXCWSpeed, 20))
	h.expect(command.TXCWSpeed)
	h.keyDown()
	h.k.Send(command.NewString(command.Set, command.TXCWText, "e"))
	h.k.Send(command.NewInt(command.Set, command.TXCWMarker, 1))

	var env []float32
	require.Eventually(t, func() bool {
		env = append(env, h.drain()...)
		cmd, ok := h.cmds.Get()
		return ok && cmd.Target == command.TXCWMarker && cmd.Kind == command.Report
	}, 3*time.Second, time.Millisecond)

	// "e" is four dots of 2880 samples, padded to whole blocks.
	assert.Len(t, env, 5*testBlock)
	var keyed int
	for _, v := range env {
		if v == 1 {
			keyed++
		}
	}
	assert.Equal(t, 2880-2*240, keyed)
}

func TestNothingKeyedOutsideCW(t *testing.T) {
	h := start(t)
	h.k.Send(command.NewInt(command.Set, command.TXMode, int32(command.ModUSB)))
	h.k.Send(command.NewInt(command.Set, command.TXState, command.StateTXOn))
	h.k.Send(command.NewString(command.Set, command.TXCWText, "test"))
	h.k.Send(command.New(command.Get, command.TXCWSpeed))
	h.expect(command.TXCWSpeed)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.drain())
}

func TestFlushCountsDroppedText(t *testing.T) {
	h := start(t)
	h.k.Send(command.NewString(command.Set, command.TXCWText, "hello world"))
	h.k.Send(command.NewInt(command.Set, command.TXCWMarker, 3))
	h.k.Send(command.New(command.Set, command.TXCWFlushText))
	assert.Equal(t, int32(11), h.expect(command.TXCWFlushText).Int())

	// Nothing left to key after the flush.
	h.keyDown()
	h.k.Send(command.New(command.Get, command.TXCWSpeed))
	h.expect(command.TXCWSpeed)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.drain())
}

func TestBeaconSuspendsKeying(t *testing.T) {
	h := start(t)
	h.keyDown()
	h.k.Send(command.NewInt(command.Set, command.TXBeacon, 1))
	h.k.Send(command.NewString(command.Set, command.TXCWText, "e"))
	h.k.Send(command.New(command.Get, command.TXCWSpeed))
	h.expect(command.TXCWSpeed)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.drain())

	h.k.Send(command.NewInt(command.Set, command.TXBeacon, 0))
	assert.Equal(t, "e", h.expect(command.CWCharSent).Str)
}
