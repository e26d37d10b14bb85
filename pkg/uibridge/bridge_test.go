package uibridge

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/norasector/rigcore/pkg/buffer"
	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/kernel"
	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rig struct {
	t    *testing.T
	k    *kernel.Kernel
	path string
	cmds *mailbox.Subscription[command.Command]
	spec *mailbox.Mailbox[*buffer.Buffer[float32]]
	done chan error
}

func start(t *testing.T) *rig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rig")
	b, err := NewBridge(path)
	require.NoError(t, err)
	k, err := kernel.New(kernel.WithStatsInterval(0))
	require.NoError(t, err)
	require.NoError(t, k.Add(b))
	spec, err := mailbox.Lookup[*buffer.Buffer[float32]](k.Mailboxes(), kernel.MailboxSpectrum)
	require.NoError(t, err)

	r := &rig{
		t:    t,
		k:    k,
		path: path,
		cmds: k.Commands().Subscribe(),
		spec: spec,
		done: make(chan error, 1),
	}
	go func() { r.done <- k.Run(context.Background()) }()
	select {
	case <-k.Started():
	case err := <-r.done:
		t.Fatalf("kernel exited before starting: %v", err)
	}
	t.Cleanup(func() {
		k.Stop()
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
			t.Error("bridge did not stop")
		}
	})
	return r
}

func (r *rig) dial() *Client {
	r.t.Helper()
	var c *Client
	require.Eventually(r.t, func() bool {
		var err error
		c, err = Dial(r.path)
		return err == nil
	}, 3*time.Second, 5*time.Millisecond)
	r.t.Cleanup(func() { c.Close() })
	return c
}

func (r *rig) expect(kind command.Kind, target command.Target) command.Command {
	r.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		cmd, ok := r.cmds.Get()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		if cmd.Kind == kind && cmd.Target == target {
			return cmd
		}
	}
	r.t.Fatalf("no %s %s seen", kind, target)
	return command.Command{}
}

func TestClientCommandsReachStream(t *testing.T) {
	r := start(t)
	c := r.dial()

	sent, err := c.SendLine("SET RX_TUNE_FREQ D 144.2e6")
	require.NoError(t, err)
	got := r.expect(command.Set, command.RXTuneFreq)
	assert.Equal(t, 144.2e6, got.Double())
	assert.Equal(t, sent.ID, got.ID)

	require.NoError(t, c.Send(command.NewString(command.Set, command.TXCWText, "cq test")))
	assert.Equal(t, "cq test", r.expect(command.Set, command.TXCWText).Str)
}

func TestReportsReachEveryClient(t *testing.T) {
	r := start(t)
	a, b := r.dial(), r.dial()
	require.NoError(t, a.Send(command.New(command.Get, command.RXFEFreq)))
	require.NoError(t, b.Send(command.New(command.Get, command.RXFEFreq)))
	r.expect(command.Get, command.RXFEFreq)
	r.expect(command.Get, command.RXFEFreq)

	// Commands other than reports stay on the stream.
	r.k.Send(command.NewInt(command.Set, command.RXMode, int32(command.ModAM)))
	r.k.Send(command.NewDouble(command.Report, command.RXFEFreq, 14.074e6))

	for _, c := range []*Client{a, b} {
		rep, err := c.Recv()
		require.NoError(t, err)
		assert.Equal(t, command.Report, rep.Kind)
		assert.Equal(t, command.RXFEFreq, rep.Target)
		assert.Equal(t, 14.074e6, rep.Double())
	}
}

func TestRequestSkipsOtherReports(t *testing.T) {
	r := start(t)
	c := r.dial()

	// Answer the GET the way a stage would, after an unrelated report.
	go func() {
		for {
			cmd, ok := r.cmds.Get()
			if !ok {
				time.Sleep(time.Millisecond)
				continue
			}
			if cmd.Kind == command.Get && cmd.Target == command.TXCWSpeed {
				r.k.Send(command.NewInt(command.Report, command.RXMode, 1))
				r.k.Send(command.NewInt(command.Report, command.TXCWSpeed, 25))
				return
			}
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	rep, err := c.Request(ctx, command.New(command.Get, command.TXCWSpeed))
	require.NoError(t, err)
	assert.Equal(t, int32(25), rep.Int())
}

func TestWaterfall(t *testing.T) {
	r := start(t)
	var w *Waterfall
	require.Eventually(t, func() bool {
		var err error
		w, err = DialWaterfall(r.path)
		return err == nil
	}, 3*time.Second, 5*time.Millisecond)
	defer w.Close()

	// The accept may land after the first row, so keep publishing.
	rows := make(chan []float32, 1)
	go func() {
		row, err := w.Next()
		if err == nil {
			rows <- row
		}
	}()
	pool := buffer.NewPool[float32](3, 1, 4)
	deadline := time.After(3 * time.Second)
	for {
		b := pool.Get()
		copy(b.Data, []float32{-120.5, -80, 0})
		r.spec.Put(b)
		select {
		case row := <-rows:
			assert.Equal(t, []float32{-120.5, -80, 0}, row)
			return
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("no waterfall row")
		}
	}
}

func TestClientStopEndsRun(t *testing.T) {
	r := start(t)
	c := r.dial()
	require.NoError(t, c.Send(command.New(command.Set, command.Stop)))
	select {
	case err := <-r.done:
		assert.NoError(t, err)
		r.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("client STOP did not stop the radio")
	}
}

func TestRowFraming(t *testing.T) {
	buf := AppendRow(nil, []float32{1.5, -2})
	assert.Equal(t, uint32(8), binary.LittleEndian.Uint32(buf))
	assert.Len(t, buf, 12)

	row, err := ReadRow(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2}, row)

	bad := binary.LittleEndian.AppendUint32(nil, 7)
	_, err = ReadRow(bytes.NewReader(append(bad, make([]byte, 7)...)))
	assert.Error(t, err)
}
