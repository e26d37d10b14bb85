package rigcore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/norasector/rigcore/pkg/audio"
	"github.com/norasector/rigcore/pkg/baseband"
	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/radio/sim"
	"github.com/norasector/rigcore/pkg/tuning"
	"github.com/norasector/rigcore/pkg/uibridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRates = baseband.Rates{RF: 625000, Audio: 48000, BlockDuration: 0.05}

func testOptions(t *testing.T) Options {
	return Options{
		Rates:           testRates,
		SocketPath:      filepath.Join(t.TempDir(), "rig"),
		Tuning:          tuning.DefaultOptions(),
		SpectrumBuckets: 4096,
		InitialFreq:     14.074e6,
		InitialMode:     command.ModUSB,
		RXGain:          40,
	}
}

func newRig(t *testing.T) (*Rig, *sim.Radio) {
	t.Helper()
	block, err := BlockSize(testRates)
	require.NoError(t, err)
	r := sim.New(sim.WithTone(1000, 0.5))
	rig, err := New(r, audio.NewMemory(testRates.Audio, block, 8), testOptions(t))
	require.NoError(t, err)
	return rig, r
}

func TestStartTunesAndStops(t *testing.T) {
	rig, r := newRig(t)
	sub := rig.Kernel().Commands().Subscribe()

	done := make(chan error, 1)
	go func() { done <- rig.Start(context.Background()) }()

	deadline := time.Now().Add(5 * time.Second)
	var fe command.Command
	for time.Now().Before(deadline) {
		cmd, ok := sub.Get()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		if cmd.Kind == command.Report && cmd.Target == command.RXFEFreq {
			fe = cmd
			break
		}
	}
	require.Equal(t, command.RXFEFreq, fe.Target, "radio never reported its front end")
	assert.NotEmpty(t, r.RXRequests())

	rig.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("rig did not stop")
	}
}

func TestUIClientControlsRig(t *testing.T) {
	rig, _ := newRig(t)
	done := make(chan error, 1)
	go func() { done <- rig.Start(context.Background()) }()

	var c *uibridge.Client
	require.Eventually(t, func() bool {
		var err error
		c, err = uibridge.Dial(rig.opts.SocketPath)
		return err == nil
	}, 3*time.Second, 5*time.Millisecond)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	rep, err := c.Request(ctx, command.New(command.Get, command.SDRVersion))
	require.NoError(t, err)
	assert.Equal(t, "sim-1.0", rep.Str)

	require.NoError(t, c.Send(command.New(command.Set, command.Stop)))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("client STOP did not stop the rig")
	}
}

func TestContextCancelStopsRig(t *testing.T) {
	rig, _ := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rig.Start(ctx) }()

	<-rig.Kernel().Started()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("rig did not stop")
	}
}

func TestNewRejectsBadRates(t *testing.T) {
	opts := testOptions(t)
	opts.Rates.BlockDuration = 0
	_, err := New(sim.New(), audio.NewMemory(48000, 2400, 8), opts)
	assert.Error(t, err)

	// The audio device block must match the rates.
	_, err = New(sim.New(), audio.NewMemory(48000, 1000, 8), testOptions(t))
	assert.Error(t, err)
}
