package baseband

import (
	"context"
	"math"
	"math/cmplx"
	"testing"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/kernel"
	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/norasector/rigcore/pkg/thread"
	"github.com/stretchr/testify/require"
)

var testRates = Rates{RF: 625000, Audio: 48000, BlockDuration: 0.05}

type harness struct {
	t    *testing.T
	k    *kernel.Kernel
	sub  *mailbox.Subscription[command.Command]
	done chan error
}

// start runs threads on a fresh kernel. setup runs after the threads are
// added and before the kernel starts, for extra subscriptions.
func start(t *testing.T, setup func(k *kernel.Kernel), threads ...thread.Thread) *harness {
	t.Helper()

	k, err := kernel.New(kernel.WithStatsInterval(0))
	require.NoError(t, err)
	require.NoError(t, k.Add(threads...))
	if setup != nil {
		setup(k)
	}

	h := &harness{
		t:    t,
		k:    k,
		sub:  k.Commands().Subscribe(),
		done: make(chan error, 1),
	}
	go func() { h.done <- k.Run(context.Background()) }()
	select {
	case <-k.Started():
	case err := <-h.done:
		t.Fatalf("kernel exited before starting: %v", err)
	}
	t.Cleanup(func() {
		k.Stop()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Error("stages did not stop")
		}
	})
	return h
}

func (h *harness) expect(kind command.Kind, target command.Target) command.Command {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cmd, ok := h.sub.Get()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		if cmd.Kind == kind && cmd.Target == target {
			return cmd
		}
	}
	h.t.Fatalf("no %s %s seen", kind, target)
	return command.Command{}
}

// sync sends cmd and waits for its report, so every command sent before it
// has been handled.
func (h *harness) sync(cmd command.Command) command.Command {
	h.t.Helper()
	h.k.Send(cmd)
	return h.expect(command.Report, cmd.Target)
}

// peakFreq is the frequency of the strongest bin in x, signed for complex
// input.
func peakFreq(x []complex128, rate float64) float64 {
	spectrum := fft.FFT(x)
	best, bestMag := 0, -1.0
	for i, v := range spectrum {
		if m := cmplx.Abs(v); m > bestMag {
			best, bestMag = i, m
		}
	}
	if best > len(spectrum)/2 {
		best -= len(spectrum)
	}
	return float64(best) * rate / float64(len(spectrum))
}

// powerAt is the power in dB of the bin nearest f.
func powerAt(x []complex128, rate, f float64) float64 {
	spectrum := fft.FFT(x)
	n := len(spectrum)
	bin := int(math.Round(f * float64(n) / rate))
	if bin < 0 {
		bin += n
	}
	m := cmplx.Abs(spectrum[bin]) / float64(n)
	return 20 * math.Log10(m+1e-12)
}

func realToComplex(x []float32) []complex128 {
	ret := make([]complex128, len(x))
	for i, v := range x {
		ret[i] = complex(float64(v), 0)
	}
	return ret
}

func toComplex128(x []complex64) []complex128 {
	ret := make([]complex128, len(x))
	for i, v := range x {
		ret[i] = complex128(v)
	}
	return ret
}
