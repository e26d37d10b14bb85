package mixer

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/mjibson/go-dsp/fft"
)

func peakBin(buf []complex64) int {
	x := make([]complex128, len(buf))
	for i, v := range buf {
		x[i] = complex128(v)
	}
	spectrum := fft.FFT(x)
	peak := 0
	for i := range spectrum {
		if cmplx.Abs(spectrum[i]) > cmplx.Abs(spectrum[peak]) {
			peak = i
		}
	}
	return peak
}

func TestShift(t *testing.T) {
	const rate = 1024.0
	tests := []struct {
		name     string
		toneHz   float64
		shiftHz  float64
		wantBin  int
	}{
		{"down to dc", 100, -100, 0},
		{"up", 100, 50, 150},
		{"negative", -200, 100, 1024 - 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]complex64, 1024)
			NewOscillator(rate, tt.toneHz).Tone(in, 1)
			out := make([]complex64, len(in))
			if n := NewOscillator(rate, tt.shiftHz).WorkBuffer(in, out); n != len(in) {
				t.Fatalf("WorkBuffer() = %d", n)
			}
			if got := peakBin(out); got != tt.wantBin {
				t.Errorf("peak at bin %d, want %d", got, tt.wantBin)
			}
		})
	}
}

func TestRetuneIsPhaseContinuous(t *testing.T) {
	o := NewOscillator(48000, 1000)
	buf := make([]complex64, 100)
	o.Tone(buf, 1)
	last := buf[len(buf)-1]

	o.SetFrequency(2000)
	o.Tone(buf, 1)

	// The first sample after the retune is one 1000 Hz step on from the
	// last sample before it.
	want := complex128(last) * cmplx.Exp(complex(0, 2*math.Pi*1000/48000))
	if d := cmplx.Abs(complex128(buf[0]) - want); d > 1e-5 {
		t.Errorf("phase jump %v", d)
	}
	if o.Frequency() != 2000 {
		t.Errorf("Frequency() = %v", o.Frequency())
	}
}

func TestToneReal(t *testing.T) {
	o := NewOscillator(8000, 0)
	out := make([]float32, 4)
	o.ToneReal(out, []float32{0.5, 1, 0, 2})
	want := []float32{0.5, 1, 0, 2}
	for i := range out {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}
