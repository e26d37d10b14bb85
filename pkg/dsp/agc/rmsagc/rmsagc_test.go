package rmsagc

import (
	"math"
	"testing"
)

func sine(n int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*float64(i)/50))
	}
	return out
}

func rms(s []float32) float64 {
	var sum float64
	for _, v := range s {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(s)))
}

func TestConverges(t *testing.T) {
	tests := []struct {
		name string
		amp  float64
	}{
		{"quiet", 0.01},
		{"unit", 1},
		{"loud", 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agc := NewRMSAGC(0.01, 0.5)
			in := sine(20000, tt.amp)
			out := make([]float32, len(in))
			agc.WorkBuffer(in, out)
			if got := rms(out[len(out)-1000:]); math.Abs(got-0.5) > 0.05 {
				t.Errorf("settled rms = %v, want 0.5", got)
			}
		})
	}
}

func TestMaxGain(t *testing.T) {
	agc := NewRMSAGC(0.01, 0.5)
	agc.SetMaxGain(10)
	in := sine(20000, 0.001)
	out := make([]float32, len(in))
	agc.WorkBuffer(in, out)
	if g := agc.Gain(); g != 10 {
		t.Errorf("Gain() = %v, want 10", g)
	}

	agc.SetMaxGain(0)
	agc.Reset()
	if g := agc.Gain(); g != 0.5 {
		t.Errorf("Gain() after reset = %v, want 0.5", g)
	}
}
