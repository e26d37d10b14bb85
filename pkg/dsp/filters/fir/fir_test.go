package fir

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/mjibson/go-dsp/fft"
)

func response(taps []float64, freq, sampleRate float64) float64 {
	var sum complex128
	for i, tap := range taps {
		sum += complex(tap, 0) * cmplx.Exp(complex(0, -2*math.Pi*freq/sampleRate*float64(i)))
	}
	return cmplx.Abs(sum)
}

func TestNumTaps(t *testing.T) {
	tests := []struct {
		name                  string
		sampleRate, tw, atten float64
		want                  int
	}{
		{"resampler 48k/625k", 30e6, 4800, 92, 26137},
		{"audio", 48000, 1000, 53, 115},
		{"odd already", 22, 1, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NumTaps(tt.sampleRate, tt.tw, tt.atten); got != tt.want {
				t.Errorf("NumTaps() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWindowsAreSymmetric(t *testing.T) {
	for _, w := range []WindowType{Hamming, Hann, Blackman, BlackmanHarris} {
		t.Run(w.String(), func(t *testing.T) {
			taps := Window64(w, 31, 0)
			for i := range taps {
				if math.Abs(taps[i]-taps[len(taps)-1-i]) > 1e-12 {
					t.Fatalf("tap %d = %v, mirror = %v", i, taps[i], taps[len(taps)-1-i])
				}
			}
			if math.Abs(taps[15]-1) > 1e-3 {
				t.Errorf("centre tap = %v", taps[15])
			}
		})
	}
}

func TestBlackmanHarrisBadAttenuation(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	BlackmanHarrisWindow(11, 50)
}

func TestLowPassResponse(t *testing.T) {
	const sr = 48000.0
	taps := MakeLowPass64(1, sr, 3000, 1000, 92, BlackmanHarris)

	if got := response(taps, 0, sr); math.Abs(got-1) > 1e-9 {
		t.Errorf("DC gain = %v", got)
	}
	if got := 20 * math.Log10(response(taps, 1500, sr)); math.Abs(got) > 0.1 {
		t.Errorf("passband gain = %.3f dB", got)
	}
	if got := 20 * math.Log10(response(taps, 5000, sr)); got > -80 {
		t.Errorf("stopband gain = %.1f dB", got)
	}
}

func TestBandPassMatchesFFT(t *testing.T) {
	const sr = 8000.0
	taps := MakeBandPass(1, sr, 500, 1500, 200, Hamming)

	in := make([]complex128, 1024)
	for i, v := range taps {
		in[i] = complex(float64(v), 0)
	}
	spectrum := fft.FFT(in)

	centre := cmplx.Abs(spectrum[1000*len(in)/int(sr)])
	if math.Abs(centre-1) > 0.02 {
		t.Errorf("band centre gain = %v", centre)
	}
	if out := cmplx.Abs(spectrum[3000*len(in)/int(sr)]); out > 0.01 {
		t.Errorf("out of band gain = %v", out)
	}
}

func TestComplexBandPassSelectsOneSide(t *testing.T) {
	const sr = 8000.0
	taps := MakeComplexBandPass(1, sr, 300, 2700, 300, Hamming)

	in := make([]complex128, 2048)
	for i, v := range taps {
		in[i] = complex128(v)
	}
	spectrum := fft.FFT(in)

	bin := func(f float64) int {
		b := int(f * float64(len(in)) / sr)
		if b < 0 {
			b += len(in)
		}
		return b
	}
	if pos := cmplx.Abs(spectrum[bin(1500)]); math.Abs(pos-1) > 0.05 {
		t.Errorf("upper sideband gain = %v", pos)
	}
	if neg := cmplx.Abs(spectrum[bin(-1500)]); neg > 0.01 {
		t.Errorf("lower sideband gain = %v", neg)
	}
}

func TestHighPassBlocksDC(t *testing.T) {
	taps := MakeHighPass(1, 48000, 300, 200, Hamming)
	var dc float64
	for _, v := range taps {
		dc += float64(v)
	}
	if math.Abs(dc) > 0.01 {
		t.Errorf("DC gain = %v", dc)
	}
}

func TestKaiserLowPass(t *testing.T) {
	const sr = 48000.0
	taps := MakeKaiserLowPass64(1, sr, 4000, 1000, 72)
	if len(taps) != KaiserNumTaps(sr, 1000, 72) || len(taps)%2 == 0 {
		t.Fatalf("len = %d", len(taps))
	}

	tests := []struct {
		freq float64
		min  float64
		max  float64
	}{
		{0, -0.001, 0.001},
		{3000, -0.01, 0.01},
		{3500, -0.01, 0.01},
		{4500, math.Inf(-1), -68},
		{8000, math.Inf(-1), -68},
	}
	for _, tt := range tests {
		got := 20 * math.Log10(response(taps, tt.freq, sr))
		if got < tt.min || got > tt.max {
			t.Errorf("gain at %v Hz = %.2f dB, want [%v, %v]", tt.freq, got, tt.min, tt.max)
		}
	}
}

func TestKaiserBeta(t *testing.T) {
	tests := []struct {
		atten, want float64
	}{
		{72, 0.1102 * (72 - 8.7)},
		{21, 0},
		{10, 0},
	}
	for _, tt := range tests {
		if got := KaiserBeta(tt.atten); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("KaiserBeta(%v) = %v, want %v", tt.atten, got, tt.want)
		}
	}
}
