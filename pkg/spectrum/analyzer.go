// Package spectrum turns received RF blocks into the waterfall rows the UI
// draws and measures the local oscillator offset on request.
package spectrum

import (
	"fmt"

	"github.com/mjibson/go-dsp/fft"
	"github.com/norasector/rigcore/pkg/dsp/filters/fir"
)

// Analyzer computes a windowed, averaged power spectrum of complex blocks.
// Output bucket 0 is -Fs/2, bucket n/2 is DC.
type Analyzer struct {
	n      int
	window []float32
	seg    []complex128
	power  []float64
}

func NewAnalyzer(n int) (*Analyzer, error) {
	if n < 2 || n%2 != 0 {
		return nil, fmt.Errorf("spectrum length %d must be even and at least 2", n)
	}
	return &Analyzer{
		n:      n,
		window: fir.BlackmanHarrisWindow(n, 92),
		seg:    make([]complex128, n),
		power:  make([]float64, n),
	}, nil
}

func (a *Analyzer) Len() int { return a.n }

// Accumulate blends the spectrum of in into acc:
// acc = (1-gain)·|X|² + gain·acc. Segments of n samples overlap by half and
// are averaged. in must hold at least n samples.
func (a *Analyzer) Accumulate(in []complex64, acc []float64, gain float64) error {
	if len(in) < a.n {
		return fmt.Errorf("block of %d samples is shorter than the %d point spectrum", len(in), a.n)
	}
	if len(acc) < a.n {
		return fmt.Errorf("accumulator holds %d buckets, need %d", len(acc), a.n)
	}

	for i := range a.power {
		a.power[i] = 0
	}
	segments := len(in) / a.n
	scale := 1 / float64(segments)
	for off := 0; off+a.n <= len(in); off += a.n / 2 {
		for j := 0; j < a.n; j++ {
			a.seg[j] = complex128(in[off+j]) * complex(float64(a.window[j]), 0)
		}
		for j, v := range fft.FFT(a.seg) {
			a.power[j] += scale * (real(v)*real(v) + imag(v)*imag(v))
		}
	}

	half := a.n / 2
	for j := 0; j < a.n; j++ {
		k := (j + half) % a.n
		acc[j] = a.power[k]*(1-gain) + acc[j]*gain
	}
	return nil
}
