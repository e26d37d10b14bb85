// Package quad implements a quadrature FM demodulator.
package quad

import (
	"math"

	"github.com/racerxdl/segdsp/dsp"
)

// QuadDemod outputs gain times the phase step between consecutive
// samples. One sample of history carries across calls.
type QuadDemod struct {
	gain    float32
	samples []complex64
}

func MakeQuadDemod(gain float32) *QuadDemod {
	return &QuadDemod{
		gain:    gain,
		samples: make([]complex64, 1),
	}
}

// SetGain changes the scale, for instance after a sample rate change.
func (f *QuadDemod) SetGain(gain float32) {
	f.gain = gain
}

func (f *QuadDemod) WorkBuffer(input []complex64, output []float32) int {
	if len(input) == 0 {
		return 0
	}
	if cap(f.samples) < len(input)+1 {
		s := make([]complex64, 1, len(input)+1)
		s[0] = f.samples[0]
		f.samples = s
	}
	samples := append(f.samples[:1], input...)
	tmp := dsp.MultiplyConjugate(samples[1:], samples, len(input))

	for i := 0; i < len(input); i++ {
		output[i] = f.gain * float32(math.Atan2(float64(imag(tmp[i])), float64(real(tmp[i]))))
	}

	f.samples = samples[:1]
	f.samples[0] = input[len(input)-1]
	return len(input)
}

func (f *QuadDemod) PredictOutputSize(inputLength int) int {
	return inputLength
}
