package fir

import (
	"math"
)

func MakeHighPass(gain, sampleRate, cutFrequency, transitionWidth float64, winType WindowType) []float32 {
	nTaps := computeNTaps(sampleRate, transitionWidth, winType)
	taps := make([]float64, nTaps)
	w := Window64(winType, nTaps, 0)

	M := (nTaps - 1) / 2
	fwT0 := 2 * math.Pi * cutFrequency / sampleRate

	for i := -M; i <= M; i++ {
		if i == 0 {
			taps[i+M] = (1 - fwT0/math.Pi) * w[i+M]
		} else {
			taps[i+M] = -math.Sin(float64(i)*fwT0) / (float64(i) * math.Pi) * w[i+M]
		}
	}

	// Gain is normalised at Nyquist.
	fmax := taps[M]
	for i := 1; i <= M; i++ {
		fmax += 2 * taps[i+M] * math.Cos(float64(i)*math.Pi)
	}

	gain /= fmax
	for i := range taps {
		taps[i] *= gain
	}
	return toFloat32(taps)
}
