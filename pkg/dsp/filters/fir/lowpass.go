package fir

import (
	"math"
)

// NumTaps estimates the odd tap count needed for attenuationDB of stopband
// rejection across transitionWidth.
func NumTaps(sampleRate, transitionWidth, attenuationDB float64) int {
	ntaps := int(attenuationDB * sampleRate / (22.0 * transitionWidth))
	ntaps |= 1
	return ntaps
}

func computeNTaps(sampleRate float64, transitionWidth float64, winType WindowType) int {
	return NumTaps(sampleRate, transitionWidth, float64(winType.Attenuation()))
}

// MakeLowPass64 designs a linear-phase windowed-sinc low pass in double
// precision with the given DC gain.
func MakeLowPass64(gain, sampleRate, cutFrequency, transitionWidth, attenuation float64, winType WindowType) []float64 {
	nTaps := NumTaps(sampleRate, transitionWidth, attenuation)
	taps := make([]float64, nTaps)
	w := Window64(winType, nTaps, int(attenuation))

	M := (nTaps - 1) / 2
	fwT0 := 2 * math.Pi * cutFrequency / sampleRate

	for i := -M; i <= M; i++ {
		if i == 0 {
			taps[i+M] = fwT0 / math.Pi * w[i+M]
		} else {
			fi := float64(i)
			taps[i+M] = math.Sin(fi*fwT0) / (fi * math.Pi) * w[i+M]
		}
	}

	fmax := taps[M]
	for i := 1; i <= M; i++ {
		fmax += 2 * taps[i+M]
	}

	gain /= fmax
	for i := range taps {
		taps[i] *= gain
	}
	return taps
}

// MakeLowPass2 is MakeLowPass with an explicit attenuation target.
func MakeLowPass2(gain, sampleRate, cutFrequency, transitionWidth, attenuation float64, winType WindowType) []float32 {
	return toFloat32(MakeLowPass64(gain, sampleRate, cutFrequency, transitionWidth, attenuation, winType))
}

func MakeLowPass(gain, sampleRate, cutFrequency, transitionWidth float64, winType WindowType) []float32 {
	return MakeLowPass2(gain, sampleRate, cutFrequency, transitionWidth, float64(winType.Attenuation()), winType)
}
