package fir

import "math"

func MakeBandPass(gain, sampleRate, lowCut, highCut, transitionWidth float64, winType WindowType) []float32 {
	nTaps := computeNTaps(sampleRate, transitionWidth, winType)
	taps := make([]float64, nTaps)
	w := Window64(winType, nTaps, 0)

	M := (nTaps - 1) / 2
	fwT0 := 2 * math.Pi * lowCut / sampleRate
	fwT1 := 2 * math.Pi * highCut / sampleRate

	for i := -M; i <= M; i++ {
		if i == 0 {
			taps[i+M] = (fwT1 - fwT0) / math.Pi * w[i+M]
		} else {
			fi := float64(i)
			taps[i+M] = (math.Sin(fi*fwT1) - math.Sin(fi*fwT0)) / (fi * math.Pi) * w[i+M]
		}
	}

	// Normalise the gain at the band centre.
	fmax := taps[M]
	for i := 1; i <= M; i++ {
		fmax += 2 * taps[i+M] * math.Cos(float64(i)*(fwT0+fwT1)*0.5)
	}

	gain /= fmax
	for i := range taps {
		taps[i] *= gain
	}
	return toFloat32(taps)
}

// MakeComplexBandPass shifts a low pass of half the band's width up to the
// band centre, giving a filter that passes only one side of zero. SSB and CW
// use it to select a sideband.
func MakeComplexBandPass(gain, sampleRate, lowCut, highCut, transitionWidth float64, winType WindowType) []complex64 {
	lptaps := MakeLowPass64(gain, sampleRate, (highCut-lowCut)/2.0, transitionWidth,
		float64(winType.Attenuation()), winType)
	ret := make([]complex64, len(lptaps))

	freq := math.Pi * (highCut + lowCut) / sampleRate
	phase := -freq * float64(len(lptaps)>>1)

	for i, tap := range lptaps {
		ret[i] = complex(float32(tap*math.Cos(phase)), float32(tap*math.Sin(phase)))
		phase += freq
	}
	return ret
}
