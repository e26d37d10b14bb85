package fir

import "math"

// besselI0 is the zeroth order modified Bessel function of the first kind,
// summed as a power series until the terms stop contributing.
func besselI0(x float64) float64 {
	sum, term := 1.0, 1.0
	half := x / 2
	for k := 1; k < 500; k++ {
		term *= (half / float64(k)) * (half / float64(k))
		sum += term
		if term < sum*1e-17 {
			break
		}
	}
	return sum
}

// KaiserBeta returns the Kaiser shape parameter for a stopband attenuation
// in dB.
func KaiserBeta(attenuation float64) float64 {
	switch {
	case attenuation > 50:
		return 0.1102 * (attenuation - 8.7)
	case attenuation >= 21:
		return 0.5842*math.Pow(attenuation-21, 0.4) + 0.07886*(attenuation-21)
	default:
		return 0
	}
}

// KaiserNumTaps estimates the odd tap count for a Kaiser design.
func KaiserNumTaps(sampleRate, transitionWidth, attenuation float64) int {
	dw := 2 * math.Pi * transitionWidth / sampleRate
	n := int(math.Ceil((attenuation-8)/(2.285*dw))) + 1
	return n | 1
}

func KaiserWindow64(ntaps int, beta float64) []float64 {
	ret := make([]float64, ntaps)
	if ntaps == 1 {
		ret[0] = 1
		return ret
	}
	M := float64(ntaps - 1)
	denom := besselI0(beta)
	for i := range ret {
		r := 2*float64(i)/M - 1
		ret[i] = besselI0(beta*math.Sqrt(math.Max(0, 1-r*r))) / denom
	}
	return ret
}

// MakeKaiserLowPass64 designs a linear-phase low pass whose transition band
// runs from cutFrequency-transitionWidth/2 to cutFrequency+transitionWidth/2
// with the given stopband attenuation. DC gain is normalised to gain.
func MakeKaiserLowPass64(gain, sampleRate, cutFrequency, transitionWidth, attenuation float64) []float64 {
	nTaps := KaiserNumTaps(sampleRate, transitionWidth, attenuation)
	w := KaiserWindow64(nTaps, KaiserBeta(attenuation))
	taps := make([]float64, nTaps)

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

	var sum float64
	for _, v := range taps {
		sum += v
	}
	gain /= sum
	for i := range taps {
		taps[i] *= gain
	}
	return taps
}
