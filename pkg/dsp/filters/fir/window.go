package fir

import (
	"fmt"
	"math"
)

type WindowFunc func(int) []float32

type WindowType int

const (
	Hamming        WindowType = 0
	Hann           WindowType = 1
	BlackmanHarris WindowType = 2
	Blackman       WindowType = 3
)

var windowMaxAttenuation = map[WindowType]int{
	Hamming:        53,
	Hann:           44,
	BlackmanHarris: 92,
	Blackman:       74,
}

func (w WindowType) String() string {
	switch w {
	case Hamming:
		return "hamming"
	case Hann:
		return "hann"
	case BlackmanHarris:
		return "blackman-harris"
	case Blackman:
		return "blackman"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// Attenuation is the stopband attenuation in dB the window reaches.
func (w WindowType) Attenuation() int {
	return windowMaxAttenuation[w]
}

// cosineSum evaluates the generalized cosine window
// c0 - c1 cos(2πi/M) + c2 cos(4πi/M) - c3 cos(6πi/M) ...
func cosineSum(ntaps int, coeffs ...float64) []float64 {
	ret := make([]float64, ntaps)
	if ntaps == 1 {
		ret[0] = 1
		return ret
	}
	M := float64(ntaps - 1)

	for i := 0; i < ntaps; i++ {
		fi := float64(i)
		sign := 1.0
		for k, c := range coeffs {
			ret[i] += sign * c * math.Cos(2*math.Pi*float64(k)*fi/M)
			sign = -sign
		}
	}
	return ret
}

func blackmanHarris64(ntaps, atten int) []float64 {
	switch atten {
	case 61:
		return cosineSum(ntaps, 0.42323, 0.49755, 0.07922)
	case 67:
		return cosineSum(ntaps, 0.44959, 0.49364, 0.05677)
	case 74:
		return cosineSum(ntaps, 0.40271, 0.49703, 0.09392, 0.00183)
	case 92:
		return cosineSum(ntaps, 0.35875, 0.48829, 0.14128, 0.01168)
	default:
		panic(fmt.Errorf("blackman harris window must have attenuation value 61, 67, 74, 92, not %d", atten))
	}
}

// Window64 returns the window taps in double precision. atten only applies
// to BlackmanHarris; zero selects its widest (92 dB) variant.
func Window64(winType WindowType, ntaps, atten int) []float64 {
	switch winType {
	case Hamming:
		return cosineSum(ntaps, 0.54, 0.46)
	case Hann:
		return cosineSum(ntaps, 0.5, 0.5)
	case Blackman:
		return cosineSum(ntaps, 0.42, 0.5, 0.08)
	case BlackmanHarris:
		if atten == 0 {
			atten = 92
		}
		return blackmanHarris64(ntaps, atten)
	default:
		panic(fmt.Errorf("unspecified window type %d", int(winType)))
	}
}

func toFloat32(in []float64) []float32 {
	ret := make([]float32, len(in))
	for i, v := range in {
		ret[i] = float32(v)
	}
	return ret
}

func BlackmanHarrisWindow(ntaps, atten int) []float32 {
	return toFloat32(blackmanHarris64(ntaps, atten))
}

func BlackmanWindow(ntaps int) []float32 {
	return toFloat32(Window64(Blackman, ntaps, 0))
}

func HammingWindow(ntaps int) []float32 {
	return toFloat32(Window64(Hamming, ntaps, 0))
}

func HannWindow(ntaps int) []float32 {
	return toFloat32(Window64(Hann, ntaps, 0))
}
