package radio

import "math"

// FromCS8 converts interleaved signed 8-bit IQ, I first, the wire format of
// HackRF and RTL-SDR class hardware, to complex samples at unit full scale.
// It is the inverse of ToCS8. A trailing odd byte is ignored.
func FromCS8(buf []byte) []complex64 {
	out := make([]complex64, len(buf)/2)
	for i := range out {
		out[i] = complex(float32(int8(buf[2*i]))/127, float32(int8(buf[2*i+1]))/127)
	}
	return out
}

func toInt8(v float32) byte {
	s := math.Round(float64(v) * 127)
	if s > 127 {
		s = 127
	} else if s < -127 {
		s = -127
	}
	return byte(int8(s))
}

// ToCS8 writes src into dst as interleaved signed 8-bit IQ, clipping at
// full scale. It returns the number of samples written.
func ToCS8(dst []byte, src []complex64) int {
	n := len(dst) / 2
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[2*i] = toInt8(real(src[i]))
		dst[2*i+1] = toInt8(imag(src[i]))
	}
	return n
}
