package radio

import (
	"math/cmplx"
	"reflect"
	"testing"
)

func TestToCS8(t *testing.T) {
	tests := []struct {
		name string
		in   []complex64
		dst  int
		want []byte
		n    int
	}{
		{"unit", []complex64{complex(1, -1)}, 2, []byte{127, 0x81}, 1},
		{"clip", []complex64{complex(2, -3)}, 2, []byte{127, 0x81}, 1},
		{"zero", []complex64{0, 0}, 4, []byte{0, 0, 0, 0}, 2},
		{"short dst", []complex64{0.5, 0.5}, 2, []byte{64, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, tt.dst)
			n := ToCS8(dst, tt.in)
			if n != tt.n || !reflect.DeepEqual(dst, tt.want) {
				t.Errorf("ToCS8() = %d %v, want %d %v", n, dst, tt.n, tt.want)
			}
		})
	}
}

func TestFromCS8(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []complex64
	}{
		{"i first", []byte{127, 0}, []complex64{complex(1, 0)}},
		{"q second", []byte{0, 0x81}, []complex64{complex(0, -1)}},
		{"odd tail", []byte{0, 127, 5}, []complex64{complex(0, 1)}},
		{"empty", nil, []complex64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromCS8(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FromCS8() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCS8RoundTrip(t *testing.T) {
	in := []complex64{complex(0.5, 0.25), complex(-0.75, 0.1), complex(0, -1)}
	buf := make([]byte, 2*len(in))
	if n := ToCS8(buf, in); n != len(in) {
		t.Fatalf("ToCS8() wrote %d samples", n)
	}
	out := FromCS8(buf)
	for i := range in {
		if d := cmplx.Abs(complex128(out[i] - in[i])); d > 1.0/127 {
			t.Errorf("sample %d: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestRange(t *testing.T) {
	r := Range{Min: 10, Max: 20}
	if !r.Contains(10) || !r.Contains(20) || r.Contains(21) {
		t.Error("Contains")
	}
	if r.Clamp(5) != 10 || r.Clamp(25) != 20 || r.Clamp(15) != 15 {
		t.Error("Clamp")
	}
	if r.Span(0.5) != 15 || r.Span(2) != 20 {
		t.Error("Span")
	}
}

func TestCenter(t *testing.T) {
	res := TuneResult{ActualRF: 14.1e6, ActualDSP: -100e3}
	if res.Center() != 14e6 {
		t.Errorf("Center() = %v", res.Center())
	}
}
