package cw

import (
	"testing"
)

func TestCode(t *testing.T) {
	tests := []struct {
		c    rune
		want string
		ok   bool
	}{
		{'a', ".-", true},
		{'A', ".-", true},
		{'0', "-----", true},
		{'?', "..--..", true},
		{'/', "-..-.", true},
		{'#', "", false},
	}
	for _, tt := range tests {
		got, ok := Code(tt.c)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Code(%q) = %q, %v", tt.c, got, ok)
		}
	}
}

func TestSpeedClamp(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, MinWPM},
		{-3, MinWPM},
		{20, 20},
		{99, MaxWPM},
	}
	for _, tt := range tests {
		k := NewKeyer(48000, tt.in)
		if k.WPM() != tt.want {
			t.Errorf("NewKeyer(%d).WPM() = %d", tt.in, k.WPM())
		}
	}
}

func TestElementTiming(t *testing.T) {
	k := NewKeyer(48000, 20)
	dot := k.DotSamples()
	if dot != 2880 {
		t.Fatalf("dot = %d samples, want 2880", dot)
	}

	tests := []struct {
		text string
		dots int
	}{
		// element + gap, then the two-dot character space
		{"e", 2 + 2},
		{"t", 4 + 2},
		{"a", 2 + 4 + 2},
		{" ", 6},
		// a digraph runs the two characters together
		{"_ar", 2 + 4 + 2 + 4 + 2 + 2},
		{"#", 0},
	}
	for _, tt := range tests {
		var out []float32
		for _, c := range tt.text {
			out, _ = k.Envelope(out, c)
		}
		if len(out) != tt.dots*dot {
			t.Errorf("%q: %d samples, want %d dots (%d)", tt.text, len(out), tt.dots, tt.dots*dot)
		}
	}
}

func TestEdgesAreShaped(t *testing.T) {
	k := NewKeyer(48000, 20)
	out, ok := k.Envelope(nil, 'e')
	if !ok {
		t.Fatal("e not keyed")
	}
	edge := 240
	if out[0] != 0 {
		t.Errorf("element starts at %v", out[0])
	}
	for i := 1; i < edge; i++ {
		if out[i] <= out[i-1] {
			t.Fatalf("rising edge not monotonic at %d", i)
		}
	}
	if out[edge] != 1 || out[k.DotSamples()/2] != 1 {
		t.Errorf("element not fully keyed after the edge")
	}
	if out[k.DotSamples()-1] != 0 {
		t.Errorf("element does not end at zero: %v", out[k.DotSamples()-1])
	}
	for _, v := range out[k.DotSamples():] {
		if v != 0 {
			t.Fatal("gap is not silent")
		}
	}
}
