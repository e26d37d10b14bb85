package tuning

import (
	"math"
	"reflect"
	"testing"

	"github.com/norasector/rigcore/pkg/radio"
)

func TestFirstLO(t *testing.T) {
	tests := []struct {
		freq, want float64
	}{
		{144.2e6, 144.1e6},
		{144.25e6, 144.1e6},
		{7.074e6, 6.9e6},
		{1296.199e6, 1296.0e6},
		{10.1e6, 10.0e6},
		{50.3131e6, 50.2e6},
	}
	for _, tt := range tests {
		got := FirstLO(tt.freq)
		if got != tt.want {
			t.Errorf("FirstLO(%v) = %v, want %v", tt.freq, got, tt.want)
		}
		if d := tt.freq - got; d < 100e3 || d >= 200e3 {
			t.Errorf("FirstLO(%v) leaves IF %v", tt.freq, d)
		}
	}
}

func TestRXLONearRangeEdge(t *testing.T) {
	rng := radio.Range{Min: 1e6, Max: 6e9}
	tests := []struct {
		freq, want float64
	}{
		{144.2e6, 144.1e6},
		{1.2e6, 1.1e6},
		{1.0e6, 1.1e6},
		{1.05e6, 1.2e6},
		{1.15e6, 1.0e6},
	}
	for _, tt := range tests {
		got := rxLO(tt.freq, rng)
		if got != tt.want {
			t.Errorf("rxLO(%v) = %v, want %v", tt.freq, got, tt.want)
		}
		if !rng.Contains(got) {
			t.Errorf("rxLO(%v) = %v is outside %v", tt.freq, got, rng)
		}
		if d := math.Abs(tt.freq - got); d < 100e3 || d >= 200e3 {
			t.Errorf("rxLO(%v) leaves IF %v", tt.freq, tt.freq-got)
		}
	}
}

func TestIntNRequest(t *testing.T) {
	tests := []struct {
		name          string
		target, avoid float64
		want          radio.TuneRequest
	}{
		{
			name:   "below integer-N floor",
			target: 5e6, avoid: 5e6,
			want: radio.TuneRequest{Target: 5e6, RF: 5e6, Policy: radio.PolicyAuto},
		},
		{
			name:   "first step clear",
			target: 144e6, avoid: 144e6,
			want: radio.TuneRequest{Target: 144e6, RF: 150e6, Policy: radio.PolicyManual, IntN: true, Step: 12.5e6},
		},
		{
			name:   "first step clear at 70cm",
			target: 432.1e6, avoid: 432.1e6,
			want: radio.TuneRequest{Target: 432.1e6, RF: 437.5e6, Policy: radio.PolicyManual, IntN: true, Step: 12.5e6},
		},
		{
			name:   "second step clear",
			target: 62e6, avoid: 62.4e6,
			want: radio.TuneRequest{Target: 62e6, RF: 60e6, Policy: radio.PolicyManual, IntN: true, Step: 10e6},
		},
		{
			name:   "all steps collide, bump up",
			target: 100.4e6, avoid: 100.4e6,
			want: radio.TuneRequest{Target: 100.4e6, RF: 112.5e6, Policy: radio.PolicyManual, IntN: true, Step: 12.5e6},
		},
		{
			name:   "all steps collide on the avoid frequency",
			target: 150e6, avoid: 150e6,
			want: radio.TuneRequest{Target: 150e6, RF: 162.5e6, Policy: radio.PolicyManual, IntN: true, Step: 12.5e6},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IntNRequest(tt.target, tt.avoid)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("IntNRequest() = %+v, want %+v", got, tt.want)
			}
			if got.IntN && math.Mod(got.RF, got.Step) != 0 {
				t.Errorf("RF %v is not a multiple of step %v", got.RF, got.Step)
			}
		})
	}
}

func TestTXRequest(t *testing.T) {
	tests := []struct {
		name         string
		freq, rxFreq float64
		intN         bool
		want         radio.TuneRequest
	}{
		{"fractional", 145e6, 144e6, false, radio.TuneRequest{Target: 145e6, RF: 145e6}},
		{"hf integer", 14.1e6, 14.074e6, true, radio.TuneRequest{Target: 14.1e6, RF: 14.1e6, IntN: true}},
		{"vhf step", 145e6, 144.2e6, true, IntNRequest(145e6, 144.2e6)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := txRequest(tt.freq, tt.rxFreq, tt.intN); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("txRequest() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
