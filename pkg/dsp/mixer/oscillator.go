// Package mixer provides a numerically controlled oscillator used to shift
// complex baseband streams and to synthesize tones.
package mixer

import (
	"math"
)

const tau float64 = math.Pi * 2

// Oscillator is a phase-continuous complex oscillator. Changing its
// frequency keeps the current phase, so a retune does not click.
type Oscillator struct {
	sampleRate     float64
	frequency      float64
	phase          float64
	phaseIncrement float64
}

func NewOscillator(sampleRate, frequency float64) *Oscillator {
	o := &Oscillator{sampleRate: sampleRate}
	o.SetFrequency(frequency)
	return o
}

func (o *Oscillator) SetFrequency(frequency float64) {
	o.frequency = frequency
	o.phaseIncrement = frequency * tau / o.sampleRate
}

func (o *Oscillator) Frequency() float64 { return o.frequency }

func (o *Oscillator) step() complex64 {
	sin, cos := math.Sincos(o.phase)
	o.phase += o.phaseIncrement
	if o.phase > tau {
		o.phase -= tau
	} else if o.phase < -tau {
		o.phase += tau
	}
	return complex(float32(cos), float32(sin))
}

// WorkBuffer multiplies input by the oscillator into output, which may
// alias input.
func (o *Oscillator) WorkBuffer(input []complex64, output []complex64) int {
	for i := 0; i < len(input); i++ {
		output[i] = o.step() * input[i]
	}
	return len(input)
}

func (o *Oscillator) PredictOutputSize(inputSize int) int {
	return inputSize
}

// Tone fills out with the oscillator scaled by amp.
func (o *Oscillator) Tone(out []complex64, amp float32) {
	a := complex(amp, 0)
	for i := range out {
		out[i] = a * o.step()
	}
}

// ToneReal fills out with the in-phase part of the oscillator scaled by
// amplitude env[i].
func (o *Oscillator) ToneReal(out []float32, env []float32) {
	for i := range out {
		out[i] = env[i] * real(o.step())
	}
}

// Reset returns the phase to zero.
func (o *Oscillator) Reset() {
	o.phase = 0
}
