package rmsagc

import (
	"math"
)

// RMSAGC is a root-mean-squared automatic gain controller. Output is held
// at reference/rms(input), with the gain capped at maxGain so silence is
// not amplified into noise.
type RMSAGC struct {
	alpha     float64
	beta      float64
	reference float64
	maxGain   float64
	average   float64
}

func NewRMSAGC(alpha float64, reference float64) *RMSAGC {
	return &RMSAGC{
		alpha:     alpha,
		beta:      1 - alpha,
		average:   1.0,
		reference: reference,
		maxGain:   math.Inf(1),
	}
}

// SetMaxGain caps the applied gain. Zero or negative removes the cap.
func (r *RMSAGC) SetMaxGain(g float64) {
	if g <= 0 {
		g = math.Inf(1)
	}
	r.maxGain = g
}

func (r *RMSAGC) Reset() {
	r.average = 1.0
}

// Gain is the gain the next sample would be scaled by.
func (r *RMSAGC) Gain() float64 {
	if r.average <= 0 {
		return math.Min(r.reference, r.maxGain)
	}
	return math.Min(r.reference/math.Sqrt(r.average), r.maxGain)
}

func (r *RMSAGC) PredictOutputSize(inputSize int) int {
	return inputSize
}

func (r *RMSAGC) WorkBuffer(input, output []float32) int {
	for i := 0; i < len(input); i++ {
		cur := float64(input[i])
		r.average = r.beta*r.average + r.alpha*cur*cur
		output[i] = float32(r.Gain() * cur)
	}

	return len(input)
}
