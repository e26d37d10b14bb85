package baseband

import (
	"math"

	"github.com/norasector/rigcore/pkg/dsp/processor"
	"github.com/norasector/rigcore/pkg/dsp/resampler"
)

// resampleCC runs a resampler as a processor block. The resampler only
// accepts its exact block size; a mismatch is recorded and surfaced by
// takeErr after the chain returns.
type resampleCC struct {
	r   *resampler.Resampler
	err error
}

func (b *resampleCC) WorkBuffer(in, out []complex64) int {
	n := b.r.OutputBufferSize()
	if err := b.r.Apply(in, out[:n]); err != nil {
		b.err = err
		return 0
	}
	return n
}

func (b *resampleCC) PredictOutputSize(int) int { return b.r.OutputBufferSize() }

func (b *resampleCC) takeErr() error {
	err := b.err
	b.err = nil
	return err
}

// resampleFF is resampleCC for real streams.
type resampleFF struct {
	r   *resampler.Resampler
	err error
}

func (b *resampleFF) WorkBuffer(in, out []float32) int {
	n := b.r.OutputBufferSize()
	if err := b.r.ApplyReal(in, out[:n]); err != nil {
		b.err = err
		return 0
	}
	return n
}

func (b *resampleFF) PredictOutputSize(int) int { return b.r.OutputBufferSize() }

func (b *resampleFF) takeErr() error {
	err := b.err
	b.err = nil
	return err
}

// ccSlot is a chain position whose block can be replaced between calls,
// used for filters that follow operator settings.
type ccSlot struct {
	processor.CCWorker
}

type ffSlot struct {
	processor.FFWorker
}

// gainBlock scales a float stream.
type gainBlock struct {
	gain float32
}

func (g *gainBlock) WorkBuffer(in, out []float32) int {
	for i, v := range in {
		out[i] = v * g.gain
	}
	return len(in)
}

func (g *gainBlock) PredictOutputSize(n int) int { return n }

func envelope(v complex64) float32 {
	return 0.5 * float32(math.Hypot(float64(real(v)), float64(imag(v))))
}

func realPart(v complex64) float32 {
	return real(v)
}

// dbGain maps a 0-100 control onto a linear gain, with 50 at unity and
// perDecade control steps per factor of ten.
func dbGain(v, perDecade float64) float64 {
	return math.Pow(10, (v-50)/perDecade)
}

// gainControl inverts dbGain.
func gainControl(g, perDecade float64) float64 {
	if g <= 0 {
		return 0
	}
	return 50 + perDecade*math.Log10(g)
}
