// Package resampler converts sample streams between rates whose ratio is
// rational, using overlap-save FFT filtering. Interpolation and decimation
// happen together in the frequency domain: the filtered input spectrum is
// copied into a longer or shorter output spectrum before the inverse
// transform.
package resampler

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/norasector/rigcore/pkg/dsp/filters/fir"
	"gonum.org/v1/gonum/dsp/fourier"
)

var (
	ErrBadBufferSize = errors.New("resampler buffer has the wrong length")
	ErrBadRate       = errors.New("resampler rates must be positive")
)

const (
	// MinTransformLen is the floor for both transform lengths.
	MinTransformLen = 1000

	// The low pass runs flat to passbandEdge and reaches stopbandAtten at
	// stopbandEdge, both relative to the lower of the two rates.
	passbandEdge  = 0.4
	stopbandEdge  = 0.5
	stopbandAtten = 72.0
)

// Resampler converts fixed-size blocks at InRate into fixed-size blocks at
// OutRate. It is not safe for concurrent use; Apply keeps the tail of the
// previous block as history.
type Resampler struct {
	inRate, outRate int
	up, down        int

	lx, ly  int // forward and inverse transform lengths
	overlap int // history blocks of down samples kept between calls
	keep    int // highest bin copied on either side of zero

	filter []complex128 // indexed by input bin
	delay  float64      // seconds
	scale  float64

	fwd, inv *fourier.CmplxFFT
	window   []complex128
	spec     []complex128
	outSpec  []complex128
	outTime  []complex128
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// New builds a resampler from inRate to outRate. Each forward transform
// spans at least blockDuration seconds of input.
func New(inRate, outRate int, blockDuration float64) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 || blockDuration < 0 {
		return nil, fmt.Errorf("%d -> %d: %w", inRate, outRate, ErrBadRate)
	}

	g := gcd(inRate, outRate)
	r := &Resampler{
		inRate:  inRate,
		outRate: outRate,
		up:      outRate / g,
		down:    inRate / g,
	}

	minRate := float64(inRate)
	if outRate < inRate {
		minRate = float64(outRate)
	}

	// The prototype filter runs at the common rate up*inRate.
	mid := float64(r.up) * float64(inRate)
	taps := fir.MakeKaiserLowPass64(1, mid,
		minRate*(passbandEdge+stopbandEdge)/2,
		minRate*(stopbandEdge-passbandEdge),
		stopbandAtten)

	// The discarded region of each window must cover the filter's span.
	r.overlap = ceilDiv(len(taps)-1, r.up*r.down)
	if r.overlap < 1 {
		r.overlap = 1
	}

	k := ceilDiv(MinTransformLen, r.down)
	if kk := ceilDiv(MinTransformLen, r.up); kk > k {
		k = kk
	}
	if kk := int(math.Ceil(blockDuration * float64(inRate) / float64(r.down))); kk > k {
		k = kk
	}
	if k <= r.overlap {
		k = r.overlap + 1
	}

	r.lx = k * r.down
	r.ly = k * r.up
	r.keep = r.lx
	if r.ly < r.keep {
		r.keep = r.ly
	}
	r.keep = (r.keep - 1) / 2

	M := (len(taps) - 1) / 2
	r.delay = float64(M) / mid
	r.scale = 1 / float64(r.lx)
	r.filter = make([]complex128, r.lx)

	// Sample the prototype's response at each kept bin. The taps are
	// symmetric, so the response is a cosine sum times a pure delay.
	for j := 0; j <= r.keep; j++ {
		w := 2 * math.Pi * float64(j) / (float64(r.up) * float64(r.lx))
		amp := taps[M]
		for n := 1; n <= M; n++ {
			amp += 2 * taps[M+n] * math.Cos(w*float64(n))
		}
		h := complex(amp, 0) * cmplx.Exp(complex(0, -w*float64(M)))
		r.filter[j] = h
		if j != 0 {
			r.filter[r.lx-j] = cmplx.Conj(h)
		}
	}

	r.fwd = fourier.NewCmplxFFT(r.lx)
	r.inv = fourier.NewCmplxFFT(r.ly)
	r.window = make([]complex128, r.lx)
	r.spec = make([]complex128, r.lx)
	r.outSpec = make([]complex128, r.ly)
	r.outTime = make([]complex128, r.ly)

	return r, nil
}

func (r *Resampler) InRate() int  { return r.inRate }
func (r *Resampler) OutRate() int { return r.outRate }

// Ratio returns the reduced interpolation and decimation factors.
func (r *Resampler) Ratio() (up, down int) { return r.up, r.down }

// TransformLens returns the forward and inverse transform lengths.
func (r *Resampler) TransformLens() (lx, ly int) { return r.lx, r.ly }

// InputBufferSize is the exact input length Apply accepts.
func (r *Resampler) InputBufferSize() int { return r.lx - r.overlap*r.down }

// OutputBufferSize is the exact output length Apply fills.
func (r *Resampler) OutputBufferSize() int { return r.ly - r.overlap*r.up }

// GroupDelay is the fixed latency in seconds: output sample p corresponds
// to input time p/OutRate - GroupDelay.
func (r *Resampler) GroupDelay() float64 { return r.delay }

// Reset clears the history, as if no block had been applied.
func (r *Resampler) Reset() {
	for i := range r.window {
		r.window[i] = 0
	}
}

func (r *Resampler) check(in, out int) error {
	if in != r.InputBufferSize() || out != r.OutputBufferSize() {
		return fmt.Errorf("in %d (want %d), out %d (want %d): %w",
			in, r.InputBufferSize(), out, r.OutputBufferSize(), ErrBadBufferSize)
	}
	return nil
}

// Apply resamples one block. The lengths of in and out must equal
// InputBufferSize and OutputBufferSize; otherwise nothing is written and
// the history is untouched.
func (r *Resampler) Apply(in, out []complex64) error {
	if err := r.check(len(in), len(out)); err != nil {
		return err
	}

	hist := r.overlap * r.down
	for i, v := range in {
		r.window[hist+i] = complex128(v)
	}
	res := r.process()
	for i := range out {
		out[i] = complex64(res[i])
	}
	return nil
}

// ApplyReal resamples a block of real samples, keeping the real part of the
// result.
func (r *Resampler) ApplyReal(in, out []float32) error {
	if err := r.check(len(in), len(out)); err != nil {
		return err
	}

	hist := r.overlap * r.down
	for i, v := range in {
		r.window[hist+i] = complex(float64(v), 0)
	}
	res := r.process()
	for i := range out {
		out[i] = float32(real(res[i]))
	}
	return nil
}

// process filters the loaded window and returns the valid output samples,
// scaled. The returned slice aliases internal storage.
func (r *Resampler) process() []complex128 {
	r.fwd.Coefficients(r.spec, r.window)

	hist := r.overlap * r.down
	copy(r.window[:hist], r.window[r.lx-hist:])

	for i := range r.outSpec {
		r.outSpec[i] = 0
	}
	r.outSpec[0] = r.spec[0] * r.filter[0]
	for j := 1; j <= r.keep; j++ {
		r.outSpec[j] = r.spec[j] * r.filter[j]
		r.outSpec[r.ly-j] = r.spec[r.lx-j] * r.filter[r.lx-j]
	}

	r.inv.Sequence(r.outTime, r.outSpec)

	res := r.outTime[r.overlap*r.up:]
	for i := range res {
		res[i] *= complex(r.scale, 0)
	}
	return res
}
