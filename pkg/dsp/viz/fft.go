package viz

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/norasector/rigcore/pkg/dsp/filters/fir"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// plotAvg is the weight of the newest transform in the displayed average.
const plotAvg = 0.10

// FFTPlotter keeps the last len samples written by a DSP block and renders
// their averaged magnitude spectrum. Appends come from the stage goroutine
// and renders from the server, so both take the lock.
type FFTPlotter struct {
	mu          sync.Mutex
	name        string
	len         int
	sampleRate  int
	isComplex   bool
	bufFloat    []float64
	bufComplex  []complex128
	window      []float32
	average     []float64
	plotOptions []PlotOptions
}

func (f *FFTPlotter) Name() string {
	return f.name
}

func newFFTPlotter(name string, len, sampleRate int, isComplex bool) *FFTPlotter {
	f := &FFTPlotter{
		name:       name,
		len:        len,
		sampleRate: sampleRate,
		isComplex:  isComplex,
		window:     fir.BlackmanWindow(len),
		average:    make([]float64, len),
	}
	if isComplex {
		f.bufComplex = make([]complex128, len)
	} else {
		f.bufFloat = make([]float64, len)
	}
	return f
}

func NewFFTPlotterFloat(name string, len, sampleRate int) *FFTPlotter {
	return newFFTPlotter(name, len, sampleRate, false)
}

func NewFFTPlotterComplex(name string, len, sampleRate int) *FFTPlotter {
	return newFFTPlotter(name, len, sampleRate, true)
}

// AppendFloat shifts s into the window. It is ignored on a complex plotter.
func (f *FFTPlotter) AppendFloat(s []float32) {
	if f.isComplex {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(s) > f.len {
		s = s[len(s)-f.len:]
	}
	keep := copy(f.bufFloat, f.bufFloat[len(s):])
	for i, v := range s {
		f.bufFloat[keep+i] = float64(v)
	}
}

// AppendComplex shifts s into the window. It is ignored on a real plotter.
func (f *FFTPlotter) AppendComplex(s []complex64) {
	if !f.isComplex {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(s) > f.len {
		s = s[len(s)-f.len:]
	}
	keep := copy(f.bufComplex, f.bufComplex[len(s):])
	for i, v := range s {
		f.bufComplex[keep+i] = complex128(v)
	}
}

func (f *FFTPlotter) AddPlotOption(opt PlotOptions) {
	f.mu.Lock()
	f.plotOptions = append(f.plotOptions, opt)
	f.mu.Unlock()
}

// spectrum windows the buffered samples and folds the transform into the
// running average. It returns the points to plot, in Hz and dB.
func (f *FFTPlotter) spectrum() plotter.XYs {
	// Blackman coherent gain.
	norm := 0.42 * float64(f.len)

	var coeffs []complex128
	var index func(int) int
	var freq func(int) float64
	if f.isComplex {
		fft := fourier.NewCmplxFFT(f.len)
		data := make([]complex128, f.len)
		for i, v := range f.bufComplex {
			data[i] = v * complex(float64(f.window[i])/norm, 0)
		}
		coeffs = fft.Coefficients(nil, data)
		index = fft.ShiftIdx
		freq = fft.Freq
	} else {
		fft := fourier.NewFFT(f.len)
		data := make([]float64, f.len)
		for i, v := range f.bufFloat {
			data[i] = v * float64(f.window[i]) / norm
		}
		coeffs = fft.Coefficients(nil, data)
		index = func(i int) int { return i }
		freq = fft.Freq
	}

	pts := make(plotter.XYs, 0, len(coeffs))
	for i := range coeffs {
		k := index(i)
		f.average[i] = (1-plotAvg)*f.average[i] + plotAvg*cmplx.Abs(coeffs[k])
		if f.average[i] == 0 {
			continue
		}
		pts = append(pts, plotter.XY{
			X: freq(k) * float64(f.sampleRate),
			Y: 20 * math.Log10(f.average[i]),
		})
	}
	return pts
}

func (f *FFTPlotter) GetImage() *ImageContainer {
	f.mu.Lock()
	pts := f.spectrum()
	opts := append([]PlotOptions(nil), f.plotOptions...)
	f.mu.Unlock()
	if len(pts) == 0 {
		return nil
	}

	p := newPlot(f.name, "Frequency", "Power (dB)", -100, 0, opts)
	if err := plotutil.AddLines(p, "frequency", pts); err != nil {
		return nil
	}
	return renderPNG(f.name, p, 8*vg.Inch, 6*vg.Inch)
}
