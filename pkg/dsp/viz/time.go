package viz

import (
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

type PlotType int

const (
	PlotTypeDefault PlotType = iota
	PlotTypeScatter
	PlotTypeLines
)

// TimeDomainPlotter renders the last size samples of a real signal.
type TimeDomainPlotter struct {
	mu          sync.Mutex
	name        string
	size        int
	buf         []float32
	plotFunc    func(*plot.Plot, ...interface{}) error
	plotOptions []PlotOptions
}

func NewTimeDomainPlotter(name string, size int) *TimeDomainPlotter {
	return &TimeDomainPlotter{
		name:     name,
		size:     size,
		buf:      make([]float32, 0, size),
		plotFunc: plotutil.AddScatters,
	}
}

func (t *TimeDomainPlotter) Name() string {
	return t.name
}

func (t *TimeDomainPlotter) SetPlotType(tp PlotType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch tp {
	case PlotTypeLines:
		t.plotFunc = plotutil.AddLines
	default:
		t.plotFunc = plotutil.AddScatters
	}
}

func (t *TimeDomainPlotter) AppendFloat(s []float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(s) >= t.size {
		t.buf = append(t.buf[:0], s[len(s)-t.size:]...)
		return
	}
	if over := len(t.buf) + len(s) - t.size; over > 0 {
		t.buf = t.buf[:copy(t.buf, t.buf[over:])]
	}
	t.buf = append(t.buf, s...)
}

func (t *TimeDomainPlotter) AddPlotOption(opt PlotOptions) {
	t.mu.Lock()
	t.plotOptions = append(t.plotOptions, opt)
	t.mu.Unlock()
}

// GetImage returns nil until size samples have been seen.
func (t *TimeDomainPlotter) GetImage() *ImageContainer {
	t.mu.Lock()
	if len(t.buf) < t.size {
		t.mu.Unlock()
		return nil
	}
	pts := make(plotter.XYs, t.size)
	for i, v := range t.buf {
		pts[i] = plotter.XY{X: float64(i), Y: float64(v)}
	}
	opts := append([]PlotOptions(nil), t.plotOptions...)
	plotFunc := t.plotFunc
	t.mu.Unlock()

	p := newPlot(t.name, "t", "Amplitude", -4, 4, opts)
	if err := plotFunc(p, "f(t)", pts); err != nil {
		return nil
	}
	return renderPNG(t.name, p, 8*vg.Inch, 6*vg.Inch)
}
