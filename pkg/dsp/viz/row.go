package viz

import (
	"sync"

	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// RowPlotter renders the most recent spectrum row, already in dB, against
// the frequency range it covers.
type RowPlotter struct {
	mu          sync.Mutex
	name        string
	row         []float32
	center      float64
	span        float64
	plotOptions []PlotOptions
}

func NewRowPlotter(name string) *RowPlotter {
	return &RowPlotter{name: name}
}

func (r *RowPlotter) Name() string {
	return r.name
}

// SetRow copies row.
func (r *RowPlotter) SetRow(row []float32) {
	r.mu.Lock()
	r.row = append(r.row[:0], row...)
	r.mu.Unlock()
}

// SetRange sets the frequencies the row spans. Until it is called the x
// axis is the bucket index.
func (r *RowPlotter) SetRange(center, span float64) {
	r.mu.Lock()
	r.center, r.span = center, span
	r.mu.Unlock()
}

func (r *RowPlotter) AddPlotOption(opt PlotOptions) {
	r.mu.Lock()
	r.plotOptions = append(r.plotOptions, opt)
	r.mu.Unlock()
}

func (r *RowPlotter) points() plotter.XYs {
	n := len(r.row)
	pts := make(plotter.XYs, n)
	for i, v := range r.row {
		x := float64(i)
		if r.span > 0 {
			x = (r.center - r.span/2 + r.span*float64(i)/float64(n)) / 1e6
		}
		pts[i] = plotter.XY{X: x, Y: float64(v)}
	}
	return pts
}

func (r *RowPlotter) GetImage() *ImageContainer {
	r.mu.Lock()
	if len(r.row) == 0 {
		r.mu.Unlock()
		return nil
	}
	pts := r.points()
	hasRange := r.span > 0
	opts := append([]PlotOptions(nil), r.plotOptions...)
	r.mu.Unlock()

	xLabel := "Bucket"
	if hasRange {
		xLabel = "Frequency (MHz)"
	}
	p := newPlot(r.name, xLabel, "Power (dB)", -140, 0, opts)
	if err := plotutil.AddLines(p, "power", pts); err != nil {
		return nil
	}
	return renderPNG(r.name, p, 10*vg.Inch, 5*vg.Inch)
}
