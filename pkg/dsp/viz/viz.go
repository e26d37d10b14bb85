package viz

import (
	"bytes"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

type PlotOptions func(p *plot.Plot)

// newPlot returns a gridded plot in white on black with its y range fixed.
// opts run last so they can override any of it.
func newPlot(title, xLabel, yLabel string, yMin, yMax float64, opts []PlotOptions) *plot.Plot {
	p := plot.New()
	p.BackgroundColor = color.Black
	p.Title.Text = title
	p.Title.TextStyle.Color = color.White
	p.Legend.TextStyle.Color = color.White
	for _, axis := range []*plot.Axis{&p.X, &p.Y} {
		axis.Color = color.White
		axis.Label.TextStyle.Color = color.White
		axis.Tick.Color = color.White
		axis.Tick.Label.Color = color.White
	}
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Y.Min, p.Y.Max = yMin, yMax
	for _, opt := range opts {
		opt(p)
	}
	p.Add(plotter.NewGrid())
	return p
}

// renderPNG draws p, returning nil if gonum/plot cannot.
func renderPNG(name string, p *plot.Plot, width, height vg.Length) *ImageContainer {
	w, err := p.WriterTo(width, height, "png")
	if err != nil {
		return nil
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil
	}
	return &ImageContainer{name: name, data: buf.Bytes()}
}
