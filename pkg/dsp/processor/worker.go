package processor

import "github.com/norasector/rigcore/pkg/dsp/viz"

type DataType int

const (
	DataTypeComplex DataType = iota
	DataTypeFloat
)

func (d DataType) String() string {
	switch d {
	case DataTypeComplex:
		return "complex"
	case DataTypeFloat:
		return "float"
	default:
		return "unknown"
	}
}

// DSPWorker is one block of a Processor chain.
type DSPWorker struct {
	Name        string
	DisplayName string
	InputRate   int
	OutputRate  int

	inputDataType  DataType
	outputDataType DataType

	ccWorker CCWorker
	cfWorker CFWorker
	fcWorker FCWorker
	ffWorker FFWorker

	fOutputBuffer []float32
	cOutputBuffer []complex64

	fft        *viz.FFTPlotter
	timeDomain *viz.TimeDomainPlotter
	vizSize    int
	plotType   viz.PlotType

	plotOptions []viz.PlotOptions
}

type DSPWorkerOption func(r *DSPWorker)

func WithPlotOptions(opts []viz.PlotOptions) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.plotOptions = append(r.plotOptions, opts...)
	}
}

func WithVizLength(length int) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.vizSize = length
	}
}

func WithPlotType(plotType viz.PlotType) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.plotType = plotType
	}
}

func newWorker(name, displayName string, inputRate, outputRate int, in, out DataType, opts []DSPWorkerOption) *DSPWorker {
	ret := &DSPWorker{
		Name:           name,
		DisplayName:    displayName,
		InputRate:      inputRate,
		OutputRate:     outputRate,
		inputDataType:  in,
		outputDataType: out,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func NewDSPWorkerCC(name, displayName string, inputRate, outputRate int, worker CCWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeComplex, DataTypeComplex, opts)
	ret.ccWorker = worker
	return ret
}

func NewDSPWorkerCF(name, displayName string, inputRate, outputRate int, worker CFWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeComplex, DataTypeFloat, opts)
	ret.cfWorker = worker
	return ret
}

func NewDSPWorkerFC(name, displayName string, inputRate, outputRate int, worker FCWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeFloat, DataTypeComplex, opts)
	ret.fcWorker = worker
	return ret
}

func NewDSPWorkerFF(name, displayName string, inputRate, outputRate int, worker FFWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeFloat, DataTypeFloat, opts)
	ret.ffWorker = worker
	return ret
}

// Complex in, complex out
type CCWorker interface {
	WorkBuffer([]complex64, []complex64) int
	PredictOutputSize(int) int
}

// Complex in, float out
type CFWorker interface {
	WorkBuffer([]complex64, []float32) int
	PredictOutputSize(int) int
}

// Float in, complex out
type FCWorker interface {
	WorkBuffer([]float32, []complex64) int
	PredictOutputSize(int) int
}

type FFWorker interface {
	WorkBuffer([]float32, []float32) int
	PredictOutputSize(int) int
}

// CFFunc adapts a per-sample conversion into a CFWorker.
type CFFunc func(complex64) float32

func (f CFFunc) WorkBuffer(in []complex64, out []float32) int {
	for i, v := range in {
		out[i] = f(v)
	}
	return len(in)
}

func (f CFFunc) PredictOutputSize(n int) int { return n }

// FCFunc adapts a per-sample conversion into an FCWorker.
type FCFunc func(float32) complex64

func (f FCFunc) WorkBuffer(in []float32, out []complex64) int {
	for i, v := range in {
		out[i] = f(v)
	}
	return len(in)
}

func (f FCFunc) PredictOutputSize(n int) int { return n }

// FFFunc adapts an in-place float operation into an FFWorker.
type FFFunc func(in, out []float32)

func (f FFFunc) WorkBuffer(in, out []float32) int {
	f(in, out[:len(in)])
	return len(in)
}

func (f FFFunc) PredictOutputSize(n int) int { return n }
