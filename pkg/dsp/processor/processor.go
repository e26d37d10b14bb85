// Package processor chains DSP blocks whose input and output types and
// rates must line up, keeping per-block output buffers and timing each
// block into a metrics map.
package processor

import (
	"errors"
	"fmt"

	"github.com/norasector/rigcore/pkg/dsp/viz"
	"github.com/norasector/rigcore/pkg/util"
)

type Processor struct {
	Name        string
	InputName   string
	blocks      []*DSPWorker
	vizServer   *viz.Server
	initialized bool
	inputFFT    *viz.FFTPlotter
}

// NewProcessor creates an empty chain. vizServer may be nil, in which case
// nothing is plotted.
func NewProcessor(name, inputName string, vizServer *viz.Server) *Processor {
	return &Processor{
		Name:      name,
		InputName: inputName,
		vizServer: vizServer,
	}
}

func (p *Processor) AddBlock(worker *DSPWorker) {
	p.blocks = append(p.blocks, worker)
	p.initialized = false
}

func (p *Processor) Blocks() []*DSPWorker {
	return p.blocks
}

// Initialize checks that consecutive blocks agree on data type and rate
// and registers plotters.
func (p *Processor) Initialize() error {
	if p.initialized {
		return nil
	}
	if len(p.blocks) == 0 {
		return fmt.Errorf("%s: no blocks", p.Name)
	}

	for i := 1; i < len(p.blocks); i++ {
		cur, next := p.blocks[i-1], p.blocks[i]
		if cur.outputDataType != next.inputDataType {
			return fmt.Errorf("cur: %s next %s data type mismatch (%s %s)", cur.Name, next.Name, cur.outputDataType, next.inputDataType)
		}
		if cur.OutputRate != next.InputRate {
			return fmt.Errorf("cur: %s next %s rate mismatch (%d %d)", cur.Name, next.Name, cur.OutputRate, next.InputRate)
		}
	}

	if p.vizServer != nil {
		p.registerPlots()
	}

	p.initialized = true
	return nil
}

func (p *Processor) registerPlots() {
	vizIndex := 0
	nextIndexString := func(s string) string {
		vizIndex++
		return fmt.Sprintf("%02d. %s", vizIndex, s)
	}

	first := p.blocks[0]
	if first.inputDataType == DataTypeComplex {
		p.inputFFT = viz.NewFFTPlotterComplex(nextIndexString(p.InputName), 1024, first.InputRate)
		p.vizServer.Register(p.Name, p.inputFFT)
	}

	for _, cur := range p.blocks {
		switch cur.outputDataType {
		case DataTypeComplex:
			vizLength := 1024
			if cur.vizSize > 0 {
				vizLength = cur.vizSize
			}
			cur.fft = viz.NewFFTPlotterComplex(nextIndexString(cur.DisplayName), vizLength, cur.OutputRate)
			for _, opt := range cur.plotOptions {
				cur.fft.AddPlotOption(opt)
			}
			p.vizServer.Register(p.Name, cur.fft)
		case DataTypeFloat:
			vizLength := 128
			if cur.vizSize > 0 {
				vizLength = cur.vizSize
			}
			cur.timeDomain = viz.NewTimeDomainPlotter(nextIndexString(cur.DisplayName), vizLength)
			for _, opt := range cur.plotOptions {
				cur.timeDomain.AddPlotOption(opt)
			}
			if cur.plotType != viz.PlotTypeDefault {
				cur.timeDomain.SetPlotType(cur.plotType)
			}
			p.vizServer.Register(p.Name, cur.timeDomain)
		}
	}
}

func growFloat(buf []float32, n int) []float32 {
	if len(buf) < n {
		return make([]float32, n)
	}
	return buf
}

func growComplex(buf []complex64, n int) []complex64 {
	if len(buf) < n {
		return make([]complex64, n)
	}
	return buf
}

// processData runs the chain. Exactly one of cmplxInput and floatInput is
// used, chosen by the first block's input type. Returned slices alias the
// last block's output buffer and are valid until the next call.
func (p *Processor) processData(cmplxInput []complex64, floatInput []float32, expectedOutputType DataType, metrics map[string]interface{}) ([]complex64, []float32, error) {
	if !p.initialized {
		if err := p.Initialize(); err != nil {
			return nil, nil, err
		}
	}
	if p.blocks[len(p.blocks)-1].outputDataType != expectedOutputType {
		return nil, nil, fmt.Errorf("%s: invalid output type: got %s expected %s", p.Name, p.blocks[len(p.blocks)-1].outputDataType, expectedOutputType)
	}

	expectedInputType := DataTypeFloat
	if cmplxInput != nil {
		expectedInputType = DataTypeComplex
		if p.inputFFT != nil {
			p.inputFFT.AppendComplex(cmplxInput)
		}
	}
	if p.blocks[0].inputDataType != expectedInputType {
		return nil, nil, errors.New("input does not match first block")
	}

	var cmplxOutput []complex64
	var floatOutput []float32

	for _, block := range p.blocks {
		elapsed := util.TimeOperationMicroseconds(func() {
			switch {
			case block.inputDataType == DataTypeComplex && block.outputDataType == DataTypeComplex:
				block.cOutputBuffer = growComplex(block.cOutputBuffer, block.ccWorker.PredictOutputSize(len(cmplxInput)))
				length := block.ccWorker.WorkBuffer(cmplxInput, block.cOutputBuffer)
				cmplxOutput = block.cOutputBuffer[:length]
			case block.inputDataType == DataTypeComplex && block.outputDataType == DataTypeFloat:
				block.fOutputBuffer = growFloat(block.fOutputBuffer, block.cfWorker.PredictOutputSize(len(cmplxInput)))
				length := block.cfWorker.WorkBuffer(cmplxInput, block.fOutputBuffer)
				floatOutput = block.fOutputBuffer[:length]
			case block.inputDataType == DataTypeFloat && block.outputDataType == DataTypeComplex:
				block.cOutputBuffer = growComplex(block.cOutputBuffer, block.fcWorker.PredictOutputSize(len(floatInput)))
				length := block.fcWorker.WorkBuffer(floatInput, block.cOutputBuffer)
				cmplxOutput = block.cOutputBuffer[:length]
			default:
				block.fOutputBuffer = growFloat(block.fOutputBuffer, block.ffWorker.PredictOutputSize(len(floatInput)))
				length := block.ffWorker.WorkBuffer(floatInput, block.fOutputBuffer)
				floatOutput = block.fOutputBuffer[:length]
			}
		})
		if metrics != nil {
			metrics[block.Name+"_duration"] = elapsed
		}

		if block.fft != nil && block.outputDataType == DataTypeComplex {
			block.fft.AppendComplex(cmplxOutput)
		}
		if block.timeDomain != nil && block.outputDataType == DataTypeFloat {
			block.timeDomain.AppendFloat(floatOutput)
		}

		cmplxInput, floatInput = cmplxOutput, floatOutput
	}
	return cmplxOutput, floatOutput, nil
}

func (p *Processor) ProcessComplexToFloat(input []complex64, metrics map[string]interface{}) ([]float32, error) {
	_, out, err := p.processData(input, nil, DataTypeFloat, metrics)
	return out, err
}

func (p *Processor) ProcessComplex(input []complex64, metrics map[string]interface{}) ([]complex64, error) {
	out, _, err := p.processData(input, nil, DataTypeComplex, metrics)
	return out, err
}

func (p *Processor) ProcessFloat(input []float32, metrics map[string]interface{}) ([]float32, error) {
	_, out, err := p.processData(nil, input, DataTypeFloat, metrics)
	return out, err
}

func (p *Processor) ProcessFloatToComplex(input []float32, metrics map[string]interface{}) ([]complex64, error) {
	out, _, err := p.processData(nil, input, DataTypeComplex, metrics)
	return out, err
}
