// Package radio defines the hardware collaborator the tuning controller and
// the RF streamer drive. Drivers live in subpackages.
package radio

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNotSupported = errors.New("operation not supported by this radio")
	ErrOutOfRange   = errors.New("value outside the radio's range")
	ErrNotStreaming = errors.New("radio is not streaming")
)

// TunePolicy selects how the first LO is chosen.
type TunePolicy int

const (
	// PolicyAuto lets the driver pick the LO.
	PolicyAuto TunePolicy = iota
	// PolicyManual places the LO at TuneRequest.RF and makes up the
	// difference in the digital down converter.
	PolicyManual
)

// TuneRequest asks for a baseband centre of Target.
type TuneRequest struct {
	Target float64
	RF     float64
	Policy TunePolicy
	// IntN requests integer-N synthesis, trading resolution for fewer
	// reference spurs.
	IntN bool
	// Step is the integer-N PLL step RF was chosen on, zero when the
	// driver picks.
	Step float64
}

func (t TuneRequest) String() string {
	mode := "auto"
	if t.Policy == PolicyManual {
		mode = fmt.Sprintf("manual rf=%.0f", t.RF)
	}
	if t.IntN {
		mode += " int-n"
	}
	if t.Step > 0 {
		mode += fmt.Sprintf(" step=%.0f", t.Step)
	}
	return fmt.Sprintf("target=%.0f %s", t.Target, mode)
}

// TuneResult reports what the hardware actually did.
type TuneResult struct {
	TargetRF  float64
	ActualRF  float64
	TargetDSP float64
	ActualDSP float64
}

// Center is the frequency that lands at zero in the baseband stream.
func (t TuneResult) Center() float64 {
	return t.ActualRF + t.ActualDSP
}

// Range is a closed interval.
type Range struct {
	Min, Max float64
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) Clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Span maps a fraction in [0, 1] onto the range.
func (r Range) Span(frac float64) float64 {
	return r.Min + (r.Max-r.Min)*math.Max(0, math.Min(1, frac))
}

// ClockStatus reports the reference clock.
type ClockStatus struct {
	External bool
	Locked   bool
}

// Tuner is the control surface of a radio. Every call is synchronous, but
// a returned tune result does not mean the synthesizer has locked; callers
// poll RXLocked/TXLocked.
type Tuner interface {
	Model() string
	Version() string

	TuneRX(req TuneRequest) (TuneResult, error)
	TuneTX(req TuneRequest) (TuneResult, error)
	RXLocked() (bool, error)
	TXLocked() (bool, error)
	RXFreqRange() Range
	TXFreqRange() Range
	SupportsIntN() bool

	SetRXGain(db float64) error
	SetTXGain(db float64) error
	RXGainRange() Range
	TXGainRange() Range
	SetTXEnable(on bool) error

	SetRXSampleRate(rate float64) error
	SetTXSampleRate(rate float64) error
	RXSampleRate() float64
	TXSampleRate() float64

	SetRXAntenna(name string) error
	SetTXAntenna(name string) error
	RXAntennas() []string
	TXAntennas() []string

	SetClockSource(external bool) error
	ClockSource() (ClockStatus, error)
}

// LOOutput is implemented by radios with a spare TX channel that can drive
// a transverter's local oscillator.
type LOOutput interface {
	// EnableLOOutput tunes the spare channel per req and radiates it at
	// gain dB.
	EnableLOOutput(req TuneRequest, gain float64) (TuneResult, error)
	DisableLOOutput() error
}

// Streamer moves baseband samples. Sinks and sources are called from the
// driver's own goroutine and must not block.
type Streamer interface {
	StartRX(sink func(samples []complex64)) error
	StopRX() error
	// StartTX begins transmitting; source fills the buffer it is handed
	// and returns how many samples it wrote. Unfilled samples are sent as
	// zeros.
	StartTX(source func(samples []complex64) int) error
	StopTX() error
}

// Radio is a complete hardware collaborator.
type Radio interface {
	Tuner
	Streamer
	Close() error
}
