package hackrf

import (
	"fmt"
	"math"
	"sync"

	"github.com/norasector/rigcore/pkg/radio"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samuel/go-hackrf/hackrf"
)

const (
	maxSampleRate = 20e6
	minFreq       = 1e6
	maxFreq       = 6e9

	maxLNAGain = 40
	maxVGAGain = 62
	maxTXGain  = 47
)

// Device drives a HackRF One. The HackRF has no digital down converter and
// no lock sensor: it tunes the LO straight to the target and reports lock
// as soon as the tune call returns.
type Device struct {
	device *hackrf.Device
	logger zerolog.Logger

	mu         sync.Mutex
	rxFreq     float64
	txFreq     float64
	sampleRate float64
	rxGain     float64
	txGain     float64
	ampEnable  bool
	txEnabled  bool

	rxSink   func([]complex64)
	txSource func([]complex64) int
	txBuf    []complex64
}

type Option func(d *Device)

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Device) {
		d.logger = logger
	}
}

// WithAmp enables the front end RF amplifier.
func WithAmp(on bool) Option {
	return func(d *Device) {
		d.ampEnable = on
	}
}

// Open opens the first HackRF. hackrf.Init must have been called.
func Open(opts ...Option) (*Device, error) {
	dev, err := hackrf.Open()
	if err != nil {
		return nil, err
	}

	d := &Device{
		device:     dev,
		logger:     log.Logger,
		sampleRate: 10e6,
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.SetRXSampleRate(d.sampleRate); err != nil {
		dev.Close()
		return nil, err
	}
	if err := d.device.SetAmpEnable(d.ampEnable); err != nil {
		dev.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) Model() string   { return "HackRF One" }
func (d *Device) Version() string { return "hackrf" }

func (d *Device) tune(req radio.TuneRequest) (radio.TuneResult, error) {
	if !d.RXFreqRange().Contains(req.Target) {
		return radio.TuneResult{}, fmt.Errorf("tune %.0f: %w", req.Target, radio.ErrOutOfRange)
	}
	freq := math.Round(req.Target)
	if err := d.device.SetFreq(uint64(freq)); err != nil {
		return radio.TuneResult{}, err
	}
	return radio.TuneResult{TargetRF: req.Target, ActualRF: freq}, nil
}

// TuneRX and TuneTX share the single LO; the HackRF is half duplex.
func (d *Device) TuneRX(req radio.TuneRequest) (radio.TuneResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.tune(req)
	if err == nil {
		d.rxFreq = res.ActualRF
	}
	return res, err
}

func (d *Device) TuneTX(req radio.TuneRequest) (radio.TuneResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.txFreq = math.Round(req.Target)
	if !d.txEnabled {
		// Retuning for TX while receiving would move the RX LO.
		return radio.TuneResult{TargetRF: req.Target, ActualRF: d.txFreq}, nil
	}
	return d.tune(req)
}

func (d *Device) RXLocked() (bool, error) { return true, nil }
func (d *Device) TXLocked() (bool, error) { return true, nil }

func (d *Device) RXFreqRange() radio.Range { return radio.Range{Min: minFreq, Max: maxFreq} }
func (d *Device) TXFreqRange() radio.Range { return radio.Range{Min: minFreq, Max: maxFreq} }
func (d *Device) SupportsIntN() bool       { return false }

// SetRXGain splits the gain between the LNA (8 dB steps) and the baseband
// VGA (2 dB steps).
func (d *Device) SetRXGain(db float64) error {
	db = d.RXGainRange().Clamp(db)
	lna := math.Min(maxLNAGain, math.Floor(db/8)*8)
	vga := math.Min(maxVGAGain, math.Round((db-lna)/2)*2)

	if err := d.device.SetLNAGain(int(lna)); err != nil {
		return err
	}
	if err := d.device.SetVGAGain(int(vga)); err != nil {
		return err
	}
	d.mu.Lock()
	d.rxGain = lna + vga
	d.mu.Unlock()
	return nil
}

func (d *Device) SetTXGain(db float64) error {
	db = d.TXGainRange().Clamp(db)
	if err := d.device.SetTXVGAGain(int(math.Round(db))); err != nil {
		return err
	}
	d.mu.Lock()
	d.txGain = db
	d.mu.Unlock()
	return nil
}

func (d *Device) RXGainRange() radio.Range { return radio.Range{Min: 0, Max: maxLNAGain + maxVGAGain} }
func (d *Device) TXGainRange() radio.Range { return radio.Range{Min: 0, Max: maxTXGain} }

func (d *Device) SetTXEnable(on bool) error {
	d.mu.Lock()
	d.txEnabled = on
	freq := d.rxFreq
	if on {
		freq = d.txFreq
	}
	d.mu.Unlock()

	if freq == 0 {
		return nil
	}
	return d.device.SetFreq(uint64(freq))
}

func (d *Device) SetRXSampleRate(rate float64) error {
	if rate <= 0 || rate > maxSampleRate {
		return fmt.Errorf("sample rate %.0f: %w", rate, radio.ErrOutOfRange)
	}
	if err := d.device.SetSampleRateManual(int(rate)*2, 2); err != nil {
		return err
	}
	if err := d.device.SetBasebandFilterBandwidth(int(rate)); err != nil {
		return err
	}
	d.mu.Lock()
	d.sampleRate = rate
	d.mu.Unlock()
	return nil
}

// The HackRF has one sample clock for both directions.
func (d *Device) SetTXSampleRate(rate float64) error { return d.SetRXSampleRate(rate) }

func (d *Device) RXSampleRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleRate
}

func (d *Device) TXSampleRate() float64 { return d.RXSampleRate() }

func (d *Device) SetRXAntenna(name string) error {
	if name != "RX/TX" {
		return fmt.Errorf("antenna %q: %w", name, radio.ErrNotSupported)
	}
	return nil
}

func (d *Device) SetTXAntenna(name string) error { return d.SetRXAntenna(name) }
func (d *Device) RXAntennas() []string            { return []string{"RX/TX"} }
func (d *Device) TXAntennas() []string            { return []string{"RX/TX"} }

func (d *Device) SetClockSource(external bool) error {
	if external {
		return fmt.Errorf("external clock: %w", radio.ErrNotSupported)
	}
	return nil
}

func (d *Device) ClockSource() (radio.ClockStatus, error) {
	return radio.ClockStatus{Locked: true}, nil
}

func (d *Device) rxCallback(buf []byte) error {
	d.mu.Lock()
	sink := d.rxSink
	d.mu.Unlock()

	if sink != nil {
		sink(radio.FromCS8(buf))
	}
	return nil
}

func (d *Device) StartRX(sink func([]complex64)) error {
	d.mu.Lock()
	d.rxSink = sink
	d.mu.Unlock()
	d.logger.Debug().Float64("freq", d.rxFreq).Msg("starting hackrf rx")
	return d.device.StartRX(d.rxCallback)
}

func (d *Device) StopRX() error {
	return d.device.StopRX()
}

func (d *Device) txCallback(buf []byte) error {
	n := len(buf) / 2
	if cap(d.txBuf) < n {
		d.txBuf = make([]complex64, n)
	}
	samples := d.txBuf[:n]
	for i := range samples {
		samples[i] = 0
	}

	d.mu.Lock()
	source := d.txSource
	d.mu.Unlock()
	if source != nil {
		source(samples)
	}
	radio.ToCS8(buf, samples)
	return nil
}

func (d *Device) StartTX(source func([]complex64) int) error {
	d.mu.Lock()
	d.txSource = source
	d.mu.Unlock()
	return d.device.StartTX(d.txCallback)
}

func (d *Device) StopTX() error {
	return d.device.StopTX()
}

func (d *Device) Close() error {
	return d.device.Close()
}
