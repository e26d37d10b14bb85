package rtlsdr

import (
	"fmt"
	"math"
	"sort"
	"sync"

	gsdr "github.com/jpoirier/gortlsdr"
	"github.com/norasector/rigcore/pkg/radio"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	maxSampleRate = 2.4e6
	minFreq       = 24e6
	maxFreq       = 1766e6
)

// Device drives an RTL2832U dongle. It is receive only.
type Device struct {
	deviceIdx int
	device    *gsdr.Context
	logger    zerolog.Logger

	mu         sync.Mutex
	centerFreq float64
	sampleRate float64
	gains      []float64 // dB, ascending
	sink       func([]complex64)

	wg sync.WaitGroup
}

type Option func(d *Device)

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Device) {
		d.logger = logger
	}
}

func Open(deviceIdx int, opts ...Option) (*Device, error) {
	dev, err := gsdr.Open(deviceIdx)
	if err != nil {
		return nil, err
	}

	d := &Device{
		deviceIdx:  deviceIdx,
		device:     dev,
		logger:     log.Logger,
		sampleRate: 2.048e6,
	}
	for _, opt := range opts {
		opt(d)
	}

	tenths, err := dev.GetTunerGains()
	if err != nil {
		dev.Close()
		return nil, err
	}
	for _, g := range tenths {
		d.gains = append(d.gains, float64(g)/10)
	}
	sort.Float64s(d.gains)
	if len(d.gains) == 0 {
		d.gains = []float64{0}
	}

	if err := dev.SetTunerGainMode(true); err != nil {
		dev.Close()
		return nil, err
	}
	if err := d.SetRXSampleRate(d.sampleRate); err != nil {
		dev.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) Model() string   { return "RTL-SDR" }
func (d *Device) Version() string { return fmt.Sprintf("rtlsdr:%d", d.deviceIdx) }

func (d *Device) TuneRX(req radio.TuneRequest) (radio.TuneResult, error) {
	if !d.RXFreqRange().Contains(req.Target) {
		return radio.TuneResult{}, fmt.Errorf("tune %.0f: %w", req.Target, radio.ErrOutOfRange)
	}
	if err := d.device.SetCenterFreq(int(math.Round(req.Target))); err != nil {
		return radio.TuneResult{}, err
	}
	actual := float64(d.device.GetCenterFreq())

	d.mu.Lock()
	d.centerFreq = actual
	d.mu.Unlock()
	return radio.TuneResult{TargetRF: req.Target, ActualRF: actual}, nil
}

func (d *Device) TuneTX(req radio.TuneRequest) (radio.TuneResult, error) {
	return radio.TuneResult{}, fmt.Errorf("tx tune: %w", radio.ErrNotSupported)
}

func (d *Device) RXLocked() (bool, error) { return true, nil }
func (d *Device) TXLocked() (bool, error) { return false, radio.ErrNotSupported }

func (d *Device) RXFreqRange() radio.Range { return radio.Range{Min: minFreq, Max: maxFreq} }
func (d *Device) TXFreqRange() radio.Range { return radio.Range{} }
func (d *Device) SupportsIntN() bool       { return false }

// SetRXGain picks the closest gain step the tuner offers.
func (d *Device) SetRXGain(db float64) error {
	best := d.gains[0]
	for _, g := range d.gains {
		if math.Abs(g-db) < math.Abs(best-db) {
			best = g
		}
	}
	return d.device.SetTunerGain(int(math.Round(best * 10)))
}

func (d *Device) SetTXGain(db float64) error {
	if db == 0 {
		return nil
	}
	return fmt.Errorf("tx gain: %w", radio.ErrNotSupported)
}

func (d *Device) RXGainRange() radio.Range {
	return radio.Range{Min: d.gains[0], Max: d.gains[len(d.gains)-1]}
}

func (d *Device) TXGainRange() radio.Range { return radio.Range{} }

func (d *Device) SetTXEnable(on bool) error {
	if on {
		return fmt.Errorf("tx enable: %w", radio.ErrNotSupported)
	}
	return nil
}

func (d *Device) SetRXSampleRate(rate float64) error {
	if rate <= 0 || rate > maxSampleRate {
		return fmt.Errorf("sample rate %.0f: %w", rate, radio.ErrOutOfRange)
	}
	if err := d.device.SetSampleRate(int(rate)); err != nil {
		return err
	}
	d.mu.Lock()
	d.sampleRate = rate
	d.mu.Unlock()
	return nil
}

func (d *Device) SetTXSampleRate(rate float64) error {
	return fmt.Errorf("tx sample rate: %w", radio.ErrNotSupported)
}

func (d *Device) RXSampleRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleRate
}

func (d *Device) TXSampleRate() float64 { return 0 }

func (d *Device) SetRXAntenna(name string) error {
	if name != "RX" {
		return fmt.Errorf("antenna %q: %w", name, radio.ErrNotSupported)
	}
	return nil
}

func (d *Device) SetTXAntenna(name string) error {
	return fmt.Errorf("tx antenna: %w", radio.ErrNotSupported)
}

func (d *Device) RXAntennas() []string { return []string{"RX"} }
func (d *Device) TXAntennas() []string { return nil }

func (d *Device) SetClockSource(external bool) error {
	if external {
		return fmt.Errorf("external clock: %w", radio.ErrNotSupported)
	}
	return nil
}

func (d *Device) ClockSource() (radio.ClockStatus, error) {
	return radio.ClockStatus{Locked: true}, nil
}

func (d *Device) callback(buf []byte) {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()

	if sink == nil {
		return
	}
	// The dongle delivers offset binary; flipping the top bit makes it
	// two's complement.
	for i := range buf {
		buf[i] ^= 0x80
	}
	sink(radio.FromCS8(buf))
}

// StartRX starts the asynchronous reader on its own goroutine.
func (d *Device) StartRX(sink func([]complex64)) error {
	d.mu.Lock()
	d.sink = sink
	d.mu.Unlock()

	if err := d.device.ResetBuffer(); err != nil {
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.device.ReadAsync(d.callback, nil, 0, 0); err != nil {
			d.logger.Error().Err(err).Msg("rtlsdr read")
		}
	}()
	return nil
}

func (d *Device) StopRX() error {
	err := d.device.CancelAsync()
	d.wg.Wait()
	return err
}

func (d *Device) StartTX(source func([]complex64) int) error {
	return fmt.Errorf("tx: %w", radio.ErrNotSupported)
}

func (d *Device) StopTX() error { return nil }

func (d *Device) Close() error {
	return d.device.Close()
}
