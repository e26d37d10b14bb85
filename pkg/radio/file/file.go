// Package file plays back recorded CS8 IQ as if it came from a radio, and
// records transmitted IQ to a file.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/norasector/rigcore/pkg/radio"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultReadSize = 262144

type Device struct {
	path       string
	readFile   *os.File
	readSize   int
	sampleRate float64
	loop       bool
	logger     zerolog.Logger

	txFile *os.File

	mu         sync.Mutex
	centerFreq float64
	txFreq     float64
	rxGain     float64
	txGain     float64
	txEnabled  bool
	rxCancel   context.CancelFunc
	txCancel   context.CancelFunc
	rxWG       sync.WaitGroup
	txWG       sync.WaitGroup
}

type Option func(d *Device)

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Device) {
		d.logger = logger
	}
}

// WithLoop restarts playback from the beginning at end of file.
func WithLoop(loop bool) Option {
	return func(d *Device) {
		d.loop = loop
	}
}

// WithTXRecording writes transmitted samples to path as CS8.
func WithTXRecording(path string) Option {
	return func(d *Device) {
		d.path = path
	}
}

func Open(file string, sampleRate float64, opts ...Option) (*Device, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}

	d := &Device{
		readFile:   f,
		readSize:   defaultReadSize,
		sampleRate: sampleRate,
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.path != "" {
		if d.txFile, err = os.Create(d.path); err != nil {
			f.Close()
			return nil, err
		}
	}
	return d, nil
}

func (d *Device) Model() string   { return "file" }
func (d *Device) Version() string { return d.readFile.Name() }

func (d *Device) TuneRX(req radio.TuneRequest) (radio.TuneResult, error) {
	d.mu.Lock()
	d.centerFreq = req.Target
	d.mu.Unlock()
	return radio.TuneResult{TargetRF: req.Target, ActualRF: req.Target}, nil
}

func (d *Device) TuneTX(req radio.TuneRequest) (radio.TuneResult, error) {
	d.mu.Lock()
	d.txFreq = req.Target
	d.mu.Unlock()
	return radio.TuneResult{TargetRF: req.Target, ActualRF: req.Target}, nil
}

func (d *Device) RXLocked() (bool, error) { return true, nil }
func (d *Device) TXLocked() (bool, error) { return true, nil }

func (d *Device) RXFreqRange() radio.Range { return radio.Range{Min: 0, Max: 6e9} }
func (d *Device) TXFreqRange() radio.Range { return radio.Range{Min: 0, Max: 6e9} }
func (d *Device) SupportsIntN() bool       { return false }

func (d *Device) SetRXGain(db float64) error {
	d.mu.Lock()
	d.rxGain = db
	d.mu.Unlock()
	return nil
}

func (d *Device) SetTXGain(db float64) error {
	d.mu.Lock()
	d.txGain = db
	d.mu.Unlock()
	return nil
}

func (d *Device) RXGainRange() radio.Range { return radio.Range{Min: 0, Max: 100} }
func (d *Device) TXGainRange() radio.Range { return radio.Range{Min: 0, Max: 100} }

func (d *Device) SetTXEnable(on bool) error {
	d.mu.Lock()
	d.txEnabled = on
	d.mu.Unlock()
	return nil
}

// The recording fixes the sample rate.
func (d *Device) SetRXSampleRate(rate float64) error {
	if rate != d.sampleRate {
		return fmt.Errorf("file recorded at %.0f, not %.0f: %w", d.sampleRate, rate, radio.ErrNotSupported)
	}
	return nil
}

func (d *Device) SetTXSampleRate(rate float64) error { return d.SetRXSampleRate(rate) }
func (d *Device) RXSampleRate() float64              { return d.sampleRate }
func (d *Device) TXSampleRate() float64              { return d.sampleRate }

func (d *Device) SetRXAntenna(name string) error { return nil }
func (d *Device) SetTXAntenna(name string) error { return nil }
func (d *Device) RXAntennas() []string           { return []string{"FILE"} }
func (d *Device) TXAntennas() []string           { return []string{"FILE"} }

func (d *Device) SetClockSource(external bool) error { return nil }
func (d *Device) ClockSource() (radio.ClockStatus, error) {
	return radio.ClockStatus{Locked: true}, nil
}

// blockInterval is how long one read takes to play at the file's rate.
func (d *Device) blockInterval() time.Duration {
	samples := float64(d.readSize / 2)
	return time.Duration(samples / d.sampleRate * float64(time.Second))
}

func (d *Device) StartRX(sink func([]complex64)) error {
	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.rxCancel = cancel
	d.mu.Unlock()

	d.rxWG.Add(1)
	go func() {
		defer d.rxWG.Done()
		if err := d.play(ctx, sink); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error().Err(err).Msg("file playback")
		}
	}()
	return nil
}

func (d *Device) play(ctx context.Context, sink func([]complex64)) error {
	tick := time.NewTicker(d.blockInterval())
	defer tick.Stop()

	buf := make([]byte, d.readSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			n, err := io.ReadFull(d.readFile, buf)
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if !d.loop {
					d.logger.Info().Msg("end of playback file")
					return nil
				}
				if _, err := d.readFile.Seek(0, io.SeekStart); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
			if n < 2 {
				continue
			}

			sink(radio.FromCS8(buf[:n]))
		}
	}
}

func (d *Device) stop(cancel *context.CancelFunc, wg *sync.WaitGroup) error {
	d.mu.Lock()
	c := *cancel
	*cancel = nil
	d.mu.Unlock()
	if c != nil {
		c()
	}
	wg.Wait()
	return nil
}

func (d *Device) StopRX() error { return d.stop(&d.rxCancel, &d.rxWG) }

// StartTX pulls one block per playback interval and appends it to the TX
// recording, if any.
func (d *Device) StartTX(source func([]complex64) int) error {
	if d.txFile == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.txCancel = cancel
	d.mu.Unlock()

	d.txWG.Add(1)
	go func() {
		defer d.txWG.Done()
		tick := time.NewTicker(d.blockInterval())
		defer tick.Stop()

		samples := make([]complex64, d.readSize/2)
		out := make([]byte, d.readSize)
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				for i := range samples {
					samples[i] = 0
				}
				n := source(samples)
				if n == 0 {
					continue
				}
				radio.ToCS8(out, samples[:n])
				if _, err := d.txFile.Write(out[:2*n]); err != nil {
					d.logger.Error().Err(err).Msg("tx recording")
					return
				}
			}
		}
	}()
	return nil
}

func (d *Device) StopTX() error { return d.stop(&d.txCancel, &d.txWG) }

func (d *Device) Close() error {
	if d.txFile != nil {
		d.txFile.Close()
	}
	return d.readFile.Close()
}
