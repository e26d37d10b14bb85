// Package rigcore assembles a complete radio: the kernel and every stage
// wired to one radio and one audio device, plus the optional viz server.
package rigcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/rigcore/pkg/audio"
	"github.com/norasector/rigcore/pkg/baseband"
	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/cw"
	"github.com/norasector/rigcore/pkg/dsp/viz"
	"github.com/norasector/rigcore/pkg/kernel"
	"github.com/norasector/rigcore/pkg/radio"
	"github.com/norasector/rigcore/pkg/rfio"
	"github.com/norasector/rigcore/pkg/spectrum"
	"github.com/norasector/rigcore/pkg/tuning"
	"github.com/norasector/rigcore/pkg/uibridge"
	"github.com/norasector/rigcore/pkg/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Options fix the rates and the state the radio starts in.
type Options struct {
	Rates      baseband.Rates
	SocketPath string
	Tuning     tuning.Options

	SpectrumBuckets int
	SpectrumSpan    float64

	InitialFreq   float64
	InitialMode   command.Modulation
	RXGain        float64
	TXGain        float64
	ExternalClock bool
}

type Rig struct {
	radio    radio.Radio
	dev      audio.Device
	opts     Options
	sizes    baseband.Sizes
	kernel   *kernel.Kernel
	viz      *viz.Server
	writeAPI api.WriteAPI
	logger   zerolog.Logger
}

type RigOption func(r *Rig) error

func WithLogger(logger zerolog.Logger) RigOption {
	return func(r *Rig) error {
		r.logger = logger
		return nil
	}
}

func WithInfluxDB(writeAPI api.WriteAPI) RigOption {
	return func(r *Rig) error {
		r.writeAPI = writeAPI
		return nil
	}
}

// WithVizServer serves plots of the receive chains and the spectrum, and
// streams reports over its websocket.
func WithVizServer(s *viz.Server) RigOption {
	return func(r *Rig) error {
		r.viz = s
		return nil
	}
}

// New builds every stage. dev must move blocks of the RX audio size, see
// BlockSize.
func New(rd radio.Radio, dev audio.Device, options Options, opts ...RigOption) (*Rig, error) {
	r := &Rig{
		radio:    rd,
		dev:      dev,
		opts:     options,
		writeAPI: &util.NopWriteAPI{},
		logger:   log.Logger,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	var err error
	if r.sizes, err = options.Rates.Sizes(); err != nil {
		return nil, err
	}
	if r.sizes.TXRF > r.sizes.RXRF {
		return nil, fmt.Errorf("tx rf block %d is longer than rx rf block %d", r.sizes.TXRF, r.sizes.RXRF)
	}
	if err := r.setRates(); err != nil {
		return nil, err
	}

	if r.kernel, err = kernel.New(kernel.WithLogger(r.logger), kernel.WithInfluxDB(r.writeAPI)); err != nil {
		return nil, err
	}
	if err := r.addStages(); err != nil {
		return nil, err
	}
	return r, nil
}

// BlockSize is the audio device block length the rates need.
func BlockSize(rates baseband.Rates) (int, error) {
	sizes, err := rates.Sizes()
	if err != nil {
		return 0, err
	}
	return sizes.RXAudio, nil
}

func (r *Rig) setRates() error {
	rate := float64(r.opts.Rates.RF)
	if err := r.radio.SetRXSampleRate(rate); err != nil {
		return fmt.Errorf("set rx sample rate: %w", err)
	}
	if err := r.radio.SetTXSampleRate(rate); err != nil && !errors.Is(err, radio.ErrNotSupported) {
		return fmt.Errorf("set tx sample rate: %w", err)
	}
	return nil
}

func (r *Rig) addStages() error {
	ctrl, err := tuning.NewController(r.radio, r.opts.Tuning,
		tuning.WithLogger(r.logger),
		tuning.WithInfluxDB(r.writeAPI))
	if err != nil {
		return err
	}

	streamer, err := rfio.NewStreamer(r.radio, r.sizes.RXRF,
		rfio.WithLogger(r.logger),
		rfio.WithInfluxDB(r.writeAPI))
	if err != nil {
		return err
	}

	rxOpts := []baseband.RXOption{
		baseband.WithRXLogger(r.logger),
		baseband.WithRXInfluxDB(r.writeAPI),
	}
	if r.viz != nil {
		rxOpts = append(rxOpts, baseband.WithRXVizServer(r.viz))
	}
	rx, err := baseband.NewRX(r.opts.Rates, r.dev, rxOpts...)
	if err != nil {
		return err
	}

	tx, err := baseband.NewTX(r.opts.Rates, r.dev,
		baseband.WithTXLogger(r.logger),
		baseband.WithTXInfluxDB(r.writeAPI))
	if err != nil {
		return err
	}

	keyer, err := cw.NewGenerator(float64(r.opts.Rates.Audio), r.sizes.TXAudio,
		cw.WithLogger(r.logger),
		cw.WithInfluxDB(r.writeAPI))
	if err != nil {
		return err
	}

	specOpts := []spectrum.SpectrumOption{
		spectrum.WithLogger(r.logger),
		spectrum.WithInfluxDB(r.writeAPI),
	}
	if r.opts.SpectrumBuckets > 0 {
		specOpts = append(specOpts, spectrum.WithBuckets(r.opts.SpectrumBuckets))
	}
	if r.opts.SpectrumSpan > 0 {
		specOpts = append(specOpts, spectrum.WithSpan(r.opts.SpectrumSpan))
	}
	spec, err := spectrum.New(float64(r.opts.Rates.RF), specOpts...)
	if err != nil {
		return err
	}

	ui, err := uibridge.NewBridge(r.opts.SocketPath,
		uibridge.WithLogger(r.logger),
		uibridge.WithInfluxDB(r.writeAPI))
	if err != nil {
		return err
	}

	if err := r.kernel.Add(ctrl, streamer, rx, tx, keyer, spec, ui); err != nil {
		return err
	}
	if r.viz != nil {
		return r.kernel.Add(viz.NewFeed(r.viz, viz.WithFeedLogger(r.logger)))
	}
	return nil
}

func (r *Rig) Kernel() *kernel.Kernel {
	return r.kernel
}

// Stop asks every stage to finish. Start returns once they have.
func (r *Rig) Stop() {
	r.kernel.Stop()
}

// Start runs the radio until ctx is done, Stop is called, a UI client
// sends STOP or a stage fails.
func (r *Rig) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(ctx)

	eg.Go(func() error {
		defer cancel()
		return r.kernel.Run(runCtx)
	})

	if runner, ok := r.dev.(audio.Runner); ok {
		eg.Go(func() error {
			err := runner.Start(runCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if r.viz != nil {
		eg.Go(func() error {
			return r.viz.Run(runCtx)
		})
	}

	eg.Go(func() error {
		select {
		case <-r.kernel.Started():
			r.initialState()
		case <-runCtx.Done():
		}
		return nil
	})

	r.logger.Info().
		Int("rf_rate", r.opts.Rates.RF).
		Int("audio_rate", r.opts.Rates.Audio).
		Int("rx_rf_block", r.sizes.RXRF).
		Int("rx_audio_block", r.sizes.RXAudio).
		Str("radio", r.radio.Model()).
		Msg("starting")

	return eg.Wait()
}

// initialState puts the radio in its configured state the same way a UI
// would, so every stage hears about it.
func (r *Rig) initialState() {
	o := r.opts
	cmds := []command.Command{
		command.NewDouble(command.Set, command.RXRFGain, o.RXGain),
		command.NewDouble(command.Set, command.TXRFGain, o.TXGain),
		command.NewInt(command.Set, command.RXMode, int32(o.InitialMode)),
		command.NewInt(command.Set, command.TXMode, int32(o.InitialMode)),
		command.NewDouble(command.Set, command.SpecCenterFreq, o.InitialFreq),
		command.NewDouble(command.Set, command.RXTuneFreq, o.InitialFreq),
		command.NewDouble(command.Set, command.TXTuneFreq, o.InitialFreq),
	}
	if o.ExternalClock {
		cmds = append(cmds, command.NewInt(command.Set, command.ClockSource, 1))
	}
	for _, cmd := range cmds {
		r.kernel.Send(cmd)
	}
	r.logger.Info().
		Float64("freq", o.InitialFreq).
		Str("mode", o.InitialMode.String()).
		Msg("initial state sent")
}
