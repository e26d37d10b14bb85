package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samuel/go-hackrf/hackrf"
	"golang.org/x/sync/errgroup"
	"gopkg.in/lumberjack.v2"

	"github.com/norasector/rigcore/pkg/audio"
	audiofile "github.com/norasector/rigcore/pkg/audio/file"
	"github.com/norasector/rigcore/pkg/audio/stream"
	"github.com/norasector/rigcore/pkg/baseband"
	"github.com/norasector/rigcore/pkg/config"
	"github.com/norasector/rigcore/pkg/dsp/viz"
	"github.com/norasector/rigcore/pkg/radio"
	radiofile "github.com/norasector/rigcore/pkg/radio/file"
	radiohackrf "github.com/norasector/rigcore/pkg/radio/hackrf"
	"github.com/norasector/rigcore/pkg/radio/rtlsdr"
	"github.com/norasector/rigcore/pkg/radio/sim"
	"github.com/norasector/rigcore/pkg/rigcore"
	"github.com/norasector/rigcore/pkg/tuning"
	"github.com/norasector/rigcore/pkg/util"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "", "YAML config file; defaults are used when empty")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			log.Fatal().Err(err).Str("file", *configFile).Msg("error loading config")
		}
	}

	closeLog := setupLogging(cfg)
	defer closeLog()

	rd, closeRadio, err := openRadio(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("radio", cfg.Radio.Model).Msg("failed to open radio")
	}
	defer closeRadio()

	writeAPI := influxWriteAPI(cfg)

	rates := baseband.Rates{
		RF:            cfg.RFSampleRate,
		Audio:         cfg.AudioSampleRate,
		BlockDuration: cfg.BlockDuration,
	}
	dev, err := openAudio(cfg, rates, writeAPI)
	if err != nil {
		log.Fatal().Err(err).Str("sink", cfg.Audio.Sink).Msg("failed to open audio")
	}
	defer dev.Close()

	mode, _ := cfg.InitialMode()
	tuneOpts := tuning.DefaultOptions()
	tuneOpts.SafeBandLow = cfg.Tuning.SafeBandLow
	tuneOpts.SafeBandHigh = cfg.Tuning.SafeBandHigh
	tuneOpts.LockPollInterval = cfg.Tuning.LockPollInterval
	tuneOpts.RetryPolls = cfg.Tuning.RetryPolls
	tuneOpts.TXOffset = cfg.Tuning.TXOffset
	tuneOpts.RXParkGain = cfg.Tuning.RXParkGain
	tuneOpts.FullDuplex = cfg.Tuning.FullDuplex

	rigOpts := []rigcore.RigOption{
		rigcore.WithLogger(log.Logger),
		rigcore.WithInfluxDB(writeAPI),
	}
	if cfg.VizServer.Port > 0 {
		rigOpts = append(rigOpts, rigcore.WithVizServer(
			viz.NewServer(cfg.VizServer.Port, cfg.VizServer.UpdateInterval, viz.WithLogger(log.Logger))))
	}

	rig, err := rigcore.New(rd, dev, rigcore.Options{
		Rates:           rates,
		SocketPath:      cfg.SocketPath,
		Tuning:          tuneOpts,
		SpectrumBuckets: cfg.Spectrum.Buckets,
		SpectrumSpan:    cfg.Spectrum.Span,
		InitialFreq:     cfg.Tuning.InitialFreq,
		InitialMode:     mode,
		RXGain:          cfg.Radio.RXGain,
		TXGain:          cfg.Radio.TXGain,
		ExternalClock:   cfg.Radio.ExternalClock,
	}, rigOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build radio")
	}

	eg, ctx := errgroup.WithContext(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	stopped := make(chan struct{})
	eg.Go(func() error {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
		case <-stopped:
		case <-ctx.Done():
		}
		rig.Stop()
		return nil
	})

	eg.Go(func() error {
		defer close(stopped)
		return rig.Start(ctx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("exited program")
		closeRadio()
		os.Exit(1)
	}
}

func setupLogging(cfg *config.Config) func() {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	closer := func() {}
	if cfg.Log.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}
		out = zerolog.MultiLevelWriter(out, rotating)
		closer = func() { rotating.Close() }
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger().Level(cfg.LogLevel())
	return closer
}

func openRadio(cfg *config.Config) (radio.Radio, func(), error) {
	log.Info().Str("radio", cfg.Radio.Model).Msg("initializing radio...")
	switch cfg.Radio.Model {
	case config.RadioRTLSDR:
		d, err := rtlsdr.Open(cfg.Radio.DeviceIndex, rtlsdr.WithLogger(log.Logger))
		if err != nil {
			return nil, nil, err
		}
		return d, func() { d.Close() }, nil
	case config.RadioFile:
		d, err := radiofile.Open(cfg.Radio.PlaybackFile, float64(cfg.RFSampleRate),
			radiofile.WithLogger(log.Logger),
			radiofile.WithLoop(cfg.Radio.Loop),
			radiofile.WithTXRecording(cfg.Radio.TXRecordFile))
		if err != nil {
			return nil, nil, err
		}
		return d, func() { d.Close() }, nil
	case config.RadioSim:
		d := sim.New(sim.WithSampleRate(float64(cfg.RFSampleRate)))
		return d, func() { d.Close() }, nil
	default:
		if err := hackrf.Init(); err != nil {
			return nil, nil, err
		}
		d, err := radiohackrf.Open(radiohackrf.WithLogger(log.Logger), radiohackrf.WithAmp(cfg.Radio.Amp))
		if err != nil {
			hackrf.Exit()
			return nil, nil, err
		}
		return d, func() {
			d.Close()
			hackrf.Exit()
		}, nil
	}
}

func openAudio(cfg *config.Config, rates baseband.Rates, writeAPI api.WriteAPI) (audio.Device, error) {
	block, err := rigcore.BlockSize(rates)
	if err != nil {
		return nil, err
	}
	switch cfg.Audio.Sink {
	case config.SinkStream:
		dests := make([]stream.Destination, 0, len(cfg.Audio.Destinations))
		for _, d := range cfg.Audio.Destinations {
			dests = append(dests, stream.Destination{Host: d.Host, Port: d.Port})
		}
		return stream.NewOutput(dests, rates.Audio, block,
			stream.WithLogger(log.Logger),
			stream.WithInfluxDB(writeAPI),
			stream.WithTalkGroup(cfg.Audio.SystemID, cfg.Audio.TalkGroup))
	case config.SinkNull:
		return audio.NewMemory(rates.Audio, block, 8), nil
	default:
		return audiofile.New(os.Stdout, rates.Audio, block,
			audiofile.WithSource(os.Stdin),
			audiofile.WithPrime()), nil
	}
}

func influxWriteAPI(cfg *config.Config) api.WriteAPI {
	if cfg.InfluxDB.Host == "" {
		return &util.NopWriteAPI{}
	}
	return influxdb2.NewClient(cfg.InfluxDB.Host, cfg.InfluxDB.Token).
		WriteAPI(cfg.InfluxDB.Organization, cfg.InfluxDB.Bucket)
}
