// Package config loads the rigcore YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/norasector/rigcore/pkg/command"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

const (
	RadioHackRF = "hackrf"
	RadioRTLSDR = "rtlsdr"
	RadioFile   = "file"
	RadioSim    = "sim"
)

const (
	// SinkStdout writes raw float32 audio to stdout and reads the mic
	// from stdin.
	SinkStdout = "stdout"
	// SinkStream sends opus frames to the UDP destinations.
	SinkStream = "stream"
	// SinkNull discards audio.
	SinkNull = "null"
)

type Destination struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Config struct {
	Radio struct {
		Model        string `yaml:"model"`
		DeviceIndex  int    `yaml:"device_index"`
		PlaybackFile string `yaml:"playback_file"`
		Loop         bool   `yaml:"loop"`
		// TXRecordFile captures transmitted RF when playing back a file.
		TXRecordFile  string `yaml:"tx_record_file"`
		Amp           bool   `yaml:"amp"`
		ExternalClock bool   `yaml:"external_clock"`
		// Gains are 0-100 of the radio's range.
		RXGain float64 `yaml:"rx_gain"`
		TXGain float64 `yaml:"tx_gain"`
	} `yaml:"radio"`

	RFSampleRate    int     `yaml:"rf_sample_rate"`
	AudioSampleRate int     `yaml:"audio_sample_rate"`
	BlockDuration   float64 `yaml:"block_duration"`
	SocketPath      string  `yaml:"socket_path"`

	Audio struct {
		Sink         string        `yaml:"sink"`
		Destinations []Destination `yaml:"destinations"`
		SystemID     int           `yaml:"system_id"`
		TalkGroup    int           `yaml:"talk_group"`
	} `yaml:"audio"`

	Tuning struct {
		SafeBandLow      float64       `yaml:"safe_band_low"`
		SafeBandHigh     float64       `yaml:"safe_band_high"`
		LockPollInterval time.Duration `yaml:"lock_poll_interval"`
		RetryPolls       int           `yaml:"retry_polls"`
		TXOffset         float64       `yaml:"tx_offset"`
		RXParkGain       float64       `yaml:"rx_park_gain"`
		FullDuplex       bool          `yaml:"full_duplex"`
		InitialFreq      float64       `yaml:"initial_freq"`
		InitialMode      string        `yaml:"initial_mode"`
	} `yaml:"tuning"`

	Spectrum struct {
		Buckets int     `yaml:"buckets"`
		Span    float64 `yaml:"span"`
	} `yaml:"spectrum"`

	// VizServer is off when Port is 0.
	VizServer struct {
		Port           int           `yaml:"port"`
		UpdateInterval time.Duration `yaml:"update_interval"`
	} `yaml:"viz_server"`

	// InfluxDB is off when Host is empty.
	InfluxDB struct {
		Host         string `yaml:"host"`
		Token        string `yaml:"token"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`

	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
}

// Default is the configuration used for any key a file leaves out.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// Load reads path, fills in defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyDefaults fills every zero value that has a default.
func (c *Config) ApplyDefaults() {
	if c.Radio.Model == "" {
		c.Radio.Model = RadioHackRF
		if c.Radio.PlaybackFile != "" {
			c.Radio.Model = RadioFile
		}
	}
	if c.Radio.RXGain == 0 {
		c.Radio.RXGain = 50
	}
	if c.RFSampleRate == 0 {
		c.RFSampleRate = 625000
	}
	if c.AudioSampleRate == 0 {
		c.AudioSampleRate = 48000
	}
	if c.BlockDuration == 0 {
		c.BlockDuration = 0.05
	}
	if c.SocketPath == "" {
		c.SocketPath = "/tmp/rigcore"
	}
	if c.Audio.Sink == "" {
		c.Audio.Sink = SinkStdout
	}
	if c.Tuning.SafeBandLow == 0 {
		c.Tuning.SafeBandLow = 80e3
	}
	if c.Tuning.SafeBandHigh == 0 {
		c.Tuning.SafeBandHigh = 250e3
	}
	if c.Tuning.LockPollInterval == 0 {
		c.Tuning.LockPollInterval = time.Millisecond
	}
	if c.Tuning.RetryPolls == 0 {
		c.Tuning.RetryPolls = 4096
	}
	if c.Tuning.TXOffset == 0 {
		c.Tuning.TXOffset = 1e6
	}
	if c.Tuning.InitialFreq == 0 {
		c.Tuning.InitialFreq = 144.2e6
	}
	if c.Tuning.InitialMode == "" {
		c.Tuning.InitialMode = command.ModUSB.String()
	}
	if c.Spectrum.Buckets == 0 {
		c.Spectrum.Buckets = 16384
	}
	if c.Spectrum.Span == 0 {
		c.Spectrum.Span = 200e3
	}
	if c.VizServer.UpdateInterval == 0 {
		c.VizServer.UpdateInterval = 500 * time.Millisecond
	}
	if c.Log.Level == "" {
		c.Log.Level = zerolog.InfoLevel.String()
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
}

func (c *Config) Validate() error {
	switch c.Radio.Model {
	case RadioHackRF, RadioRTLSDR, RadioSim:
	case RadioFile:
		if c.Radio.PlaybackFile == "" {
			return fmt.Errorf("radio model %s needs playback_file", RadioFile)
		}
	default:
		return fmt.Errorf("unknown radio model %q", c.Radio.Model)
	}
	if c.Radio.RXGain < 0 || c.Radio.RXGain > 100 || c.Radio.TXGain < 0 || c.Radio.TXGain > 100 {
		return fmt.Errorf("gains must be 0-100, got rx=%v tx=%v", c.Radio.RXGain, c.Radio.TXGain)
	}
	if c.RFSampleRate <= 0 || c.AudioSampleRate <= 0 {
		return fmt.Errorf("bad sample rates rf=%d audio=%d", c.RFSampleRate, c.AudioSampleRate)
	}
	if c.AudioSampleRate >= c.RFSampleRate {
		return fmt.Errorf("audio rate %d must be below rf rate %d", c.AudioSampleRate, c.RFSampleRate)
	}
	if c.BlockDuration <= 0 || c.BlockDuration > 1 {
		return fmt.Errorf("block_duration must be in (0, 1] seconds, got %v", c.BlockDuration)
	}
	switch c.Audio.Sink {
	case SinkStdout, SinkNull:
	case SinkStream:
		if len(c.Audio.Destinations) == 0 {
			return fmt.Errorf("audio sink %s needs destinations", SinkStream)
		}
		for _, d := range c.Audio.Destinations {
			if d.Host == "" || d.Port <= 0 || d.Port > 65535 {
				return fmt.Errorf("bad audio destination %s:%d", d.Host, d.Port)
			}
		}
	default:
		return fmt.Errorf("unknown audio sink %q", c.Audio.Sink)
	}
	if c.Tuning.SafeBandLow <= 0 || c.Tuning.SafeBandHigh <= c.Tuning.SafeBandLow {
		return fmt.Errorf("bad safe band %.0f-%.0f", c.Tuning.SafeBandLow, c.Tuning.SafeBandHigh)
	}
	if c.Tuning.SafeBandHigh >= float64(c.RFSampleRate)/2 {
		return fmt.Errorf("safe band top %.0f is outside the rf passband", c.Tuning.SafeBandHigh)
	}
	if _, err := c.InitialMode(); err != nil {
		return err
	}
	if c.Spectrum.Buckets < 2 || c.Spectrum.Buckets%2 != 0 {
		return fmt.Errorf("spectrum buckets must be even, got %d", c.Spectrum.Buckets)
	}
	if c.VizServer.Port < 0 || c.VizServer.Port > 65535 {
		return fmt.Errorf("bad viz server port %d", c.VizServer.Port)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("bad log level: %w", err)
	}
	return nil
}

// InitialMode resolves tuning.initial_mode, case insensitively.
func (c *Config) InitialMode() (command.Modulation, error) {
	for _, m := range command.Modulations() {
		if strings.EqualFold(m.String(), c.Tuning.InitialMode) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", c.Tuning.InitialMode)
}

// LogLevel is the parsed log level. Validate has already checked it.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
