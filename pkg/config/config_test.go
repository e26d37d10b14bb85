package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/norasector/rigcore/pkg/command"
	"github.com/rs/zerolog"
)

const sample = `
radio:
  model: rtlsdr
  device_index: 1
  rx_gain: 30
rf_sample_rate: 1250000
block_duration: 0.02
socket_path: /run/rig/ctl
audio:
  sink: stream
  destinations:
    - host: 10.0.0.2
      port: 9000
  talk_group: 7
tuning:
  lock_poll_interval: 5ms
  retry_polls: 100
  full_duplex: true
  initial_freq: 14.074e6
  initial_mode: lsb
viz_server:
  port: 8088
  update_interval: 250ms
influxdb:
  host: http://localhost:8086
  organization: shack
  bucket: rig
log:
  level: debug
  file: /var/log/rigcore.log
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rigcore.yaml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	checks := []struct {
		name      string
		got, want interface{}
	}{
		{"model", c.Radio.Model, RadioRTLSDR},
		{"device index", c.Radio.DeviceIndex, 1},
		{"rx gain", c.Radio.RXGain, 30.0},
		{"rf rate", c.RFSampleRate, 1250000},
		{"audio rate default", c.AudioSampleRate, 48000},
		{"block duration", c.BlockDuration, 0.02},
		{"socket", c.SocketPath, "/run/rig/ctl"},
		{"sink", c.Audio.Sink, SinkStream},
		{"destinations", len(c.Audio.Destinations), 1},
		{"destination port", c.Audio.Destinations[0].Port, 9000},
		{"talk group", c.Audio.TalkGroup, 7},
		{"lock poll", c.Tuning.LockPollInterval, 5 * time.Millisecond},
		{"retry polls", c.Tuning.RetryPolls, 100},
		{"full duplex", c.Tuning.FullDuplex, true},
		{"safe band default", c.Tuning.SafeBandLow, 80e3},
		{"initial freq", c.Tuning.InitialFreq, 14.074e6},
		{"viz port", c.VizServer.Port, 8088},
		{"viz interval", c.VizServer.UpdateInterval, 250 * time.Millisecond},
		{"influx org", c.InfluxDB.Organization, "shack"},
		{"log level", c.LogLevel(), zerolog.DebugLevel},
		{"log rotation default", c.Log.MaxBackups, 3},
		{"spectrum default", c.Spectrum.Buckets, 16384},
	}
	for _, tc := range checks {
		if tc.got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, tc.got, tc.want)
		}
	}

	mode, err := c.InitialMode()
	if err != nil || mode != command.ModLSB {
		t.Errorf("initial mode: got %v %v, want LSB", mode, err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error")
	}
}

func TestDefaults(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if c.Radio.Model != RadioHackRF {
		t.Errorf("default model %s", c.Radio.Model)
	}

	c = &Config{}
	c.Radio.PlaybackFile = "capture.cs8"
	c.ApplyDefaults()
	if c.Radio.Model != RadioFile {
		t.Errorf("playback file should select the file radio, got %s", c.Radio.Model)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{"unknown model", "radio: {model: ic7300}", "unknown radio model"},
		{"file without playback", "radio: {model: file}", "playback_file"},
		{"gain too high", "radio: {tx_gain: 120}", "gains must be"},
		{"audio above rf", "rf_sample_rate: 48000\naudio_sample_rate: 96000", "must be below"},
		{"block too long", "block_duration: 2", "block_duration"},
		{"stream without destinations", "audio: {sink: stream}", "needs destinations"},
		{"bad destination", "audio: {sink: stream, destinations: [{host: a, port: 0}]}", "bad audio destination"},
		{"unknown sink", "audio: {sink: alsa}", "unknown audio sink"},
		{"inverted safe band", "tuning: {safe_band_low: 200000, safe_band_high: 100000}", "bad safe band"},
		{"safe band past nyquist", "tuning: {safe_band_high: 400000}", "outside the rf passband"},
		{"unknown mode", "tuning: {initial_mode: fsk}", "unknown mode"},
		{"odd buckets", "spectrum: {buckets: 1023}", "must be even"},
		{"bad port", "viz_server: {port: 70000}", "bad viz server port"},
		{"bad level", "log: {level: loud}", "bad log level"},
		{"bad yaml", "radio: [", "failed to parse"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("error %q does not mention %q", err, tc.errMsg)
			}
		})
	}
}
