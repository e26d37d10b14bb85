package spectrum

import (
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/rigcore/pkg/buffer"
	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/kernel"
	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/norasector/rigcore/pkg/thread"
	"github.com/norasector/rigcore/pkg/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const Name = "Spectrum"

const (
	DefaultBuckets = 16384
	DefaultCenter  = 144.2e6
	DefaultSpan    = 200e3

	defaultInterval = 4
	defaultAccGain  = 0.9
	maxInterval     = 20

	// The LO check averages loBlocks blocks and looks for the carrier
	// within loSearch Hz of the tuned frequency.
	loBlocks  = 8
	loSearch  = 2000.0
	loAccGain = 0.1

	floor = 1e-20
)

// Spectrum is the stage that publishes one row of log power buckets on the
// SPEC mailbox every few RX blocks. The row covers the span around the
// display center, which may differ from the front end frequency.
type Spectrum struct {
	*thread.Base

	rate     float64
	n        int
	writeAPI api.WriteAPI
	logger   zerolog.Logger

	cmd  *mailbox.Mailbox[command.Command]
	rf   *mailbox.Subscription[*buffer.Buffer[complex64]]
	spec *mailbox.Mailbox[*buffer.Buffer[float32]]
	pool *buffer.Pool[float32]

	analyzer *Analyzer
	acc      []float64
	loAcc    []float64

	hzPerBucket float64
	required    int
	center      float64
	span        float64
	frontEnd    float64
	interval    int
	accGain     float64
	fresh       bool
	counter     int

	loCheck bool
	loCount int
	rows    int64
}

type SpectrumOption func(s *Spectrum) error

func WithLogger(logger zerolog.Logger) SpectrumOption {
	return func(s *Spectrum) error {
		s.logger = logger
		return nil
	}
}

func WithInfluxDB(writeAPI api.WriteAPI) SpectrumOption {
	return func(s *Spectrum) error {
		s.writeAPI = writeAPI
		return nil
	}
}

// WithBuckets sets the transform length. RX blocks must be at least this
// long.
func WithBuckets(n int) SpectrumOption {
	return func(s *Spectrum) error {
		s.n = n
		return nil
	}
}

// WithSpan sets the width in Hz of each published row.
func WithSpan(hz float64) SpectrumOption {
	return func(s *Spectrum) error {
		s.span = hz
		return nil
	}
}

// New builds the stage for RF blocks at sampleRate.
func New(sampleRate float64, opts ...SpectrumOption) (*Spectrum, error) {
	s := &Spectrum{
		rate:     sampleRate,
		n:        DefaultBuckets,
		writeAPI: &util.NopWriteAPI{},
		logger:   log.Logger,
		center:   DefaultCenter,
		span:     DefaultSpan,
		frontEnd: DefaultCenter,
		interval: defaultInterval,
		accGain:  defaultAccGain,
		fresh:    true,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	var err error
	if s.analyzer, err = NewAnalyzer(s.n); err != nil {
		return nil, err
	}
	s.acc = make([]float64, s.n)
	s.loAcc = make([]float64, s.n)
	for i := range s.acc {
		s.acc[i] = floor
	}
	s.hzPerBucket = sampleRate / float64(s.n)
	s.required = int(math.Floor(0.5 + s.span/s.hzPerBucket))
	if s.required > s.n {
		s.required = s.n
	}
	s.pool = buffer.NewPool[float32](s.required, 4, 16)
	s.Base = thread.NewBase(Name, thread.WithLogger(s.logger))
	return s, nil
}

// Buckets is the length of every published row.
func (s *Spectrum) Buckets() int { return s.required }

func (s *Spectrum) Subscribe(reg *mailbox.Registry) error {
	cmd, err := mailbox.Lookup[command.Command](reg, kernel.MailboxCommand)
	if err != nil {
		return err
	}
	rf, err := mailbox.Lookup[*buffer.Buffer[complex64]](reg, kernel.MailboxRX)
	if err != nil {
		return err
	}
	spec, err := mailbox.Lookup[*buffer.Buffer[float32]](reg, kernel.MailboxSpectrum)
	if err != nil {
		return err
	}
	s.cmd = cmd
	s.spec = spec
	s.Listen(cmd)
	s.rf = rf.Subscribe(mailbox.WithNotify(s.Wake()))

	s.Handle(command.Set, command.SpecCenterFreq, s.setCenter)
	s.Handle(command.Set, command.SpecAvgWindow, s.setAvgWindow)
	s.Handle(command.Set, command.SpecUpdateRate, s.setUpdateRate)
	s.Handle(command.Get, command.SpecDims, s.report)
	s.Handle(command.Get, command.SpecStep, s.report)
	s.Handle(command.Get, command.SpecBuckets, s.report)
	s.Handle(command.Get, command.LOOffset, s.startLOCheck)
	s.Handle(command.Report, command.RXFEFreq, s.frontEndTuned)
	return nil
}

func (s *Spectrum) Run() error {
	s.Logger().Info().
		Float64("rate", s.rate).
		Int("fft_len", s.n).
		Int("buckets", s.required).
		Float64("hz_per_bucket", s.hzPerBucket).
		Msg("spectrum starting")
	s.report(command.Command{})
	return s.Loop(s.work)
}

func (s *Spectrum) Shutdown() error {
	for {
		b, ok := s.rf.Get()
		if !ok {
			return nil
		}
		b.Release()
	}
}

func (s *Spectrum) put(cmd command.Command) {
	s.cmd.Put(cmd)
}

func (s *Spectrum) work() (bool, error) {
	b, ok := s.rf.Get()
	if !ok {
		return false, nil
	}
	defer b.Release()

	s.counter++
	if s.loCheck {
		gain := loAccGain
		if s.loCount == 0 {
			gain = 0
		}
		if err := s.analyzer.Accumulate(b.Samples(), s.loAcc, gain); err != nil {
			return true, err
		}
		s.loCount++
		if s.loCount >= loBlocks {
			s.finishLOCheck()
		}
		return true, nil
	}

	gain := s.accGain
	if s.fresh {
		gain = 0
	}
	if err := s.analyzer.Accumulate(b.Samples(), s.acc, gain); err != nil {
		return true, err
	}
	s.fresh = false

	if s.counter >= s.interval {
		s.counter = 0
		s.publish()
	}
	return true, nil
}

// start is the index of the first bucket of the displayed span, or -1 when
// the span falls outside what the front end sees.
func (s *Spectrum) start() int {
	idx := s.n / 2
	idx += int(math.Round((s.center - s.frontEnd) / s.hzPerBucket))
	idx -= s.required / 2
	if idx < 0 || idx+s.required > s.n {
		return -1
	}
	return idx
}

func (s *Spectrum) publish() {
	idx := s.start()
	if idx < 0 {
		return
	}
	out := s.pool.Get()
	for i := 0; i < s.required; i++ {
		out.Data[i] = float32(10 * math.Log10(math.Max(s.acc[idx+i], floor)*0.05))
	}
	out.Seq = int(s.rows)
	s.rows++
	s.spec.Put(out)

	if s.rows%100 == 0 {
		go s.writeAPI.WritePoint(influxdb2.NewPoint("spectrum",
			map[string]string{},
			map[string]interface{}{"rows": s.rows, "center": s.center, "front_end": s.frontEnd},
			time.Now()))
	}
}

func (s *Spectrum) finishLOCheck() {
	span := int(loSearch / s.hzPerBucket)
	mid := s.n / 2
	best, bestMag := 0, 0.0
	for i := -span; i < span; i++ {
		j := mid + i
		if j < 0 || j >= s.n {
			continue
		}
		if s.loAcc[j] > bestMag {
			best, bestMag = i, s.loAcc[j]
		}
	}
	s.loCheck = false
	s.counter = 0
	offset := float64(best) * s.hzPerBucket
	s.Logger().Info().Float64("offset", offset).Msg("lo check complete")

	s.put(command.NewDouble(command.Report, command.LOOffset, offset))
	s.report(command.Command{})
	s.put(command.NewDouble(command.Set, command.LOCheck, 0))
}

func (s *Spectrum) report(command.Command) error {
	s.put(command.NewDouble(command.Report, command.SpecStep, s.hzPerBucket))
	s.put(command.NewInt(command.Report, command.SpecBuckets, int32(s.required)))
	s.put(command.NewDouble(command.Report, command.SpecDims, s.center, s.span, float64(s.required)))
	return nil
}

func (s *Spectrum) setCenter(cmd command.Command) error {
	s.center = cmd.Double()
	s.fresh = true
	return s.report(cmd)
}

// setAvgWindow sets the number of rows the exponential average spans.
func (s *Spectrum) setAvgWindow(cmd command.Command) error {
	n := cmd.Int()
	if n < 1 {
		n = 1
	}
	s.accGain = 1 - 1/float64(n)
	s.fresh = true
	return nil
}

// setUpdateRate maps 0..19 onto publishing every 20..1 blocks.
func (s *Spectrum) setUpdateRate(cmd command.Command) error {
	v := maxInterval - int(cmd.Int())
	if v < 1 {
		v = 1
	}
	if v > maxInterval {
		v = maxInterval
	}
	s.interval = v
	s.fresh = true
	return nil
}

func (s *Spectrum) frontEndTuned(cmd command.Command) error {
	s.frontEnd = cmd.Double()
	return nil
}

func (s *Spectrum) startLOCheck(command.Command) error {
	s.loCheck = true
	s.loCount = 0
	return nil
}
