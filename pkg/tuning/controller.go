// Package tuning drives the radio's synthesizers. The controller owns every
// tune, gain and TX/RX transition request, waits for the local oscillators
// to lock without blocking its loop, and reports the achieved IF so the
// baseband stages can retune their software oscillators.
package tuning

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/kernel"
	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/norasector/rigcore/pkg/radio"
	"github.com/norasector/rigcore/pkg/thread"
	"github.com/norasector/rigcore/pkg/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Name is the controller's stage name.
const Name = "Ctrl"

// TuneState is the RX synthesizer state.
type TuneState int32

const (
	Idle TuneState = iota
	Tuning
	LockWait
	Locked
)

func (s TuneState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Tuning:
		return "TUNING"
	case LockWait:
		return "LOCK_WAIT"
	case Locked:
		return "LOCKED"
	default:
		return fmt.Sprintf("TUNESTATE(%d)", int32(s))
	}
}

// Options are the tuning parameters read from configuration.
type Options struct {
	// The IF magnitude must land inside [SafeBandLow, SafeBandHigh].
	SafeBandLow  float64
	SafeBandHigh float64
	// LockPollInterval is the sleep between lock sensor polls.
	LockPollInterval time.Duration
	// RetryPolls is the number of unlocked polls after which the tune
	// request is issued again.
	RetryPolls int
	// TXOffset moves the TX LO away from the carrier while receiving.
	TXOffset float64
	// RXParkGain is the RX gain in dB while transmitting.
	RXParkGain float64
	FullDuplex bool
}

func DefaultOptions() Options {
	return Options{
		SafeBandLow:      80e3,
		SafeBandHigh:     250e3,
		LockPollInterval: time.Millisecond,
		RetryPolls:       4096,
		TXOffset:         1e6,
	}
}

// side tracks one synthesizer's pending tune.
type side struct {
	req      radio.TuneRequest
	result   radio.TuneResult
	waiting  bool
	polls    int
	reissues int
	started  time.Time
}

type Controller struct {
	*thread.Base

	radio    radio.Tuner
	opts     Options
	writeAPI api.WriteAPI
	logger   zerolog.Logger
	cmd      *mailbox.Mailbox[command.Command]
	idle     time.Duration

	state atomic.Int32
	rx    side
	tx    side

	// lastRXReq is the frequency the operator asked for; the IF is its
	// distance from the achieved front end centre.
	lastRXReq float64
	reportIF  bool
	ifOffset  float64

	txFreq     float64
	txOffset   float64
	txOn       bool
	fullDuplex bool
	// announceTX is the TX_STATE value to broadcast once the TX LO locks.
	announceTX int32

	rxGain, txGain float64
	rxAnt, txAnt   string

	// Transverter LO on the radio's spare TX channel. While tvrtOn the TX
	// synthesizer is pinned to tvrtFE so both channels share one RF LO.
	tvrtFreq  float64
	tvrtPower float64
	tvrtOn    bool
	tvrtFE    float64
}

type ControllerOption func(c *Controller) error

func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) error {
		c.logger = logger
		return nil
	}
}

func WithInfluxDB(writeAPI api.WriteAPI) ControllerOption {
	return func(c *Controller) error {
		c.writeAPI = writeAPI
		return nil
	}
}

func NewController(r radio.Tuner, options Options, opts ...ControllerOption) (*Controller, error) {
	c := &Controller{
		radio:      r,
		logger:     log.Logger,
		opts:       options,
		writeAPI:   &util.NopWriteAPI{},
		txOffset:   options.TXOffset,
		announceTX: -1,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if options.SafeBandLow <= 0 || options.SafeBandHigh <= options.SafeBandLow {
		return nil, fmt.Errorf("bad safe band %.0f-%.0f", options.SafeBandLow, options.SafeBandHigh)
	}
	if options.RetryPolls <= 0 {
		return nil, fmt.Errorf("retry polls must be positive, got %d", options.RetryPolls)
	}
	c.Base = thread.NewBase(Name, thread.WithLogger(c.logger))
	if c.opts.LockPollInterval <= 0 {
		c.opts.LockPollInterval = time.Millisecond
	}
	c.idle = c.Idle()
	c.rxGain = r.RXGainRange().Span(0.5)
	return c, nil
}

// TuneState is safe to call from any goroutine.
func (c *Controller) TuneState() TuneState {
	return TuneState(c.state.Load())
}

func (c *Controller) setTuneState(s TuneState) {
	c.state.Store(int32(s))
}

func (c *Controller) Subscribe(reg *mailbox.Registry) error {
	cmd, err := mailbox.Lookup[command.Command](reg, kernel.MailboxCommand)
	if err != nil {
		return err
	}
	c.cmd = cmd
	c.Listen(cmd)

	c.Handle(command.Set, command.RXRetuneFreq, c.setRXRetune)
	c.Handle(command.Set, command.RXTuneFreq, c.setRXTune)
	c.Handle(command.Set, command.RXFEFreq, c.setRXTune)
	c.Handle(command.Set, command.LOCheck, c.setLOCheck)
	c.Handle(command.Set, command.TXRetuneFreq, c.setTXTune)
	c.Handle(command.Set, command.TXTuneFreq, c.setTXTune)
	c.Handle(command.Set, command.TXFEFreq, c.setTXTune)
	c.Handle(command.Set, command.RXSampRate, c.setRXRate)
	c.Handle(command.Set, command.TXSampRate, c.setTXRate)
	c.Handle(command.Set, command.RXRFGain, c.setRXGain)
	c.Handle(command.Set, command.TXRFGain, c.setTXGain)
	c.Handle(command.Set, command.TXState, c.setTXState)
	c.Handle(command.Set, command.ClockSource, c.setClockSource)
	c.Handle(command.Set, command.RXAnt, c.setRXAnt)
	c.Handle(command.Set, command.TXAnt, c.setTXAnt)
	c.Handle(command.Set, command.TVRTLOConfig, c.setTVRTConfig)
	c.Handle(command.Set, command.TVRTLOEnable, c.enableTVRT)
	c.Handle(command.Set, command.TVRTLODisable, c.disableTVRT)

	c.Handle(command.Get, command.RXFEFreq, c.getRXFE)
	c.Handle(command.Get, command.TXFEFreq, c.getTXFE)
	c.Handle(command.Get, command.RXSampRate, c.getRXRate)
	c.Handle(command.Get, command.TXSampRate, c.getTXRate)
	c.Handle(command.Get, command.RXGainRange, c.getRXGainRange)
	c.Handle(command.Get, command.TXGainRange, c.getTXGainRange)
	c.Handle(command.Get, command.ClockSource, c.getClockSource)
	c.Handle(command.Get, command.RXAntName, c.getRXAntennas)
	c.Handle(command.Get, command.TXAntName, c.getTXAntennas)
	c.Handle(command.Get, command.SDRVersion, c.getVersion)
	c.Handle(command.Get, command.HWMBRep, c.getHardware)
	return nil
}

func (c *Controller) Run() error {
	c.Logger().Info().
		Str("model", c.radio.Model()).
		Str("version", c.radio.Version()).
		Bool("int_n", c.radio.SupportsIntN()).
		Msg("tuning controller starting")
	if err := c.radio.SetRXGain(c.rxGain); err != nil {
		return c.hwError("set rx gain", err)
	}
	if err := c.radio.SetTXGain(0); err != nil {
		return c.hwError("set tx gain", err)
	}
	return c.Loop(c.pollLocks)
}

func (c *Controller) put(cmd command.Command) {
	c.cmd.Put(cmd)
}

// hwError decides whether a radio error ends the stage. Requests the radio
// cannot honour are logged and dropped.
func (c *Controller) hwError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, radio.ErrNotSupported) || errors.Is(err, radio.ErrOutOfRange) {
		c.Logger().Warn().Err(err).Str("op", op).Msg("radio refused request")
		c.put(command.NewString(command.Report, command.StatusMessage, fmt.Sprintf("%s: %v", op, err)))
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// pollLocks is the loop's work quantum: one lock sensor read per pending
// synthesizer.
func (c *Controller) pollLocks() (bool, error) {
	if c.rx.waiting {
		locked, err := c.radio.RXLocked()
		if err != nil {
			return false, fmt.Errorf("rx lock sensor: %w", err)
		}
		if locked {
			c.rxLocked()
		} else if err := c.retry(&c.rx, c.radio.TuneRX, "rx"); err != nil {
			return false, err
		}
	}
	if c.tx.waiting {
		locked, err := c.radio.TXLocked()
		if err != nil {
			return false, fmt.Errorf("tx lock sensor: %w", err)
		}
		if locked {
			if err := c.txLocked(); err != nil {
				return false, err
			}
		} else if err := c.retry(&c.tx, c.radio.TuneTX, "tx"); err != nil {
			return false, err
		}
	}
	c.updateIdle()
	return false, nil
}

func (c *Controller) retry(s *side, tune func(radio.TuneRequest) (radio.TuneResult, error), name string) error {
	s.polls++
	if s.polls%c.opts.RetryPolls != 0 {
		return nil
	}
	s.reissues++
	c.Logger().Debug().
		Str("side", name).
		Stringer("request", s.req).
		Int("polls", s.polls).
		Msg("waiting for LO lock, reissuing tune")
	res, err := tune(s.req)
	if err != nil {
		return c.hwError(name+" retune", err)
	}
	s.result = res
	return nil
}

func (c *Controller) updateIdle() {
	if c.rx.waiting || c.tx.waiting {
		c.SetIdle(c.opts.LockPollInterval)
	} else {
		c.SetIdle(c.idle)
	}
}

func (c *Controller) startTune(s *side, req radio.TuneRequest, tune func(radio.TuneRequest) (radio.TuneResult, error)) error {
	res, err := tune(req)
	if err != nil {
		return err
	}
	*s = side{req: req, result: res, waiting: true, started: time.Now()}
	c.updateIdle()
	return nil
}

func (c *Controller) tuneRX(freq float64, reportIF bool) error {
	freq = c.radio.RXFreqRange().Clamp(freq)
	c.lastRXReq = freq
	c.reportIF = reportIF

	c.setTuneState(Tuning)
	req := rxRequest(rxLO(freq, c.radio.RXFreqRange()), c.radio.SupportsIntN())
	c.Logger().Debug().Float64("freq", freq).Stringer("request", req).Msg("tuning rx")
	if err := c.startTune(&c.rx, req, c.radio.TuneRX); err != nil {
		c.setTuneState(Idle)
		return c.hwError("tune rx", err)
	}
	c.setTuneState(LockWait)
	return nil
}

func (c *Controller) rxLocked() {
	c.rx.waiting = false
	c.setTuneState(Locked)

	center := c.rx.result.Center()
	c.ifOffset = c.lastRXReq - center

	if !c.inSafeBand(math.Abs(c.ifOffset)) {
		c.Logger().Warn().
			Float64("freq", c.lastRXReq).
			Float64("if", c.ifOffset).
			Msg("IF outside safe band")
	}
	c.Logger().Info().
		Str("freq", util.MHzToString(c.lastRXReq)).
		Float64("rf", c.rx.result.ActualRF).
		Float64("dsp", c.rx.result.ActualDSP).
		Float64("if", c.ifOffset).
		Int("polls", c.rx.polls).
		Msg("rx locked")

	if c.reportIF {
		c.put(command.NewDouble(command.Set, command.RXLO3Freq, c.ifOffset))
	}
	c.put(command.NewDouble(command.Report, command.RXFEFreq, center))
	c.put(command.NewDouble(command.Report, command.RXCenterFreq, c.rx.result.ActualRF))

	c.writeLock("rx", &c.rx, c.ifOffset)
}

func (c *Controller) txLocked() error {
	c.tx.waiting = false
	c.Logger().Debug().
		Float64("rf", c.tx.result.ActualRF).
		Float64("dsp", c.tx.result.ActualDSP).
		Int("polls", c.tx.polls).
		Msg("tx locked")
	c.put(command.NewDouble(command.Report, command.TXFEFreq, c.tx.result.Center()))
	c.writeLock("tx", &c.tx, c.txOffset)

	if c.announceTX == command.StateTXOn {
		c.announceTX = -1
		if err := c.radio.SetTXEnable(true); err != nil {
			return c.hwError("enable tx", err)
		}
		if err := c.radio.SetTXGain(c.txGain); err != nil {
			return c.hwError("set tx gain", err)
		}
		c.put(command.NewDouble(command.Report, command.TXRFGain, c.txGain))
		c.put(command.NewInt(command.Set, command.TXState, command.StateTXOn, boolInt(c.fullDuplex)))
		c.Logger().Info().Float64("freq", c.txFreq).Msg("transmitter on")
	}
	return nil
}

func (c *Controller) writeLock(name string, s *side, offset float64) {
	go c.writeAPI.WritePoint(influxdb2.NewPoint("tuning.lock",
		map[string]string{"side": name},
		map[string]interface{}{
			"target":   s.req.Target,
			"rf":       s.result.ActualRF,
			"dsp":      s.result.ActualDSP,
			"offset":   offset,
			"polls":    s.polls,
			"reissues": s.reissues,
			"wait_us":  time.Since(s.started).Microseconds(),
		},
		time.Now()))
}

func (c *Controller) tuneTX() error {
	freq := c.radio.TXFreqRange().Clamp(c.txFreq + c.txOffset)
	req := txRequest(freq, c.lastRXReq, c.radio.SupportsIntN())
	if c.tvrtOn {
		req = radio.TuneRequest{Target: freq, RF: c.tvrtFE, Policy: radio.PolicyManual}
	}
	c.Logger().Debug().Float64("freq", freq).Stringer("request", req).Msg("tuning tx")
	if err := c.startTune(&c.tx, req, c.radio.TuneTX); err != nil {
		return c.hwError("tune tx", err)
	}
	return nil
}

func (c *Controller) setRXRetune(cmd command.Command) error {
	freq := cmd.Double()
	if c.TuneState() == Locked || c.TuneState() == LockWait {
		fdiff := freq - c.rx.result.Center()
		dist := fdiff
		// Stay on the side of the LO already in use.
		if c.lastRXReq < c.rx.result.Center() {
			dist = -fdiff
		}
		if c.inSafeBand(dist) {
			c.lastRXReq = freq
			c.reportIF = true
			if c.TuneState() == Locked {
				c.ifOffset = fdiff
				c.put(command.NewDouble(command.Set, command.RXLO3Freq, fdiff))
				c.put(command.NewDouble(command.Report, command.RXFEFreq, c.rx.result.Center()))
				c.put(command.NewDouble(command.Report, command.RXCenterFreq, c.rx.result.ActualRF))
			}
			return nil
		}
	}
	return c.tuneRX(freq, true)
}

func (c *Controller) inSafeBand(f float64) bool {
	return f > c.opts.SafeBandLow && f < c.opts.SafeBandHigh
}

func (c *Controller) setRXTune(cmd command.Command) error {
	return c.tuneRX(cmd.Double(), true)
}

func (c *Controller) setLOCheck(cmd command.Command) error {
	freq := cmd.Double()
	if freq == 0 {
		return c.tuneRX(c.lastRXReq, false)
	}

	res, err := c.radio.TuneRX(radio.TuneRequest{Target: freq, RF: freq})
	if err != nil {
		return c.hwError("lo check", err)
	}
	c.rx = side{req: radio.TuneRequest{Target: freq, RF: freq}, result: res, waiting: true, started: time.Now()}
	c.reportIF = false
	c.lastRXReq = freq
	c.setTuneState(LockWait)
	c.put(command.NewDouble(command.Report, command.LOOffset, res.Center()-freq))
	return nil
}

func (c *Controller) setTXTune(cmd command.Command) error {
	c.txFreq = cmd.Double()
	return c.tuneTX()
}

func (c *Controller) setRXRate(cmd command.Command) error {
	if err := c.radio.SetRXSampleRate(cmd.Double()); err != nil {
		return c.hwError("set rx sample rate", err)
	}
	c.put(command.NewDouble(command.Report, command.RXSampRate, c.radio.RXSampleRate()))
	return nil
}

func (c *Controller) setTXRate(cmd command.Command) error {
	if err := c.radio.SetTXSampleRate(cmd.Double()); err != nil {
		return c.hwError("set tx sample rate", err)
	}
	c.put(command.NewDouble(command.Report, command.TXSampRate, c.radio.TXSampleRate()))
	return nil
}

// gain maps a 0-100 command value onto rng.
func gain(rng radio.Range, v float64) float64 {
	return rng.Span(v / 100)
}

func (c *Controller) setRXGain(cmd command.Command) error {
	c.rxGain = gain(c.radio.RXGainRange(), cmd.Double())
	if c.txOn && !c.fullDuplex {
		return nil
	}
	if err := c.radio.SetRXGain(c.rxGain); err != nil {
		return c.hwError("set rx gain", err)
	}
	c.put(command.NewDouble(command.Report, command.RXRFGain, c.rxGain))
	return nil
}

func (c *Controller) setTXGain(cmd command.Command) error {
	c.txGain = gain(c.radio.TXGainRange(), cmd.Double())
	if !c.txOn || c.announceTX == command.StateTXOn {
		return nil
	}
	if err := c.radio.SetTXGain(c.txGain); err != nil {
		return c.hwError("set tx gain", err)
	}
	c.put(command.NewDouble(command.Report, command.TXRFGain, c.txGain))
	return nil
}

func (c *Controller) setTXState(cmd command.Command) error {
	switch cmd.Int() {
	case 1:
		return c.transmit(cmd.Ints[1] != 0 || c.opts.FullDuplex)
	case 0:
		return c.receive()
	}
	// TX_ON and RX_ON are this stage's own announcements.
	return nil
}

// transmit parks the receiver and retunes the TX LO onto the carrier. The
// transmitter is enabled and its gain restored only once the LO has locked.
func (c *Controller) transmit(fullDuplex bool) error {
	c.txOn = true
	c.fullDuplex = fullDuplex

	if !fullDuplex {
		if err := c.radio.SetRXGain(c.opts.RXParkGain); err != nil {
			return c.hwError("park rx gain", err)
		}
	}
	if err := c.radio.SetTXGain(0); err != nil {
		return c.hwError("set tx gain", err)
	}

	c.txOffset = 0
	c.announceTX = command.StateTXOn
	return c.tuneTX()
}

// receive silences the transmitter, restores the receiver and parks the TX
// LO off the carrier.
func (c *Controller) receive() error {
	c.txOn = false
	c.announceTX = -1

	if err := c.radio.SetTXGain(0); err != nil {
		return c.hwError("set tx gain", err)
	}
	if err := c.radio.SetTXEnable(false); err != nil {
		return c.hwError("disable tx", err)
	}
	if err := c.radio.SetRXGain(c.rxGain); err != nil {
		return c.hwError("restore rx gain", err)
	}

	c.txOffset = c.opts.TXOffset
	if err := c.tuneTX(); err != nil {
		return err
	}
	c.put(command.NewInt(command.Set, command.TXState, command.StateRXOn))
	c.Logger().Info().Msg("transmitter off")
	return nil
}

func (c *Controller) setClockSource(cmd command.Command) error {
	external := cmd.Int()&1 == 1
	c.Logger().Info().Bool("external", external).Msg("setting reference clock")
	return c.hwError("set clock source", c.radio.SetClockSource(external))
}

func (c *Controller) setRXAnt(cmd command.Command) error {
	if err := c.radio.SetRXAntenna(cmd.Str); err != nil {
		return c.hwError("set rx antenna", err)
	}
	c.rxAnt = cmd.Str
	c.put(command.NewString(command.Report, command.RXAnt, c.rxAnt))
	return nil
}

func (c *Controller) setTXAnt(cmd command.Command) error {
	if err := c.radio.SetTXAntenna(cmd.Str); err != nil {
		return c.hwError("set tx antenna", err)
	}
	c.txAnt = cmd.Str
	c.put(command.NewString(command.Report, command.TXAnt, c.txAnt))
	return nil
}

// setTVRTConfig takes the transverter LO frequency and a power fraction of
// the TX gain range. The LO is not retuned until the next enable.
func (c *Controller) setTVRTConfig(cmd command.Command) error {
	c.tvrtFreq = cmd.Doubles[0]
	c.tvrtPower = math.Max(0, math.Min(1, cmd.Doubles[1]))
	c.Logger().Info().
		Float64("freq", c.tvrtFreq).
		Float64("power", c.tvrtPower).
		Msg("transverter LO configured")
	c.put(command.NewDouble(command.Report, command.TVRTLOConfig, c.tvrtFreq, c.tvrtPower))
	return nil
}

func (c *Controller) enableTVRT(command.Command) error {
	lo, ok := c.radio.(radio.LOOutput)
	if !ok {
		c.tvrtOn = false
		return c.hwError("enable transverter LO", radio.ErrNotSupported)
	}
	// The first LO sits 4 MHz below and the DUC makes up the rest.
	req := radio.TuneRequest{Target: c.tvrtFreq, RF: c.tvrtFreq - 4e6, Policy: radio.PolicyManual}
	res, err := lo.EnableLOOutput(req, c.radio.TXGainRange().Span(c.tvrtPower))
	if err != nil {
		c.tvrtOn = false
		return c.hwError("enable transverter LO", err)
	}
	c.tvrtOn = true
	c.tvrtFE = res.TargetRF
	c.Logger().Info().
		Float64("freq", c.tvrtFreq).
		Float64("rf", res.ActualRF).
		Float64("dsp", res.ActualDSP).
		Msg("transverter LO on")
	c.put(command.NewDouble(command.Report, command.TVRTLOEnable, res.Center()))
	if c.txFreq != 0 {
		return c.tuneTX()
	}
	return nil
}

func (c *Controller) disableTVRT(command.Command) error {
	c.tvrtOn = false
	lo, ok := c.radio.(radio.LOOutput)
	if !ok {
		return nil
	}
	if err := lo.DisableLOOutput(); err != nil {
		return c.hwError("disable transverter LO", err)
	}
	c.Logger().Info().Msg("transverter LO off")
	c.put(command.New(command.Report, command.TVRTLODisable))
	if c.txFreq != 0 {
		return c.tuneTX()
	}
	return nil
}

func (c *Controller) getRXFE(command.Command) error {
	c.put(command.NewDouble(command.Report, command.RXFEFreq, c.rx.result.ActualRF, c.rx.result.ActualDSP))
	return nil
}

func (c *Controller) getTXFE(command.Command) error {
	c.put(command.NewDouble(command.Report, command.TXFEFreq, c.tx.result.ActualRF, c.tx.result.ActualDSP))
	return nil
}

func (c *Controller) getRXRate(command.Command) error {
	c.put(command.NewDouble(command.Report, command.RXSampRate, c.radio.RXSampleRate()))
	return nil
}

func (c *Controller) getTXRate(command.Command) error {
	c.put(command.NewDouble(command.Report, command.TXSampRate, c.radio.TXSampleRate()))
	return nil
}

func (c *Controller) getRXGainRange(command.Command) error {
	rng := c.radio.RXGainRange()
	c.put(command.NewDouble(command.Report, command.RXGainRange, rng.Min, rng.Max))
	return nil
}

func (c *Controller) getTXGainRange(command.Command) error {
	rng := c.radio.TXGainRange()
	c.put(command.NewDouble(command.Report, command.TXGainRange, rng.Min, rng.Max))
	return nil
}

func (c *Controller) getClockSource(command.Command) error {
	st, err := c.radio.ClockSource()
	if err != nil {
		return c.hwError("clock source", err)
	}
	var bits int32
	if st.External {
		bits |= command.ClockExternal
	}
	if st.Locked {
		bits |= command.ClockLocked
	}
	c.put(command.NewInt(command.Report, command.ClockSource, bits))
	return nil
}

func (c *Controller) getRXAntennas(command.Command) error {
	for _, name := range c.radio.RXAntennas() {
		c.put(command.NewString(command.Report, command.RXAntName, name))
	}
	return nil
}

func (c *Controller) getTXAntennas(command.Command) error {
	for _, name := range c.radio.TXAntennas() {
		c.put(command.NewString(command.Report, command.TXAntName, name))
	}
	return nil
}

func (c *Controller) getVersion(command.Command) error {
	c.put(command.NewString(command.Report, command.SDRVersion, c.radio.Version()))
	return nil
}

// getHardware describes the radio and its menus to a newly connected UI.
func (c *Controller) getHardware(cmd command.Command) error {
	rng := c.radio.RXFreqRange()
	c.put(command.NewString(command.Report, command.HWMBRep,
		fmt.Sprintf("%s\t%.3f to %.3f MHz", c.radio.Model(), rng.Min*1e-6, rng.Max*1e-6)))
	c.getRXAntennas(cmd)
	c.getTXAntennas(cmd)
	for _, m := range command.Modulations() {
		c.put(command.NewString(command.Report, command.ModSelEntry, m.String()).WithTag(int32(m)))
	}
	c.put(command.NewInt(command.Report, command.InitSetupComplete, 0))
	return nil
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
