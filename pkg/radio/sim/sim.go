// Package sim is a software radio with a digital down converter, integer-N
// capable synthesizers and a lock sensor that takes a configurable number of
// polls to settle. It stands in for hardware in tests and demos.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/norasector/rigcore/pkg/radio"
)

const (
	pllResolution = 1000.0
	blockSize     = 4096
	maxCapture    = 1 << 20
)

// Radio is safe for concurrent use.
type Radio struct {
	mu sync.Mutex

	lockDelay   int
	missedTunes int
	failNext    error

	rxRange, txRange         radio.Range
	rxGainRange, txGainRange radio.Range

	rxLockIn, txLockIn int
	rxLost, txLost     bool
	rxTune, txTune     radio.TuneResult
	rxRequests         []radio.TuneRequest
	txRequests         []radio.TuneRequest

	rxGain, txGain     float64
	txEnabled          bool
	rxRate, txRate     float64
	rxAnt, txAnt       string
	clockExternal      bool
	toneFreq, toneAmp  float64
	tonePhase          float64
	txCapture          []complex64
	loOn               bool
	loGain             float64
	loTune             radio.TuneResult
	cancelRX, cancelTX context.CancelFunc
	wg                 sync.WaitGroup
}

type Option func(r *Radio)

// WithLockDelay makes each lock sensor report unlocked for n polls after a
// tune.
func WithLockDelay(n int) Option {
	return func(r *Radio) {
		r.lockDelay = n
	}
}

// WithMissedTunes makes the first n tune requests never lock, as if the
// synthesizer had missed the command.
func WithMissedTunes(n int) Option {
	return func(r *Radio) {
		r.missedTunes = n
	}
}

// WithTone makes the RX stream carry a unit tone of amp at the absolute
// frequency freq.
func WithTone(freq, amp float64) Option {
	return func(r *Radio) {
		r.toneFreq = freq
		r.toneAmp = amp
	}
}

func WithSampleRate(rate float64) Option {
	return func(r *Radio) {
		r.rxRate = rate
		r.txRate = rate
	}
}

func New(opts ...Option) *Radio {
	r := &Radio{
		rxRange:     radio.Range{Min: 1e6, Max: 6e9},
		txRange:     radio.Range{Min: 1e6, Max: 6e9},
		rxGainRange: radio.Range{Min: 0, Max: 76},
		txGainRange: radio.Range{Min: 0, Max: 89.75},
		rxRate:      625000,
		txRate:      625000,
		rxAnt:       "TX/RX",
		txAnt:       "TX/RX",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Radio) Model() string   { return "sim" }
func (r *Radio) Version() string { return "sim-1.0" }

// FailNextTune makes the next TuneRX or TuneTX return err.
func (r *Radio) FailNextTune(err error) {
	r.mu.Lock()
	r.failNext = err
	r.mu.Unlock()
}

func (r *Radio) tune(req radio.TuneRequest, rng radio.Range) (radio.TuneResult, error) {
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return radio.TuneResult{}, err
	}
	if !rng.Contains(req.Target) {
		return radio.TuneResult{}, fmt.Errorf("tune %.0f: %w", req.Target, radio.ErrOutOfRange)
	}

	rf := req.Target
	if req.Policy == radio.PolicyManual {
		rf = req.RF
	}
	if !req.IntN {
		// Fractional-N lands on the PLL's grid; the DDC makes up the rest.
		rf = math.Round(rf/pllResolution) * pllResolution
	}
	return radio.TuneResult{
		TargetRF:  rf,
		ActualRF:  rf,
		TargetDSP: req.Target - rf,
		ActualDSP: req.Target - rf,
	}, nil
}

func (r *Radio) TuneRX(req radio.TuneRequest) (radio.TuneResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rxRequests = append(r.rxRequests, req)
	res, err := r.tune(req, r.rxRange)
	if err != nil {
		return res, err
	}
	r.rxTune = res
	r.rxLockIn = r.lockDelay
	r.rxLost = r.missedTunes > 0
	if r.rxLost {
		r.missedTunes--
	}
	return res, nil
}

func (r *Radio) TuneTX(req radio.TuneRequest) (radio.TuneResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.txRequests = append(r.txRequests, req)
	res, err := r.tune(req, r.txRange)
	if err != nil {
		return res, err
	}
	r.txTune = res
	r.txLockIn = r.lockDelay
	r.txLost = false
	return res, nil
}

// EnableLOOutput drives the spare TX channel as a transverter LO.
func (r *Radio) EnableLOOutput(req radio.TuneRequest, gain float64) (radio.TuneResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.tune(req, r.txRange)
	if err != nil {
		return res, err
	}
	r.loOn = true
	r.loGain = r.txGainRange.Clamp(gain)
	r.loTune = res
	return res, nil
}

func (r *Radio) DisableLOOutput() error {
	r.mu.Lock()
	r.loOn = false
	r.loGain = 0
	r.mu.Unlock()
	return nil
}

func (r *Radio) RXLocked() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rxLost {
		return false, nil
	}
	if r.rxLockIn > 0 {
		r.rxLockIn--
		return false, nil
	}
	return true, nil
}

func (r *Radio) TXLocked() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.txLost {
		return false, nil
	}
	if r.txLockIn > 0 {
		r.txLockIn--
		return false, nil
	}
	return true, nil
}

func (r *Radio) RXFreqRange() radio.Range { return r.rxRange }
func (r *Radio) TXFreqRange() radio.Range { return r.txRange }
func (r *Radio) SupportsIntN() bool       { return true }

func (r *Radio) SetRXGain(db float64) error {
	r.mu.Lock()
	r.rxGain = r.rxGainRange.Clamp(db)
	r.mu.Unlock()
	return nil
}

func (r *Radio) SetTXGain(db float64) error {
	r.mu.Lock()
	r.txGain = r.txGainRange.Clamp(db)
	r.mu.Unlock()
	return nil
}

func (r *Radio) RXGainRange() radio.Range { return r.rxGainRange }
func (r *Radio) TXGainRange() radio.Range { return r.txGainRange }

func (r *Radio) SetTXEnable(on bool) error {
	r.mu.Lock()
	r.txEnabled = on
	r.mu.Unlock()
	return nil
}

func (r *Radio) SetRXSampleRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("sample rate %.0f: %w", rate, radio.ErrOutOfRange)
	}
	r.mu.Lock()
	r.rxRate = rate
	r.mu.Unlock()
	return nil
}

func (r *Radio) SetTXSampleRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("sample rate %.0f: %w", rate, radio.ErrOutOfRange)
	}
	r.mu.Lock()
	r.txRate = rate
	r.mu.Unlock()
	return nil
}

func (r *Radio) RXSampleRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rxRate
}

func (r *Radio) TXSampleRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txRate
}

func (r *Radio) SetRXAntenna(name string) error {
	if name != "TX/RX" && name != "RX2" {
		return fmt.Errorf("antenna %q: %w", name, radio.ErrNotSupported)
	}
	r.mu.Lock()
	r.rxAnt = name
	r.mu.Unlock()
	return nil
}

func (r *Radio) SetTXAntenna(name string) error {
	if name != "TX/RX" {
		return fmt.Errorf("antenna %q: %w", name, radio.ErrNotSupported)
	}
	return nil
}

func (r *Radio) RXAntennas() []string { return []string{"TX/RX", "RX2"} }
func (r *Radio) TXAntennas() []string { return []string{"TX/RX"} }

func (r *Radio) SetClockSource(external bool) error {
	r.mu.Lock()
	r.clockExternal = external
	r.mu.Unlock()
	return nil
}

func (r *Radio) ClockSource() (radio.ClockStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return radio.ClockStatus{External: r.clockExternal, Locked: true}, nil
}

// RXRequests returns every RX tune request so far.
func (r *Radio) RXRequests() []radio.TuneRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]radio.TuneRequest(nil), r.rxRequests...)
}

// TXRequests returns every TX tune request so far.
func (r *Radio) TXRequests() []radio.TuneRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]radio.TuneRequest(nil), r.txRequests...)
}

// State snapshots the settings tests assert on.
type State struct {
	RXGain, TXGain float64
	TXEnabled      bool
	RXAntenna      string
	RXTune, TXTune radio.TuneResult
	LOOn           bool
	LOGain         float64
	LOTune         radio.TuneResult
}

func (r *Radio) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{
		RXGain:    r.rxGain,
		TXGain:    r.txGain,
		TXEnabled: r.txEnabled,
		RXAntenna: r.rxAnt,
		RXTune:    r.rxTune,
		TXTune:    r.txTune,
		LOOn:      r.loOn,
		LOGain:    r.loGain,
		LOTune:    r.loTune,
	}
}

// TXCapture returns the samples transmitted so far, up to a cap.
func (r *Radio) TXCapture() []complex64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]complex64(nil), r.txCapture...)
}

func (r *Radio) interval(rate float64) time.Duration {
	return time.Duration(float64(blockSize) / rate * float64(time.Second))
}

// fill writes the next block of the RX tone as seen through the current
// tuning.
func (r *Radio) fill(buf []complex64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	offset := r.toneFreq - r.rxTune.Center()
	step := 2 * math.Pi * offset / r.rxRate
	for i := range buf {
		buf[i] = complex64(cmplx.Rect(r.toneAmp, r.tonePhase))
		r.tonePhase = math.Mod(r.tonePhase+step, 2*math.Pi)
	}
}

func (r *Radio) StartRX(sink func([]complex64)) error {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancelRX = cancel
	interval := r.interval(r.rxRate)
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		tick := time.NewTicker(interval)
		defer tick.Stop()
		buf := make([]complex64, blockSize)
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				r.fill(buf)
				sink(buf)
			}
		}
	}()
	return nil
}

func (r *Radio) StartTX(source func([]complex64) int) error {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancelTX = cancel
	interval := r.interval(r.txRate)
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		tick := time.NewTicker(interval)
		defer tick.Stop()
		buf := make([]complex64, blockSize)
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				n := source(buf)
				r.mu.Lock()
				if r.txEnabled && len(r.txCapture)+n <= maxCapture {
					r.txCapture = append(r.txCapture, buf[:n]...)
				}
				r.mu.Unlock()
			}
		}
	}()
	return nil
}

func (r *Radio) stop(cancel *context.CancelFunc) {
	r.mu.Lock()
	c := *cancel
	*cancel = nil
	r.mu.Unlock()
	if c != nil {
		c()
	}
}

func (r *Radio) StopRX() error {
	r.stop(&r.cancelRX)
	return nil
}

func (r *Radio) StopTX() error {
	r.stop(&r.cancelTX)
	return nil
}

// Close stops both streams and waits for their goroutines.
func (r *Radio) Close() error {
	r.StopRX()
	r.StopTX()
	r.wg.Wait()
	return nil
}
