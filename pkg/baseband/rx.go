package baseband

import (
	"errors"
	"fmt"
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/rigcore/pkg/audio"
	"github.com/norasector/rigcore/pkg/buffer"
	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/dsp/agc/rmsagc"
	"github.com/norasector/rigcore/pkg/dsp/demodulators/quad"
	"github.com/norasector/rigcore/pkg/dsp/filters/fir"
	"github.com/norasector/rigcore/pkg/dsp/mixer"
	"github.com/norasector/rigcore/pkg/dsp/processor"
	"github.com/norasector/rigcore/pkg/dsp/resampler"
	"github.com/norasector/rigcore/pkg/dsp/viz"
	"github.com/norasector/rigcore/pkg/kernel"
	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/norasector/rigcore/pkg/thread"
	"github.com/norasector/rigcore/pkg/util"
	"github.com/racerxdl/segdsp/dsp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const RXName = "BaseBandRX"

const (
	// primeBlocks of silence are queued ahead of the first real block so
	// playback starts with slack.
	primeBlocks = 5

	nbfmDeviation = 5e3
	wbfmDeviation = 75e3
	fmTau         = 75e-6
	nbfmCutoff    = 8e3

	// squelchOpen keeps the NBFM squelch open until the operator sets one.
	squelchOpen = -200.0
)

type band struct {
	low, high float64
}

var afBands = map[command.AFFilter]band{
	command.AFFilter100:  {400, 500},
	command.AFFilter500:  {400, 900},
	command.AFFilter2000: {300, 2300},
	command.AFFilter6000: {300, 6300},
	command.AFFilterPass: {-10, 15000},
}

var (
	fmBand = band{100, 8000}
	amBand = afBands[command.AFFilter6000]
)

func afBand(f command.AFFilter) band {
	if b, ok := afBands[f]; ok {
		return b
	}
	return afBands[command.AFFilter6000]
}

// transitionWidth keeps narrow filters narrow without letting the tap count
// run away.
func transitionWidth(b band) float64 {
	return math.Max(100, math.Min(250, (b.high-b.low)/2))
}

// outputMode is what RX does with its audio while the transmitter runs.
type outputMode int

const (
	outputNormal outputMode = iota
	outputSidetone
	outputMuted
)

type RX struct {
	*thread.Base

	rates     Rates
	sizes     Sizes
	dev       audio.Device
	writeAPI  api.WriteAPI
	logger    zerolog.Logger
	vizServer *viz.Server

	cmd *mailbox.Mailbox[command.Command]
	rf  *mailbox.Subscription[*buffer.Buffer[complex64]]

	nco       *mixer.Oscillator
	down      *resampleCC
	downReal  *resampleFF
	agc       *rmsagc.RMSAGC
	sideband  map[command.Modulation]*ccSlot
	squelch   *ccSlot
	chains    map[command.Modulation]*processor.Processor
	mode      command.Modulation
	txMode    command.Modulation
	filter    command.AFFilter
	sqlLevel  float64
	afGain    float64
	sideGain  float64
	output    outputMode
	out       []float32
	silence   []float32
	blocks    int64
	overruns  int64
	lastPoint time.Time
}

type RXOption func(r *RX) error

func WithRXLogger(logger zerolog.Logger) RXOption {
	return func(r *RX) error {
		r.logger = logger
		return nil
	}
}

func WithRXInfluxDB(writeAPI api.WriteAPI) RXOption {
	return func(r *RX) error {
		r.writeAPI = writeAPI
		return nil
	}
}

// WithRXVizServer registers every demodulator chain's plots with s.
func WithRXVizServer(s *viz.Server) RXOption {
	return func(r *RX) error {
		r.vizServer = s
		return nil
	}
}

// NewRX builds the receive stage. dev must take blocks of the RX audio size
// at the audio rate.
func NewRX(rates Rates, dev audio.Device, opts ...RXOption) (*RX, error) {
	sizes, err := rates.Sizes()
	if err != nil {
		return nil, err
	}
	r := &RX{
		rates:    rates,
		sizes:    sizes,
		dev:      dev,
		writeAPI: &util.NopWriteAPI{},
		logger:   log.Logger,
		mode:     command.ModUSB,
		txMode:   command.ModUSB,
		filter:   command.AFFilter6000,
		sqlLevel: squelchOpen,
		afGain:   1,
		sideGain: 1,
		out:      make([]float32, sizes.RXAudio),
		silence:  make([]float32, sizes.RXAudio),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if dev.SampleRate() != rates.Audio || dev.BlockSize() != sizes.RXAudio {
		return nil, fmt.Errorf("audio device is %d samples at %d Hz, need %d at %d: %w",
			dev.BlockSize(), dev.SampleRate(), sizes.RXAudio, rates.Audio, audio.ErrBlockSize)
	}
	r.Base = thread.NewBase(RXName, thread.WithLogger(r.logger))

	if err := r.buildChains(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RX) buildChains() error {
	rf, fa := r.rates.RF, r.rates.Audio

	down, err := r.rates.Down()
	if err != nil {
		return err
	}
	downReal, err := r.rates.Down()
	if err != nil {
		return err
	}
	r.down = &resampleCC{r: down}
	r.downReal = &resampleFF{r: downReal}
	r.nco = mixer.NewOscillator(float64(rf), 0)
	r.agc = rmsagc.NewRMSAGC(0.01, 0.3)
	r.agc.SetMaxGain(1000)
	r.sideband = make(map[command.Modulation]*ccSlot)
	r.chains = make(map[command.Modulation]*processor.Processor)

	head := func(name string) *processor.Processor {
		p := processor.NewProcessor(name, "RF", r.vizServer)
		p.AddBlock(processor.NewDSPWorkerCC("if_shift", "IF Shift", rf, rf, r.nco))
		return p
	}

	for _, mode := range []command.Modulation{command.ModUSB, command.ModLSB, command.ModCWUpper, command.ModCWLower} {
		slot := &ccSlot{}
		r.sideband[mode] = slot
		p := head("rx_" + mode.String())
		p.AddBlock(processor.NewDSPWorkerCC("resampler", "Resampled", rf, fa, r.down))
		p.AddBlock(processor.NewDSPWorkerCC("sideband_filter", "Sideband Filter", fa, fa, slot))
		p.AddBlock(processor.NewDSPWorkerCF("real", "Real", fa, fa, processor.CFFunc(realPart)))
		p.AddBlock(processor.NewDSPWorkerFF("agc", "AGC", fa, fa, r.agc))
		r.chains[mode] = p
	}
	r.setSidebandFilters()

	am := head("rx_AM")
	am.AddBlock(processor.NewDSPWorkerCC("resampler", "Resampled", rf, fa, r.down))
	am.AddBlock(processor.NewDSPWorkerCF("envelope", "Envelope", fa, fa, processor.CFFunc(envelope)))
	am.AddBlock(processor.NewDSPWorkerFF("audio_filter", "Audio Filter", fa, fa,
		dsp.MakeFloatFirFilter(fir.MakeBandPass(1, float64(fa), amBand.low, amBand.high, transitionWidth(amBand), fir.Hamming))))
	am.AddBlock(processor.NewDSPWorkerFF("agc", "AGC", fa, fa, r.agc))
	r.chains[command.ModAM] = am

	r.squelch = &ccSlot{CCWorker: dsp.MakeSquelch(float32(r.sqlLevel), 0.1)}
	nbfm := head("rx_NBFM")
	nbfm.AddBlock(processor.NewDSPWorkerCC("resampler", "Resampled", rf, fa, r.down))
	nbfm.AddBlock(processor.NewDSPWorkerCC("channel_filter", "Channel Filter", fa, fa,
		dsp.MakeFirFilter(fir.MakeLowPass(1, float64(fa), nbfmCutoff, 1000, fir.Hamming))))
	nbfm.AddBlock(processor.NewDSPWorkerCC("squelch", "Squelch", fa, fa, r.squelch))
	nbfm.AddBlock(processor.NewDSPWorkerCF("quad_demod", "Quadrature Demodulator", fa, fa,
		quad.MakeQuadDemod(float32(float64(fa)/(2*math.Pi*nbfmDeviation)))))
	nbfm.AddBlock(processor.NewDSPWorkerFF("deemphasis", "De-emphasis", fa, fa, dsp.MakeFMDeemph(fmTau, float32(fa))))
	nbfm.AddBlock(processor.NewDSPWorkerFF("audio_filter", "Audio Filter", fa, fa,
		dsp.MakeFloatFirFilter(fir.MakeBandPass(1, float64(fa), fmBand.low, fmBand.high, transitionWidth(fmBand), fir.Hamming))))
	r.chains[command.ModNBFM] = nbfm

	// Broadcast FM is demodulated at the RF rate; the audio is resampled.
	wbfm := head("rx_WBFM")
	wbfm.AddBlock(processor.NewDSPWorkerCF("quad_demod", "Quadrature Demodulator", rf, rf,
		quad.MakeQuadDemod(float32(float64(rf)/(2*math.Pi*wbfmDeviation)))))
	wbfm.AddBlock(processor.NewDSPWorkerFF("resampler", "Resampled", rf, fa, r.downReal))
	wbfm.AddBlock(processor.NewDSPWorkerFF("deemphasis", "De-emphasis", fa, fa, dsp.MakeFMDeemph(fmTau, float32(fa))))
	wbfm.AddBlock(processor.NewDSPWorkerFF("audio_filter", "Audio Filter", fa, fa,
		dsp.MakeFloatFirFilter(fir.MakeBandPass(1, float64(fa), fmBand.low, fmBand.high, transitionWidth(fmBand), fir.Hamming))))
	r.chains[command.ModWBFM] = wbfm

	for mode, p := range r.chains {
		if err := p.Initialize(); err != nil {
			return fmt.Errorf("%s chain: %w", mode, err)
		}
	}
	return nil
}

// sidebandEdges places the selected audio filter on the side of zero each
// SSB and CW mode listens to.
func sidebandEdges(mode command.Modulation, b band) (float64, float64) {
	switch mode {
	case command.ModLSB, command.ModCWLower:
		return -b.high, -b.low
	default:
		return b.low, b.high
	}
}

func (r *RX) setSidebandFilters() {
	b := afBand(r.filter)
	for mode, slot := range r.sideband {
		lo, hi := sidebandEdges(mode, b)
		taps := fir.MakeComplexBandPass(1, float64(r.rates.Audio), lo, hi, transitionWidth(b), fir.Hamming)
		slot.CCWorker = dsp.MakeDecimationCTFirFilter(1, taps)
	}
}

func (r *RX) Subscribe(reg *mailbox.Registry) error {
	cmd, err := mailbox.Lookup[command.Command](reg, kernel.MailboxCommand)
	if err != nil {
		return err
	}
	rf, err := mailbox.Lookup[*buffer.Buffer[complex64]](reg, kernel.MailboxRX)
	if err != nil {
		return err
	}
	r.cmd = cmd
	r.Listen(cmd)
	r.rf = rf.Subscribe(mailbox.WithNotify(r.Wake()))

	r.Handle(command.Set, command.RXMode, r.setMode)
	r.Handle(command.Set, command.TXMode, r.setTXMode)
	r.Handle(command.Set, command.TXState, r.setTXState)
	r.Handle(command.Set, command.RXLO3Freq, r.setLO3)
	r.Handle(command.Set, command.RXAFFilter, r.setFilter)
	r.Handle(command.Set, command.RXAFGain, r.setAFGain)
	r.Handle(command.Set, command.RXAFSidetoneGain, r.setSidetoneGain)
	r.Handle(command.Set, command.NBFMSquelch, r.setSquelch)

	r.Handle(command.Get, command.RXMode, r.getMode)
	r.Handle(command.Get, command.RXAFFilter, r.getFilter)
	r.Handle(command.Get, command.RXAFFilterShape, r.getFilterShape)
	r.Handle(command.Get, command.RXAFGain, r.getAFGain)
	r.Handle(command.Get, command.RXAFSidetoneGain, r.getSidetoneGain)
	r.Handle(command.Get, command.NBFMSquelch, r.getSquelch)
	r.Handle(command.Get, command.AudioSampleRate, r.getAudioRate)
	r.Handle(command.Get, command.AudioBufSize, r.getAudioBufSize)
	r.Handle(command.Get, command.HWMBRep, r.getFilterMenu)
	return nil
}

func (r *RX) Run() error {
	r.Logger().Info().
		Int("rf_rate", r.rates.RF).
		Int("audio_rate", r.rates.Audio).
		Int("rf_block", r.sizes.RXRF).
		Int("audio_block", r.sizes.RXAudio).
		Msg("baseband receiver starting")
	r.prime()
	return r.Loop(r.work)
}

// Shutdown releases anything still queued for the stage.
func (r *RX) Shutdown() error {
	for {
		b, ok := r.rf.Get()
		if !ok {
			return nil
		}
		b.Release()
	}
}

func (r *RX) put(cmd command.Command) {
	r.cmd.Put(cmd)
}

func (r *RX) prime() {
	for i := 0; i < primeBlocks; i++ {
		if err := r.dev.Send(r.silence); err != nil {
			return
		}
	}
}

func (r *RX) gain() float32 {
	switch r.output {
	case outputMuted:
		return 0
	case outputSidetone:
		return float32(r.sideGain)
	default:
		return float32(r.afGain)
	}
}

// work demodulates one RF block.
func (r *RX) work() (bool, error) {
	b, ok := r.rf.Get()
	if !ok {
		return false, nil
	}
	defer b.Release()
	if b.Len != r.sizes.RXRF {
		return false, fmt.Errorf("rx block of %d samples, need %d: %w", b.Len, r.sizes.RXRF, resampler.ErrBadBufferSize)
	}

	metrics := make(map[string]interface{})
	start := time.Now()
	samples, err := r.chains[r.mode].ProcessComplexToFloat(b.Samples(), metrics)
	if err == nil {
		err = errors.Join(r.down.takeErr(), r.downReal.takeErr())
	}
	if err != nil {
		return false, fmt.Errorf("%s chain: %w", r.mode, err)
	}

	g := r.gain()
	for i, v := range samples {
		r.out[i] = v * g
	}
	if err := r.play(r.out[:len(samples)]); err != nil {
		return false, err
	}

	r.blocks++
	metrics["total_duration"] = time.Since(start).Microseconds()
	metrics["agc_gain"] = r.agc.Gain()
	metrics["overruns"] = r.overruns
	if time.Since(r.lastPoint) >= time.Second {
		r.lastPoint = time.Now()
		go r.writeAPI.WritePoint(influxdb2.NewPoint("baseband.rx",
			map[string]string{"mode": r.mode.String()},
			metrics,
			time.Now()))
	}
	return true, nil
}

// play sends one block, recovering from a full playback queue by dropping
// what is queued and starting over with silence.
func (r *RX) play(buf []float32) error {
	err := r.dev.Send(buf)
	if !errors.Is(err, audio.ErrOverrun) {
		return err
	}
	r.overruns++
	r.Logger().Debug().Int64("overruns", r.overruns).Msg("audio overrun, re-priming")
	if err := r.dev.Flush(); err != nil {
		return err
	}
	r.prime()
	return nil
}

func (r *RX) setMode(cmd command.Command) error {
	mode := command.Modulation(cmd.Int())
	if _, ok := r.chains[mode]; !ok {
		r.Logger().Warn().Int32("mode", cmd.Int()).Msg("unknown rx mode")
		return nil
	}
	r.mode = mode
	r.agc.Reset()
	r.Logger().Info().Str("mode", mode.String()).Msg("rx mode")
	return r.getMode(cmd)
}

func (r *RX) setTXMode(cmd command.Command) error {
	r.txMode = command.Modulation(cmd.Int())
	return nil
}

func (r *RX) setTXState(cmd command.Command) error {
	switch cmd.Int() {
	case command.StateTXReady:
		if err := r.dev.Flush(); err != nil {
			return err
		}
		switch {
		case cmd.Ints[1] != 0:
			// full duplex leaves the receiver alone
		case r.txMode.IsCW():
			r.output = outputSidetone
		default:
			r.output = outputMuted
		}
	case command.StateRXOn:
		r.output = outputNormal
	}
	return nil
}

func (r *RX) setLO3(cmd command.Command) error {
	// The IF sits at +LO3 in the RF block; shift it down to zero.
	r.nco.SetFrequency(-cmd.Double())
	return nil
}

func (r *RX) setFilter(cmd command.Command) error {
	f := command.AFFilter(cmd.Int())
	if _, ok := afBands[f]; !ok {
		f = command.AFFilter6000
	}
	r.filter = f
	r.setSidebandFilters()
	return r.getFilterShape(cmd)
}

func (r *RX) setAFGain(cmd command.Command) error {
	r.afGain = dbGain(cmd.Double(), 4)
	return r.getAFGain(cmd)
}

func (r *RX) setSidetoneGain(cmd command.Command) error {
	r.sideGain = dbGain(cmd.Double(), 4)
	return r.getSidetoneGain(cmd)
}

// setSquelch sets the NBFM squelch threshold; each control step is 5 dB of
// average power.
func (r *RX) setSquelch(cmd command.Command) error {
	r.sqlLevel = 5 * cmd.Double()
	r.squelch.CCWorker = dsp.MakeSquelch(float32(r.sqlLevel), 0.1)
	return r.getSquelch(cmd)
}

func (r *RX) getMode(command.Command) error {
	r.put(command.NewInt(command.Report, command.RXMode, int32(r.mode)))
	return nil
}

func (r *RX) getFilter(command.Command) error {
	r.put(command.NewInt(command.Report, command.RXAFFilter, int32(r.filter)))
	return nil
}

// getFilterShape reports the passband relative to the tuned frequency, for
// drawing on the spectrum display.
func (r *RX) getFilterShape(command.Command) error {
	b := afBand(r.filter)
	var lo, hi float64
	switch r.mode {
	case command.ModUSB, command.ModCWUpper:
		lo, hi = b.low, b.high
	case command.ModLSB, command.ModCWLower:
		lo, hi = -b.low, -b.high
	case command.ModAM:
		lo, hi = -b.high, b.high
	default:
		lo, hi = -100, 100
	}
	r.put(command.NewDouble(command.Report, command.RXAFFilterShape, lo, hi))
	return nil
}

func (r *RX) getAFGain(command.Command) error {
	r.put(command.NewDouble(command.Report, command.RXAFGain, gainControl(r.afGain, 4)))
	return nil
}

func (r *RX) getSidetoneGain(command.Command) error {
	r.put(command.NewDouble(command.Report, command.RXAFSidetoneGain, gainControl(r.sideGain, 4)))
	return nil
}

func (r *RX) getSquelch(command.Command) error {
	r.put(command.NewDouble(command.Report, command.NBFMSquelch, r.sqlLevel/5))
	return nil
}

func (r *RX) getAudioRate(command.Command) error {
	r.put(command.NewInt(command.Report, command.AudioSampleRate, int32(r.rates.Audio)))
	return nil
}

func (r *RX) getAudioBufSize(command.Command) error {
	r.put(command.NewInt(command.Report, command.AudioBufSize, int32(r.sizes.RXAudio)))
	return nil
}

func (r *RX) getFilterMenu(command.Command) error {
	for _, f := range command.AFFilters() {
		r.put(command.NewString(command.Report, command.AFFiltEntry, f.String()).WithTag(int32(f)))
	}
	return nil
}
