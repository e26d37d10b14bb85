package baseband

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/rigcore/pkg/audio"
	"github.com/norasector/rigcore/pkg/buffer"
	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/dsp/filters/fir"
	"github.com/norasector/rigcore/pkg/dsp/processor"
	"github.com/norasector/rigcore/pkg/kernel"
	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/norasector/rigcore/pkg/thread"
	"github.com/norasector/rigcore/pkg/util"
	"github.com/racerxdl/segdsp/dsp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const TXName = "BaseBandTX"

// TX_AUDIO_IN values.
const (
	AudioInMic   int32 = 0
	AudioInNoise int32 = 1
)

const (
	defaultMicGain = 0.8
	nbfmTXDev      = 2.5e3
	wbfmTXDev      = 75e3
)

var (
	txAudioBand = band{150, 2300}
	ssbTXBand   = band{150, 3000}
)

// fmModulator integrates the audio into the carrier phase.
type fmModulator struct {
	phase       float64
	sensitivity float64
}

func (f *fmModulator) WorkBuffer(in []float32, out []complex64) int {
	for i, v := range in {
		x := math.Max(-1, math.Min(1, float64(v)))
		f.phase = math.Mod(f.phase+f.sensitivity*x, 2*math.Pi)
		sin, cos := math.Sincos(f.phase)
		out[i] = complex(float32(cos), float32(sin))
	}
	return len(in)
}

func (f *fmModulator) PredictOutputSize(n int) int { return n }

func amCarrier(v float32) complex64 {
	x := 0.5 * (1 + math.Max(-1, math.Min(1, float64(v))))
	return complex(float32(x), 0)
}

func toComplex(v float32) complex64 {
	return complex(v, 0)
}

func copyFloat(in, out []float32) {
	copy(out, in)
}

type TX struct {
	*thread.Base

	rates    Rates
	sizes    Sizes
	dev      audio.Device
	writeAPI api.WriteAPI
	logger   zerolog.Logger

	cmd  *mailbox.Mailbox[command.Command]
	cw   *mailbox.Subscription[*buffer.Buffer[float32]]
	tx   *mailbox.Mailbox[*buffer.Buffer[complex64]]
	pool *buffer.Pool[complex64]

	up     *resampleCC
	gain   *gainBlock
	filter *ffSlot
	chains map[command.Modulation]*processor.Processor

	mode     command.Modulation
	on       bool
	source   int32
	filterOn bool
	noise    *rand.Rand

	mic    []float32
	ring   *buffer.Ring[float32]
	block  []float32
	period time.Duration
	next   time.Time
	seq    int

	blocks    int64
	underruns int64
	lastPoint time.Time
}

type TXOption func(t *TX) error

func WithTXLogger(logger zerolog.Logger) TXOption {
	return func(t *TX) error {
		t.logger = logger
		return nil
	}
}

func WithTXInfluxDB(writeAPI api.WriteAPI) TXOption {
	return func(t *TX) error {
		t.writeAPI = writeAPI
		return nil
	}
}

// NewTX builds the transmit stage. dev supplies microphone blocks of the RX
// audio size; they are re-chunked into modulator blocks.
func NewTX(rates Rates, dev audio.Device, opts ...TXOption) (*TX, error) {
	sizes, err := rates.Sizes()
	if err != nil {
		return nil, err
	}
	t := &TX{
		rates:    rates,
		sizes:    sizes,
		dev:      dev,
		writeAPI: &util.NopWriteAPI{},
		logger:   log.Logger,
		mode:     command.ModUSB,
		source:   AudioInMic,
		noise:    rand.New(rand.NewSource(1)),
		mic:      make([]float32, dev.BlockSize()),
		ring:     buffer.NewRing[float32](sizes.TXAudio + 4*dev.BlockSize()),
		block:    make([]float32, sizes.TXAudio),
		pool:     buffer.NewPool[complex64](sizes.TXRF, 4, 16),
		period:   time.Duration(float64(dev.BlockSize()) / float64(rates.Audio) * float64(time.Second)),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if dev.SampleRate() != rates.Audio {
		return nil, fmt.Errorf("audio device runs at %d Hz, need %d", dev.SampleRate(), rates.Audio)
	}
	t.Base = thread.NewBase(TXName, thread.WithLogger(t.logger))

	if err := t.buildChains(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *TX) buildChains() error {
	rf, fa := t.rates.RF, t.rates.Audio

	up, err := t.rates.Up()
	if err != nil {
		return err
	}
	t.up = &resampleCC{r: up}
	t.gain = &gainBlock{gain: defaultMicGain}
	t.filter = &ffSlot{FFWorker: processor.FFFunc(copyFloat)}
	t.chains = make(map[command.Modulation]*processor.Processor)

	voice := func(mode command.Modulation, modulator *processor.DSPWorker) {
		p := processor.NewProcessor("tx_"+mode.String(), "Audio", nil)
		p.AddBlock(processor.NewDSPWorkerFF("mic_gain", "Mic Gain", fa, fa, t.gain))
		p.AddBlock(processor.NewDSPWorkerFF("audio_filter", "Audio Filter", fa, fa, t.filter))
		p.AddBlock(modulator)
		if mode == command.ModUSB || mode == command.ModLSB {
			lo, hi := sidebandEdges(mode, ssbTXBand)
			taps := fir.MakeComplexBandPass(2, float64(fa), lo, hi, 250, fir.Hamming)
			p.AddBlock(processor.NewDSPWorkerCC("sideband_filter", "Sideband Filter", fa, fa, dsp.MakeDecimationCTFirFilter(1, taps)))
		}
		p.AddBlock(processor.NewDSPWorkerCC("resampler", "Resampled", fa, rf, t.up))
		t.chains[mode] = p
	}

	voice(command.ModUSB, processor.NewDSPWorkerFC("analytic", "Analytic", fa, fa, processor.FCFunc(toComplex)))
	voice(command.ModLSB, processor.NewDSPWorkerFC("analytic", "Analytic", fa, fa, processor.FCFunc(toComplex)))
	voice(command.ModAM, processor.NewDSPWorkerFC("am_modulator", "AM", fa, fa, processor.FCFunc(amCarrier)))
	voice(command.ModNBFM, processor.NewDSPWorkerFC("fm_modulator", "FM", fa, fa,
		&fmModulator{sensitivity: 2 * math.Pi * nbfmTXDev / float64(fa)}))
	voice(command.ModWBFM, processor.NewDSPWorkerFC("fm_modulator", "FM", fa, fa,
		&fmModulator{sensitivity: 2 * math.Pi * wbfmTXDev / float64(fa)}))

	for _, mode := range []command.Modulation{command.ModCWUpper, command.ModCWLower} {
		p := processor.NewProcessor("tx_"+mode.String(), "Keying", nil)
		p.AddBlock(processor.NewDSPWorkerFC("carrier", "Carrier", fa, fa, processor.FCFunc(toComplex)))
		p.AddBlock(processor.NewDSPWorkerCC("resampler", "Resampled", fa, rf, t.up))
		t.chains[mode] = p
	}

	for mode, p := range t.chains {
		if err := p.Initialize(); err != nil {
			return fmt.Errorf("%s chain: %w", mode, err)
		}
	}
	return nil
}

func (t *TX) Subscribe(reg *mailbox.Registry) error {
	cmd, err := mailbox.Lookup[command.Command](reg, kernel.MailboxCommand)
	if err != nil {
		return err
	}
	cw, err := mailbox.Lookup[*buffer.Buffer[float32]](reg, kernel.MailboxCW)
	if err != nil {
		return err
	}
	tx, err := mailbox.Lookup[*buffer.Buffer[complex64]](reg, kernel.MailboxTX)
	if err != nil {
		return err
	}
	t.cmd = cmd
	t.tx = tx
	t.Listen(cmd)
	t.cw = cw.Subscribe(mailbox.WithNotify(t.Wake()))

	t.Handle(command.Set, command.TXMode, t.setMode)
	t.Handle(command.Set, command.TXState, t.setState)
	t.Handle(command.Set, command.TXAFGain, t.setGain)
	t.Handle(command.Set, command.TXAudioIn, t.setSource)
	t.Handle(command.Set, command.TXAudioFiltEna, t.setFilter)

	t.Handle(command.Get, command.TXMode, t.getMode)
	t.Handle(command.Get, command.TXAFGain, t.getGain)
	t.Handle(command.Get, command.TXAudioIn, t.getSource)
	t.Handle(command.Get, command.TXAudioFiltEna, t.getFilter)
	return nil
}

func (t *TX) Run() error {
	t.Logger().Info().
		Int("audio_block", t.sizes.TXAudio).
		Int("rf_block", t.sizes.TXRF).
		Msg("baseband transmitter starting")
	return t.Loop(t.work)
}

func (t *TX) Shutdown() error {
	for {
		b, ok := t.cw.Get()
		if !ok {
			return nil
		}
		b.Release()
	}
}

func (t *TX) put(cmd command.Command) {
	t.cmd.Put(cmd)
}

func (t *TX) work() (bool, error) {
	if t.mode.IsCW() {
		return t.workCW()
	}
	busy := t.discardCW()
	if !t.on {
		// Keep the capture queue from going stale while receiving, one
		// device block per block period.
		if now := time.Now(); !now.Before(t.next) {
			t.dev.Recv(t.mic)
			t.next = now.Add(t.period)
		}
		return busy, nil
	}
	ok, err := t.workVoice()
	return busy || ok, err
}

func (t *TX) discardCW() bool {
	busy := false
	for {
		b, ok := t.cw.Get()
		if !ok {
			return busy
		}
		b.Release()
		busy = true
	}
}

// workCW keys the carrier with one envelope block from the CW generator.
func (t *TX) workCW() (bool, error) {
	b, ok := t.cw.Get()
	if !ok {
		return false, nil
	}
	defer b.Release()
	if !t.on {
		return true, nil
	}
	if b.Len != t.sizes.TXAudio {
		return false, fmt.Errorf("cw envelope of %d samples, need %d: %w", b.Len, t.sizes.TXAudio, audio.ErrBlockSize)
	}
	return true, t.modulate(b.Samples())
}

// workVoice gathers one device block of microphone audio per block period,
// or modulates once a full modulator block has accumulated.
func (t *TX) workVoice() (bool, error) {
	if t.ring.Len() >= t.sizes.TXAudio {
		t.ring.Read(t.block)
		return true, t.modulate(t.block)
	}

	now := time.Now()
	if now.Before(t.next) {
		return false, nil
	}
	if err := t.capture(); err != nil {
		return false, err
	}
	t.ring.Write(t.mic)

	t.next = t.next.Add(t.period)
	if now.Sub(t.next) > primeBlocks*t.period {
		t.next = now.Add(t.period)
	}
	return true, nil
}

func (t *TX) capture() error {
	if t.source == AudioInNoise {
		for i := range t.mic {
			t.mic[i] = float32(math.Max(-1, math.Min(1, 0.3*t.noise.NormFloat64())))
		}
		return nil
	}

	err := t.dev.Recv(t.mic)
	if errors.Is(err, audio.ErrUnderrun) {
		t.underruns++
		for i := range t.mic {
			t.mic[i] = 0
		}
		return nil
	}
	return err
}

func (t *TX) modulate(in []float32) error {
	metrics := make(map[string]interface{})
	start := time.Now()
	out, err := t.chains[t.mode].ProcessFloatToComplex(in, metrics)
	if err == nil {
		err = t.up.takeErr()
	}
	if err != nil {
		return fmt.Errorf("%s chain: %w", t.mode, err)
	}

	b := t.pool.Get()
	b.Len = copy(b.Data, out)
	b.Seq = t.seq
	t.seq++
	t.tx.Put(b)

	t.blocks++
	metrics["total_duration"] = time.Since(start).Microseconds()
	metrics["underruns"] = t.underruns
	if time.Since(t.lastPoint) >= time.Second {
		t.lastPoint = time.Now()
		go t.writeAPI.WritePoint(influxdb2.NewPoint("baseband.tx",
			map[string]string{"mode": t.mode.String()},
			metrics,
			time.Now()))
	}
	return nil
}

func (t *TX) start() {
	t.ring.Reset()
	t.up.r.Reset()
	t.next = time.Now()
	t.on = true
	t.Logger().Info().Str("mode", t.mode.String()).Msg("modulator on")
}

func (t *TX) stop() {
	if t.on {
		t.Logger().Info().Int64("blocks", t.blocks).Msg("modulator off")
	}
	t.on = false
}

func (t *TX) setMode(cmd command.Command) error {
	mode := command.Modulation(cmd.Int())
	if _, ok := t.chains[mode]; !ok {
		t.Logger().Warn().Int32("mode", cmd.Int()).Msg("unknown tx mode")
		return nil
	}
	t.mode = mode
	return t.getMode(cmd)
}

func (t *TX) setState(cmd command.Command) error {
	switch cmd.Int() {
	case command.StateTXOn:
		t.start()
	case command.StateRXReady, command.StateRXOn:
		t.stop()
	}
	return nil
}

func (t *TX) setGain(cmd command.Command) error {
	t.gain.gain = float32(dbGain(cmd.Double(), 10))
	return t.getGain(cmd)
}

func (t *TX) setSource(cmd command.Command) error {
	t.source = cmd.Int()
	return t.getSource(cmd)
}

func (t *TX) setFilter(cmd command.Command) error {
	t.filterOn = cmd.Int() != 0
	if t.filterOn {
		taps := fir.MakeBandPass(1, float64(t.rates.Audio), txAudioBand.low, txAudioBand.high, transitionWidth(txAudioBand), fir.Hamming)
		t.filter.FFWorker = dsp.MakeFloatFirFilter(taps)
	} else {
		t.filter.FFWorker = processor.FFFunc(copyFloat)
	}
	return t.getFilter(cmd)
}

func (t *TX) getMode(command.Command) error {
	t.put(command.NewInt(command.Report, command.TXMode, int32(t.mode)))
	return nil
}

func (t *TX) getGain(command.Command) error {
	t.put(command.NewDouble(command.Report, command.TXAFGain, gainControl(float64(t.gain.gain), 10)))
	return nil
}

func (t *TX) getSource(command.Command) error {
	t.put(command.NewInt(command.Report, command.TXAudioIn, t.source))
	return nil
}

func (t *TX) getFilter(command.Command) error {
	t.put(command.NewInt(command.Report, command.TXAudioFiltEna, boolInt(t.filterOn)))
	return nil
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
