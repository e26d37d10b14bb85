package cw

import (
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

const Name = "CWTX"

const (
	defaultWPM = 10
	// etx stands in the text queue for a marker.
	etx = '\003'
)

// Generator keys queued text into envelope blocks on the CW mailbox while
// the transmitter is on in a CW mode. It keeps about a second of envelope
// queued ahead of the transmitter.
type Generator struct {
	*thread.Base

	rate      float64
	blockSize int
	writeAPI  api.WriteAPI
	logger    zerolog.Logger

	cmd  *mailbox.Mailbox[command.Command]
	env  *mailbox.Mailbox[*buffer.Buffer[float32]]
	pool *buffer.Pool[float32]

	keyer     *Keyer
	maxQueued int
	text      []rune
	markers   []int32
	// waiting holds markers whose envelope has been queued but not yet
	// keyed.
	waiting []int32
	cur     *buffer.Buffer[float32]
	curIdx  int
	scratch []float32
	seq     int

	sent          int32
	txOn          bool
	isCW, savedCW bool
	emptyReported bool
}

type GeneratorOption func(g *Generator) error

func WithLogger(logger zerolog.Logger) GeneratorOption {
	return func(g *Generator) error {
		g.logger = logger
		return nil
	}
}

func WithInfluxDB(writeAPI api.WriteAPI) GeneratorOption {
	return func(g *Generator) error {
		g.writeAPI = writeAPI
		return nil
	}
}

// NewGenerator builds a generator producing blocks of blockSize envelope
// samples at sampleRate.
func NewGenerator(sampleRate float64, blockSize int, opts ...GeneratorOption) (*Generator, error) {
	g := &Generator{
		rate:          sampleRate,
		blockSize:     blockSize,
		writeAPI:      &util.NopWriteAPI{},
		logger:        log.Logger,
		keyer:         NewKeyer(sampleRate, defaultWPM),
		pool:          buffer.NewPool[float32](blockSize, 8, 64),
		emptyReported: true,
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.maxQueued = int(sampleRate) / blockSize
	if g.maxQueued < 2 {
		g.maxQueued = 2
	}
	g.Base = thread.NewBase(Name, thread.WithLogger(g.logger))
	return g, nil
}

func (g *Generator) Subscribe(reg *mailbox.Registry) error {
	cmd, err := mailbox.Lookup[command.Command](reg, kernel.MailboxCommand)
	if err != nil {
		return err
	}
	env, err := mailbox.Lookup[*buffer.Buffer[float32]](reg, kernel.MailboxCW)
	if err != nil {
		return err
	}
	g.cmd = cmd
	g.env = env
	g.Listen(cmd)

	g.Handle(command.Set, command.TXMode, g.setMode)
	g.Handle(command.Set, command.TXState, g.setState)
	g.Handle(command.Set, command.TXBeacon, g.setBeacon)
	g.Handle(command.Set, command.TXCWSpeed, g.setSpeed)
	g.Handle(command.Set, command.TXCWText, g.setText)
	g.Handle(command.Set, command.TXCWMarker, g.setMarker)
	g.Handle(command.Set, command.TXCWFlushText, g.flushText)
	g.Handle(command.Get, command.TXCWSpeed, g.getSpeed)
	return nil
}

func (g *Generator) Run() error {
	g.Logger().Info().
		Float64("rate", g.rate).
		Int("block", g.blockSize).
		Int("wpm", g.keyer.WPM()).
		Msg("cw generator starting")
	return g.Loop(g.work)
}

func (g *Generator) put(cmd command.Command) {
	g.cmd.Put(cmd)
}

func (g *Generator) queued() int {
	return g.env.Stats().InFlight
}

func (g *Generator) work() (bool, error) {
	busy := false
	if len(g.waiting) > 0 && g.queued() == 0 {
		for _, id := range g.waiting {
			g.put(command.NewInt(command.Report, command.TXCWMarker, id))
		}
		g.waiting = g.waiting[:0]
		busy = true
	}
	if !g.emptyReported && len(g.text) == 0 && g.cur == nil && g.queued() == 0 {
		g.emptyReported = true
		g.put(command.NewInt(command.Report, command.TXCWEmpty, 0))
		busy = true
	}

	if !g.isCW || !g.txOn {
		return busy, nil
	}

	for g.queued() < g.maxQueued {
		if len(g.text) == 0 {
			g.flush()
			return busy, nil
		}
		c := g.text[0]
		g.text = g.text[1:]
		busy = true

		if c == etx {
			g.flush()
			g.waiting = append(g.waiting, g.markers[0])
			g.markers = g.markers[1:]
			continue
		}

		var ok bool
		g.scratch, ok = g.keyer.Envelope(g.scratch[:0], c)
		g.append(g.scratch)
		if ok {
			g.put(command.NewString(command.Report, command.CWCharSent, string(c)).WithTag(g.sent))
			g.sent++
		}
	}
	return busy, nil
}

// append copies envelope samples into blocks, putting each as it fills.
func (g *Generator) append(samples []float32) {
	for len(samples) > 0 {
		if g.cur == nil {
			g.cur = g.pool.Get()
			g.curIdx = 0
		}
		n := copy(g.cur.Data[g.curIdx:], samples)
		g.curIdx += n
		samples = samples[n:]
		if g.curIdx == len(g.cur.Data) {
			g.send()
		}
	}
}

// flush pads the partial block with silence and puts it.
func (g *Generator) flush() {
	if g.cur == nil {
		return
	}
	for i := g.curIdx; i < len(g.cur.Data); i++ {
		g.cur.Data[i] = 0
	}
	g.send()
}

func (g *Generator) send() {
	g.cur.Seq = g.seq
	g.seq++
	g.env.Put(g.cur)
	g.cur = nil
	g.curIdx = 0
}

func (g *Generator) setMode(cmd command.Command) error {
	g.isCW = command.Modulation(cmd.Int()).IsCW()
	g.savedCW = g.isCW
	return nil
}

func (g *Generator) setState(cmd command.Command) error {
	g.txOn = cmd.Int() == command.StateTXOn
	return nil
}

// setBeacon suspends keying while a beacon transmission runs.
func (g *Generator) setBeacon(cmd command.Command) error {
	if cmd.Int() == 1 {
		g.savedCW = g.isCW
		g.isCW = false
	} else {
		g.isCW = g.savedCW
	}
	return nil
}

func (g *Generator) setSpeed(cmd command.Command) error {
	g.keyer.SetSpeed(int(cmd.Int()))
	g.Logger().Debug().Int("wpm", g.keyer.WPM()).Msg("cw speed")
	return g.getSpeed(cmd)
}

func (g *Generator) getSpeed(command.Command) error {
	g.put(command.NewInt(command.Report, command.TXCWSpeed, int32(g.keyer.WPM())))
	return nil
}

func (g *Generator) setText(cmd command.Command) error {
	for _, c := range cmd.Str {
		if c != etx {
			g.text = append(g.text, c)
		}
	}
	g.emptyReported = false
	return nil
}

func (g *Generator) setMarker(cmd command.Command) error {
	g.text = append(g.text, etx)
	g.markers = append(g.markers, cmd.Int())
	g.emptyReported = false
	return nil
}

// flushText drops unsent text. Dropped characters count as sent so the
// UI's character index stays aligned.
func (g *Generator) flushText(command.Command) error {
	dropped := 0
	for _, c := range g.text {
		if c != etx {
			dropped++
		}
	}
	g.sent += int32(dropped)
	g.text = g.text[:0]
	g.markers = g.markers[:0]

	go g.writeAPI.WritePoint(influxdb2.NewPoint("cw.flush",
		map[string]string{},
		map[string]interface{}{"dropped": dropped, "sent": g.sent},
		time.Now()))
	g.put(command.NewInt(command.Report, command.TXCWFlushText, g.sent))
	return nil
}
