// Package rfio moves RF samples between a radio driver and the RX and TX
// mailboxes. Driver callbacks run on the driver's goroutine, so both
// directions go through a locked ring and the stage loop does the mailbox
// work.
package rfio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/rigcore/pkg/buffer"
	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/kernel"
	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/norasector/rigcore/pkg/radio"
	"github.com/norasector/rigcore/pkg/thread"
	"github.com/norasector/rigcore/pkg/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const Name = "RadioIO"

const defaultRingBlocks = 8

// Streamer is the stage between the radio and the RF mailboxes. Received
// samples are cut into blocks of exactly blockSize and put on RX. While
// the transmitter is on, TX blocks are queued for the driver; the driver
// sends zeros whenever the queue runs dry.
type Streamer struct {
	*thread.Base

	radio      radio.Streamer
	blockSize  int
	ringBlocks int
	writeAPI   api.WriteAPI
	logger     zerolog.Logger

	cmd  *mailbox.Mailbox[command.Command]
	rx   *mailbox.Mailbox[*buffer.Buffer[complex64]]
	tx   *mailbox.Subscription[*buffer.Buffer[complex64]]
	pool *buffer.Pool[complex64]

	rxMu   sync.Mutex
	rxRing *buffer.Ring[complex64]
	txMu   sync.Mutex
	txRing *buffer.Ring[complex64]
	// carrier is read by the driver's TX goroutine.
	carrier atomic.Bool

	txOn      bool
	beacon    bool
	seq       int
	rxDropped atomic.Int64
	txSent    atomic.Int64
	frontEnd  float64

	record    *os.File
	recordBuf []byte
	recorded  int64

	lastPoint time.Time
}

type StreamerOption func(s *Streamer) error

func WithLogger(logger zerolog.Logger) StreamerOption {
	return func(s *Streamer) error {
		s.logger = logger
		return nil
	}
}

func WithInfluxDB(writeAPI api.WriteAPI) StreamerOption {
	return func(s *Streamer) error {
		s.writeAPI = writeAPI
		return nil
	}
}

// WithRingBlocks sets how many blocks each direction may buffer.
func WithRingBlocks(n int) StreamerOption {
	return func(s *Streamer) error {
		if n < 2 {
			return fmt.Errorf("ring of %d blocks is too small", n)
		}
		s.ringBlocks = n
		return nil
	}
}

// NewStreamer builds the stage for r. blockSize is the RX block length the
// baseband receiver expects.
func NewStreamer(r radio.Streamer, blockSize int, opts ...StreamerOption) (*Streamer, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("bad RF block size %d", blockSize)
	}
	s := &Streamer{
		radio:      r,
		blockSize:  blockSize,
		ringBlocks: defaultRingBlocks,
		writeAPI:   &util.NopWriteAPI{},
		logger:     log.Logger,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.rxRing = buffer.NewRing[complex64](s.ringBlocks * blockSize)
	s.txRing = buffer.NewRing[complex64](s.ringBlocks * blockSize)
	s.pool = buffer.NewPool[complex64](blockSize, s.ringBlocks, 4*s.ringBlocks)
	s.Base = thread.NewBase(Name, thread.WithLogger(s.logger))
	return s, nil
}

func (s *Streamer) Subscribe(reg *mailbox.Registry) error {
	cmd, err := mailbox.Lookup[command.Command](reg, kernel.MailboxCommand)
	if err != nil {
		return err
	}
	rx, err := mailbox.Lookup[*buffer.Buffer[complex64]](reg, kernel.MailboxRX)
	if err != nil {
		return err
	}
	tx, err := mailbox.Lookup[*buffer.Buffer[complex64]](reg, kernel.MailboxTX)
	if err != nil {
		return err
	}
	s.cmd = cmd
	s.rx = rx
	s.Listen(cmd)
	s.tx = tx.Subscribe(mailbox.WithNotify(s.Wake()))

	s.Handle(command.Set, command.TXState, s.setTXState)
	s.Handle(command.Set, command.TXBeacon, s.setBeacon)
	s.Handle(command.Set, command.RFRecordStart, s.startRecording)
	s.Handle(command.Set, command.RFRecordStop, s.stopRecording)
	s.Handle(command.Get, command.TXState, s.getTXState)
	s.Handle(command.Report, command.RXFEFreq, s.frontEndTuned)
	return nil
}

func (s *Streamer) Run() error {
	s.Logger().Info().
		Int("block", s.blockSize).
		Int("ring_blocks", s.ringBlocks).
		Msg("radio streamer starting")

	if err := s.radio.StartRX(s.receive); err != nil {
		return fmt.Errorf("starting rx stream: %w", err)
	}
	if err := s.radio.StartTX(s.source); err != nil {
		return errors.Join(fmt.Errorf("starting tx stream: %w", err), s.radio.StopRX())
	}
	s.lastPoint = time.Now()
	return s.Loop(s.work)
}

// Shutdown stops both streams, closes any recording and releases queued
// TX blocks.
func (s *Streamer) Shutdown() error {
	err := errors.Join(s.radio.StopRX(), s.radio.StopTX(), s.closeRecording())
	for {
		b, ok := s.tx.Get()
		if !ok {
			return err
		}
		b.Release()
	}
}

func (s *Streamer) put(cmd command.Command) {
	s.cmd.Put(cmd)
}

func (s *Streamer) wake() {
	select {
	case s.Wake() <- struct{}{}:
	default:
	}
}

// receive is the driver's RX sink. Samples that do not fit are dropped.
func (s *Streamer) receive(samples []complex64) {
	s.rxMu.Lock()
	n := s.rxRing.Write(samples)
	s.rxMu.Unlock()
	if n < len(samples) {
		s.rxDropped.Add(int64(len(samples) - n))
	}
	s.wake()
}

// source is the driver's TX source.
func (s *Streamer) source(samples []complex64) int {
	if s.carrier.Load() {
		for i := range samples {
			samples[i] = 1
		}
		s.txSent.Add(int64(len(samples)))
		return len(samples)
	}
	s.txMu.Lock()
	n := s.txRing.Read(samples)
	s.txMu.Unlock()
	s.txSent.Add(int64(n))
	if n > 0 {
		s.wake()
	}
	return n
}

func (s *Streamer) work() (bool, error) {
	busy := false
	for {
		s.rxMu.Lock()
		if s.rxRing.Len() < s.blockSize {
			s.rxMu.Unlock()
			break
		}
		b := s.pool.Get()
		s.rxRing.Read(b.Data)
		s.rxMu.Unlock()

		s.writeRecording(b.Data)
		b.Seq = s.seq
		s.seq++
		s.rx.Put(b)
		busy = true
	}

	for {
		s.txMu.Lock()
		free := s.txRing.Free()
		s.txMu.Unlock()
		if free < s.blockSize {
			break
		}
		b, ok := s.tx.Get()
		if !ok {
			break
		}
		if s.txOn {
			s.txMu.Lock()
			s.txRing.Write(b.Samples())
			s.txMu.Unlock()
		}
		b.Release()
		busy = true
	}

	if time.Since(s.lastPoint) >= time.Second {
		s.lastPoint = time.Now()
		go s.writeAPI.WritePoint(influxdb2.NewPoint("rfio",
			map[string]string{},
			map[string]interface{}{
				"rx_blocks":  s.seq,
				"rx_dropped": s.rxDropped.Load(),
				"tx_sent":    s.txSent.Load(),
				"recorded":   s.recorded,
			},
			s.lastPoint))
	}
	return busy, nil
}

func (s *Streamer) setTXState(cmd command.Command) error {
	switch cmd.Int() {
	case command.StateTXOn:
		s.txOn = true
	case command.StateRXOn, command.StateRXReady:
		s.txOn = false
		s.txMu.Lock()
		s.txRing.Reset()
		s.txMu.Unlock()
	default:
		return nil
	}
	s.carrier.Store(s.beacon && s.txOn)
	return s.getTXState(cmd)
}

func (s *Streamer) getTXState(command.Command) error {
	s.put(command.NewInt(command.Report, command.TXState, boolInt(s.txOn)))
	return nil
}

// setBeacon keys a steady carrier in place of the TX stream while the
// transmitter is on.
func (s *Streamer) setBeacon(cmd command.Command) error {
	s.beacon = cmd.Int() != 0
	s.carrier.Store(s.beacon && s.txOn)
	return nil
}

func (s *Streamer) frontEndTuned(cmd command.Command) error {
	s.frontEnd = cmd.Double()
	return nil
}

// startRecording writes every RX block to the named file as CS8 IQ, the
// format the file radio plays back.
func (s *Streamer) startRecording(cmd command.Command) error {
	if err := s.closeRecording(); err != nil {
		s.Logger().Warn().Err(err).Msg("closing previous recording")
	}
	f, err := os.Create(cmd.Str)
	if err != nil {
		s.Logger().Error().Err(err).Str("path", cmd.Str).Msg("cannot open rf recording")
		s.put(command.NewString(command.Report, command.StatusMessage,
			fmt.Sprintf("RF record failed: %v", err)))
		return nil
	}
	s.record = f
	s.recorded = 0
	s.recordBuf = make([]byte, 2*s.blockSize)
	s.Logger().Info().
		Str("path", cmd.Str).
		Float64("front_end", s.frontEnd).
		Msg("rf recording started")
	return nil
}

func (s *Streamer) stopRecording(command.Command) error {
	if err := s.closeRecording(); err != nil {
		s.Logger().Error().Err(err).Msg("closing rf recording")
	}
	return nil
}

func (s *Streamer) writeRecording(samples []complex64) {
	if s.record == nil {
		return
	}
	n := radio.ToCS8(s.recordBuf, samples)
	if _, err := s.record.Write(s.recordBuf[:2*n]); err != nil {
		s.Logger().Error().Err(err).Msg("rf recording failed, stopping")
		s.stopRecording(command.Command{})
		return
	}
	s.recorded += int64(n)
}

func (s *Streamer) closeRecording() error {
	if s.record == nil {
		return nil
	}
	f := s.record
	s.record = nil
	s.Logger().Info().Str("path", f.Name()).Int64("samples", s.recorded).Msg("rf recording stopped")
	return f.Close()
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
