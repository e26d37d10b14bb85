// Package uibridge connects user interfaces to a running radio over two unix
// domain sockets. The command socket carries length-prefixed command
// records both ways: client records go onto the command stream and every
// REPORT on the stream is sent back to each client. The waterfall socket,
// at the command socket path plus "_wfall", carries each spectrum row as a
// length-prefixed run of little-endian float32 values.
package uibridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"sync"
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
	"golang.org/x/sync/errgroup"
)

const Name = "UI"

const (
	WaterfallSuffix     = "_wfall"
	defaultWriteTimeout = 250 * time.Millisecond
)

// WaterfallPath is the waterfall socket that goes with a command socket.
func WaterfallPath(path string) string {
	return path + WaterfallSuffix
}

type Bridge struct {
	*thread.Base

	path         string
	writeTimeout time.Duration
	writeAPI     api.WriteAPI
	logger       zerolog.Logger

	cmd  *mailbox.Mailbox[command.Command]
	spec *mailbox.Subscription[*buffer.Buffer[float32]]

	cmdListener   net.Listener
	wfallListener net.Listener
	group         errgroup.Group

	mu           sync.Mutex
	cmdClients   map[net.Conn]struct{}
	wfallClients map[net.Conn]struct{}
	closing      bool
	received     int64

	frame []byte
	sent  int64
	rows  int64
}

type BridgeOption func(b *Bridge) error

func WithLogger(logger zerolog.Logger) BridgeOption {
	return func(b *Bridge) error {
		b.logger = logger
		return nil
	}
}

func WithInfluxDB(writeAPI api.WriteAPI) BridgeOption {
	return func(b *Bridge) error {
		b.writeAPI = writeAPI
		return nil
	}
}

// WithWriteTimeout bounds how long a slow client may hold up the stage.
// Clients that miss it are dropped.
func WithWriteTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) error {
		if d <= 0 {
			return fmt.Errorf("bad write timeout %s", d)
		}
		b.writeTimeout = d
		return nil
	}
}

// NewBridge builds the stage. The sockets are created when it runs.
func NewBridge(path string, opts ...BridgeOption) (*Bridge, error) {
	if path == "" {
		return nil, errors.New("ui socket path is empty")
	}
	b := &Bridge{
		path:         path,
		writeTimeout: defaultWriteTimeout,
		writeAPI:     &util.NopWriteAPI{},
		logger:       log.Logger,
		cmdClients:   make(map[net.Conn]struct{}),
		wfallClients: make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	b.Base = thread.NewBase(Name, thread.WithLogger(b.logger))
	return b, nil
}

func (b *Bridge) Subscribe(reg *mailbox.Registry) error {
	cmd, err := mailbox.Lookup[command.Command](reg, kernel.MailboxCommand)
	if err != nil {
		return err
	}
	spec, err := mailbox.Lookup[*buffer.Buffer[float32]](reg, kernel.MailboxSpectrum)
	if err != nil {
		return err
	}
	b.cmd = cmd
	b.Listen(cmd)
	b.spec = spec.Subscribe(mailbox.WithNotify(b.Wake()))

	b.HandleKind(command.Report, b.forward)
	return nil
}

func listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	return l, nil
}

func (b *Bridge) Run() error {
	var err error
	if b.cmdListener, err = listen(b.path); err != nil {
		return err
	}
	if b.wfallListener, err = listen(WaterfallPath(b.path)); err != nil {
		b.cmdListener.Close()
		return err
	}
	b.Logger().Info().
		Str("path", b.path).
		Str("waterfall", WaterfallPath(b.path)).
		Msg("ui bridge listening")

	b.group.Go(func() error { return b.accept(b.cmdListener, b.cmdClients, true) })
	b.group.Go(func() error { return b.accept(b.wfallListener, b.wfallClients, false) })

	return b.Loop(b.work)
}

// Shutdown closes the sockets and every client, then waits for the
// connection goroutines.
func (b *Bridge) Shutdown() error {
	b.mu.Lock()
	b.closing = true
	for c := range b.cmdClients {
		c.Close()
	}
	for c := range b.wfallClients {
		c.Close()
	}
	b.mu.Unlock()

	var errs []error
	for _, l := range []net.Listener{b.cmdListener, b.wfallListener} {
		if l != nil {
			l.Close()
		}
	}
	if err := b.group.Wait(); err != nil {
		errs = append(errs, err)
	}
	for _, p := range []string{b.path, WaterfallPath(b.path)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	for {
		row, ok := b.spec.Get()
		if !ok {
			break
		}
		row.Release()
	}
	return errors.Join(errs...)
}

func (b *Bridge) accept(l net.Listener, clients map[net.Conn]struct{}, commands bool) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			b.mu.Lock()
			closing := b.closing
			b.mu.Unlock()
			if closing || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting ui client: %w", err)
		}

		b.mu.Lock()
		if b.closing {
			b.mu.Unlock()
			conn.Close()
			return nil
		}
		clients[conn] = struct{}{}
		b.mu.Unlock()
		b.Logger().Debug().Bool("commands", commands).Msg("ui client connected")

		if commands {
			b.group.Go(func() error {
				b.read(conn)
				return nil
			})
		}
	}
}

// read puts every record a client sends on the command stream until the
// client goes away. A STOP from the client stops the whole radio.
func (b *Bridge) read(conn net.Conn) {
	defer b.drop(conn, b.cmdClients)
	for {
		cmd, err := command.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				b.Logger().Warn().Err(err).Msg("ui client read")
			}
			return
		}
		b.mu.Lock()
		b.received++
		b.mu.Unlock()
		b.Logger().Debug().Str("cmd", cmd.String()).Msg("from ui")
		b.cmd.Put(cmd)
		if cmd.IsStop() {
			b.Logger().Info().Msg("stop requested by ui client")
			return
		}
	}
}

func (b *Bridge) drop(conn net.Conn, clients map[net.Conn]struct{}) {
	b.mu.Lock()
	delete(clients, conn)
	b.mu.Unlock()
	conn.Close()
}

func (b *Bridge) snapshot(clients map[net.Conn]struct{}) []net.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	ret := make([]net.Conn, 0, len(clients))
	for c := range clients {
		ret = append(ret, c)
	}
	return ret
}

// send writes p to every client in clients, dropping any that fail.
func (b *Bridge) send(clients map[net.Conn]struct{}, p []byte) {
	for _, c := range b.snapshot(clients) {
		c.SetWriteDeadline(time.Now().Add(b.writeTimeout))
		if _, err := c.Write(p); err != nil {
			b.Logger().Warn().Err(err).Msg("dropping ui client")
			b.drop(c, clients)
		}
	}
}

func (b *Bridge) forward(cmd command.Command) error {
	b.frame = binary.LittleEndian.AppendUint32(b.frame[:0], command.RecordSize)
	b.frame = cmd.AppendBinary(b.frame)
	b.send(b.cmdClients, b.frame)
	b.sent++
	return nil
}

func (b *Bridge) work() (bool, error) {
	row, ok := b.spec.Get()
	if !ok {
		return false, nil
	}
	b.frame = AppendRow(b.frame[:0], row.Samples())
	row.Release()
	b.send(b.wfallClients, b.frame)
	b.rows++

	if b.rows%100 == 0 {
		b.mu.Lock()
		received := b.received
		b.mu.Unlock()
		go b.writeAPI.WritePoint(influxdb2.NewPoint("uibridge",
			map[string]string{},
			map[string]interface{}{
				"received": received,
				"reports":  b.sent,
				"rows":     b.rows,
				"clients":  len(b.snapshot(b.cmdClients)),
			},
			time.Now()))
	}
	return true, nil
}

// AppendRow appends the waterfall framing of row to dst: the byte length
// of the row, then the values, all little-endian.
func AppendRow(dst []byte, row []float32) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(4*len(row)))
	for _, v := range row {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// ReadRow reads one waterfall row from r.
func ReadRow(r io.Reader) ([]float32, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(hdr[:])
	if size%4 != 0 || size > 1<<24 {
		return nil, fmt.Errorf("bad waterfall row length %d", size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	row := make([]float32, size/4)
	for i := range row {
		row[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return row, nil
}
