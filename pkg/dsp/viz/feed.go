package viz

import (
	"github.com/norasector/rigcore/pkg/buffer"
	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/kernel"
	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/norasector/rigcore/pkg/thread"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const FeedName = "Viz"

// SpectrumBucket is the server bucket the live RX spectrum is registered
// under.
const SpectrumBucket = "spectrum"

// Feed is the stage that drives a Server from the radio: every REPORT goes
// out to websocket clients as a binary record and spectrum rows update the
// RX spectrum plot.
type Feed struct {
	*thread.Base

	server *Server
	logger zerolog.Logger
	plot   *RowPlotter

	spec *mailbox.Subscription[*buffer.Buffer[float32]]

	reports int64
	rows    int64
}

type FeedOption func(f *Feed)

func WithFeedLogger(logger zerolog.Logger) FeedOption {
	return func(f *Feed) {
		f.logger = logger
	}
}

func NewFeed(server *Server, opts ...FeedOption) *Feed {
	f := &Feed{
		server: server,
		logger: log.Logger,
		plot:   NewRowPlotter("RX Spectrum"),
	}
	for _, opt := range opts {
		opt(f)
	}
	server.Register(SpectrumBucket, f.plot)
	f.Base = thread.NewBase(FeedName, thread.WithLogger(f.logger))
	return f
}

func (f *Feed) Subscribe(reg *mailbox.Registry) error {
	cmd, err := mailbox.Lookup[command.Command](reg, kernel.MailboxCommand)
	if err != nil {
		return err
	}
	spec, err := mailbox.Lookup[*buffer.Buffer[float32]](reg, kernel.MailboxSpectrum)
	if err != nil {
		return err
	}
	f.Listen(cmd)
	f.spec = spec.Subscribe(mailbox.WithNotify(f.Wake()))

	f.Handle(command.Report, command.SpecDims, f.dims)
	f.HandleKind(command.Report, f.broadcast)
	return nil
}

func (f *Feed) Run() error {
	f.Logger().Info().Msg("viz feed starting")
	return f.Loop(f.work)
}

func (f *Feed) Shutdown() error {
	for {
		row, ok := f.spec.Get()
		if !ok {
			return nil
		}
		row.Release()
	}
}

// dims tracks the range of the rows. It is also broadcast.
func (f *Feed) dims(cmd command.Command) error {
	f.plot.SetRange(cmd.Doubles[0], cmd.Doubles[1])
	return f.broadcast(cmd)
}

// broadcast hands each record its own slice since clients write
// asynchronously.
func (f *Feed) broadcast(cmd command.Command) error {
	f.server.Broadcast(cmd.AppendBinary(nil))
	f.reports++
	return nil
}

func (f *Feed) work() (bool, error) {
	var latest *buffer.Buffer[float32]
	for {
		row, ok := f.spec.Get()
		if !ok {
			break
		}
		if latest != nil {
			latest.Release()
		}
		latest = row
		f.rows++
	}
	if latest == nil {
		return false, nil
	}
	f.plot.SetRow(latest.Samples())
	latest.Release()
	return true, nil
}
