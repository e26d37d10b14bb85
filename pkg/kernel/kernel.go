package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/rigcore/pkg/buffer"
	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/mailbox"
	"github.com/norasector/rigcore/pkg/thread"
	"github.com/norasector/rigcore/pkg/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Well-known mailbox names.
const (
	MailboxCommand  = "CMD"
	MailboxRX       = "RX"
	MailboxTX       = "TX"
	MailboxCW       = "CW"
	MailboxSpectrum = "SPEC"
)

// Kernel is the runtime object: it owns the mailbox table, the thread list
// and the command stream. Several kernels may coexist in one process.
type Kernel struct {
	mailboxes *mailbox.Registry
	threads   *thread.Registry
	cmd       *mailbox.Mailbox[command.Command]

	rx       *mailbox.Mailbox[*buffer.Buffer[complex64]]
	tx       *mailbox.Mailbox[*buffer.Buffer[complex64]]
	cw       *mailbox.Mailbox[*buffer.Buffer[float32]]
	spectrum *mailbox.Mailbox[*buffer.Buffer[float32]]

	writeAPI      api.WriteAPI
	statsInterval time.Duration
	logger        zerolog.Logger

	stopOnce sync.Once
	mu       sync.Mutex
	running  bool
	started  chan struct{}
}

type KernelOption func(k *Kernel) error

func WithLogger(logger zerolog.Logger) KernelOption {
	return func(k *Kernel) error {
		k.logger = logger
		return nil
	}
}

func WithInfluxDB(writeAPI api.WriteAPI) KernelOption {
	return func(k *Kernel) error {
		k.writeAPI = writeAPI
		return nil
	}
}

// WithStatsInterval sets how often mailbox counters are written to influx.
// Zero disables the reporter.
func WithStatsInterval(d time.Duration) KernelOption {
	return func(k *Kernel) error {
		if d < 0 {
			return fmt.Errorf("negative stats interval %s", d)
		}
		k.statsInterval = d
		return nil
	}
}

// New builds a kernel with the standard mailboxes registered.
func New(opts ...KernelOption) (*Kernel, error) {
	k := &Kernel{
		mailboxes:     mailbox.NewRegistry(),
		writeAPI:      &util.NopWriteAPI{},
		statsInterval: 10 * time.Second,
		logger:        log.Logger,
		started:       make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(k); err != nil {
			return nil, err
		}
	}

	k.threads = thread.NewRegistry(thread.WithRegistryLogger(k.logger))

	var err error
	if k.cmd, err = mailbox.Register[command.Command](k.mailboxes, MailboxCommand); err != nil {
		return nil, err
	}
	if k.rx, err = mailbox.Register[*buffer.Buffer[complex64]](k.mailboxes, MailboxRX); err != nil {
		return nil, err
	}
	if k.tx, err = mailbox.Register[*buffer.Buffer[complex64]](k.mailboxes, MailboxTX); err != nil {
		return nil, err
	}
	if k.cw, err = mailbox.Register[*buffer.Buffer[float32]](k.mailboxes, MailboxCW); err != nil {
		return nil, err
	}
	if k.spectrum, err = mailbox.Register[*buffer.Buffer[float32]](k.mailboxes, MailboxSpectrum); err != nil {
		return nil, err
	}

	return k, nil
}

func (k *Kernel) Mailboxes() *mailbox.Registry { return k.mailboxes }

func (k *Kernel) Threads() *thread.Registry { return k.threads }

// Commands is the broadcast command stream every stage listens to.
func (k *Kernel) Commands() *mailbox.Mailbox[command.Command] { return k.cmd }

func (k *Kernel) WriteAPI() api.WriteAPI { return k.writeAPI }

func (k *Kernel) Logger() zerolog.Logger { return k.logger }

// Add registers threads. It must be called before Run.
func (k *Kernel) Add(threads ...thread.Thread) error {
	for _, t := range threads {
		if err := k.threads.Add(t); err != nil {
			return err
		}
	}
	return nil
}

// Started is closed once every stage is subscribed and running. Commands
// sent before then are not seen by the stages.
func (k *Kernel) Started() <-chan struct{} { return k.started }

// Send puts cmd on the command stream.
func (k *Kernel) Send(cmd command.Command) {
	k.cmd.Put(cmd)
}

// Stop broadcasts STOP once.
func (k *Kernel) Stop() {
	k.stopOnce.Do(func() {
		k.logger.Info().Msg("stopping all stages")
		k.cmd.Put(command.New(command.Set, command.Stop))
	})
}

// Run subscribes every stage, starts them, and blocks until they have all
// exited. A stage failure or ctx cancellation broadcasts STOP. The first
// stage error is returned after every stage has been joined and shut down.
func (k *Kernel) Run(ctx context.Context) error {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return errors.New("kernel already running")
	}
	k.running = true
	k.mu.Unlock()

	if err := k.threads.SubscribeAll(k.mailboxes); err != nil {
		return err
	}

	if err := k.threads.StartAll(func(err error) {
		k.writeFailure(err)
		k.Stop()
	}); err != nil {
		return err
	}

	close(k.started)

	k.logger.Info().
		Int("stages", len(k.threads.Threads())).
		Strs("mailboxes", k.mailboxes.Names()).
		Msg("kernel running")

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			k.Stop()
		case <-done:
		}
	}()
	if k.statsInterval > 0 {
		go k.reportStats(done)
	}

	runErr := k.threads.JoinAll()
	close(done)

	shutdownErr := k.threads.ShutdownAll()
	if shutdownErr != nil {
		k.logger.Error().Err(shutdownErr).Msg("shutdown")
	}

	if runErr != nil {
		return runErr
	}
	return shutdownErr
}

func (k *Kernel) writeFailure(err error) {
	stage := "unknown"
	var se *thread.StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	go k.writeAPI.WritePoint(influxdb2.NewPoint("kernel.stage_failure",
		map[string]string{"stage": stage},
		map[string]interface{}{"error": err.Error()},
		time.Now()))
}

func (k *Kernel) reportStats(done <-chan struct{}) {
	ticker := time.NewTicker(k.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			for name, st := range k.mailboxes.Stats() {
				k.writeAPI.WritePoint(influxdb2.NewPoint("kernel.mailbox",
					map[string]string{"mailbox": name},
					map[string]interface{}{
						"puts":          st.Puts,
						"subscriptions": st.Subscriptions,
						"in_flight":     st.InFlight,
					},
					time.Now()))
			}
		}
	}
}
