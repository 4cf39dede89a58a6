package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/neuroplastio/neio-midi/internal/binding"
	"github.com/neuroplastio/neio-midi/internal/capture"
	"github.com/neuroplastio/neio-midi/internal/configsvc"
	"github.com/neuroplastio/neio-midi/internal/controlstate"
	"github.com/neuroplastio/neio-midi/internal/midisvc"
	"github.com/neuroplastio/neio-midi/internal/mqttmirror"
	"github.com/neuroplastio/neio-midi/internal/player"
	"github.com/neuroplastio/neio-midi/midiapi"
	"github.com/neuroplastio/neio-midi/pkg/bus"
	"github.com/neuroplastio/neio-midi/pkg/ordinal"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var ErrNoTransport = errors.New("no MIDI transport configured")

// TransportFactory creates the MIDI transport once the agent logger exists.
type TransportFactory func(log *zap.Logger) (midisvc.Transport, error)

type agentOptions struct {
	logger    *zap.Logger
	transport TransportFactory
}

type Option func(*agentOptions)

func WithLogger(logger *zap.Logger) Option {
	return func(o *agentOptions) {
		o.logger = logger
	}
}

func WithTransport(factory TransportFactory) Option {
	return func(o *agentOptions) {
		o.transport = factory
	}
}

type Agent struct {
	config  Config
	runtime RuntimeConfig
	log     *zap.Logger
	ready   chan struct{}

	db        *badger.DB
	transport midisvc.Transport
	configSvc *configsvc.Service
	bus       *midiapi.EventBus
	midiSvc   *midisvc.Service
	controls  *controlstate.Service
	bindings  *binding.Service
	capture   *capture.Service
	players   *player.Registry

	params    *binding.Params
	bindingID *atomic.String
}

func newLogger() (*zap.Logger, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return loggerConfig.Build()
}

func NewAgent(config Config, opts ...Option) (*Agent, error) {
	var options agentOptions
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.logger
	if logger == nil {
		var err error
		logger, err = newLogger()
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}
	if options.transport == nil {
		return nil, ErrNoTransport
	}

	runtime, err := configsvc.Init(config.ConfigFile, DefaultRuntimeConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	exclude, err := runtime.excludePatterns()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbOptions := badger.DefaultOptions(filepath.Join(config.DataDir, "db"))
	dbOptions.Logger = &badgerLogger{l: logger.Named("badger")}
	db, err := badger.Open(dbOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	transport, err := options.transport(logger.Named("transport"))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create MIDI transport: %w", err)
	}

	configSvc, err := configsvc.New(logger.Named("config"))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	eventBus := bus.NewBus[midiapi.Key, midiapi.Event](logger.Named("bus"),
		bus.WithConcurrency(runtime.Bus.Concurrency),
		bus.WithQueueSize(runtime.Bus.QueueSize),
	)
	midiSvc := midisvc.New(logger.Named("midi"), transport, eventBus, ordinal.New(), time.Now,
		midisvc.WithExclude(exclude...),
		midisvc.WithHistory(midisvc.NewHistory(db)),
	)

	return &Agent{
		config:    config,
		runtime:   runtime,
		log:       logger,
		ready:     make(chan struct{}),
		db:        db,
		transport: transport,
		configSvc: configSvc,
		bus:       eventBus,
		midiSvc:   midiSvc,
		controls:  controlstate.New(logger.Named("controls"), eventBus),
		bindings:  binding.New(logger.Named("binding"), eventBus),
		capture:   capture.New(logger.Named("capture"), eventBus),
		players:   player.NewRegistry(logger.Named("player"), eventBus),
		params:    binding.NewParams(),
		bindingID: atomic.NewString(""),
	}, nil
}

func (a *Agent) Close() error {
	a.controls.Close()
	var errs []error
	if closer, ok := a.transport.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	errs = append(errs, a.db.Close())
	return errors.Join(errs...)
}

type badgerLogger struct {
	l *zap.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.l.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.l.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.l.Info(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.l.Debug(fmt.Sprintf(msg, args...))
}

// Run starts the agent and blocks until the context is cancelled.
// Agent startup will fail if the configuration is not valid.
// In case configuration becomes invalid after the startup, it will remain running with the last valid configuration.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.applyBindings(a.runtime.Bindings); err != nil {
		return err
	}
	_, err := configsvc.Register(a.configSvc, a.config.ConfigFile, DefaultRuntimeConfig(), func(cfg RuntimeConfig, err error) {
		if err != nil {
			a.log.Error("Invalid config, keeping the previous one", zap.Error(err))
			return
		}
		if err := a.applyBindings(cfg.Bindings); err != nil {
			a.log.Error("Invalid bindings, keeping the previous ones", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.configSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return a.bus.Start(groupCtx)
	})
	group.Go(func() error {
		<-a.bus.Ready()
		return a.midiSvc.Start(groupCtx)
	})
	if a.runtime.MQTT.Enabled() {
		a.startMirror(groupCtx, group)
	}
	group.Go(func() error {
		for _, ready := range []<-chan struct{}{a.configSvc.Ready(), a.bus.Ready(), a.midiSvc.Ready()} {
			select {
			case <-ready:
			case <-groupCtx.Done():
				return nil
			}
		}
		close(a.ready)
		a.log.Info("Agent ready")
		return nil
	})

	err = group.Wait()
	if err != nil {
		return fmt.Errorf("agent failed: %w", err)
	}
	return nil
}

// startMirror connects to the broker. A broker that cannot be reached disables mirroring
// instead of failing the agent.
func (a *Agent) startMirror(ctx context.Context, group *errgroup.Group) {
	log := a.log.Named("mqtt")
	client, err := mqttmirror.Connect(log, a.runtime.MQTT)
	if err != nil {
		log.Warn("MQTT mirror disabled", zap.Error(err))
		return
	}
	mirror, err := mqttmirror.New(log, a.bus, client, a.runtime.MQTT)
	if err != nil {
		log.Warn("MQTT mirror disabled", zap.Error(err))
		_ = client.Close()
		return
	}
	group.Go(func() error {
		defer client.Close()
		return mirror.Start(ctx)
	})
}

// applyBindings replaces the active binding with one built from cfg.
func (a *Agent) applyBindings(cfg binding.Config) error {
	mapping, err := binding.MappingFromConfig(cfg)
	if err != nil {
		return err
	}
	log := a.log.Named("params")
	id := a.bindings.Bind(a.params, func(name string, value float64) {
		log.Debug("Parameter changed", zap.String("name", name), zap.Float64("value", value))
	}, mapping)
	if prev := a.bindingID.Swap(id); prev != "" {
		a.bindings.Unbind(prev)
	}
	a.log.Info("Bindings applied", zap.Int("controllers", len(mapping)))
	return nil
}

// Ready is closed once the bus runs and MIDI devices are connected.
func (a *Agent) Ready() <-chan struct{} {
	return a.ready
}

func (a *Agent) Logger() *zap.Logger {
	return a.log
}

func (a *Agent) MIDI() *midisvc.Service {
	return a.midiSvc
}

func (a *Agent) Bus() *midiapi.EventBus {
	return a.bus
}

func (a *Agent) Controls() *controlstate.Service {
	return a.controls
}

func (a *Agent) Capture() *capture.Service {
	return a.capture
}

func (a *Agent) Players() *player.Registry {
	return a.players
}

func (a *Agent) Params() *binding.Params {
	return a.params
}
