package midisvc

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/neuroplastio/neio-midi/midiapi"
	"github.com/neuroplastio/neio-midi/pkg/ordinal"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDeviceNotConnected = errors.New("device not connected")
)

// Transport enumerates and opens MIDI ports.
type Transport interface {
	Sources() ([]midiapi.RawDevice, error)
	Sinks() ([]midiapi.RawDevice, error)
	OpenInput(dev midiapi.RawDevice) (Input, error)
	OpenOutput(dev midiapi.RawDevice) (Output, error)
}

type Input interface {
	// Listen attaches callbacks; it fails if the port cannot deliver messages.
	Listen(onMessage func(midiapi.Message), onSysex func(data []byte)) error
	Close() error
}

type Output interface {
	Send(data []byte) error
	Close() error
}

// Publisher is the part of the event bus the router needs.
type Publisher interface {
	Publish(ctx context.Context, key midiapi.Key, ev midiapi.Event)
}

type serviceOptions struct {
	exclude []*regexp.Regexp
	history *History
}

type Option func(*serviceOptions)

// WithExclude drops ports whose name matches any of the patterns during discovery.
func WithExclude(patterns ...*regexp.Regexp) Option {
	return func(o *serviceOptions) {
		o.exclude = append(o.exclude, patterns...)
	}
}

// WithHistory records every discovered port in h.
func WithHistory(h *History) Option {
	return func(o *serviceOptions) {
		o.history = h
	}
}

// Service discovers MIDI ports, keeps the connected snapshot and routes incoming messages
// onto the bus.
type Service struct {
	log       *zap.Logger
	transport Transport
	publisher Publisher
	ordinals  *ordinal.Generator
	options   serviceOptions
	now       func() time.Time

	connectOnce sync.Once
	connectErr  error
	ready       chan struct{}
	rescanMu    sync.Mutex

	devices   *atomic.Pointer[[]midiapi.Descriptor]
	receivers *atomic.Pointer[[]midiapi.Descriptor]
	inputs    *xsync.MapOf[string, Input]
	outputs   *xsync.MapOf[string, Output]
	// described holds the descriptor of every port observed so far, attached or not.
	described *xsync.MapOf[portKey, midiapi.Descriptor]
}

type portKey struct {
	kind   midiapi.Kind
	handle string
}

func New(log *zap.Logger, transport Transport, publisher Publisher, ordinals *ordinal.Generator, now func() time.Time, opts ...Option) *Service {
	var options serviceOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		log:       log,
		transport: transport,
		publisher: publisher,
		ordinals:  ordinals,
		options:   options,
		now:       now,
		ready:     make(chan struct{}),
		devices:   atomic.NewPointer(&[]midiapi.Descriptor{}),
		receivers: atomic.NewPointer(&[]midiapi.Descriptor{}),
		inputs:    xsync.NewMapOf[string, Input](),
		outputs:   xsync.NewMapOf[string, Output](),
		described: xsync.NewMapOf[portKey, midiapi.Descriptor](),
	}
}

// Connect discovers devices and receivers and attaches listeners. Only the first call does
// any work; later calls return its result.
func (s *Service) Connect(ctx context.Context) error {
	s.connectOnce.Do(func() {
		s.connectErr = s.connect(ctx)
		if s.connectErr == nil {
			close(s.ready)
		}
	})
	return s.connectErr
}

func (s *Service) connect(ctx context.Context) error {
	devices, err := s.Discover(midiapi.KindSource)
	if err != nil {
		return fmt.Errorf("failed to discover devices: %w", err)
	}
	receivers, err := s.Discover(midiapi.KindReceiver)
	if err != nil {
		return fmt.Errorf("failed to discover receivers: %w", err)
	}
	connected := s.AttachListeners(ctx, devices)
	opened := s.AttachReceivers(receivers)
	s.devices.Store(&connected)
	s.receivers.Store(&opened)
	s.log.Info("MIDI devices connected", zap.Int("devices", len(connected)), zap.Int("receivers", len(opened)))
	return nil
}

// Start connects and then blocks until ctx is cancelled, closing all ports on the way out.
func (s *Service) Start(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	s.log.Info("Service started")
	<-ctx.Done()
	s.closePorts()
	return nil
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// ConnectedDevices returns the source snapshot taken by Connect (or the latest Rescan).
func (s *Service) ConnectedDevices() []midiapi.Descriptor {
	return *s.devices.Load()
}

// ConnectedReceivers returns the receiver snapshot taken by Connect (or the latest Rescan).
func (s *Service) ConnectedReceivers() []midiapi.Descriptor {
	return *s.receivers.Load()
}

func (s *Service) connected(kind midiapi.Kind) []midiapi.Descriptor {
	if kind == midiapi.KindReceiver {
		return s.ConnectedReceivers()
	}
	return s.ConnectedDevices()
}

func (s *Service) closePorts() {
	s.inputs.Range(func(handle string, in Input) bool {
		if err := in.Close(); err != nil {
			s.log.Warn("failed to close input", zap.String("handle", handle), zap.Error(err))
		}
		s.inputs.Delete(handle)
		return true
	})
	s.outputs.Range(func(handle string, out Output) bool {
		if err := out.Close(); err != nil {
			s.log.Warn("failed to close output", zap.String("handle", handle), zap.Error(err))
		}
		s.outputs.Delete(handle)
		return true
	})
}
