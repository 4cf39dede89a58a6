package gomidi

import (
	"fmt"
	"time"

	"github.com/neuroplastio/neio-midi/internal/midisvc"
	"github.com/neuroplastio/neio-midi/midiapi"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"go.uber.org/zap"
)

// Backend exposes the ports of a gomidi driver as a midisvc.Transport.
type Backend struct {
	log *zap.Logger
	drv drivers.Driver
	now func() time.Time
}

func NewBackend(log *zap.Logger, drv drivers.Driver) *Backend {
	return &Backend{
		log: log,
		drv: drv,
		now: time.Now,
	}
}

type port interface {
	Number() int
	String() string
}

func handle(p port) string {
	return fmt.Sprintf("%d:%s", p.Number(), p.String())
}

func (b *Backend) rawDevice(p port, description string) midiapi.RawDevice {
	return midiapi.RawDevice{
		Vendor:      b.drv.String(),
		Name:        p.String(),
		Description: description,
		Handle:      handle(p),
	}
}

func (b *Backend) Sources() ([]midiapi.RawDevice, error) {
	ins, err := b.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("failed to list inputs: %w", err)
	}
	devs := make([]midiapi.RawDevice, 0, len(ins))
	for _, in := range ins {
		devs = append(devs, b.rawDevice(in, "in"))
	}
	return devs, nil
}

func (b *Backend) Sinks() ([]midiapi.RawDevice, error) {
	outs, err := b.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}
	devs := make([]midiapi.RawDevice, 0, len(outs))
	for _, out := range outs {
		devs = append(devs, b.rawDevice(out, "out"))
	}
	return devs, nil
}

func (b *Backend) OpenInput(dev midiapi.RawDevice) (midisvc.Input, error) {
	ins, err := b.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("failed to list inputs: %w", err)
	}
	for _, in := range ins {
		if handle(in) != dev.Handle {
			continue
		}
		if err := in.Open(); err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", dev.Name, err)
		}
		return &input{
			log:  b.log.With(zap.String("port", dev.Name)),
			port: in,
			now:  b.now,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", midisvc.ErrDeviceNotFound, dev.Handle)
}

func (b *Backend) OpenOutput(dev midiapi.RawDevice) (midisvc.Output, error) {
	outs, err := b.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}
	for _, out := range outs {
		if handle(out) != dev.Handle {
			continue
		}
		if err := out.Open(); err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", dev.Name, err)
		}
		return &output{port: out}, nil
	}
	return nil, fmt.Errorf("%w: %s", midisvc.ErrDeviceNotFound, dev.Handle)
}

func (b *Backend) Close() error {
	return b.drv.Close()
}

type input struct {
	log  *zap.Logger
	port drivers.In
	now  func() time.Time
	stop func()
}

func (i *input) Listen(onMessage func(midiapi.Message), onSysex func(data []byte)) error {
	stop, err := midi.ListenTo(i.port, func(msg midi.Message, _ int32) {
		var data []byte
		if msg.GetSysEx(&data) {
			onSysex(data)
			return
		}
		m, ok := Decode(msg)
		if !ok {
			return
		}
		m.Timestamp = i.now()
		onMessage(m)
	}, midi.UseSysEx(), midi.HandleError(func(err error) {
		i.log.Warn("MIDI input error", zap.Error(err))
	}))
	if err != nil {
		return err
	}
	i.stop = stop
	return nil
}

func (i *input) Close() error {
	if i.stop != nil {
		i.stop()
	}
	return i.port.Close()
}

type output struct {
	port drivers.Out
}

func (o *output) Send(data []byte) error {
	return o.port.Send(data)
}

func (o *output) Close() error {
	return o.port.Close()
}
