package agentcli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/neuroplastio/neio-midi/internal/midisvc"
	"github.com/neuroplastio/neio-midi/internal/midisvc/gomidi"
	"github.com/neuroplastio/neio-midi/midiapi"
	"github.com/neuroplastio/neio-midi/pkg/agent"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/zap"
)

func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	cmd := NewRootCmd(filepath.Join(dir, "neio-midi"))
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

type agentProvider func() *agent.Agent

func rtmidiTransport(log *zap.Logger) (midisvc.Transport, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	return gomidi.NewBackend(log, drv), nil
}

func NewRootCmd(configDir string) *cobra.Command {
	cfg := agent.Config{
		DataDir:    filepath.Join(configDir, "data"),
		ConfigFile: filepath.Join(configDir, "neio-midi.yml"),
	}
	agentCmd := &cobra.Command{
		Use:          "neio-midi",
		Short:        "Neuroplast.io MIDI Agent",
		Long:         `The Neuroplast.io MIDI Agent routes control surface events to parameters, players and MQTT.`,
		SilenceUsage: true,
	}
	var a *agent.Agent
	agentProvider := func() *agent.Agent {
		return a
	}
	agentCmd.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	agentCmd.PersistentFlags().StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "config file")
	agentCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		a, err = agent.NewAgent(cfg, agent.WithTransport(rtmidiTransport))
		return err
	}
	agentCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return a.Close()
	}
	agentCmd.AddCommand(NewRun(agentProvider))
	agentCmd.AddCommand(NewListDevices(agentProvider))
	agentCmd.AddCommand(NewListReceivers(agentProvider))
	agentCmd.AddCommand(NewKnownDevices(agentProvider))
	agentCmd.AddCommand(NewFind(agentProvider))
	agentCmd.AddCommand(NewCaptureControl(agentProvider))
	agentCmd.AddCommand(NewWatchControl(agentProvider))
	agentCmd.AddCommand(NewSendControl(agentProvider))
	return agentCmd
}

func NewRun(agent agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the MIDI Agent",
		Long:  `Connects all MIDI devices and routes their events until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return agent().Run(cmd.Context())
		},
	}
}

// withRunningAgent runs the agent in the background for the duration of fn.
func withRunningAgent(ctx context.Context, a *agent.Agent, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()
	select {
	case <-a.Ready():
	case err := <-done:
		cancel()
		return err
	}
	err := fn(ctx)
	cancel()
	if runErr := <-done; err == nil {
		err = runErr
	}
	return err
}

type deviceView struct {
	Key         string `json:"key" yaml:"key"`
	Kind        string `json:"kind" yaml:"kind"`
	Vendor      string `json:"vendor" yaml:"vendor"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Ordinal     int    `json:"ordinal" yaml:"ordinal"`
	Handle      string `json:"handle" yaml:"handle"`
}

func viewDevices(svc *midisvc.Service, descs []midiapi.Descriptor) []deviceView {
	views := make([]deviceView, 0, len(descs))
	for _, d := range descs {
		views = append(views, deviceView{
			Key:         svc.FullDeviceKey(d).String(),
			Kind:        d.Kind.String(),
			Vendor:      d.Vendor,
			Name:        d.Name,
			Description: d.Description,
			Ordinal:     d.Ordinal,
			Handle:      d.Handle,
		})
	}
	return views
}

type printer struct {
	yaml bool
}

func (p *printer) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&p.yaml, "yaml", false, "print YAML instead of JSON")
}

func (p *printer) print(cmd *cobra.Command, v any) error {
	var (
		b   []byte
		err error
	)
	if p.yaml {
		b, err = yaml.Marshal(v)
	} else {
		b, err = json.MarshalIndent(v, "", "  ")
		b = append(b, '\n')
	}
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}

func NewListDevices(agent agentProvider) *cobra.Command {
	var p printer
	cmd := &cobra.Command{
		Use:   "list-devices",
		Short: "List MIDI devices",
		Long:  `List MIDI input devices with their full device keys.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := agent().MIDI()
			if err := svc.Connect(cmd.Context()); err != nil {
				return err
			}
			return p.print(cmd, viewDevices(svc, svc.ConnectedDevices()))
		},
	}
	p.register(cmd)
	return cmd
}

func NewListReceivers(agent agentProvider) *cobra.Command {
	var p printer
	cmd := &cobra.Command{
		Use:   "list-receivers",
		Short: "List MIDI receivers",
		Long:  `List MIDI output ports with their full device keys.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := agent().MIDI()
			if err := svc.Connect(cmd.Context()); err != nil {
				return err
			}
			return p.print(cmd, viewDevices(svc, svc.ConnectedReceivers()))
		},
	}
	p.register(cmd)
	return cmd
}

func NewKnownDevices(agent agentProvider) *cobra.Command {
	var p printer
	cmd := &cobra.Command{
		Use:   "known-devices",
		Short: "List every MIDI port seen so far",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := agent().MIDI().KnownDevices()
			if err != nil {
				return err
			}
			return p.print(cmd, records)
		},
	}
	p.register(cmd)
	return cmd
}

func searchSpec(query string, regex bool) (midisvc.SearchSpec, error) {
	if !regex {
		return midisvc.Substring(query), nil
	}
	re, err := regexp.Compile(query)
	if err != nil {
		return midisvc.SearchSpec{}, fmt.Errorf("invalid pattern: %w", err)
	}
	return midisvc.Pattern(re), nil
}

func NewFind(agent agentProvider) *cobra.Command {
	var (
		p        printer
		regex    bool
		receiver bool
	)
	cmd := &cobra.Command{
		Use:   "find <query>",
		Short: "Find connected devices by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := searchSpec(args[0], regex)
			if err != nil {
				return err
			}
			svc := agent().MIDI()
			if err := svc.Connect(cmd.Context()); err != nil {
				return err
			}
			descs := svc.ConnectedDevices()
			if receiver {
				descs = svc.ConnectedReceivers()
			}
			return p.print(cmd, viewDevices(svc, svc.FindConnected(spec, descs)))
		},
	}
	p.register(cmd)
	cmd.Flags().BoolVar(&regex, "regex", false, "treat query as a regular expression")
	cmd.Flags().BoolVar(&receiver, "receiver", false, "search receivers instead of devices")
	return cmd
}

func NewCaptureControl(agent agentProvider) *cobra.Command {
	var (
		p       printer
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "capture-control",
		Short: "Wait for the next control change",
		Long:  `Waits for any control on any device to move and prints its key.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := agent()
			return withRunningAgent(cmd.Context(), a, func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				fmt.Fprintln(cmd.ErrOrStderr(), "Move a control...")
				input, err := a.Capture().NextControlInput(ctx, true)
				if err != nil {
					return err
				}
				return p.print(cmd, struct {
					Key        string `json:"key" yaml:"key"`
					ControlKey string `json:"controlKey" yaml:"controlKey"`
					Controller int    `json:"controller" yaml:"controller"`
					Value      int    `json:"value" yaml:"value"`
				}{
					Key:        input.Key.String(),
					ControlKey: input.Key.Append(midiapi.Int(input.Controller)).String(),
					Controller: input.Controller,
					Value:      input.Value,
				})
			})
		},
	}
	p.register(cmd)
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait")
	return cmd
}

func NewWatchControl(agent agentProvider) *cobra.Command {
	var (
		regex    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch-control <device-query> <controller>",
		Short: "Print the value of a control whenever it changes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := searchSpec(args[0], regex)
			if err != nil {
				return err
			}
			controller, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid controller: %w", err)
			}
			a := agent()
			return withRunningAgent(cmd.Context(), a, func(ctx context.Context) error {
				dev, ok := a.MIDI().FindConnectedDevice(spec)
				if !ok {
					return fmt.Errorf("%w: %s", midisvc.ErrDeviceNotFound, spec)
				}
				key := a.MIDI().FullControlEventKey(dev, midiapi.ControlChange, controller)
				control := a.Controls().AgentFor(key)
				fmt.Fprintln(cmd.ErrOrStderr(), "Watching", key)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				last := -1
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						if v := control.Value(); v != last {
							last = v
							fmt.Fprintln(cmd.OutOrStdout(), v)
						}
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&regex, "regex", false, "treat query as a regular expression")
	cmd.Flags().DurationVar(&interval, "interval", 50*time.Millisecond, "poll interval")
	return cmd
}

func NewSendControl(agent agentProvider) *cobra.Command {
	var (
		regex   bool
		channel uint8
	)
	cmd := &cobra.Command{
		Use:   "send-control <receiver-query> <controller> <value>",
		Short: "Send a control change to a receiver",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := searchSpec(args[0], regex)
			if err != nil {
				return err
			}
			controller, err := strconv.ParseUint(args[1], 10, 7)
			if err != nil {
				return fmt.Errorf("invalid controller: %w", err)
			}
			value, err := strconv.ParseUint(args[2], 10, 7)
			if err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}
			svc := agent().MIDI()
			if err := svc.Connect(cmd.Context()); err != nil {
				return err
			}
			receiver, ok := svc.FindConnectedReceiver(spec)
			if !ok {
				return fmt.Errorf("%w: %s", midisvc.ErrDeviceNotFound, spec)
			}
			return svc.SendControl(receiver, channel, uint8(controller), uint8(value))
		},
	}
	cmd.Flags().BoolVar(&regex, "regex", false, "treat query as a regular expression")
	cmd.Flags().Uint8Var(&channel, "channel", 0, "MIDI channel (0-15)")
	return cmd
}
