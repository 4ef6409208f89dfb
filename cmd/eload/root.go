// cmd/eload/root.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/corecode/lab/internal/config"
	"github.com/corecode/lab/internal/mode"
	"github.com/corecode/lab/internal/session"
)

const verboseLevel = "4"

// errInterrupted ends a run that was cancelled by a signal after the
// input was restored.
var errInterrupted = errors.New("eload: interrupted")

// options holds the global flags. Flags that were set override the
// config file; the rest fall back to it and then to defaults.
type options struct {
	configPath string

	port     string
	baudRate int
	unitID   uint8
	timeout  time.Duration
	rs485    bool

	interval time.Duration
	duration time.Duration

	out        string
	format     string
	mqttBroker string
	mqttTopic  string

	simulate bool
	verbose  bool
}

func newRootCommand() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:   "eload",
		Short: "Run discharge tests on a Modbus electronic load",
		Long: `eload configures an electronic load for one test mode, enables its input,
samples voltage, current and (for battery tests) capacity at a fixed interval,
and restores the input when the test ends, fails or is interrupted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// ---- klog flags (-v, --logtostderr, ...) ----
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if o.verbose {
			return klogFlags.Set("v", verboseLevel)
		}
		return nil
	}

	o.addFlags(root.PersistentFlags())

	root.AddCommand(
		newBatteryCommand(o),
		newConstantCurrentCommand(o),
		newConstantPowerCommand(o),
	)
	return root
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "YAML config file")

	fs.StringVarP(&o.port, "port", "p", "", "serial port or tcp://host:port gateway")
	fs.IntVar(&o.baudRate, "baudrate", config.DefaultBaudRate, "serial baud rate")
	fs.Uint8Var(&o.unitID, "unit-id", config.DefaultUnitID, "Modbus unit id")
	fs.DurationVar(&o.timeout, "timeout", config.DefaultTimeoutMs*time.Millisecond, "per request timeout")
	fs.BoolVar(&o.rs485, "rs485", false, "drive RTS for an RS485 adapter")

	fs.DurationVarP(&o.interval, "interval", "i", config.DefaultIntervalMs*time.Millisecond, "sampling interval")
	fs.DurationVarP(&o.duration, "duration", "d", 0, "stop after this long (0 = until the test ends)")

	fs.StringVarP(&o.out, "out", "o", config.DefaultOut, `output file ("-" = stdout)`)
	fs.StringVar(&o.format, "format", config.DefaultFormat, "output format: csv|pretty")
	fs.StringVar(&o.mqttBroker, "mqtt-broker", "", "also publish samples to this broker (tcp://host:1883)")
	fs.StringVar(&o.mqttTopic, "mqtt-topic", "", "MQTT topic (default "+config.DefaultMQTTTopic+")")

	fs.BoolVar(&o.simulate, "simulate", false, "run against a simulated load")
	fs.BoolVar(&o.verbose, "verbose", false, "trace Modbus traffic (klog -v="+verboseLevel+")")
}

// config loads the file (if any), applies flags that were set,
// then validates and normalizes.
func (o *options) config(fs *pflag.FlagSet) (*config.Config, error) {
	cfg := &config.Config{}
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// ---- flag overrides ----
	if fs.Changed("port") {
		cfg.Device.Port = o.port
	}
	if fs.Changed("baudrate") {
		cfg.Device.BaudRate = o.baudRate
	}
	if fs.Changed("unit-id") {
		cfg.Device.UnitID = o.unitID
	}
	if fs.Changed("timeout") {
		cfg.Device.TimeoutMs = int(o.timeout.Milliseconds())
	}
	if fs.Changed("rs485") {
		cfg.Device.RS485 = o.rs485
	}
	if fs.Changed("interval") {
		if o.interval < time.Millisecond {
			return nil, fmt.Errorf("config: --interval must be at least 1ms, got %s", o.interval)
		}
		cfg.Run.IntervalMs = int(o.interval.Milliseconds())
	}
	if fs.Changed("duration") {
		if o.duration < 0 || (o.duration > 0 && o.duration < time.Millisecond) {
			return nil, fmt.Errorf("config: --duration must be 0 or at least 1ms, got %s", o.duration)
		}
		cfg.Run.DurationMs = int(o.duration.Milliseconds())
	}
	if fs.Changed("out") {
		cfg.Output.Out = o.out
	}
	if fs.Changed("format") {
		cfg.Output.Format = o.format
	}
	if fs.Changed("mqtt-broker") {
		cfg.Output.MQTT.Broker = o.mqttBroker
	}
	if fs.Changed("mqtt-topic") {
		cfg.Output.MQTT.Topic = o.mqttTopic
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	config.Normalize(cfg)

	if cfg.Device.Port == "" && !o.simulate {
		return nil, errors.New("config: --port is required (or --simulate)")
	}
	return cfg, nil
}

// run executes one test with the given profile.
func (o *options) run(cmd *cobra.Command, p mode.Profile) (err error) {
	cfg, err := o.config(cmd.Flags())
	if err != nil {
		return err
	}
	runID := session.NewRunID()

	// ---- device ----
	d, err := openDevice(cfg.Device, o.simulate, o.verbose)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	klog.V(2).InfoS("eload: device ready", "model", d.Model(), "port", cfg.Device.Port, "simulate", o.simulate)

	// ---- output ----
	rec, err := openRecorder(cfg.Output, runID, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rec.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("recorder: close: %w", cerr))
		}
	}()

	// ---- run ----
	ctx := cmd.Context()
	sum, err := session.Run(ctx, d, p, session.Options{
		Interval: cfg.Run.Interval(),
		Duration: cfg.Run.Duration(),
		RunID:    runID,
	}, rec)

	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil && exitCode(err) == exitFailure {
		// interrupted by signal and the input was restored
		klog.InfoS("eload: interrupted", "run", sum.RunID, "samples", sum.Samples)
		return errInterrupted
	}
	if err != nil {
		return err
	}

	klog.V(1).InfoS("eload: done", "run", sum.RunID, "samples", sum.Samples, "elapsed", sum.Elapsed)
	return nil
}
