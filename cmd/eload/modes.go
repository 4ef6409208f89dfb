// cmd/eload/modes.go
package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/corecode/lab/internal/mode"
)

// ---- battery ----

func newBatteryCommand(o *options) *cobra.Command {
	var p mode.Battery

	cmd := &cobra.Command{
		Use:   "battery",
		Short: "Discharge a battery at constant current down to an end voltage",
		Example: `  eload -p /dev/ttyUSB0 battery --current 0.5 --end-voltage 3.0
  eload -p /dev/ttyUSB0 -o cell1.csv battery --current 1 --end-voltage 2.8 --start-capacity 0.2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, p)
		},
	}

	fs := cmd.Flags()
	fs.Float64VarP(&p.Current, "current", "c", 0, "discharge current (A)")
	fs.Float64VarP(&p.EndVoltage, "end-voltage", "e", 0, "stop voltage (V)")
	fs.Float64Var(&p.StartCapacity, "start-capacity", 0, "capacity already drawn (Ah)")
	_ = cmd.MarkFlagRequired("current")
	_ = cmd.MarkFlagRequired("end-voltage")
	return cmd
}

// ---- constant current ----

func newConstantCurrentCommand(o *options) *cobra.Command {
	var current float64
	var riseTime time.Duration

	cmd := &cobra.Command{
		Use:     "cc",
		Aliases: []string{"constant-current"},
		Short:   "Sink a constant current until stopped",
		Example: `  eload -p /dev/ttyUSB0 -d 10m cc --current 2 --risetime 500ms`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, mode.ConstantCurrent{Current: current, RiseTime: riseTime})
		},
	}

	fs := cmd.Flags()
	fs.Float64VarP(&current, "current", "c", 0, "current (A)")
	fs.DurationVar(&riseTime, "risetime", 0, "ramp time to the setpoint (0 = device default)")
	_ = cmd.MarkFlagRequired("current")
	return cmd
}

// ---- constant power ----

func newConstantPowerCommand(o *options) *cobra.Command {
	var p mode.ConstantPower

	cmd := &cobra.Command{
		Use:     "cw",
		Aliases: []string{"constant-power"},
		Short:   "Sink a constant power, optionally until an end voltage",
		Example: `  eload -p /dev/ttyUSB0 cw --power 5 --end-voltage 3.0`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, p)
		},
	}

	fs := cmd.Flags()
	fs.Float64VarP(&p.Power, "power", "w", 0, "power (W)")
	fs.Float64VarP(&p.EndVoltage, "end-voltage", "e", 0, "stop voltage (V), 0 = never")
	_ = cmd.MarkFlagRequired("power")
	return cmd
}
