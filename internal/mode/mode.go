// internal/mode/mode.go
package mode

import (
	"errors"
	"fmt"
	"time"

	"github.com/corecode/lab/internal/device"
	"github.com/corecode/lab/internal/sampler"
)

// Profile configures the load for one kind of test.
// Configure expects the input to be disabled.
type Profile interface {
	Name() string
	Configure(d *device.Device) (Plan, error)
}

// Plan is what the sampler needs for a configured test.
type Plan struct {
	Accessors []sampler.Accessor
	Condition sampler.Condition
}

// ---- BATTERY ----

// Battery discharges at Current until the device stops at EndVoltage.
type Battery struct {
	Current       float64
	EndVoltage    float64
	StartCapacity float64
}

func (Battery) Name() string { return "battery" }

func (b Battery) Configure(d *device.Device) (Plan, error) {
	if b.Current <= 0 {
		return Plan{}, errors.New("battery: current must be > 0")
	}
	if b.EndVoltage < 0 {
		return Plan{}, errors.New("battery: end voltage must be >= 0")
	}
	if b.StartCapacity < 0 {
		return Plan{}, errors.New("battery: start capacity must be >= 0")
	}

	qs, err := d.ConfigureBatteryTest(b.Current, b.EndVoltage, b.StartCapacity)
	if err != nil {
		return Plan{}, fmt.Errorf("battery: %w", err)
	}
	return Plan{Accessors: accessors(qs), Condition: enabled(d)}, nil
}

// ---- CONSTANT CURRENT ----

// ConstantCurrent sinks Current, optionally ramped over RiseTime.
type ConstantCurrent struct {
	Current  float64
	RiseTime time.Duration
}

func (ConstantCurrent) Name() string { return "constant-current" }

func (c ConstantCurrent) Configure(d *device.Device) (Plan, error) {
	if c.Current <= 0 {
		return Plan{}, errors.New("constant-current: current must be > 0")
	}
	if c.RiseTime < 0 {
		return Plan{}, errors.New("constant-current: rise time must be >= 0")
	}

	qs, err := d.ConfigureConstantCurrent(c.Current, c.RiseTime)
	if err != nil {
		return Plan{}, fmt.Errorf("constant-current: %w", err)
	}
	return Plan{Accessors: accessors(qs), Condition: enabled(d)}, nil
}

// ---- CONSTANT POWER ----

// ConstantPower sinks Power. A non-zero EndVoltage also ends the run once
// the measured voltage falls to it.
type ConstantPower struct {
	Power      float64
	EndVoltage float64
}

func (ConstantPower) Name() string { return "constant-power" }

func (c ConstantPower) Configure(d *device.Device) (Plan, error) {
	if c.Power <= 0 {
		return Plan{}, errors.New("constant-power: power must be > 0")
	}
	if c.EndVoltage < 0 {
		return Plan{}, errors.New("constant-power: end voltage must be >= 0")
	}

	qs, err := d.ConfigureConstantPower(c.Power)
	if err != nil {
		return Plan{}, fmt.Errorf("constant-power: %w", err)
	}

	cond := enabled(d)
	if c.EndVoltage > 0 {
		cond = all(cond, above(d, c.EndVoltage))
	}
	return Plan{Accessors: accessors(qs), Condition: cond}, nil
}

// ---- helpers ----

func accessors(qs []device.Quantity) []sampler.Accessor {
	out := make([]sampler.Accessor, len(qs))
	for i, q := range qs {
		out[i] = sampler.Accessor(q)
	}
	return out
}

// enabled keeps the run going while the input is on; the load switches
// itself off on protection trips and at the battery end voltage.
func enabled(d *device.Device) sampler.Condition {
	return d.IsEnabled
}

func above(d *device.Device, endVoltage float64) sampler.Condition {
	return func() (bool, error) {
		v, err := d.Voltage()
		if err != nil {
			return false, err
		}
		return v > endVoltage, nil
	}
}

func all(conds ...sampler.Condition) sampler.Condition {
	return func() (bool, error) {
		for _, c := range conds {
			ok, err := c()
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}
