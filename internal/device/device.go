// internal/device/device.go
package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// Transport is the register-level link to one load.
// Framing, CRC and timeouts belong to the implementation.
type Transport interface {
	ReadHoldingRegisters(addr, count uint16) ([]uint16, error)
	WriteRegisters(addr uint16, words []uint16) error
	ReadCoil(addr uint16) (bool, error)
	WriteCoil(addr uint16, on bool) error
	Close() error
}

// Quantity is one named measurement the sampler can poll.
// Every Read is a separate round trip.
type Quantity struct {
	Name string
	Read func() (float64, error)
}

// Device maps semantic load operations onto registers.
// It owns its transport for the whole run.
type Device struct {
	mu    sync.Mutex
	t     Transport
	model Model
}

// Connect validates the device identity. Nothing is written before the
// model is known to be supported.
func Connect(t Transport) (*Device, error) {
	if t == nil {
		return nil, errors.New("device: transport required")
	}

	words, err := t.ReadHoldingRegisters(uint16(RegModelID), RegModelID.Words())
	if err != nil {
		return nil, linkError("read model id", err)
	}
	if len(words) != int(RegModelID.Words()) {
		return nil, &ProtocolError{
			Op:     "read model id",
			Reason: fmt.Sprintf("got %d words, want %d", len(words), RegModelID.Words()),
		}
	}

	model, err := ParseModel(words[0])
	if err != nil {
		return nil, err
	}

	klog.V(2).InfoS("device: connected", "model", model)
	return &Device{t: t, model: model}, nil
}

// Model returns the identity read at connect time.
func (d *Device) Model() Model { return d.model }

// Close releases the transport.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.t.Close()
}

// ---- enable state ----

// SetEnabled switches the load input. The coil and the On/Off command are
// two views of the same state; the firmware only commits the transition
// when both are written.
func (d *Device) SetEnabled(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.t.WriteCoil(uint16(CoilInputEnable), on); err != nil {
		return linkError("write input enable coil", err)
	}

	cmd := CmdOff
	if on {
		cmd = CmdOn
	}
	return d.command(cmd)
}

// IsEnabled reads the input enable coil.
func (d *Device) IsEnabled() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled()
}

// ---- configuration ----

// ConfigureConstantCurrent stages the current setpoint and selects CC mode.
// A non-zero riseTime selects soft-start CC with that ramp.
func (d *Device) ConfigureConstantCurrent(current float64, riseTime time.Duration) ([]Quantity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.requireDisabled(); err != nil {
		return nil, err
	}
	if err := d.writeFloats(RegCurrentSetpoint, current); err != nil {
		return nil, err
	}

	cmd := CmdConstantCurrent
	if riseTime > 0 {
		ms := float64(riseTime) / float64(time.Millisecond)
		if err := d.writeFloats(RegCurrentRiseTime, ms); err != nil {
			return nil, err
		}
		cmd = CmdSoftConstantCurrent
	}
	if err := d.command(cmd); err != nil {
		return nil, err
	}

	return []Quantity{
		{Name: "voltage", Read: d.Voltage},
		{Name: "current", Read: d.Current},
	}, nil
}

// ConfigureConstantPower stages the power setpoint and selects CW mode.
func (d *Device) ConfigureConstantPower(power float64) ([]Quantity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.requireDisabled(); err != nil {
		return nil, err
	}
	if err := d.writeFloats(RegPowerSetpoint, power); err != nil {
		return nil, err
	}
	if err := d.command(CmdConstantPower); err != nil {
		return nil, err
	}

	return []Quantity{
		{Name: "voltage", Read: d.Voltage},
		{Name: "current", Read: d.Current},
	}, nil
}

// ConfigureBatteryTest stages a discharge at current down to endVoltage.
// startCapacity presets the capacity counter (normally 0).
func (d *Device) ConfigureBatteryTest(current, endVoltage, startCapacity float64) ([]Quantity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.requireDisabled(); err != nil {
		return nil, err
	}
	if err := d.writeFloats(RegCurrentSetpoint, current); err != nil {
		return nil, err
	}
	// end voltage and start capacity share one transaction
	if err := d.writeFloats(RegBatteryEndVoltage, endVoltage, startCapacity); err != nil {
		return nil, err
	}
	if err := d.command(CmdBatteryTest); err != nil {
		return nil, err
	}

	return []Quantity{
		{Name: "voltage", Read: d.Voltage},
		{Name: "current", Read: d.Current},
		{Name: "capacity", Read: d.Capacity},
	}, nil
}

// ---- measurements ----

// Voltage reads the measured input voltage in V.
func (d *Device) Voltage() (float64, error) { return d.readFloat(RegVoltage) }

// Current reads the measured input current in A.
func (d *Device) Current() (float64, error) { return d.readFloat(RegCurrent) }

// Capacity reads the battery test capacity counter.
func (d *Device) Capacity() (float64, error) { return d.readFloat(RegBatteryCapacity) }

// ---- internal helpers (caller holds mu where noted) ----

func (d *Device) readFloat(reg Register) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	words, err := d.t.ReadHoldingRegisters(uint16(reg), reg.Words())
	if err != nil {
		return 0, linkError(fmt.Sprintf("read register 0x%04X", uint16(reg)), err)
	}
	if len(words) != int(reg.Words()) {
		return 0, &ProtocolError{
			Op:     fmt.Sprintf("read register 0x%04X", uint16(reg)),
			Reason: fmt.Sprintf("got %d words, want %d", len(words), reg.Words()),
		}
	}

	vals, err := DecodeFloat32BE(words)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// writeFloats issues one multi-register write; caller holds mu.
func (d *Device) writeFloats(reg Register, values ...float64) error {
	words := EncodeFloat32BE(values...)
	if len(words) != int(reg.Words()) {
		return &ProtocolError{
			Op:     fmt.Sprintf("write register 0x%04X", uint16(reg)),
			Reason: fmt.Sprintf("payload is %d words, register holds %d", len(words), reg.Words()),
		}
	}

	klog.V(4).InfoS("device: write setpoint", "register", fmt.Sprintf("0x%04X", uint16(reg)), "values", values)
	if err := d.t.WriteRegisters(uint16(reg), words); err != nil {
		return linkError(fmt.Sprintf("write register 0x%04X", uint16(reg)), err)
	}
	return nil
}

// command writes the command word; caller holds mu.
func (d *Device) command(c Command) error {
	klog.V(4).InfoS("device: command", "cmd", c)
	if err := d.t.WriteRegisters(uint16(RegCommand), []uint16{uint16(c)}); err != nil {
		return linkError("command "+c.String(), err)
	}
	return nil
}

// enabled reads the coil; caller holds mu.
func (d *Device) enabled() (bool, error) {
	on, err := d.t.ReadCoil(uint16(CoilInputEnable))
	if err != nil {
		return false, linkError("read input enable coil", err)
	}
	return on, nil
}

// requireDisabled enforces that setpoints are staged with the input off;
// caller holds mu.
func (d *Device) requireDisabled() error {
	on, err := d.enabled()
	if err != nil {
		return err
	}
	if on {
		return ErrOutputEnabled
	}
	return nil
}
