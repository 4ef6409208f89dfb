// internal/device/device_test.go
package device_test

import (
	"errors"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/corecode/lab/internal/device"
	"github.com/corecode/lab/internal/device/sim"
)

func connect(t *testing.T) (*device.Device, *sim.Load) {
	t.Helper()
	load := sim.New()
	d, err := device.Connect(load)
	assert.NilError(t, err)
	return d, load
}

func TestConnect_SupportedModel(t *testing.T) {
	d, load := connect(t)
	assert.Equal(t, d.Model(), device.ModelM9710)
	assert.Equal(t, len(load.Writes()), 0)
}

func TestConnect_UnsupportedModelIssuesNoWrites(t *testing.T) {
	load := sim.New()
	load.Model = 999

	_, err := device.Connect(load)

	var uerr *device.UnsupportedModelError
	assert.Assert(t, errors.As(err, &uerr), "err=%v", err)
	assert.Equal(t, uerr.Model, uint16(999))
	assert.Equal(t, len(load.Writes()), 0)
}

func TestConnect_TransportFailure(t *testing.T) {
	load := sim.New()
	load.Fault = func(sim.Op, uint16) error { return errors.New("timeout") }

	_, err := device.Connect(load)

	var terr *device.TransportError
	assert.Assert(t, errors.As(err, &terr), "err=%v", err)
}

func TestSetEnabled_WritesCoilThenCommand(t *testing.T) {
	d, load := connect(t)

	assert.NilError(t, d.SetEnabled(true))
	on, err := d.IsEnabled()
	assert.NilError(t, err)
	assert.Assert(t, on)

	assert.NilError(t, d.SetEnabled(false))

	assert.DeepEqual(t, load.Writes(), []sim.Write{
		{Op: sim.OpWriteCoil, Addr: uint16(device.CoilInputEnable), On: true},
		{Op: sim.OpWriteRegisters, Addr: uint16(device.RegCommand), Words: []uint16{uint16(device.CmdOn)}},
		{Op: sim.OpWriteCoil, Addr: uint16(device.CoilInputEnable), On: false},
		{Op: sim.OpWriteRegisters, Addr: uint16(device.RegCommand), Words: []uint16{uint16(device.CmdOff)}},
	})
}

func TestConfigureBatteryTest_WriteOrder(t *testing.T) {
	d, load := connect(t)

	qs, err := d.ConfigureBatteryTest(0.1, 0.8, 0)
	assert.NilError(t, err)
	assert.DeepEqual(t, names(qs), []string{"voltage", "current", "capacity"})

	assert.DeepEqual(t, load.Writes(), []sim.Write{
		{Op: sim.OpWriteRegisters, Addr: uint16(device.RegCurrentSetpoint), Words: device.EncodeFloat32BE(0.1)},
		{Op: sim.OpWriteRegisters, Addr: uint16(device.RegBatteryEndVoltage), Words: device.EncodeFloat32BE(0.8, 0)},
		{Op: sim.OpWriteRegisters, Addr: uint16(device.RegCommand), Words: []uint16{uint16(device.CmdBatteryTest)}},
	})
	assert.Equal(t, load.Mode(), device.CmdBatteryTest)
}

func TestConfigureConstantCurrent_Plain(t *testing.T) {
	d, load := connect(t)

	qs, err := d.ConfigureConstantCurrent(1.25, 0)
	assert.NilError(t, err)
	assert.DeepEqual(t, names(qs), []string{"voltage", "current"})

	w := load.Writes()
	assert.Equal(t, len(w), 2)
	assert.DeepEqual(t, w[1].Words, []uint16{uint16(device.CmdConstantCurrent)})
}

func TestConfigureConstantCurrent_RiseTimeInMilliseconds(t *testing.T) {
	d, load := connect(t)

	_, err := d.ConfigureConstantCurrent(2, 1500*time.Millisecond)
	assert.NilError(t, err)

	w := load.Writes()
	assert.Equal(t, len(w), 3)
	assert.Equal(t, w[1].Addr, uint16(device.RegCurrentRiseTime))
	assert.DeepEqual(t, w[1].Words, device.EncodeFloat32BE(1500))
	assert.DeepEqual(t, w[2].Words, []uint16{uint16(device.CmdSoftConstantCurrent)})
}

func TestConfigureConstantPower(t *testing.T) {
	d, load := connect(t)

	_, err := d.ConfigureConstantPower(5)
	assert.NilError(t, err)

	w := load.Writes()
	assert.Equal(t, len(w), 2)
	assert.Equal(t, w[0].Addr, uint16(device.RegPowerSetpoint))
	assert.Equal(t, load.Mode(), device.CmdConstantPower)
}

func TestConfigure_RefusedWhileEnabled(t *testing.T) {
	d, load := connect(t)
	load.SetEnabled(true)

	_, err := d.ConfigureConstantPower(5)
	assert.Assert(t, errors.Is(err, device.ErrOutputEnabled), "err=%v", err)
	assert.Equal(t, len(load.Writes()), 0)
}

func TestMeasurements(t *testing.T) {
	load := sim.New()
	load.VoltageFunc = func() float64 { return 3.7 }
	d, err := device.Connect(load)
	assert.NilError(t, err)

	v, err := d.Voltage()
	assert.NilError(t, err)
	assert.Equal(t, v, float64(float32(3.7)))

	i, err := d.Current()
	assert.NilError(t, err)
	assert.Equal(t, i, 0.0)
}

func TestMeasurement_TransportFailure(t *testing.T) {
	d, load := connect(t)
	load.Fault = func(op sim.Op, addr uint16) error {
		if op == sim.OpReadRegisters && addr == uint16(device.RegCurrent) {
			return errors.New("crc mismatch")
		}
		return nil
	}

	_, err := d.Current()
	var terr *device.TransportError
	assert.Assert(t, errors.As(err, &terr), "err=%v", err)
	assert.ErrorContains(t, err, "crc mismatch")
}

func TestMeasurement_ShortPayload(t *testing.T) {
	d, err := device.Connect(&shortTransport{Load: sim.New()})
	assert.NilError(t, err)

	_, err = d.Voltage()
	var perr *device.ProtocolError
	assert.Assert(t, errors.As(err, &perr), "err=%v", err)
}

func TestMalformedCoilReplyIsProtocolError(t *testing.T) {
	d, err := device.Connect(&emptyCoilTransport{Load: sim.New()})
	assert.NilError(t, err)

	_, err = d.IsEnabled()
	var perr *device.ProtocolError
	assert.Assert(t, errors.As(err, &perr), "err=%v", err)

	var terr *device.TransportError
	assert.Assert(t, !errors.As(err, &terr), "malformed reply classed as transport: %v", err)

	// setpoints are refused with the same class
	_, err = d.ConfigureConstantPower(5)
	assert.Assert(t, errors.As(err, &perr), "err=%v", err)
}

// emptyCoilTransport answers coil reads with a malformed reply.
type emptyCoilTransport struct {
	*sim.Load
}

func (e *emptyCoilTransport) ReadCoil(addr uint16) (bool, error) {
	return false, &device.ProtocolError{Op: "read coil", Reason: "empty payload"}
}

// shortTransport drops the last word of every multi-word read.
type shortTransport struct {
	*sim.Load
}

func (s *shortTransport) ReadHoldingRegisters(addr, count uint16) ([]uint16, error) {
	words, err := s.Load.ReadHoldingRegisters(addr, count)
	if err != nil || len(words) < 2 {
		return words, err
	}
	return words[:len(words)-1], nil
}

func names(qs []device.Quantity) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Name)
	}
	return out
}
