// internal/device/sim/sim.go
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/corecode/lab/internal/device"
)

// Op names a transport operation in the write log and in fault hooks.
type Op string

const (
	OpReadRegisters  Op = "read-registers"
	OpWriteRegisters Op = "write-registers"
	OpReadCoil       Op = "read-coil"
	OpWriteCoil      Op = "write-coil"
)

// Write is one mutating transaction seen by the simulated load.
type Write struct {
	Op    Op
	Addr  uint16
	Words []uint16 // OpWriteRegisters
	On    bool     // OpWriteCoil
}

// Battery is the cell attached to the simulated input.
type Battery struct {
	FullVoltage  float64 // open-circuit voltage when full, V
	EmptyVoltage float64 // open-circuit voltage when empty, V
	CapacityAh   float64
	Resistance   float64 // internal resistance, ohm
}

// DefaultBattery is a single lithium cell.
var DefaultBattery = Battery{
	FullVoltage:  4.2,
	EmptyVoltage: 3.0,
	CapacityAh:   2.0,
	Resistance:   0.05,
}

// Load is an in-memory M97xx electronic load implementing
// device.Transport. Safe for use by one caller at a time, like the wire.
type Load struct {
	mu sync.Mutex

	// Model is served from the ModelID register.
	Model uint16
	// Now drives discharge integration.
	Now func() time.Time
	// Battery is discharged while the input is on.
	Battery Battery
	// VoltageFunc, when set, replaces the battery model for voltage reads.
	VoltageFunc func() float64
	// Fault, when set, may fail any transaction before it takes effect.
	Fault func(op Op, addr uint16) error

	regs   map[uint16]uint16
	on     bool
	mode   device.Command
	drawn  float64 // Ah since last battery test start
	last   time.Time
	writes []Write
	closed bool
}

// New returns a disabled M9710 with a full DefaultBattery.
func New() *Load {
	return &Load{
		Model:   uint16(device.ModelM9710),
		Now:     time.Now,
		Battery: DefaultBattery,
		regs:    make(map[uint16]uint16),
	}
}

// ---- device.Transport ----

func (l *Load) ReadHoldingRegisters(addr, count uint16) ([]uint16, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.check(OpReadRegisters, addr); err != nil {
		return nil, err
	}
	l.advance()

	out := make([]uint16, count)
	for i := range out {
		out[i] = l.word(addr + uint16(i))
	}
	return out, nil
}

func (l *Load) WriteRegisters(addr uint16, words []uint16) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.check(OpWriteRegisters, addr); err != nil {
		return err
	}
	if len(words) == 0 {
		return errors.New("sim: empty register write")
	}
	l.advance()
	l.writes = append(l.writes, Write{Op: OpWriteRegisters, Addr: addr, Words: append([]uint16(nil), words...)})

	if addr == uint16(device.RegCommand) {
		l.execute(device.Command(words[0]))
		return nil
	}
	for i, w := range words {
		l.regs[addr+uint16(i)] = w
	}
	return nil
}

func (l *Load) ReadCoil(addr uint16) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.check(OpReadCoil, addr); err != nil {
		return false, err
	}
	if addr != uint16(device.CoilInputEnable) {
		return false, fmt.Errorf("sim: illegal coil address 0x%04X", addr)
	}
	l.advance()
	return l.on, nil
}

func (l *Load) WriteCoil(addr uint16, on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.check(OpWriteCoil, addr); err != nil {
		return err
	}
	if addr != uint16(device.CoilInputEnable) {
		return fmt.Errorf("sim: illegal coil address 0x%04X", addr)
	}
	l.advance()
	l.writes = append(l.writes, Write{Op: OpWriteCoil, Addr: addr, On: on})
	l.on = on
	return nil
}

func (l *Load) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// ---- inspection ----

// Writes returns every mutating transaction in order.
func (l *Load) Writes() []Write {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Write(nil), l.writes...)
}

// Enabled reports the input state without going through the transport.
func (l *Load) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Mode is the last operating mode command executed.
func (l *Load) Mode() device.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// Closed reports whether Close was called.
func (l *Load) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// SetEnabled forces the input state, bypassing the write log.
func (l *Load) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advance()
	l.on = on
}

// ---- model ----

func (l *Load) check(op Op, addr uint16) error {
	if l.closed {
		return errors.New("sim: transport closed")
	}
	if l.Fault != nil {
		return l.Fault(op, addr)
	}
	return nil
}

func (l *Load) execute(c device.Command) {
	switch c {
	case device.CmdOn:
		l.on = true
	case device.CmdOff:
		l.on = false
	case device.CmdBatteryTest:
		l.mode = c
		l.drawn = 0
	default:
		l.mode = c
	}
}

// advance integrates discharge since the previous transaction.
func (l *Load) advance() {
	now := l.Now()
	if l.last.IsZero() {
		l.last = now
		return
	}
	dt := now.Sub(l.last).Hours()
	l.last = now
	if !l.on || dt <= 0 {
		return
	}

	l.drawn += l.current() * dt

	if l.mode == device.CmdBatteryTest && l.voltage() <= l.float(device.RegBatteryEndVoltage) {
		l.on = false
	}
}

func (l *Load) openVoltage() float64 {
	b := l.Battery
	if b.CapacityAh <= 0 {
		return b.FullVoltage
	}
	soc := 1 - l.drawn/b.CapacityAh
	if soc < 0 {
		soc = 0
	}
	return b.EmptyVoltage + (b.FullVoltage-b.EmptyVoltage)*soc
}

func (l *Load) current() float64 {
	if !l.on {
		return 0
	}
	switch l.mode {
	case device.CmdConstantCurrent, device.CmdSoftConstantCurrent, device.CmdBatteryTest:
		return l.float(device.RegCurrentSetpoint)
	case device.CmdConstantPower:
		v := l.openVoltage()
		if v <= 0 {
			return 0
		}
		return l.float(device.RegPowerSetpoint) / v
	}
	return 0
}

func (l *Load) voltage() float64 {
	if l.VoltageFunc != nil {
		return l.VoltageFunc()
	}
	return l.openVoltage() - l.current()*l.Battery.Resistance
}

func (l *Load) capacity() float64 {
	start := 0.0
	if vals, err := device.DecodeFloat32BE(l.span(uint16(device.RegBatteryEndVoltage)+2, 2)); err == nil {
		start = vals[0]
	}
	return start + l.drawn
}

// float decodes a staged single-float setpoint.
func (l *Load) float(reg device.Register) float64 {
	vals, err := device.DecodeFloat32BE(l.span(uint16(reg), 2))
	if err != nil {
		return 0
	}
	return vals[0]
}

func (l *Load) span(addr, n uint16) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = l.regs[addr+uint16(i)]
	}
	return out
}

// word serves one register address, computing measurements on demand.
func (l *Load) word(addr uint16) uint16 {
	measured := func(base device.Register, v float64) (uint16, bool) {
		if addr != uint16(base) && addr != uint16(base)+1 {
			return 0, false
		}
		return device.EncodeFloat32BE(v)[addr-uint16(base)], true
	}

	if addr == uint16(device.RegModelID) {
		return l.Model
	}
	if w, ok := measured(device.RegVoltage, l.voltage()); ok {
		return w
	}
	if w, ok := measured(device.RegCurrent, l.current()); ok {
		return w
	}
	if w, ok := measured(device.RegBatteryCapacity, l.capacity()); ok {
		return w
	}
	return l.regs[addr]
}
