// internal/device/registers.go
package device

import "fmt"

// Register map of the M97xx electronic load family.
// These values are fixed by the firmware and MUST NOT be configurable.

// Register is a holding register start address.
type Register uint16

// ---- SETPOINTS (write) ----

const (
	RegCommand         Register = 0x0A00
	RegCurrentSetpoint Register = 0x0A01 // IFIX, A
	RegVoltageSetpoint Register = 0x0A03 // UFIX, V
	RegPowerSetpoint   Register = 0x0A05 // PFIX, W
	RegResistance      Register = 0x0A07 // RFIX, ohm
	RegCurrentRiseTime Register = 0x0A09 // TMCCS, ms
	RegVoltageRiseTime Register = 0x0A0B // TMCVS

	// RegBatteryEndVoltage holds two floats: end voltage, then start capacity.
	RegBatteryEndVoltage Register = 0x0A2E
)

// ---- MEASUREMENTS (read) ----

const (
	RegBatteryCapacity Register = 0x0A30
	RegVoltage         Register = 0x0B00
	RegCurrent         Register = 0x0B02
	RegModelID         Register = 0x0B06
)

// Words returns the register width in 16-bit words.
func (r Register) Words() uint16 {
	switch r {
	case RegCommand, RegModelID:
		return 1
	case RegBatteryEndVoltage:
		return 4
	default:
		return 2
	}
}

// Coil is a single-bit address.
type Coil uint16

// CoilInputEnable mirrors the On/Off state of the load input.
const CoilInputEnable Coil = 0x0510

// Command is an opcode written to RegCommand. Writing it commits every
// setpoint staged before it.
type Command uint16

const (
	CmdConstantCurrent     Command = 1
	CmdConstantVoltage     Command = 2
	CmdConstantPower       Command = 3
	CmdConstantResistance  Command = 4
	CmdSoftConstantCurrent Command = 20
	CmdBatteryTest         Command = 38
	CmdOn                  Command = 42
	CmdOff                 Command = 43
)

func (c Command) String() string {
	switch c {
	case CmdConstantCurrent:
		return "CC"
	case CmdConstantVoltage:
		return "CV"
	case CmdConstantPower:
		return "CW"
	case CmdConstantResistance:
		return "CR"
	case CmdSoftConstantCurrent:
		return "CC-soft"
	case CmdBatteryTest:
		return "battery-test"
	case CmdOn:
		return "on"
	case CmdOff:
		return "off"
	}
	return fmt.Sprintf("Command(%d)", uint16(c))
}

// Model is a device identity read from RegModelID.
type Model uint16

const (
	ModelM9710 Model = 28
)

func (m Model) String() string {
	switch m {
	case ModelM9710:
		return "M9710"
	}
	return fmt.Sprintf("Model(%d)", uint16(m))
}

// ParseModel maps a raw ModelID onto the supported set.
func ParseModel(raw uint16) (Model, error) {
	switch Model(raw) {
	case ModelM9710:
		return Model(raw), nil
	default:
		return 0, &UnsupportedModelError{Model: raw}
	}
}
