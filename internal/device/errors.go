// internal/device/errors.go
package device

import (
	"errors"
	"fmt"
)

// ErrOutputEnabled is returned by the Configure* operations when the load
// input is energized. Setpoints are only staged while the input is off.
var ErrOutputEnabled = errors.New("device: input enabled, refusing to stage setpoints")

// TransportError wraps any failure of the underlying link (I/O, timeout,
// Modbus exception). It is never retried here.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("device: transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a register payload of the wrong shape.
// It means the device and this table disagree; it is fatal.
type ProtocolError struct {
	Op     string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Op == "" {
		return "device: protocol: " + e.Reason
	}
	return fmt.Sprintf("device: protocol: %s: %s", e.Op, e.Reason)
}

// UnsupportedModelError is returned at connect time for a ModelID outside
// the known set. Nothing has been written to the device when it occurs.
type UnsupportedModelError struct {
	Model uint16
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("device: unknown device model: %d", e.Model)
}

// linkError classifies a Transport failure. A *ProtocolError raised by the
// transport (malformed reply) keeps its class; anything else is a
// *TransportError.
func linkError(op string, err error) error {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr
	}
	return &TransportError{Op: op, Err: err}
}
