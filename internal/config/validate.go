// internal/config/validate.go
package config

import (
	"fmt"
	"strings"
)

const (
	FormatCSV    = "csv"
	FormatPretty = "pretty"
)

// Validate checks configuration correctness.
// It performs declarative validation only; zero values mean "use the default".
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// DEVICE LINK
	// ------------------------------------------------------------

	d := cfg.Device
	if d.BaudRate < 0 {
		return fmt.Errorf("device: baudrate must be > 0, got %d", d.BaudRate)
	}
	switch d.DataBits {
	case 0, 5, 6, 7, 8:
	default:
		return fmt.Errorf("device: data_bits must be 5..8, got %d", d.DataBits)
	}
	switch d.StopBits {
	case 0, 1, 2:
	default:
		return fmt.Errorf("device: stop_bits must be 1 or 2, got %d", d.StopBits)
	}
	switch strings.ToLower(d.Parity) {
	case "", "none", "n", "even", "e", "odd", "o":
	default:
		return fmt.Errorf("device: unknown parity %q", d.Parity)
	}
	if d.UnitID > 247 {
		return fmt.Errorf("device: unit_id must be 1..247, got %d", d.UnitID)
	}
	if d.TimeoutMs < 0 {
		return fmt.Errorf("device: timeout_ms must not be negative")
	}

	// ------------------------------------------------------------
	// RUN
	// ------------------------------------------------------------

	if cfg.Run.IntervalMs < 0 {
		return fmt.Errorf("run: interval_ms must be > 0, got %d", cfg.Run.IntervalMs)
	}
	if cfg.Run.DurationMs < 0 {
		return fmt.Errorf("run: duration_ms must not be negative")
	}

	// ------------------------------------------------------------
	// OUTPUT
	// ------------------------------------------------------------

	switch strings.ToLower(cfg.Output.Format) {
	case "", FormatCSV, FormatPretty:
	default:
		return fmt.Errorf("output: unknown format %q (want %s|%s)", cfg.Output.Format, FormatCSV, FormatPretty)
	}

	m := cfg.Output.MQTT
	if !m.Enabled() && m.Topic != "" {
		return fmt.Errorf("output: mqtt topic %q set without broker", m.Topic)
	}
	if m.QoS > 2 {
		return fmt.Errorf("output: mqtt qos must be 0..2, got %d", m.QoS)
	}

	return nil
}
