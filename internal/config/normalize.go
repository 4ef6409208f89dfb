// internal/config/normalize.go
package config

import "strings"

const (
	DefaultBaudRate   = 9600
	DefaultDataBits   = 8
	DefaultStopBits   = 1
	DefaultParity     = "none"
	DefaultUnitID     = 1
	DefaultTimeoutMs  = 1000
	DefaultIntervalMs = 1000
	DefaultOut        = "-"
	DefaultFormat     = FormatCSV
	DefaultMQTTTopic  = "eload/samples"
)

// Normalize fills defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ---- device ----
	d := &cfg.Device
	if d.BaudRate == 0 {
		d.BaudRate = DefaultBaudRate
	}
	if d.DataBits == 0 {
		d.DataBits = DefaultDataBits
	}
	if d.StopBits == 0 {
		d.StopBits = DefaultStopBits
	}
	d.Parity = strings.ToLower(d.Parity)
	if d.Parity == "" {
		d.Parity = DefaultParity
	}
	if d.UnitID == 0 {
		d.UnitID = DefaultUnitID
	}
	if d.TimeoutMs == 0 {
		d.TimeoutMs = DefaultTimeoutMs
	}

	// ---- run ----
	if cfg.Run.IntervalMs == 0 {
		cfg.Run.IntervalMs = DefaultIntervalMs
	}

	// ---- output ----
	o := &cfg.Output
	if o.Out == "" {
		o.Out = DefaultOut
	}
	o.Format = strings.ToLower(o.Format)
	if o.Format == "" {
		o.Format = DefaultFormat
	}
	if o.MQTT.Enabled() && o.MQTT.Topic == "" {
		o.MQTT.Topic = DefaultMQTTTopic
	}
}
