// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device DeviceConfig `yaml:"device"`
	Run    RunConfig    `yaml:"run"`
	Output OutputConfig `yaml:"output"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	// Port is a serial device path or a tcp://host:port gateway.
	Port      string `yaml:"port"`
	BaudRate  int    `yaml:"baudrate"`
	DataBits  int    `yaml:"data_bits"`
	Parity    string `yaml:"parity"` // none|even|odd
	StopBits  int    `yaml:"stop_bits"`
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
	RS485     bool   `yaml:"rs485"`
}

func (d DeviceConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// ---- RUN ----

type RunConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	DurationMs int `yaml:"duration_ms"` // 0 = until the mode ends the test
}

func (r RunConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMs) * time.Millisecond
}

func (r RunConfig) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// ---- OUTPUT ----

type OutputConfig struct {
	Out    string     `yaml:"out"` // "-" = stdout
	Format string     `yaml:"format"`
	MQTT   MQTTConfig `yaml:"mqtt"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      uint8  `yaml:"qos"`
}

func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

// Load reads a YAML file. Unknown keys are rejected.
// The result is neither validated nor normalized.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}
