// internal/recorder/mqtt.go
package recorder

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"k8s.io/klog/v2"

	"github.com/corecode/lab/internal/sampler"
)

// MQTTConfig selects the broker and topic for live samples.
type MQTTConfig struct {
	Broker   string // tcp://host:1883
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
}

// publisher is the part of mqtt.Client the recorder uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes every record as a JSON object:
//
//	{"run":"<id>","time":1700000000.5,"voltage":4.2,"current":0.1}
//
// Non-finite measurements are published as null.
type MQTT struct {
	pub     publisher
	topic   string
	qos     byte
	timeout time.Duration
	run     string
	names   []string
}

// DialMQTT connects to the broker. run tags every payload.
func DialMQTT(cfg MQTTConfig, run string) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt recorder: broker required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt recorder: topic required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt recorder: connect %s: timeout", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt recorder: connect %s: %w", cfg.Broker, err)
	}

	klog.V(2).InfoS("mqtt recorder: connected", "broker", cfg.Broker, "topic", cfg.Topic)
	return newMQTT(c, cfg, run), nil
}

func newMQTT(pub publisher, cfg MQTTConfig, run string) *MQTT {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &MQTT{
		pub:     pub,
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
		run:     run,
	}
}

func (m *MQTT) Header(names []string) error {
	m.names = append([]string(nil), names...)
	return nil
}

func (m *MQTT) Write(r sampler.Record) error {
	payload, err := m.payload(r)
	if err != nil {
		return err
	}

	tok := m.pub.Publish(m.topic, m.qos, false, payload)
	if !tok.WaitTimeout(m.timeout) {
		return fmt.Errorf("mqtt recorder: publish %s: timeout", m.topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt recorder: publish %s: %w", m.topic, err)
	}
	return nil
}

func (m *MQTT) Close() error {
	m.pub.Disconnect(250)
	return nil
}

func (m *MQTT) payload(r sampler.Record) ([]byte, error) {
	if len(m.names) != len(r.Values)+1 {
		return nil, errors.New("mqtt recorder: record does not match header")
	}

	obj := make(map[string]interface{}, len(r.Values)+2)
	obj["run"] = m.run
	obj["time"] = float64(r.Time.UnixMilli()) / 1e3
	for i, v := range r.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			// JSON has no NaN/Inf
			obj[m.names[i+1]] = nil
			continue
		}
		obj[m.names[i+1]] = json.Number(strconv.FormatFloat(v, 'f', -1, 32))
	}
	return json.Marshal(obj)
}
