// cmd/eload/output.go
package main

import (
	"fmt"
	"io"
	"os"

	"k8s.io/klog/v2"

	"github.com/corecode/lab/internal/config"
	"github.com/corecode/lab/internal/device"
	devmodbus "github.com/corecode/lab/internal/device/modbus"
	"github.com/corecode/lab/internal/device/sim"
	"github.com/corecode/lab/internal/recorder"
)

// openDevice connects to the load, or to a simulated one.
func openDevice(c config.DeviceConfig, simulate, trace bool) (*device.Device, error) {
	if simulate {
		return device.Connect(sim.New())
	}

	return devmodbus.Dial(devmodbus.Config{
		Endpoint: c.Port,
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		Parity:   c.Parity,
		StopBits: c.StopBits,
		UnitID:   c.UnitID,
		Timeout:  c.Timeout(),
		RS485:    c.RS485,
		Trace:    trace,
	})
}

// openRecorder builds the file/stdout sink plus the optional MQTT sink.
func openRecorder(c config.OutputConfig, runID string, stdout io.Writer) (recorder.Recorder, error) {
	w := stdout
	var file *os.File
	if c.Out != "-" {
		f, err := os.Create(c.Out)
		if err != nil {
			return nil, fmt.Errorf("recorder: %w", err)
		}
		file, w = f, f
	}

	var primary recorder.Recorder
	switch c.Format {
	case config.FormatPretty:
		primary = recorder.NewPretty(w)
	default:
		primary = recorder.NewCSV(w)
	}
	if file != nil {
		primary = closeWith(primary, file)
	}

	if !c.MQTT.Enabled() {
		return primary, nil
	}

	clientID := c.MQTT.ClientID
	if clientID == "" {
		clientID = "eload-" + runID
	}
	m, err := recorder.DialMQTT(recorder.MQTTConfig{
		Broker:   c.MQTT.Broker,
		Topic:    c.MQTT.Topic,
		ClientID: clientID,
		Username: c.MQTT.Username,
		Password: c.MQTT.Password,
		QoS:      c.MQTT.QoS,
	}, runID)
	if err != nil {
		_ = primary.Close()
		return nil, err
	}
	klog.V(1).InfoS("eload: publishing samples", "broker", c.MQTT.Broker, "topic", c.MQTT.Topic)

	return recorder.Multi(primary, m), nil
}

// fileRecorder closes the underlying file after the recorder.
type fileRecorder struct {
	recorder.Recorder
	f *os.File
}

func closeWith(r recorder.Recorder, f *os.File) recorder.Recorder {
	return &fileRecorder{Recorder: r, f: f}
}

func (r *fileRecorder) Close() error {
	err := r.Recorder.Close()
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}
