// internal/device/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
	"k8s.io/klog/v2"

	"github.com/corecode/lab/internal/device"
)

const tcpScheme = "tcp://"

// Client implements device.Transport over one Modbus link.
// Endpoints are serial port paths (RTU) or tcp://host:port gateways.
// It serializes requests; the serial line cannot interleave them.
type Client struct {
	mu      sync.Mutex
	handler handler
	client  modbus.Client
}

// handler is the lifecycle half of a goburrow client handler.
type handler interface {
	Connect() error
	Close() error
}

// Config is the link configuration.
type Config struct {
	Endpoint string
	BaudRate int
	DataBits int
	Parity   string // none|even|odd or N|E|O
	StopBits int
	UnitID   uint8
	Timeout  time.Duration
	RS485    bool
	// Trace logs every frame through klog.
	Trace bool
}

// New opens the link. No request is sent.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus client: endpoint required")
	}

	var h handler
	var cli modbus.Client

	if strings.HasPrefix(cfg.Endpoint, tcpScheme) {
		th := modbus.NewTCPClientHandler(strings.TrimPrefix(cfg.Endpoint, tcpScheme))
		th.Timeout = cfg.Timeout
		th.SlaveId = cfg.UnitID
		if cfg.Trace {
			th.Logger = klog.NewStandardLogger("INFO")
		}
		h, cli = th, modbus.NewClient(th)
	} else {
		rh := modbus.NewRTUClientHandler(cfg.Endpoint)
		rh.BaudRate = cfg.BaudRate
		rh.DataBits = cfg.DataBits
		rh.Parity = parity(cfg.Parity)
		rh.StopBits = cfg.StopBits
		rh.SlaveId = cfg.UnitID
		rh.Timeout = cfg.Timeout
		rh.RS485 = serial.RS485Config{Enabled: cfg.RS485}
		if cfg.Trace {
			rh.Logger = klog.NewStandardLogger("INFO")
		}
		h, cli = rh, modbus.NewClient(rh)
	}

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbus client: connect %s: %w", cfg.Endpoint, err)
	}

	return &Client{handler: h, client: cli}, nil
}

// Dial opens the link and validates the device model behind it.
// The link is closed again when validation fails.
func Dial(cfg Config) (*device.Device, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, &device.TransportError{Op: "open " + cfg.Endpoint, Err: err}
	}

	return connect(c)
}

// connect validates the model behind an open link; the link is closed
// when validation fails.
func connect(c *Client) (*device.Device, error) {
	d, err := device.Connect(c)
	if err != nil {
		if cerr := c.Close(); cerr != nil {
			klog.ErrorS(cerr, "modbus client: close after failed connect")
			err = errors.Join(err, fmt.Errorf("modbus client: close: %w", cerr))
		}
		return nil, err
	}
	return d, nil
}

// Close closes the port or socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// ---- device.Transport ----

func (c *Client) ReadHoldingRegisters(addr, count uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// the word count is judged by the caller against its register table
	res, err := c.client.ReadHoldingRegisters(addr, count)
	if err != nil {
		return nil, err
	}
	return unpackRegisters(res), nil
}

func (c *Client) WriteRegisters(addr uint16, words []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.client.WriteMultipleRegisters(addr, uint16(len(words)), packRegisters(words))
	return err
}

func (c *Client) ReadCoil(addr uint16) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.client.ReadCoils(addr, 1)
	if err != nil {
		return false, err
	}
	if len(res) < 1 {
		return false, &device.ProtocolError{
			Op:     fmt.Sprintf("read coil 0x%04X", addr),
			Reason: "empty payload",
		}
	}
	return res[0]&0x01 != 0, nil
}

func (c *Client) WriteCoil(addr uint16, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var value uint16 // 0x0000 = off
	if on {
		value = 0xFF00
	}
	_, err := c.client.WriteSingleCoil(addr, value)
	return err
}

// ---- helpers ----

// parity converts into the single-letter form the serial driver requires.
func parity(p string) string {
	switch strings.ToLower(p) {
	case "even", "e":
		return "E"
	case "odd", "o":
		return "O"
	default:
		return "N"
	}
}

// Modbus register memory order (BIG-ENDIAN)
func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
