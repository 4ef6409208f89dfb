// internal/device/modbus/client_test.go
package modbus

import (
	"errors"
	"testing"

	"github.com/goburrow/modbus"

	"github.com/corecode/lab/internal/device"
)

// ---- fakes ----

// fakeClient answers from a register file; methods the Client never
// calls are left to the embedded nil interface.
type fakeClient struct {
	modbus.Client

	regs map[uint16]uint16
	coil bool

	// short, when set, truncates every holding register reply to this many bytes
	short    int
	coilResp []byte

	lastQuantity uint16
	lastPayload  []byte
	lastCoil     uint16
}

func newFakeClient(model uint16) *fakeClient {
	return &fakeClient{regs: map[uint16]uint16{uint16(device.RegModelID): model}}
}

func (f *fakeClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	words := make([]uint16, quantity)
	for i := range words {
		words[i] = f.regs[address+uint16(i)]
	}
	res := packRegisters(words)
	if f.short > 0 && f.short < len(res) {
		res = res[:f.short]
	}
	return res, nil
}

func (f *fakeClient) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	f.lastQuantity = quantity
	f.lastPayload = append([]byte(nil), value...)
	for i, w := range unpackRegisters(value) {
		f.regs[address+uint16(i)] = w
	}
	return []byte{byte(address >> 8), byte(address), byte(quantity >> 8), byte(quantity)}, nil
}

func (f *fakeClient) ReadCoils(address, quantity uint16) ([]byte, error) {
	if f.coilResp != nil {
		return f.coilResp, nil
	}
	if f.coil {
		// high bits belong to coils that were not asked for
		return []byte{0xFF}, nil
	}
	return []byte{0xFE}, nil
}

func (f *fakeClient) WriteSingleCoil(address, value uint16) ([]byte, error) {
	f.lastCoil = value
	f.coil = value == 0xFF00
	return []byte{byte(address >> 8), byte(address), byte(value >> 8), byte(value)}, nil
}

type fakeHandler struct {
	closed   bool
	closeErr error
}

func (h *fakeHandler) Connect() error { return nil }

func (h *fakeHandler) Close() error {
	h.closed = true
	return h.closeErr
}

func newTestClient(fc *fakeClient) (*Client, *fakeHandler) {
	h := &fakeHandler{}
	return &Client{handler: h, client: fc}, h
}

// ---- helpers ----

func TestPackRegisters_BigEndian(t *testing.T) {
	got := packRegisters([]uint16{0x3F80, 0x0001})
	want := []byte{0x3F, 0x80, 0x00, 0x01}

	if len(got) != len(want) {
		t.Fatalf("expected %d bytes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got=0x%02x want=0x%02x", i, got[i], want[i])
		}
	}
}

func TestUnpackRegisters_InvertsPack(t *testing.T) {
	words := device.EncodeFloat32BE(4.2, 0.8)
	got := unpackRegisters(packRegisters(words))

	if len(got) != len(words) {
		t.Fatalf("expected %d words, got %d", len(words), len(got))
	}
	for i := range words {
		if got[i] != words[i] {
			t.Fatalf("word %d: got=0x%04x want=0x%04x", i, got[i], words[i])
		}
	}
}

func TestParity(t *testing.T) {
	cases := map[string]string{
		"":     "N",
		"none": "N",
		"N":    "N",
		"even": "E",
		"E":    "E",
		"odd":  "O",
		"o":    "O",
	}
	for in, want := range cases {
		if got := parity(in); got != want {
			t.Fatalf("parity(%q): got=%q want=%q", in, got, want)
		}
	}
}

func TestNew_EndpointRequired(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

// ---- transport ----

func TestWriteRegisters_QuantityAndBytes(t *testing.T) {
	fc := newFakeClient(uint16(device.ModelM9710))
	c, _ := newTestClient(fc)

	if err := c.WriteRegisters(0x0A01, []uint16{0x4040, 0x0000}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if fc.lastQuantity != 2 {
		t.Fatalf("expected quantity 2, got %d", fc.lastQuantity)
	}
	want := []byte{0x40, 0x40, 0x00, 0x00}
	if string(fc.lastPayload) != string(want) {
		t.Fatalf("payload: got=% x want=% x", fc.lastPayload, want)
	}
}

func TestWriteCoil_Encoding(t *testing.T) {
	fc := newFakeClient(uint16(device.ModelM9710))
	c, _ := newTestClient(fc)

	if err := c.WriteCoil(0x0510, true); err != nil {
		t.Fatalf("write: %v", err)
	}
	if fc.lastCoil != 0xFF00 {
		t.Fatalf("on: got=0x%04x want=0xff00", fc.lastCoil)
	}
	if err := c.WriteCoil(0x0510, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if fc.lastCoil != 0x0000 {
		t.Fatalf("off: got=0x%04x want=0x0000", fc.lastCoil)
	}
}

func TestReadCoil_LowBitOnly(t *testing.T) {
	fc := newFakeClient(uint16(device.ModelM9710))
	c, _ := newTestClient(fc)

	on, err := c.ReadCoil(0x0510)
	if err != nil || on {
		t.Fatalf("expected off, got on=%v err=%v", on, err)
	}

	fc.coil = true
	on, err = c.ReadCoil(0x0510)
	if err != nil || !on {
		t.Fatalf("expected on, got on=%v err=%v", on, err)
	}
}

func TestReadCoil_EmptyReplyIsProtocolError(t *testing.T) {
	fc := newFakeClient(uint16(device.ModelM9710))
	fc.coilResp = []byte{}
	c, _ := newTestClient(fc)

	_, err := c.ReadCoil(0x0510)
	var perr *device.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestShortRegisterReply_IsProtocolError(t *testing.T) {
	fc := newFakeClient(uint16(device.ModelM9710))
	c, _ := newTestClient(fc)

	d, err := connect(c)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	// one word where the measurement needs two
	fc.short = 2
	_, err = d.Voltage()

	var perr *device.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	var terr *device.TransportError
	if errors.As(err, &terr) {
		t.Fatalf("malformed reply classed as transport error: %v", err)
	}
}

func TestDeviceRoundTripThroughClient(t *testing.T) {
	fc := newFakeClient(uint16(device.ModelM9710))
	c, h := newTestClient(fc)

	d, err := connect(c)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := d.SetEnabled(true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	on, err := d.IsEnabled()
	if err != nil || !on {
		t.Fatalf("expected enabled, got on=%v err=%v", on, err)
	}
	if got := fc.regs[uint16(device.RegCommand)]; got != uint16(device.CmdOn) {
		t.Fatalf("command register: got=0x%04x want=0x%04x", got, uint16(device.CmdOn))
	}

	fc.regs[uint16(device.RegVoltage)], fc.regs[uint16(device.RegVoltage)+1] = 0x4086, 0x6666 // 4.2
	v, err := d.Voltage()
	if err != nil || v < 4.19 || v > 4.21 {
		t.Fatalf("voltage: got=%v err=%v", v, err)
	}

	if err := d.Close(); err != nil || !h.closed {
		t.Fatalf("close: err=%v closed=%v", err, h.closed)
	}
}

// ---- connect ----

func TestConnect_UnsupportedModelClosesLink(t *testing.T) {
	c, h := newTestClient(newFakeClient(999))

	_, err := connect(c)

	var uerr *device.UnsupportedModelError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected unsupported model error, got %v", err)
	}
	if !h.closed {
		t.Fatalf("link left open after failed connect")
	}
}

func TestConnect_CloseErrorIsJoined(t *testing.T) {
	c, h := newTestClient(newFakeClient(999))
	h.closeErr = errors.New("port busy")

	_, err := connect(c)

	var uerr *device.UnsupportedModelError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected unsupported model error, got %v", err)
	}
	if !errors.Is(err, h.closeErr) {
		t.Fatalf("close error dropped: %v", err)
	}
}
