package transport

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/protocol"
)

// pipeDevice is an in-memory stand-in for the serial port. Writes land in a
// host-visible buffer; Push makes bytes available to Read.
type pipeDevice struct {
	mu      sync.Mutex
	inbound []byte
	written []byte
	timeout time.Duration
	closed  bool
}

func newPipeDevice() *pipeDevice {
	return &pipeDevice{timeout: time.Millisecond}
}

func (d *pipeDevice) Push(p []byte) {
	d.mu.Lock()
	d.inbound = append(d.inbound, p...)
	d.mu.Unlock()
}

func (d *pipeDevice) Read(p []byte) (int, error) {
	deadline := time.Now().Add(d.timeout)
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.inbound) == 0 {
		if d.closed {
			return 0, io.EOF
		}
		if time.Now().After(deadline) {
			return 0, nil // serial read timeout semantics
		}
		d.mu.Unlock()
		time.Sleep(100 * time.Microsecond)
		d.mu.Lock()
	}
	n := copy(p, d.inbound)
	d.inbound = d.inbound[n:]
	return n, nil
}

func (d *pipeDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, io.ErrClosedPipe
	}
	d.written = append(d.written, p...)
	return len(p), nil
}

func (d *pipeDevice) Written() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.written...)
}

func (d *pipeDevice) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	d.timeout = t
	d.mu.Unlock()
	return nil
}

func (d *pipeDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func TestSendPacketPadsAndCounts(t *testing.T) {
	dev := newPipeDevice()
	tr := New(nil, nil)
	tr.ConnectDevice(dev)
	defer tr.Disconnect()

	p := &protocol.Packet{Address: protocol.MakeAddress(1, 3), Data: []byte{0x01, 0x02}}
	if err := tr.SendPacket(p); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}

	frame := dev.Written()
	wantLen := 64 + protocol.AppendixSize
	if len(frame) != wantLen {
		t.Fatalf("frame length = %d, want %d (64-byte padded payload)", len(frame), wantLen)
	}
	if frame[0] != protocol.Header1 || frame[1] != protocol.Header2 {
		t.Errorf("header = % x", frame[:2])
	}
	if frame[2] != 0 {
		t.Errorf("first packet index = %d, want 0", frame[2])
	}
	if got := uint16(frame[4]) | uint16(frame[5])<<8; got != 64 {
		t.Errorf("length field = %d, want 64", got)
	}
	if tr.SentCount() != 1 {
		t.Errorf("SentCount() = %d, want 1", tr.SentCount())
	}

	// Index advances with the transmit counter.
	if err := tr.SendPacket(p); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	frame = dev.Written()[wantLen:]
	if frame[2] != 1 {
		t.Errorf("second packet index = %d, want 1", frame[2])
	}
}

func TestReceiveLoopDeliversPackets(t *testing.T) {
	dev := newPipeDevice()

	got := make(chan protocol.Packet, 4)
	tr := New(func(p protocol.Packet, _ uint32) { got <- p }, nil)
	tr.ConnectDevice(dev)
	defer tr.Disconnect()

	sent := protocol.Packet{Index: 5, Address: protocol.MakeAddress(0, 0xF), Data: []byte{9, 9}}
	dev.Push(sent.Encode())

	select {
	case p := <-got:
		if p.Address != sent.Address {
			t.Errorf("address = %#x, want %#x", p.Address, sent.Address)
		}
		if tr.ReceivedCount() != 1 {
			t.Errorf("ReceivedCount() = %d, want 1", tr.ReceivedCount())
		}
	case <-time.After(time.Second):
		t.Fatal("receive loop delivered nothing within 1s")
	}
}

func TestReceiveStepDrivesFramer(t *testing.T) {
	// Drive the framer by hand, the way the receive worker does, without
	// starting the loop.
	dev := newPipeDevice()

	var got []protocol.Packet
	tr := New(func(p protocol.Packet, _ uint32) { got = append(got, p) }, nil)

	sent := protocol.Packet{Index: 1, Address: protocol.MakeAddress(2, 6), Data: []byte{0x42}}
	dev.Push(sent.Encode())

	// A frame may arrive split over several steps.
	for i := 0; i < 10 && len(got) == 0; i++ {
		if _, err := tr.ReceiveStep(dev); err != nil {
			t.Fatalf("ReceiveStep: %v", err)
		}
	}
	if len(got) != 1 {
		t.Fatalf("stepped receive produced %d packets, want 1", len(got))
	}
	if got[0].Address != sent.Address {
		t.Errorf("address = %#x, want %#x", got[0].Address, sent.Address)
	}

	// An idle step reports zero bytes and no error.
	n, err := tr.ReceiveStep(dev)
	if n != 0 || err != nil {
		t.Errorf("idle ReceiveStep = (%d, %v), want (0, nil)", n, err)
	}
}

func TestSendWithoutDevice(t *testing.T) {
	tr := New(nil, nil)
	err := tr.SendPacket(&protocol.Packet{})
	if err == nil {
		t.Fatal("SendPacket on closed transport succeeded")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	tr := New(nil, nil)
	tr.ConnectDevice(newPipeDevice())
	tr.Disconnect()
	tr.Disconnect()
	if tr.IsOpen() {
		t.Error("IsOpen() after Disconnect")
	}
}

func TestResetPacketCounts(t *testing.T) {
	dev := newPipeDevice()
	tr := New(nil, nil)
	tr.ConnectDevice(dev)
	defer tr.Disconnect()

	tr.SendPacket(&protocol.Packet{})
	tr.ResetPacketCounts()
	if tr.SentCount() != 0 || tr.ReceivedCount() != 0 {
		t.Errorf("counts after reset = %d/%d, want 0/0", tr.SentCount(), tr.ReceivedCount())
	}
}
