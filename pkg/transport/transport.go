// Package transport owns the serial byte device. It serialises outbound
// packets onto the wire and runs the receive loop that feeds inbound bytes
// through the framer to a packet callback.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/protocol"
)

// ErrClosed is returned when a send is attempted without an open device.
var ErrClosed = errors.New("transport: serial device is not open")

// Line settings of the SVH hardware controller. The device is opened 8N1;
// anything beyond that is left at the byte device's defaults.
const (
	BaudRate = 921600

	// sendPause is the settle time after each write. The controller
	// firmware drops bytes when frames arrive back to back; 782 us is the
	// wire time of one padded frame at 921600 baud.
	sendPause = 782 * time.Microsecond

	// payloadPadding pads every outbound payload with zeros for alignment;
	// the hardware expects fixed-size frames on the inbound path.
	payloadPadding = 64

	// readTimeout bounds a single blocking read so the receive loop can
	// observe its stop flag.
	readTimeout = 5 * time.Millisecond
)

// Device is the byte-oriented duplex device the transport drives. A serial
// port satisfies it; tests substitute an in-memory pipe.
type Device interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Transport frames packets onto a serial device and decodes the inbound
// stream. Sends are serialised by a mutex; receiving runs on a single
// goroutine started at Connect. Sends and receives proceed concurrently.
type Transport struct {
	log      *slog.Logger
	receiver *protocol.Receiver

	sendMu sync.Mutex
	device Device
	open   atomic.Bool
	sent   atomic.Uint32

	stop chan struct{}
	done chan struct{}
}

// New returns a transport that hands every verified inbound packet to
// callback. The callback runs on the receive goroutine.
func New(callback protocol.PacketCallback, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}
	return &Transport{
		log:      log,
		receiver: protocol.NewReceiver(callback, log),
	}
}

// Connect opens the named serial port and starts the receive loop.
func (t *Transport) Connect(port string) error {
	mode := &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	dev, err := serial.Open(port, mode)
	if err != nil {
		return fmt.Errorf("open serial device %s: %w", port, err)
	}
	t.ConnectDevice(dev)
	t.log.Debug("serial device opened, receive loop started", "port", port)
	return nil
}

// ConnectDevice attaches a pre-opened byte device and starts the receive
// loop. Simulators and tests enter here.
func (t *Transport) ConnectDevice(dev Device) {
	t.Disconnect()

	dev.SetReadTimeout(readTimeout)

	t.sendMu.Lock()
	t.device = dev
	t.sendMu.Unlock()

	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	t.open.Store(true)
	go t.receiveLoop(dev, t.stop, t.done)
}

// Disconnect stops the receive loop, waits for it to finish and closes the
// device. It is safe to call when already disconnected.
func (t *Transport) Disconnect() {
	if !t.open.Swap(false) {
		return
	}
	close(t.stop)
	<-t.done

	t.sendMu.Lock()
	if t.device != nil {
		t.device.Close()
		t.device = nil
	}
	t.sendMu.Unlock()
	t.log.Debug("serial device closed, receive loop terminated")
}

// IsOpen reports whether a device is attached and the receive loop runs.
func (t *Transport) IsOpen() bool { return t.open.Load() }

// SendPacket pads the payload, stamps the rolling index, frames the packet
// and writes it out in one synchronous call. Each successful call counts as
// one packet sent.
func (t *Transport) SendPacket(p *protocol.Packet) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if t.device == nil {
		return ErrClosed
	}

	if len(p.Data) < payloadPadding {
		padded := make([]byte, payloadPadding)
		copy(padded, p.Data)
		p.Data = padded
	}
	p.Index = uint8(t.sent.Load())

	frame := p.Encode()
	for written := 0; written < len(frame); {
		n, err := t.device.Write(frame[written:])
		if err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		written += n
	}
	time.Sleep(sendPause)

	t.sent.Add(1)
	return nil
}

// SentCount returns the number of packets written since the last reset.
func (t *Transport) SentCount() uint32 { return t.sent.Load() }

// ReceivedCount returns the number of verified packets decoded since the
// last reset.
func (t *Transport) ReceivedCount() uint32 { return t.receiver.ReceivedCount() }

// ResetPacketCounts restarts both packet counters. The finger manager does
// this before each connect attempt so its liveness check starts clean.
func (t *Transport) ResetPacketCounts() {
	t.sent.Store(0)
	t.receiver.ResetReceivedCount()
}

// ReceiveStep performs one unit of receive work: a single bounded read on
// the device, feeding whatever arrived through the framer. The receive
// worker drives this on its cadence; a zero count with nil error means the
// read timed out with nothing on the wire. No lock is held while blocked
// on the device, so sends proceed concurrently.
func (t *Transport) ReceiveStep(dev Device) (int, error) {
	buf := make([]byte, 64)
	n, err := dev.Read(buf)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.receiver.FeedBytes(buf[:n])
	}
	return n, nil
}

// receiveLoop is the receive worker: it invokes one receive step per
// iteration until the stop channel closes. Pacing comes from the device's
// read timeout; a read error backs off for one timeout period.
func (t *Transport) receiveLoop(dev Device, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		if _, err := t.ReceiveStep(dev); err != nil {
			select {
			case <-stop:
				return
			default:
			}
			t.log.Debug("serial read error", "err", err)
			time.Sleep(readTimeout)
		}
	}
}
