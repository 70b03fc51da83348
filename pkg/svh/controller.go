package svh

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/protocol"
	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/transport"
)

// wire is the transport surface the controller drives. Satisfied by
// *transport.Transport; tests substitute a capture fake.
type wire interface {
	Connect(port string) error
	ConnectDevice(dev transport.Device)
	Disconnect()
	IsOpen() bool
	SendPacket(p *protocol.Packet) error
	SentCount() uint32
	ReceivedCount() uint32
	ResetPacketCounts()
}

// channelState is the controller-resident cache for one channel.
type channelState struct {
	enabled          bool
	positionSettings PositionSettings
	currentSettings  CurrentSettings
	feedback         ControllerFeedback
}

// Controller maps channel-addressed operations onto serial packets and
// keeps the last known state of every channel. Inbound packets are routed
// by address on the receive goroutine; all caches are guarded by one mutex
// and read operations copy records out, so readers observe either the old
// or the new whole record, never a torn one.
type Controller struct {
	log  *slog.Logger
	wire wire

	mu         sync.Mutex
	channels   [Dimension]channelState
	enableMask uint16
	lastState  ControllerState
	encoder    EncoderSettings
}

// NewController returns a controller with its own serial transport. No wire
// state exists until Connect.
func NewController(log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{log: log}
	c.wire = transport.New(c.onPacket, log)
	return c
}

// newControllerWithWire is the test seam.
func newControllerWithWire(w wire, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{log: log, wire: w}
}

// Connect opens the serial device and starts receiving.
func (c *Controller) Connect(port string) error { return c.wire.Connect(port) }

// ConnectDevice attaches a pre-opened byte device and starts receiving.
func (c *Controller) ConnectDevice(dev transport.Device) { c.wire.ConnectDevice(dev) }

// Disconnect stops receiving and closes the device.
func (c *Controller) Disconnect() {
	c.wire.Disconnect()
	c.mu.Lock()
	c.enableMask = 0
	for i := range c.channels {
		c.channels[i].enabled = false
	}
	c.mu.Unlock()
}

// IsOpen reports whether the serial device is attached.
func (c *Controller) IsOpen() bool { return c.wire.IsOpen() }

// SentCount returns the transport's transmitted-packet count.
func (c *Controller) SentCount() uint32 { return c.wire.SentCount() }

// ReceivedCount returns the transport's verified-packet count.
func (c *Controller) ReceivedCount() uint32 { return c.wire.ReceivedCount() }

// ResetPacketCounts restarts both packet counters.
func (c *Controller) ResetPacketCounts() { c.wire.ResetPacketCounts() }

func (c *Controller) send(opcode uint8, ch Channel, data []byte) error {
	p := &protocol.Packet{Address: protocol.MakeAddress(opcode, ch.nibble()), Data: data}
	return c.wire.SendPacket(p)
}

// EnableChannel switches on the position and current loops of one channel,
// or of every channel when called with All. The 12 V auxiliary supply bit
// is raised together with the per-channel reset bits.
func (c *Controller) EnableChannel(ch Channel) error {
	if ch != All && !ch.Valid() {
		return fmt.Errorf("enable: channel %d out of range", ch)
	}

	c.mu.Lock()
	if ch == All {
		c.enableMask = 1<<Dimension - 1
		for i := range c.channels {
			c.channels[i].enabled = true
		}
	} else {
		c.enableMask |= 1 << uint(ch)
		c.channels[ch].enabled = true
	}
	state := ControllerState{
		PWMFault:  0x001F,
		PWMOTW:    0x001F,
		PWMReset:  0x0200 | c.enableMask,
		PWMActive: 0x0200 | c.enableMask,
		PosCtrl:   0x0001,
		CurCtrl:   0x0001,
	}
	c.mu.Unlock()

	c.log.Debug("enabling channel", "channel", ch)
	return c.send(OpSetControllerState, ch, payload(&state))
}

// DisableChannel switches off one channel, or every channel with All. The
// auxiliary supply stays up while any channel remains enabled.
func (c *Controller) DisableChannel(ch Channel) error {
	if ch != All && !ch.Valid() {
		return fmt.Errorf("disable: channel %d out of range", ch)
	}

	c.mu.Lock()
	if ch == All {
		c.enableMask = 0
		for i := range c.channels {
			c.channels[i].enabled = false
		}
	} else {
		c.enableMask &^= 1 << uint(ch)
		c.channels[ch].enabled = false
	}
	state := ControllerState{
		PWMFault: 0x001F,
		PWMOTW:   0x001F,
	}
	if c.enableMask != 0 {
		state.PWMReset = 0x0200 | c.enableMask
		state.PWMActive = 0x0200 | c.enableMask
		state.PosCtrl = 0x0001
		state.CurCtrl = 0x0001
	}
	c.mu.Unlock()

	c.log.Debug("disabling channel", "channel", ch)
	return c.send(OpSetControllerState, ch, payload(&state))
}

// IsEnabled returns the cached enable state of a channel.
func (c *Controller) IsEnabled(ch Channel) bool {
	if !ch.Valid() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[ch].enabled
}

// SetTarget commands a position target in ticks. The hardware answers every
// target command with a feedback record on its own.
func (c *Controller) SetTarget(ch Channel, ticks int32) error {
	if !ch.Valid() {
		return fmt.Errorf("set target: channel %d out of range", ch)
	}
	cmd := ControlCommand{Position: ticks}
	return c.send(OpSetControlCommand, ch, payload(&cmd))
}

// SetTargetAll commands a position target for every channel in one frame.
func (c *Controller) SetTargetAll(positions [Dimension]int32) error {
	cmd := ControlCommandAll{Positions: positions}
	return c.send(OpSetControlCommand, All, payload(&cmd))
}

// RequestFeedback emits a zero-payload read; the reply populates the
// channel's feedback cache asynchronously.
func (c *Controller) RequestFeedback(ch Channel) error {
	if ch != All && !ch.Valid() {
		return fmt.Errorf("request feedback: channel %d out of range", ch)
	}
	return c.send(OpGetControlFeedback, ch, nil)
}

// RequestFeedbackAll asks for the telemetry of every channel at once.
func (c *Controller) RequestFeedbackAll() error {
	return c.send(OpGetControlFeedback, All, nil)
}

// GetFeedback returns the cached telemetry snapshot of a channel.
func (c *Controller) GetFeedback(ch Channel) (ControllerFeedback, error) {
	if !ch.Valid() {
		return ControllerFeedback{}, fmt.Errorf("get feedback: channel %d out of range", ch)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[ch].feedback, nil
}

// SetPositionSettings pushes new position controller parameters and caches
// them as the channel's last known settings.
func (c *Controller) SetPositionSettings(ch Channel, s PositionSettings) error {
	if !ch.Valid() {
		return fmt.Errorf("set position settings: channel %d out of range", ch)
	}
	c.mu.Lock()
	c.channels[ch].positionSettings = s
	c.mu.Unlock()
	return c.send(OpSetPositionSettings, ch, payload(&s))
}

// RequestPositionSettings asks the hardware for its active position
// controller parameters; the reply refreshes the cache.
func (c *Controller) RequestPositionSettings(ch Channel) error {
	if !ch.Valid() {
		return fmt.Errorf("request position settings: channel %d out of range", ch)
	}
	return c.send(OpGetPositionSettings, ch, nil)
}

// GetPositionSettings returns the last set or received parameters.
func (c *Controller) GetPositionSettings(ch Channel) (PositionSettings, error) {
	if !ch.Valid() {
		return PositionSettings{}, fmt.Errorf("get position settings: channel %d out of range", ch)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[ch].positionSettings, nil
}

// SetCurrentSettings pushes new current controller parameters and caches
// them. Wrong values can damage the hardware.
func (c *Controller) SetCurrentSettings(ch Channel, s CurrentSettings) error {
	if !ch.Valid() {
		return fmt.Errorf("set current settings: channel %d out of range", ch)
	}
	c.mu.Lock()
	c.channels[ch].currentSettings = s
	c.mu.Unlock()
	return c.send(OpSetCurrentSettings, ch, payload(&s))
}

// RequestCurrentSettings asks the hardware for its active current
// controller parameters.
func (c *Controller) RequestCurrentSettings(ch Channel) error {
	if !ch.Valid() {
		return fmt.Errorf("request current settings: channel %d out of range", ch)
	}
	return c.send(OpGetCurrentSettings, ch, nil)
}

// GetCurrentSettings returns the last set or received parameters.
func (c *Controller) GetCurrentSettings(ch Channel) (CurrentSettings, error) {
	if !ch.Valid() {
		return CurrentSettings{}, fmt.Errorf("get current settings: channel %d out of range", ch)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[ch].currentSettings, nil
}

// RequestControllerState asks for the state register block.
func (c *Controller) RequestControllerState() error {
	return c.send(OpGetControllerState, 0, nil)
}

// LastControllerState returns the most recently received state registers.
func (c *Controller) LastControllerState() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastState
}

// RequestEncoderValues asks for the encoder offsets.
func (c *Controller) RequestEncoderValues() error {
	return c.send(OpGetEncoderValues, 0, nil)
}

// SetEncoderValues pushes new encoder offsets.
func (c *Controller) SetEncoderValues(e EncoderSettings) error {
	c.mu.Lock()
	c.encoder = e
	c.mu.Unlock()
	return c.send(OpSetEncoderValues, 0, payload(&e))
}

// GetEncoderValues returns the last set or received encoder offsets.
func (c *Controller) GetEncoderValues() EncoderSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoder
}

// onPacket routes one inbound packet by its address. It runs on the receive
// goroutine.
func (c *Controller) onPacket(p protocol.Packet, received uint32) {
	opcode := p.Opcode()
	nib := p.ChannelNibble()

	all := nib == allChannelNibble
	ch := Channel(nib)
	if !all && !ch.Valid() {
		c.log.Warn("dropping packet for out-of-range channel",
			"channel", nib, "opcode", opcode, "received", received)
		return
	}

	buf := protocol.NewBuffer(0)
	buf.AppendBytes(p.Data)

	switch opcode {
	case OpGetControlFeedback, OpSetControlCommand:
		// The dual feedback path is mirrored from the hardware: the All
		// reply is structure-of-arrays, the single-channel reply one
		// six-byte record.
		if all {
			var fb ControllerFeedbackAll
			fb.ReadFrom(buf)
			c.mu.Lock()
			for i := range c.channels {
				c.channels[i].feedback = fb.Feedbacks[i]
			}
			c.mu.Unlock()
		} else {
			var fb ControllerFeedback
			fb.ReadFrom(buf)
			c.mu.Lock()
			c.channels[ch].feedback = fb
			c.mu.Unlock()
		}

	case OpGetPositionSettings:
		var s PositionSettings
		s.ReadFrom(buf)
		c.mu.Lock()
		c.channels[ch].positionSettings = s
		c.mu.Unlock()
		c.log.Debug("received position settings", "channel", ch)

	case OpGetCurrentSettings:
		var s CurrentSettings
		s.ReadFrom(buf)
		c.mu.Lock()
		c.channels[ch].currentSettings = s
		c.mu.Unlock()
		c.log.Debug("received current settings", "channel", ch)

	case OpGetControllerState:
		var s ControllerState
		s.ReadFrom(buf)
		c.mu.Lock()
		c.lastState = s
		c.mu.Unlock()
		c.log.Debug("received controller state",
			"fault", s.PWMFault, "otw", s.PWMOTW)

	case OpGetEncoderValues:
		var e EncoderSettings
		e.ReadFrom(buf)
		c.mu.Lock()
		c.encoder = e
		c.mu.Unlock()

	case OpSetPositionSettings, OpSetCurrentSettings,
		OpSetControllerState, OpSetEncoderValues:
		// Write acknowledgements carry nothing to cache.

	default:
		c.log.Warn("dropping packet with unknown opcode",
			"opcode", opcode, "channel", nib, "received", received)
	}
}
