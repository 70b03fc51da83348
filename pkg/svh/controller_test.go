package svh

import (
	"testing"

	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/protocol"
	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/transport"
)

// captureWire records outbound packets instead of writing to a device.
type captureWire struct {
	packets []protocol.Packet
	open    bool
}

func (w *captureWire) Connect(string) error { w.open = true; return nil }
func (w *captureWire) ConnectDevice(transport.Device) { w.open = true }
func (w *captureWire) Disconnect() { w.open = false }
func (w *captureWire) IsOpen() bool { return w.open }
func (w *captureWire) SentCount() uint32 { return uint32(len(w.packets)) }
func (w *captureWire) ReceivedCount() uint32 { return 0 }
func (w *captureWire) ResetPacketCounts() { w.packets = nil }
func (w *captureWire) SendPacket(p *protocol.Packet) error {
	w.packets = append(w.packets, *p)
	return nil
}

func (w *captureWire) last() protocol.Packet {
	return w.packets[len(w.packets)-1]
}

func TestSetTargetAddressAndPayload(t *testing.T) {
	w := &captureWire{}
	c := newControllerWithWire(w, nil)

	if err := c.SetTarget(Pinky, 1508); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}

	p := w.last()
	if p.Opcode() != OpSetControlCommand {
		t.Errorf("opcode = %d", p.Opcode())
	}
	if p.ChannelNibble() != uint8(Pinky) {
		t.Errorf("channel nibble = %d, want %d", p.ChannelNibble(), Pinky)
	}
	b := protocol.NewBuffer(0)
	b.AppendBytes(p.Data)
	if got := b.ReadInt32(); got != 1508 {
		t.Errorf("target payload = %d, want 1508", got)
	}
}

func TestSetTargetRejectsBadChannel(t *testing.T) {
	w := &captureWire{}
	c := newControllerWithWire(w, nil)

	if err := c.SetTarget(Channel(9), 0); err == nil {
		t.Error("SetTarget(9) succeeded")
	}
	if err := c.SetTarget(All, 0); err == nil {
		t.Error("SetTarget(All) succeeded; use SetTargetAll")
	}
	if len(w.packets) != 0 {
		t.Errorf("rejected targets still sent %d packets", len(w.packets))
	}
}

func TestEnableDisableBroadcast(t *testing.T) {
	w := &captureWire{}
	c := newControllerWithWire(w, nil)

	if err := c.EnableChannel(All); err != nil {
		t.Fatalf("EnableChannel(All): %v", err)
	}
	p := w.last()
	if p.ChannelNibble() != 0xF {
		t.Errorf("broadcast nibble = %#x, want 0xF", p.ChannelNibble())
	}
	for _, ch := range AllChannels() {
		if !c.IsEnabled(ch) {
			t.Errorf("channel %v not enabled after All broadcast", ch)
		}
	}

	var state ControllerState
	b := protocol.NewBuffer(0)
	b.AppendBytes(p.Data)
	state.ReadFrom(b)
	if state.PWMReset != 0x03FF || state.PosCtrl != 1 || state.CurCtrl != 1 {
		t.Errorf("enable state = %+v", state)
	}

	c.DisableChannel(All)
	p = w.last()
	b = protocol.NewBuffer(0)
	b.AppendBytes(p.Data)
	state.ReadFrom(b)
	if state.PWMReset != 0 || state.PosCtrl != 0 || state.CurCtrl != 0 {
		t.Errorf("disable state = %+v", state)
	}
	if c.IsEnabled(Ring) {
		t.Error("Ring still enabled after All disable")
	}
}

func TestEnableSingleKeepsOthers(t *testing.T) {
	w := &captureWire{}
	c := newControllerWithWire(w, nil)

	c.EnableChannel(IndexDistal)
	c.EnableChannel(Pinky)
	c.DisableChannel(IndexDistal)

	if c.IsEnabled(IndexDistal) {
		t.Error("IndexDistal enabled after disable")
	}
	if !c.IsEnabled(Pinky) {
		t.Error("Pinky lost its enable state")
	}

	// The reset mask still carries Pinky's bit and the supply bit.
	var state ControllerState
	b := protocol.NewBuffer(0)
	b.AppendBytes(w.last().Data)
	state.ReadFrom(b)
	want := uint16(0x0200 | 1<<uint(Pinky))
	if state.PWMReset != want {
		t.Errorf("reset mask = %#04x, want %#04x", state.PWMReset, want)
	}
	if state.PosCtrl != 1 {
		t.Error("position loop dropped while a channel is still enabled")
	}
}

func TestInboundSingleFeedbackRouting(t *testing.T) {
	w := &captureWire{}
	c := newControllerWithWire(w, nil)

	fb := ControllerFeedback{Position: 4200, Current: -77}
	c.onPacket(protocol.Packet{
		Address: protocol.MakeAddress(OpGetControlFeedback, uint8(MiddleDistal)),
		Data:    payload(&fb),
	}, 1)

	got, err := c.GetFeedback(MiddleDistal)
	if err != nil {
		t.Fatalf("GetFeedback: %v", err)
	}
	if got != fb {
		t.Errorf("feedback = %+v, want %+v", got, fb)
	}
}

func TestInboundAllFeedbackRouting(t *testing.T) {
	w := &captureWire{}
	c := newControllerWithWire(w, nil)

	var fb ControllerFeedbackAll
	for i := range fb.Feedbacks {
		fb.Feedbacks[i] = ControllerFeedback{Position: int32(1000 * i), Current: int16(10 * i)}
	}
	c.onPacket(protocol.Packet{
		Address: protocol.MakeAddress(OpGetControlFeedback, 0xF),
		Data:    payload(&fb),
	}, 1)

	for _, ch := range AllChannels() {
		got, _ := c.GetFeedback(ch)
		if got != fb.Feedbacks[ch] {
			t.Errorf("channel %v feedback = %+v, want %+v", ch, got, fb.Feedbacks[ch])
		}
	}
}

func TestInboundTargetReplyUpdatesFeedback(t *testing.T) {
	// The hardware reports feedback in response to a target command; the
	// reply reuses the SET_CONTROL_COMMAND opcode.
	w := &captureWire{}
	c := newControllerWithWire(w, nil)

	fb := ControllerFeedback{Position: -31, Current: 140}
	c.onPacket(protocol.Packet{
		Address: protocol.MakeAddress(OpSetControlCommand, uint8(Pinky)),
		Data:    payload(&fb),
	}, 1)

	got, _ := c.GetFeedback(Pinky)
	if got != fb {
		t.Errorf("feedback = %+v, want %+v", got, fb)
	}
}

func TestInboundSettingsRefreshCache(t *testing.T) {
	w := &captureWire{}
	c := newControllerWithWire(w, nil)

	s := CurrentSettings{WMin: -300, WMax: 300, KY: 0.405, DT: 4e-6, KP: 1.0, KI: 10.0, UMin: -255, UMax: 255}
	c.onPacket(protocol.Packet{
		Address: protocol.MakeAddress(OpGetCurrentSettings, uint8(Ring)),
		Data:    payload(&s),
	}, 1)

	got, err := c.GetCurrentSettings(Ring)
	if err != nil {
		t.Fatalf("GetCurrentSettings: %v", err)
	}
	if got != s {
		t.Errorf("settings = %+v, want %+v", got, s)
	}
}

func TestInboundUnknownOpcodeDropped(t *testing.T) {
	w := &captureWire{}
	c := newControllerWithWire(w, nil)

	before, _ := c.GetFeedback(ThumbFlexion)
	c.onPacket(protocol.Packet{
		Address: protocol.MakeAddress(0x0E, uint8(ThumbFlexion)),
		Data:    []byte{1, 2, 3},
	}, 1)
	after, _ := c.GetFeedback(ThumbFlexion)
	if before != after {
		t.Error("unknown opcode mutated channel state")
	}
}

func TestInboundOutOfRangeChannelDropped(t *testing.T) {
	w := &captureWire{}
	c := newControllerWithWire(w, nil)

	fb := ControllerFeedback{Position: 1, Current: 1}
	c.onPacket(protocol.Packet{
		Address: protocol.MakeAddress(OpGetControlFeedback, 0x0B),
		Data:    payload(&fb),
	}, 1)

	for _, ch := range AllChannels() {
		if got, _ := c.GetFeedback(ch); got != (ControllerFeedback{}) {
			t.Errorf("channel %v mutated by out-of-range packet", ch)
		}
	}
}

func TestSetSettingsCachesLocally(t *testing.T) {
	w := &captureWire{}
	c := newControllerWithWire(w, nil)

	s := PositionSettings{WMin: -1e6, WMax: 1e6, DWMax: 45e3, KY: 1, DT: 1e-3, KP: 0.5}
	if err := c.SetPositionSettings(IndexProximal, s); err != nil {
		t.Fatalf("SetPositionSettings: %v", err)
	}
	got, _ := c.GetPositionSettings(IndexProximal)
	if got != s {
		t.Errorf("cached settings = %+v, want %+v", got, s)
	}
	last := w.last()
	if last.Opcode() != OpSetPositionSettings {
		t.Errorf("opcode = %d", last.Opcode())
	}
}
