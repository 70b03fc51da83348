package svh

import (
	"testing"

	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/protocol"
)

func TestFeedbackAllWireLayoutIsSoA(t *testing.T) {
	var fb ControllerFeedbackAll
	for i := range fb.Feedbacks {
		fb.Feedbacks[i] = ControllerFeedback{Position: int32(i + 1), Current: int16(-i)}
	}

	data := payload(&fb)
	if len(data) != int(Dimension)*6 {
		t.Fatalf("payload length = %d, want %d", len(data), int(Dimension)*6)
	}

	// Nine positions first, then nine currents.
	b := protocol.NewBuffer(0)
	b.AppendBytes(data)
	for i := 0; i < int(Dimension); i++ {
		if got := b.ReadInt32(); got != int32(i+1) {
			t.Errorf("position[%d] = %d, want %d", i, got, i+1)
		}
	}
	for i := 0; i < int(Dimension); i++ {
		if got := b.ReadInt16(); got != int16(-i) {
			t.Errorf("current[%d] = %d, want %d", i, got, -i)
		}
	}

	var back ControllerFeedbackAll
	rb := protocol.NewBuffer(0)
	rb.AppendBytes(data)
	back.ReadFrom(rb)
	if back != fb {
		t.Errorf("round trip mismatch: %+v != %+v", back, fb)
	}
}

func TestPositionSettingsRoundTrip(t *testing.T) {
	s := PositionSettings{
		WMin: -1.0e6, WMax: 1.0e6, DWMax: 65.0e3, KY: 1.0, DT: 1e-3,
		IMin: -500, IMax: 500, KP: 0.5, KI: 0.0, KD: 400,
	}
	data := payload(&s)
	if len(data) != 40 {
		t.Fatalf("payload length = %d, want 40", len(data))
	}

	var back PositionSettings
	b := protocol.NewBuffer(0)
	b.AppendBytes(data)
	back.ReadFrom(b)
	if back != s {
		t.Errorf("round trip mismatch: %+v != %+v", back, s)
	}
}

func TestControllerStateWireLayout(t *testing.T) {
	s := ControllerState{
		PWMFault:  0x001F,
		PWMOTW:    0x001F,
		PWMReset:  0x03FF,
		PWMActive: 0x03FF,
		PosCtrl:   0x0001,
		CurCtrl:   0x0001,
	}
	data := payload(&s)
	want := []byte{
		0x1F, 0x00, 0x1F, 0x00,
		0xFF, 0x03, 0xFF, 0x03,
		0x01, 0x00, 0x01, 0x00,
	}
	if len(data) != len(want) {
		t.Fatalf("payload length = %d, want %d", len(data), len(want))
	}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("byte[%d] = %#02x, want %#02x", i, data[i], want[i])
		}
	}
}

func TestChannelNames(t *testing.T) {
	tests := []struct {
		ch   Channel
		want string
	}{
		{ThumbFlexion, "thumb_flexion"},
		{FingerSpread, "finger_spread"},
		{All, "all"},
		{Channel(11), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.ch.String(); got != tt.want {
			t.Errorf("Channel(%d).String() = %q, want %q", tt.ch, got, tt.want)
		}
	}
}

func TestChannelOrder(t *testing.T) {
	chs := AllChannels()
	if len(chs) != 9 {
		t.Fatalf("AllChannels() has %d entries", len(chs))
	}
	if chs[0] != ThumbFlexion || chs[2] != IndexDistal || chs[8] != FingerSpread {
		t.Errorf("channel order wrong: %v", chs)
	}
	if Dimension != 9 {
		t.Errorf("Dimension = %d", Dimension)
	}
}
