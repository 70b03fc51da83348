package svh

import "github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/protocol"

// Opcodes carried in the low nibble of the packet address. The matching
// reply from the hardware reuses the request opcode.
const (
	OpGetControlFeedback  uint8 = 0x00
	OpSetControlCommand   uint8 = 0x01
	OpGetPositionSettings uint8 = 0x02
	OpSetPositionSettings uint8 = 0x03
	OpGetCurrentSettings  uint8 = 0x04
	OpSetCurrentSettings  uint8 = 0x05
	OpGetControllerState  uint8 = 0x06
	OpSetControllerState  uint8 = 0x07
	OpGetEncoderValues    uint8 = 0x08
	OpSetEncoderValues    uint8 = 0x09
)

// PositionSettings parameterise one channel's position controller loop.
// Wire layout is ten little-endian f32 in field order.
type PositionSettings struct {
	WMin  float32 // soft position limit, lower [ticks]
	WMax  float32 // soft position limit, upper [ticks]
	DWMax float32 // velocity limit [ticks/s]
	KY    float32 // feed-forward gain
	DT    float32 // sample period [s]
	IMin  float32 // integrator clamp, lower
	IMax  float32 // integrator clamp, upper
	KP    float32
	KI    float32
	KD    float32
}

func (s *PositionSettings) AppendTo(b *protocol.Buffer) {
	b.AppendFloat32(s.WMin)
	b.AppendFloat32(s.WMax)
	b.AppendFloat32(s.DWMax)
	b.AppendFloat32(s.KY)
	b.AppendFloat32(s.DT)
	b.AppendFloat32(s.IMin)
	b.AppendFloat32(s.IMax)
	b.AppendFloat32(s.KP)
	b.AppendFloat32(s.KI)
	b.AppendFloat32(s.KD)
}

func (s *PositionSettings) ReadFrom(b *protocol.Buffer) {
	s.WMin = b.ReadFloat32()
	s.WMax = b.ReadFloat32()
	s.DWMax = b.ReadFloat32()
	s.KY = b.ReadFloat32()
	s.DT = b.ReadFloat32()
	s.IMin = b.ReadFloat32()
	s.IMax = b.ReadFloat32()
	s.KP = b.ReadFloat32()
	s.KI = b.ReadFloat32()
	s.KD = b.ReadFloat32()
}

// CurrentSettings parameterise one channel's current controller loop.
// Wire layout is ten little-endian f32 in field order.
type CurrentSettings struct {
	WMin float32 // current limit, lower [mA]
	WMax float32 // current limit, upper [mA]
	KY   float32 // error output scaling
	DT   float32 // sample period [s]
	IMin float32 // integrator clamp, lower
	IMax float32 // integrator clamp, upper
	KP   float32
	KI   float32
	UMin float32 // controller output clamp, lower
	UMax float32 // controller output clamp, upper
}

func (s *CurrentSettings) AppendTo(b *protocol.Buffer) {
	b.AppendFloat32(s.WMin)
	b.AppendFloat32(s.WMax)
	b.AppendFloat32(s.KY)
	b.AppendFloat32(s.DT)
	b.AppendFloat32(s.IMin)
	b.AppendFloat32(s.IMax)
	b.AppendFloat32(s.KP)
	b.AppendFloat32(s.KI)
	b.AppendFloat32(s.UMin)
	b.AppendFloat32(s.UMax)
}

func (s *CurrentSettings) ReadFrom(b *protocol.Buffer) {
	s.WMin = b.ReadFloat32()
	s.WMax = b.ReadFloat32()
	s.KY = b.ReadFloat32()
	s.DT = b.ReadFloat32()
	s.IMin = b.ReadFloat32()
	s.IMax = b.ReadFloat32()
	s.KP = b.ReadFloat32()
	s.KI = b.ReadFloat32()
	s.UMin = b.ReadFloat32()
	s.UMax = b.ReadFloat32()
}

// ControllerFeedback is one channel's telemetry snapshot.
type ControllerFeedback struct {
	Position int32 // encoder ticks
	Current  int16 // mA
}

func (f *ControllerFeedback) AppendTo(b *protocol.Buffer) {
	b.AppendInt32(f.Position)
	b.AppendInt16(f.Current)
}

func (f *ControllerFeedback) ReadFrom(b *protocol.Buffer) {
	f.Position = b.ReadInt32()
	f.Current = b.ReadInt16()
}

// ControllerFeedbackAll carries telemetry for every channel. The wire
// layout is structure-of-arrays: nine positions, then nine currents.
type ControllerFeedbackAll struct {
	Feedbacks [Dimension]ControllerFeedback
}

func (f *ControllerFeedbackAll) AppendTo(b *protocol.Buffer) {
	for i := range f.Feedbacks {
		b.AppendInt32(f.Feedbacks[i].Position)
	}
	for i := range f.Feedbacks {
		b.AppendInt16(f.Feedbacks[i].Current)
	}
}

func (f *ControllerFeedbackAll) ReadFrom(b *protocol.Buffer) {
	for i := range f.Feedbacks {
		f.Feedbacks[i].Position = b.ReadInt32()
	}
	for i := range f.Feedbacks {
		f.Feedbacks[i].Current = b.ReadInt16()
	}
}

// ControlCommand is a position target for one channel.
type ControlCommand struct {
	Position int32 // target ticks
}

func (c *ControlCommand) AppendTo(b *protocol.Buffer) { b.AppendInt32(c.Position) }
func (c *ControlCommand) ReadFrom(b *protocol.Buffer) { c.Position = b.ReadInt32() }

// ControlCommandAll is a position target for every channel at once.
type ControlCommandAll struct {
	Positions [Dimension]int32
}

func (c *ControlCommandAll) AppendTo(b *protocol.Buffer) {
	for _, p := range c.Positions {
		b.AppendInt32(p)
	}
}

func (c *ControlCommandAll) ReadFrom(b *protocol.Buffer) {
	for i := range c.Positions {
		c.Positions[i] = b.ReadInt32()
	}
}

// ControllerState mirrors the state register block of the hardware
// controller IC: fault and over-temperature warnings, the low-active reset
// bitmask, and the enable bits of the two controller loops. Bit 9 of the
// reset mask switches the auxiliary 12 V supply for the small motors.
type ControllerState struct {
	PWMFault  uint16
	PWMOTW    uint16
	PWMReset  uint16
	PWMActive uint16
	PosCtrl   uint16
	CurCtrl   uint16
}

func (s *ControllerState) AppendTo(b *protocol.Buffer) {
	b.AppendUint16(s.PWMFault)
	b.AppendUint16(s.PWMOTW)
	b.AppendUint16(s.PWMReset)
	b.AppendUint16(s.PWMActive)
	b.AppendUint16(s.PosCtrl)
	b.AppendUint16(s.CurCtrl)
}

func (s *ControllerState) ReadFrom(b *protocol.Buffer) {
	s.PWMFault = b.ReadUint16()
	s.PWMOTW = b.ReadUint16()
	s.PWMReset = b.ReadUint16()
	s.PWMActive = b.ReadUint16()
	s.PosCtrl = b.ReadUint16()
	s.CurCtrl = b.ReadUint16()
}

// EncoderSettings holds the per-channel encoder offsets.
type EncoderSettings struct {
	Offsets [Dimension]int32
}

func (e *EncoderSettings) AppendTo(b *protocol.Buffer) {
	for _, o := range e.Offsets {
		b.AppendInt32(o)
	}
}

func (e *EncoderSettings) ReadFrom(b *protocol.Buffer) {
	for i := range e.Offsets {
		e.Offsets[i] = b.ReadInt32()
	}
}

// payload serialises a record into a fresh byte slice.
func payload(rec interface{ AppendTo(*protocol.Buffer) }) []byte {
	b := protocol.NewBuffer(0)
	rec.AppendTo(b)
	return b.Bytes()
}
