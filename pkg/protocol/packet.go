package protocol

// Frame layout:
//
//	0x4D 0x4C <index:u8> <address:u8> <len:u16 LE> <payload[len]> <cs1:u8> <cs2:u8>
//
// The low nibble of the address is an opcode, the high nibble a channel
// index (0xF addresses all channels at once).
const (
	Header1 = 0x4D
	Header2 = 0x4C

	// AppendixSize is the frame overhead around the payload: two header
	// bytes, index, address, two length bytes and two checksums.
	AppendixSize = 8
)

// Packet is one decoded frame. The index byte is a rolling transmit counter
// used for debugging only.
type Packet struct {
	Index   uint8
	Address uint8
	Data    []byte
}

// Opcode returns the low nibble of the address.
func (p *Packet) Opcode() uint8 { return p.Address & 0x0F }

// ChannelNibble returns the high nibble of the address.
func (p *Packet) ChannelNibble() uint8 { return p.Address >> 4 }

// MakeAddress packs an opcode and a channel nibble into an address byte.
func MakeAddress(opcode, channel uint8) uint8 {
	return opcode&0x0F | channel<<4
}

// Checksums returns the two payload checksums: the negated byte sum modulo
// 256 and the running XOR. A receiver adds the payload back onto cs1 and
// XORs it back into cs2; both must come out zero.
func Checksums(payload []byte) (cs1, cs2 uint8) {
	for _, b := range payload {
		cs1 -= b
		cs2 ^= b
	}
	return cs1, cs2
}

// Encode serialises the packet into its wire frame.
func (p *Packet) Encode() []byte {
	cs1, cs2 := Checksums(p.Data)

	buf := NewBuffer(0)
	buf.AppendUint8(Header1)
	buf.AppendUint8(Header2)
	buf.AppendUint8(p.Index)
	buf.AppendUint8(p.Address)
	buf.AppendUint16(uint16(len(p.Data)))
	buf.AppendBytes(p.Data)
	buf.AppendUint8(cs1)
	buf.AppendUint8(cs2)
	return buf.Bytes()
}
