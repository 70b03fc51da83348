package protocol

import (
	"log/slog"
	"sync/atomic"
)

// receiveState enumerates the positions in a frame the receiver can be
// waiting at.
type receiveState int

const (
	stateHeader1 receiveState = iota
	stateHeader2
	stateIndex
	stateAddress
	stateLength1
	stateLength2
	stateData
	stateChecksum1
	stateChecksum2
)

// PacketCallback consumes one decoded packet together with the running count
// of packets received so far.
type PacketCallback func(p Packet, received uint32)

// Receiver reassembles frames from a byte stream, one byte at a time.
// Partial frames are carried across calls, so the caller may feed bytes in
// whatever chunks the serial device produces. A frame whose checksums do not
// verify is discarded and the machine returns to hunting for the header.
type Receiver struct {
	state     receiveState
	index     uint8
	address   uint8
	length    uint16
	data      []byte
	checksum1 uint8

	received atomic.Uint32
	skipped  int

	callback PacketCallback
	log      *slog.Logger
}

// NewReceiver returns a receiver that hands completed packets to callback.
// A nil logger falls back to slog.Default.
func NewReceiver(callback PacketCallback, log *slog.Logger) *Receiver {
	if log == nil {
		log = slog.Default()
	}
	return &Receiver{callback: callback, log: log}
}

// ReceivedCount returns the number of packets that passed verification.
func (r *Receiver) ReceivedCount() uint32 { return r.received.Load() }

// ResetReceivedCount restarts the received-packet counter.
func (r *Receiver) ResetReceivedCount() { r.received.Store(0) }

// Feed advances the state machine by one byte.
func (r *Receiver) Feed(b byte) {
	switch r.state {
	case stateHeader1:
		if b == Header1 {
			r.state = stateHeader2
		} else {
			r.skipped++
		}

	case stateHeader2:
		switch b {
		case Header2:
			r.state = stateIndex
		case Header1:
			// A second sync byte may itself start a frame; stay here.
			r.skipped++
		default:
			r.state = stateHeader1
			r.skipped += 2
		}

	case stateIndex:
		r.index = b
		r.state = stateAddress

	case stateAddress:
		r.address = b
		r.state = stateLength1

	case stateLength1:
		r.length = uint16(b)
		r.state = stateLength2

	case stateLength2:
		r.length |= uint16(b) << 8
		r.data = r.data[:0]
		if r.length == 0 {
			r.state = stateChecksum1
		} else {
			r.state = stateData
		}

	case stateData:
		r.data = append(r.data, b)
		if len(r.data) >= int(r.length) {
			r.state = stateChecksum1
		}

	case stateChecksum1:
		r.checksum1 = b
		r.state = stateChecksum2

	case stateChecksum2:
		r.state = stateHeader1

		cs1, cs2 := r.checksum1, b
		for _, d := range r.data {
			cs1 += d
			cs2 ^= d
		}
		if cs1 != 0 || cs2 != 0 {
			r.log.Debug("discarding frame with bad checksum",
				"cs1", cs1, "cs2", cs2, "index", r.index,
				"address", r.address, "len", r.length, "skipped", r.skipped)
			r.skipped += int(r.length) + AppendixSize
			return
		}

		packet := Packet{
			Index:   r.index,
			Address: r.address,
			Data:    append([]byte(nil), r.data...),
		}
		count := r.received.Add(1)

		if r.skipped > 0 {
			r.log.Debug("resynchronised to frame boundary", "skipped", r.skipped)
			r.skipped = 0
		}
		if r.callback != nil {
			r.callback(packet, count)
		}
	}
}

// FeedBytes runs Feed over a chunk of bytes.
func (r *Receiver) FeedBytes(p []byte) {
	for _, b := range p {
		r.Feed(b)
	}
}
