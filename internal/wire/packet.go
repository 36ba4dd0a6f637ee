// Package wire implements the fixed-layout 250-byte RDT packet: encoding,
// parsing and CRC-32 verification. The encode/decode shape (explicit
// little-endian field writers, a trailing integrity field recomputed on
// receipt) is grounded on ventosilenzioso-go-raknet's ACK/NACK Encode
// methods in source/protocol/raknet.go, generalized from RakNet's
// 24-bit sequence records to this protocol's fixed packet struct.
package wire

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Service codes.
const (
	ServiceBegin byte = 1
	ServiceData  byte = 2
	ServiceEnd   byte = 3
	ServiceAsk   byte = 4
	ServiceNack  byte = 5
)

// PayloadSize is the fixed payload capacity per packet.
const PayloadSize = 192

// Size is the total on-wire packet size: channel(1) + seq_num(2) +
// service_code(1) + payload, then zero padding, then the trailing
// 4-byte CRC-32.
const Size = 250

// Packet is the wire representation of a single 250-byte RDT datagram.
type Packet struct {
	Channel     uint8
	SeqNum      uint16
	ServiceCode byte
	Payload     [PayloadSize]byte
}

// Encode serializes p into a fixed Size-byte buffer with a trailing CRC-32
// computed over every preceding byte. Unused payload tail bytes are zero
// (the struct's zero value already guarantees this for bytes the caller
// never wrote).
func (p *Packet) Encode() []byte {
	buf := make([]byte, Size)
	buf[0] = p.Channel
	binary.LittleEndian.PutUint16(buf[1:3], p.SeqNum)
	buf[3] = p.ServiceCode
	copy(buf[4:4+PayloadSize], p.Payload[:])

	crc := crc32.ChecksumIEEE(buf[:Size-4])
	binary.LittleEndian.PutUint32(buf[Size-4:], crc)
	return buf
}

// Decode parses a wire buffer into a Packet, verifying its CRC-32. A
// length mismatch or CRC mismatch returns an error; the engine's
// response to either is a silent drop, and no counter records it.
func Decode(buf []byte) (*Packet, error) {
	if len(buf) != Size {
		return nil, fmt.Errorf("wire: bad packet length %d, want %d", len(buf), Size)
	}

	want := crc32.ChecksumIEEE(buf[:Size-4])
	got := binary.LittleEndian.Uint32(buf[Size-4:])
	if want != got {
		return nil, fmt.Errorf("wire: crc mismatch: got %08x want %08x", got, want)
	}

	p := &Packet{
		Channel:     buf[0],
		SeqNum:      binary.LittleEndian.Uint16(buf[1:3]),
		ServiceCode: buf[3],
	}
	copy(p.Payload[:], buf[4:4+PayloadSize])
	return p, nil
}

// TotalPackets returns ceil(size/PayloadSize) + 2 (BEGIN + DATA* + END).
func TotalPackets(size uint32) uint16 {
	n := size / PayloadSize
	if size%PayloadSize != 0 {
		n++
	}
	return uint16(n) + 2
}

// EncodeBeginSize writes the 4-byte little-endian block size into the
// first four bytes of a BEGIN packet's payload.
func EncodeBeginSize(size uint32) (payload [PayloadSize]byte) {
	binary.LittleEndian.PutUint32(payload[0:4], size)
	return payload
}

// DecodeBeginSize reads the 4-byte little-endian block size out of a
// BEGIN packet's payload. An all-zero size field means "use
// max_block_size", signaled here via the ok=false return; a genuine
// zero-length block and an omitted size both decode to ok=false and
// cannot be told apart.
func DecodeBeginSize(payload [PayloadSize]byte) (size uint32, ok bool) {
	size = binary.LittleEndian.Uint32(payload[0:4])
	return size, size != 0
}

// NackSentinel terminates (or exceeds) a NACK payload's missing-sequence
// list.
const NackSentinel = uint16(0xFFFF)

// EncodeNack packs missing sequence numbers as little-endian u16s,
// terminated by NackSentinel or by running out of payload room,
// whichever comes first.
func EncodeNack(missing []uint16) (payload [PayloadSize]byte) {
	off := 0
	for _, seq := range missing {
		if off+2 > PayloadSize-2 { // leave room for the terminator
			break
		}
		binary.LittleEndian.PutUint16(payload[off:off+2], seq)
		off += 2
	}
	if off+2 <= PayloadSize {
		binary.LittleEndian.PutUint16(payload[off:off+2], NackSentinel)
	}
	return payload
}

// DecodeNack unpacks a NACK payload into the list of missing sequence
// numbers, stopping at NackSentinel or the end of the payload.
func DecodeNack(payload [PayloadSize]byte) []uint16 {
	var out []uint16
	for off := 0; off+2 <= PayloadSize; off += 2 {
		seq := binary.LittleEndian.Uint16(payload[off : off+2])
		if seq == NackSentinel {
			break
		}
		out = append(out, seq)
	}
	return out
}
