// Package files implements the file-transfer service: LIST,
// READ and WRITE requests/responses over a fixed header plus a path and
// a data payload, modeled on the C original's w_files_header_t in
// include/w_files.h.
package files

import (
	"encoding/binary"
	"fmt"
)

// Commands. Odd values are requests, even values their responses.
const (
	CmdList      uint8 = 1
	CmdListResp  uint8 = 2
	CmdRead      uint8 = 3
	CmdReadResp  uint8 = 4
	CmdWrite     uint8 = 5
	CmdWriteResp uint8 = 6
)

// Return codes.
const (
	RCOk       uint8 = 0
	RCUnknown  uint8 = 1
	RCNoFile   uint8 = 2
	RCIO       uint8 = 3
	RCTooLarge uint8 = 4
	RCInternal uint8 = 5
)

// MaxPath and MaxData bound a single message.
const (
	MaxPath = 128
	MaxData = 4 * 1024
)

// AppendOffset requests WRITE-at-end-of-file; NoSeekOffset requests a
// READ from the server's last read position for that path. Both are the
// same sentinel value, so a WRITE carrying it always appends.
const (
	AppendOffset uint32 = 0xFFFFFFFF
	NoSeekOffset uint32 = 0xFFFFFFFF
)

const headerSize = 1 + 1 + 2 + 4 + 4 + 1 + 3 // command, return_code, request_id, offset, data_length, path_length, reserved[3]

type header struct {
	Command     uint8
	ReturnCode  uint8
	RequestID   uint16
	Offset      uint32
	DataLength  uint32
	PathLength  uint8
}

type message struct {
	header
	Path string
	Data []byte
}

// encode derives DataLength from the actual payload except when Data is
// empty and the caller has already set DataLength directly: a READ
// request carries the requested byte count in the header with no
// payload bytes on the wire at all, since the server derives how much to
// read from the header alone.
func (m message) encode() []byte {
	m.PathLength = uint8(len(m.Path))
	if len(m.Data) > 0 {
		m.DataLength = uint32(len(m.Data))
	}

	buf := make([]byte, headerSize+len(m.Path)+len(m.Data))
	buf[0] = m.Command
	buf[1] = m.ReturnCode
	binary.LittleEndian.PutUint16(buf[2:4], m.RequestID)
	binary.LittleEndian.PutUint32(buf[4:8], m.Offset)
	binary.LittleEndian.PutUint32(buf[8:12], m.DataLength)
	buf[12] = m.PathLength
	// buf[13:16] reserved, left zero

	pathStart := headerSize
	copy(buf[pathStart:], m.Path)
	copy(buf[pathStart+len(m.Path):], m.Data)
	return buf
}

func decodeMessage(buf []byte) (message, error) {
	if len(buf) < headerSize {
		return message{}, fmt.Errorf("files: short header, %d bytes", len(buf))
	}
	h := header{
		Command:    buf[0],
		ReturnCode: buf[1],
		RequestID:  binary.LittleEndian.Uint16(buf[2:4]),
		Offset:     binary.LittleEndian.Uint32(buf[4:8]),
		DataLength: binary.LittleEndian.Uint32(buf[8:12]),
		PathLength: buf[12],
	}
	rest := buf[headerSize:]
	if int(h.PathLength) > len(rest) {
		return message{}, fmt.Errorf("files: path_length %d exceeds buffer", h.PathLength)
	}
	path := string(rest[:h.PathLength])
	rest = rest[h.PathLength:]
	if h.Command == CmdRead {
		// A READ request's data_length is the requested byte count, not
		// a payload length: no payload bytes follow the path.
		return message{header: h, Path: path}, nil
	}
	if int(h.DataLength) > len(rest) {
		return message{}, fmt.Errorf("files: data_length %d exceeds buffer", h.DataLength)
	}
	data := rest[:h.DataLength]
	return message{header: h, Path: path, Data: data}, nil
}
