package pairing

import "github.com/pavelkvkv/go-wireless-rdt/ports"

// Message types on the SYSTEM channel.
const (
	TypeMAC  uint8 = 1 // PAIRING_MAC: "here is my MAC"
	TypeDone uint8 = 2 // PAIRING_DONE: "I have stored your MAC"
)

// messageSize is the fixed wire size of the pairing struct:
// message_type(1) + peer_addr(6) + channel(1).
const messageSize = 1 + 6 + 1

// message is the fixed pairing struct exchanged during the handshake.
type message struct {
	Type     uint8
	PeerAddr ports.MAC
	Channel  uint8
}

func (m message) encode() []byte {
	buf := make([]byte, messageSize)
	buf[0] = m.Type
	copy(buf[1:7], m.PeerAddr[:])
	buf[7] = m.Channel
	return buf
}

func decodeMessage(buf []byte) (message, bool) {
	if len(buf) != messageSize {
		return message{}, false
	}
	var m message
	m.Type = buf[0]
	copy(m.PeerAddr[:], buf[1:7])
	m.Channel = buf[7]
	return m, true
}
