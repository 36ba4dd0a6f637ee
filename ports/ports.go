// Package ports defines the external collaborators the core transport
// consumes but does not implement: the radio driver, the peer-MAC
// persistence store and the file-system primitives. Each is an
// interface so the core stays testable with fakes instead of real
// hardware/OS state, mirroring how the C original keeps these behind
// extern function declarations (see w_connect.c's comments on
// Rdt_SendBlock/Rdt_AddPeer being "defined somewhere in the project").
package ports

import (
	"errors"
	"time"
)

// ErrNotFound is returned by FileSystem implementations when a
// requested path does not exist, letting the file service distinguish
// "no such file" from other I/O failures.
var ErrNotFound = errors.New("ports: file not found")

// MAC is a 6-byte peer hardware address. The all-zero MAC means
// "unpaired" / "no peer".
type MAC [6]byte

// IsZero reports whether m is the all-zero address.
func (m MAC) IsZero() bool {
	return m == MAC{}
}

// Broadcast is the address used for outbound packets before pairing.
var Broadcast = MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Radio is the wireless datagram driver the engine sends through and
// receives from. Send is fire-and-forget: the engine does not
// block on physical transmission completing.
type Radio interface {
	Send(peer MAC, data []byte) error
	AddPeer(mac MAC) error
	SetPMK(key []byte) error
}

// InboundPacket is what the radio driver hands the engine for every
// datagram it receives, regardless of source; the receive callback
// only filters by source MAC, stamps RSSI, and enqueues.
type InboundPacket struct {
	Source MAC
	Data   []byte
	RSSI   int
	Time   time.Time
}

// Persistence stores the paired peer's MAC across restarts.
type Persistence interface {
	GetPairedPeer() (MAC, error)
	SetPairedPeer(MAC) error
	Commit() error
}

// FileSystem is the set of file-system primitives the file service's
// server role needs.
type FileSystem interface {
	// List returns raw listing bytes for dir, in whatever encoding the
	// caller and its peer have agreed on; the core treats it as opaque,
	// the same way filelist_get's output was opaque to the transport.
	List(dir string) ([]byte, error)

	// Open opens path for the given mode ("r", "rw", "a"); "rw" means
	// open existing or create, seek-addressable; "a" means open for
	// append-only writes. Returns an io.ReadWriteSeeker-like handle.
	Open(path string, mode string) (File, error)
}

// File is a single open file handle as the file service needs it:
// seekable, readable, writable, closable.
type File interface {
	ReadAt(p []byte, off int64) (n int, err error)
	WriteAt(p []byte, off int64) (n int, err error)
	Write(p []byte) (n int, err error) // append-mode write, ignores offset
	Close() error
}
