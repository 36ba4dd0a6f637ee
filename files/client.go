package files

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pavelkvkv/go-wireless-rdt/engine"
	"github.com/pavelkvkv/go-wireless-rdt/internal/rdtlog"
)

// DefaultTimeout mirrors the parameter service's request timeout; the
// spec gives the file service the same single-in-flight-slot shape.
const DefaultTimeout = 2000 * time.Millisecond

const mutexAcquireTimeout = 2000 * time.Millisecond

// Result is what a completed request yields: the response's return
// code, offset (the offset the server reports having used) and payload.
type Result struct {
	ReturnCode uint8
	Offset     uint32
	Data       []byte
}

type pendingRequest struct {
	requestID uint16
	result    Result
	done      chan struct{}
}

// Client issues blocking LIST/READ/WRITE requests with a single
// in-flight slot, matched by request_id.
type Client struct {
	eng *engine.Engine
	log *rdtlog.Logger

	sem       chan struct{}
	nextID    uint32 // atomic; wraps to non-zero uint16 in nextRequestID

	mu      sync.Mutex
	pending *pendingRequest
}

// NewClient subscribes the client to engine.Files.
func NewClient(eng *engine.Engine, log *rdtlog.Logger) *Client {
	c := &Client{eng: eng, log: log, sem: make(chan struct{}, 1)}
	eng.Dispatcher().Register(engine.Files, c.onBlock)
	return c
}

func (c *Client) nextRequestID() uint16 {
	for {
		v := atomic.AddUint32(&c.nextID, 1)
		id := uint16(v)
		if id != 0 {
			return id
		}
	}
}

func (c *Client) onBlock(uint8) {
	block, ok := c.eng.ReceiveBlock(engine.Files, 0)
	if !ok {
		return
	}
	resp, err := decodeMessage(block)
	if err != nil {
		c.log.Error("files client: %v", err)
		return
	}
	if resp.Command != CmdListResp && resp.Command != CmdReadResp && resp.Command != CmdWriteResp {
		return
	}

	c.mu.Lock()
	p := c.pending
	c.mu.Unlock()

	if p == nil || p.requestID != resp.RequestID {
		return
	}

	p.result = Result{
		ReturnCode: resp.ReturnCode,
		Offset:     resp.Offset,
		Data:       append([]byte(nil), resp.Data...),
	}
	close(p.done)
}

func (c *Client) request(cmd uint8, path string, offset uint32, data []byte, dataLength uint32, waitTicks time.Duration) (Result, error) {
	select {
	case c.sem <- struct{}{}:
	case <-time.After(mutexAcquireTimeout):
		return Result{}, fmt.Errorf("files: request already in progress")
	}
	defer func() { <-c.sem }()

	id := c.nextRequestID()
	done := make(chan struct{})
	p := &pendingRequest{requestID: id, done: done}

	c.mu.Lock()
	c.pending = p
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.pending == p {
			c.pending = nil
		}
		c.mu.Unlock()
	}()

	req := message{
		header: header{Command: cmd, RequestID: id, Offset: offset, DataLength: dataLength},
		Path:   path,
		Data:   data,
	}
	if !c.eng.Enqueue(engine.Files, req.encode()) {
		return Result{}, fmt.Errorf("files: send failed")
	}

	select {
	case <-done:
	case <-time.After(waitTicks):
		return Result{}, fmt.Errorf("files: request timed out")
	}

	return p.result, nil
}

// List requests a directory listing. dir is normalized (duplicate
// slashes collapsed, trailing separator appended) into a fresh string
// before sending; the C original mutated its caller-supplied path
// buffer in place to normalize it in-band, a class of bug Go's
// immutable strings make impossible here.
func (c *Client) List(dir string) (Result, error) {
	return c.request(CmdList, normalizePath(dir), 0, nil, 0, DefaultTimeout)
}

// Read requests up to length bytes starting at offset (NoSeekOffset to
// continue from the server's last position for this path). The request
// carries length in the header only; no payload bytes go on the wire
// since the server reads the requested length itself.
func (c *Client) Read(path string, offset uint32, length int) (Result, error) {
	return c.request(CmdRead, path, offset, nil, uint32(length), DefaultTimeout)
}

// Write sends data to be written at offset (AppendOffset to append).
func (c *Client) Write(path string, offset uint32, data []byte) (Result, error) {
	return c.request(CmdWrite, path, offset, data, uint32(len(data)), DefaultTimeout)
}

// normalizePath collapses duplicate slashes and ensures dir ends with a
// separator, the way a LIST request must.
func normalizePath(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
