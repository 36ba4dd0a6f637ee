package params

import (
	"fmt"
	"sync"
	"time"

	"github.com/pavelkvkv/go-wireless-rdt/engine"
	"github.com/pavelkvkv/go-wireless-rdt/internal/rdtlog"
)

// DefaultTimeout is the standard request timeout.
const DefaultTimeout = 2000 * time.Millisecond

// mutexAcquireTimeout bounds how long a caller waits for the single
// in-flight slot before getting RCInProgress.
const mutexAcquireTimeout = 2000 * time.Millisecond

type pendingRequest struct {
	messageType uint8
	data        []byte
	returnCode  uint8
	done        chan struct{}
}

// Client issues blocking GET/SET requests with a single in-flight slot.
type Client struct {
	eng *engine.Engine
	log *rdtlog.Logger

	sem chan struct{} // capacity 1: the single in-flight slot

	mu      sync.Mutex
	pending *pendingRequest
}

// NewClient subscribes the client to engine.Params and returns it ready
// to issue requests.
func NewClient(eng *engine.Engine, log *rdtlog.Logger) *Client {
	c := &Client{eng: eng, log: log, sem: make(chan struct{}, 1)}
	eng.Dispatcher().Register(engine.Params, c.onBlock)
	return c
}

func (c *Client) onBlock(uint8) {
	block, ok := c.eng.ReceiveBlock(engine.Params, 0)
	if !ok {
		return
	}
	resp, ok := decodeMessage(block)
	if !ok || resp.Op != OpResp {
		return
	}

	c.mu.Lock()
	p := c.pending
	c.mu.Unlock()

	if p == nil || p.messageType != resp.MessageType {
		return // mismatched response: dropped
	}

	p.data = append([]byte(nil), resp.Data...)
	p.returnCode = resp.ReturnCode
	close(p.done)
}

// Request issues a GET or SET for messageType and blocks up to
// waitTicks for the matching RESP. value is sent for SET (ignored for
// GET). respBuf receives the response data truncated to its length; pass
// nil if the caller doesn't need the payload. Returns the number of
// bytes copied into respBuf, the response's return_code, and an error
// describing a transport-layer failure (mutex contention, send failure,
// timeout) distinct from a protocol-level non-zero return_code.
func (c *Client) Request(messageType uint8, op uint8, value []byte, respBuf []byte, waitTicks time.Duration) (n int, returnCode uint8, err error) {
	select {
	case c.sem <- struct{}{}:
	case <-time.After(mutexAcquireTimeout):
		return 0, RCInProgress, fmt.Errorf("params: request already in progress")
	}
	defer func() { <-c.sem }()

	done := make(chan struct{})
	p := &pendingRequest{messageType: messageType, done: done}

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

	req := message{MessageType: messageType, Op: op, Data: value}
	if !c.eng.Enqueue(engine.Params, req.encode()) {
		return 0, RCSendFailure, fmt.Errorf("params: send failed")
	}

	select {
	case <-done:
	case <-time.After(waitTicks):
		return 0, RCTimeout, fmt.Errorf("params: request timed out")
	}

	n = copy(respBuf, p.data)
	return n, p.returnCode, nil
}

// Get is a convenience wrapper using DefaultTimeout.
func (c *Client) Get(messageType uint8, respBuf []byte) (n int, returnCode uint8, err error) {
	return c.Request(messageType, OpGet, nil, respBuf, DefaultTimeout)
}

// Set is a convenience wrapper using DefaultTimeout.
func (c *Client) Set(messageType uint8, value []byte) (returnCode uint8, err error) {
	_, rc, err := c.Request(messageType, OpSet, value, nil, DefaultTimeout)
	return rc, err
}
