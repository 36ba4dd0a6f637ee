// Package engine implements the RDT engine: it owns every
// logical channel, serializes all channel-state mutation under one
// mutex, drives the periodic 50ms tick that retries sends, and routes
// inbound datagrams to the right channel's reassembler. The
// receive/tick/dispatch loop shape is grounded on
// ventosilenzioso-go-raknet/source/server/server.go's listen/updateLoop
// pair (one goroutine reading the socket and enqueueing, one ticker
// goroutine draining queued ACK/NACK/data per session).
package engine

import (
	"sync"
	"time"

	"github.com/pavelkvkv/go-wireless-rdt/internal/channel"
	"github.com/pavelkvkv/go-wireless-rdt/internal/dispatch"
	"github.com/pavelkvkv/go-wireless-rdt/internal/linkstats"
	"github.com/pavelkvkv/go-wireless-rdt/internal/rdtlog"
	"github.com/pavelkvkv/go-wireless-rdt/ports"
)

// Channel ids.
const (
	System  uint8 = 0
	Sensors uint8 = 1
	Params  uint8 = 2
	Files   uint8 = 3

	NChannels = 4
)

// Tick is the engine's periodic scheduling interval, chosen to meet the
// 100ms ACK timeout with some jitter to spare.
const Tick = 50 * time.Millisecond

// EventQueueLen is the minimum bounded capacity of the radio-to-engine
// event queue.
const EventQueueLen = 32

// ChannelConfig is one channel's queue depths and block-size ceiling.
type ChannelConfig struct {
	RxQueueLen   int
	TxQueueLen   int
	MaxBlockSize uint32
}

// Engine owns the N_CHANNELS channels, the peer address, and the single
// RDT mutex guarding all of it.
type Engine struct {
	ID string

	radio ports.Radio
	stats *linkstats.Stats
	disp  *dispatch.Dispatcher
	log   *rdtlog.Logger
	now   func() time.Time

	mu       sync.Mutex // the single RDT mutex guarding all channel state
	channels [NChannels]*channel.Channel
	peer     ports.MAC

	events chan ports.InboundPacket

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New constructs an Engine. clock defaults to time.Now when nil (tests
// inject a deterministic clock to exercise timeout/retry behavior without
// sleeping).
func New(id string, radio ports.Radio, stats *linkstats.Stats, disp *dispatch.Dispatcher, log *rdtlog.Logger, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		ID:     id,
		radio:  radio,
		stats:  stats,
		disp:   disp,
		log:    log,
		now:    clock,
		peer:   ports.Broadcast,
		events: make(chan ports.InboundPacket, EventQueueLen),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// InitChannels creates each channel's queues exactly once. Calling it
// again with a channel id already initialized is a no-op.
func (e *Engine) InitChannels(cfgs map[uint8]ChannelConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, cfg := range cfgs {
		if id >= NChannels {
			e.log.Error("InitChannels: channel id %d out of range", id)
			continue
		}
		if e.channels[id] != nil {
			continue
		}
		e.channels[id] = channel.New(id, cfg.RxQueueLen, cfg.TxQueueLen, cfg.MaxBlockSize, e.log)
	}
}

func (e *Engine) channelAt(id uint8) *channel.Channel {
	if id >= NChannels {
		return nil
	}
	return e.channels[id]
}

// SetPeer updates the peer address every outbound packet targets
// (broadcast before pairing, the paired MAC once paired) and, for a
// non-broadcast peer, registers it with the radio driver as the
// finalize step of pairing.
func (e *Engine) SetPeer(mac ports.MAC) {
	e.mu.Lock()
	e.peer = mac
	e.mu.Unlock()

	if mac.IsZero() || mac == ports.Broadcast {
		return
	}
	if err := e.radio.AddPeer(mac); err != nil {
		e.log.Error("SetPeer: radio.AddPeer(%x): %v", mac, err)
	}
}

// Peer returns the currently configured peer address.
func (e *Engine) Peer() ports.MAC {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peer
}

// Dispatcher exposes the subscriber registry so services can subscribe
// to block arrivals on their channel.
func (e *Engine) Dispatcher() *dispatch.Dispatcher { return e.disp }

// Stats exposes the link-quality counters.
func (e *Engine) Stats() *linkstats.Stats { return e.stats }

// Enqueue moves block onto channel id's tx queue. Returns
// false if the channel is unknown, the block exceeds the channel's
// maximum block size, or the queue is full: callers get
// fire-and-forget backpressure rather than a blocking send.
func (e *Engine) Enqueue(id uint8, block []byte) bool {
	c := e.channelAt(id)
	if c == nil {
		return false
	}
	return c.Enqueue(block)
}

// ReceiveBlock dequeues one completed block from channel id, blocking up
// to wait.
func (e *Engine) ReceiveBlock(id uint8, wait time.Duration) ([]byte, bool) {
	c := e.channelAt(id)
	if c == nil {
		return nil, false
	}
	b, ok := c.ReceiveBlock(wait)
	return []byte(b), ok
}

// ClearChannel drains and frees a channel's pending rx blocks.
func (e *Engine) ClearChannel(id uint8) {
	if c := e.channelAt(id); c != nil {
		c.ClearQueue()
	}
}
