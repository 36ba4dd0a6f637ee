// Package channel implements one logical RDT channel: its bounded rx/tx
// queues, its receive reassembler and its send state machine. A
// Channel's state-mutating methods (HandleBegin, HandleData, HandleEnd,
// Tick, HandleAsk, HandleNack) are NOT internally locked; the engine
// puts exactly one RDT mutex around all channel state, so a Channel
// assumes its caller already holds that lock. The bounded queues
// themselves are plain Go channels, which are safe to use without that
// lock (matching "Idle -> Sending: dequeue one block from tx_queue
// (non-blocking)" being independent of the state-machine lock in the
// original design).
package channel

import (
	"time"

	"github.com/pavelkvkv/go-wireless-rdt/internal/rdtlog"
)

// Block is an application-level byte sequence. It has exactly one
// owner at a time; Channel never
// retains a reference to a Block once ownership has transferred (to the
// tx machine on Enqueue, to the rx queue on reassembly, to the caller on
// ReceiveBlock).
type Block []byte

// Channel is one of the N_CHANNELS=4 fixed logical channels.
type Channel struct {
	ID           uint8
	MaxBlockSize uint32

	RxQueue chan Block // bounded FIFO of completed blocks
	TxQueue chan Block // bounded FIFO of blocks to send

	Rx RxState
	Tx TxState

	log *rdtlog.Logger
}

// New constructs a Channel with the given bounded queue depths and
// maximum block size. Mirrors the per-channel sizing of
// Wireless_Channels_Init in the C original (w_channels.c), which gives
// different queue depths to different channels at startup.
func New(id uint8, rxQueueLen, txQueueLen int, maxBlockSize uint32, log *rdtlog.Logger) *Channel {
	return &Channel{
		ID:           id,
		MaxBlockSize: maxBlockSize,
		RxQueue:      make(chan Block, rxQueueLen),
		TxQueue:      make(chan Block, txQueueLen),
		log:          log,
	}
}

// Enqueue moves block into the transport's tx queue for sending. This is
// the ownership transfer point: after Enqueue returns true, the caller
// must not touch block again. A full queue is fire-and-forget
// backpressure: the block is dropped and Enqueue reports false, with no
// error surfaced to the producer.
func (c *Channel) Enqueue(block Block) bool {
	if uint32(len(block)) > c.MaxBlockSize {
		c.log.Warn("channel %d: block of %d bytes exceeds max %d, dropped", c.ID, len(block), c.MaxBlockSize)
		return false
	}
	select {
	case c.TxQueue <- block:
		return true
	default:
		c.log.Warn("channel %d: tx queue full, block dropped", c.ID)
		return false
	}
}

// ReceiveBlock dequeues one completed block, blocking up to wait (0 means
// non-blocking; a negative wait blocks indefinitely).
func (c *Channel) ReceiveBlock(wait time.Duration) (Block, bool) {
	if wait == 0 {
		select {
		case b := <-c.RxQueue:
			return b, true
		default:
			return nil, false
		}
	}
	if wait < 0 {
		b := <-c.RxQueue
		return b, true
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case b := <-c.RxQueue:
		return b, true
	case <-t.C:
		return nil, false
	}
}

// ClearQueue drains and frees every pending rx block.
func (c *Channel) ClearQueue() {
	for {
		select {
		case <-c.RxQueue:
		default:
			return
		}
	}
}

// FreeReceivedBlock releases ownership of a block returned by
// ReceiveBlock. In Go this is a documentation point rather than a manual
// free, but it is kept as an explicit call so ownership-transfer edges
// stay visible in caller code.
func FreeReceivedBlock(Block) {}

