package channel

import (
	"time"

	"github.com/pavelkvkv/go-wireless-rdt/internal/bitmap"
	"github.com/pavelkvkv/go-wireless-rdt/internal/wire"
)

// RxState is the receive reassembler state for one channel.
// When Receiving is false, Buffer and ReceivedMap are nil.
type RxState struct {
	Receiving       bool
	TotalSize       uint32
	TotalPackets    uint16
	PacketsReceived int
	Buffer          []byte
	ReceivedMap     *bitmap.Bitmap
	LastPacketTime  time.Time
}

// RxOutcome tells the engine what, if anything, to transmit and whether
// a block was just delivered to the rx queue.
type RxOutcome struct {
	Send         *wire.Packet // non-nil: ASK or NACK to emit
	BlockReady   bool         // a full block was pushed to RxQueue (or dropped on backpressure)
	BlockDropped bool         // BlockReady was true but RxQueue was full
}

// HandleBegin processes a BEGIN packet. now is the monotonic
// clock sample to stamp LastPacketTime with.
func (c *Channel) HandleBegin(payload [wire.PayloadSize]byte, now time.Time) {
	size, ok := wire.DecodeBeginSize(payload)
	if !ok {
		size = c.MaxBlockSize
	}

	totalPackets := wire.TotalPackets(size)

	// Free any prior rx_buffer/received_map before allocating fresh
	// state; an in-flight receive that never finished is abandoned
	// silently, matching the engine's no-propagation error policy.
	c.Rx = RxState{
		Receiving:       true,
		TotalSize:       size,
		TotalPackets:    totalPackets,
		Buffer:          make([]byte, size),
		ReceivedMap:     bitmap.New(int(totalPackets)),
		PacketsReceived: 0,
		LastPacketTime:  now,
	}
	c.Rx.ReceivedMap.Set(0)
	c.Rx.PacketsReceived = 1
}

// HandleData processes a DATA packet. Silently drops
// duplicates, out-of-range sequences, and data arriving with no
// in-progress receive. A DATA packet can complete a block: once END has
// already arrived, the only packets still outstanding are DATA packets
// named in a NACK, so the packet that fills the last gap has to trigger
// the same ASK-and-deliver tail HandleEnd uses, rather than waiting for
// the sender to time out and restart the whole block.
func (c *Channel) HandleData(seq uint16, payload [wire.PayloadSize]byte, now time.Time) RxOutcome {
	if !c.Rx.Receiving {
		return RxOutcome{}
	}
	if seq >= c.Rx.TotalPackets {
		return RxOutcome{}
	}
	if c.Rx.ReceivedMap.IsSet(int(seq)) {
		return RxOutcome{}
	}

	c.Rx.ReceivedMap.Set(int(seq))
	c.Rx.PacketsReceived++

	start := (int(seq) - 1) * wire.PayloadSize
	end := start + wire.PayloadSize
	if end > len(c.Rx.Buffer) {
		end = len(c.Rx.Buffer)
	}
	if start < end {
		copy(c.Rx.Buffer[start:end], payload[:end-start])
	}
	c.Rx.LastPacketTime = now

	if c.Rx.PacketsReceived >= int(c.Rx.TotalPackets) {
		return c.completeRx()
	}
	return RxOutcome{}
}

// HandleEnd processes an END packet. It is the only place a
// NACK for this receive gets emitted. seq must equal TotalPackets-1 or
// the packet is dropped.
func (c *Channel) HandleEnd(seq uint16, now time.Time) RxOutcome {
	if !c.Rx.Receiving {
		return RxOutcome{}
	}
	if seq != c.Rx.TotalPackets-1 {
		return RxOutcome{}
	}

	if !c.Rx.ReceivedMap.IsSet(int(seq)) {
		c.Rx.ReceivedMap.Set(int(seq))
		c.Rx.PacketsReceived++
	}
	c.Rx.LastPacketTime = now

	if c.Rx.PacketsReceived < int(c.Rx.TotalPackets) {
		missing := c.Rx.ReceivedMap.Missing()
		nackPayload := wire.EncodeNack(missing)
		pkt := &wire.Packet{
			Channel:     c.ID,
			SeqNum:      0,
			ServiceCode: wire.ServiceNack,
			Payload:     nackPayload,
		}
		return RxOutcome{Send: pkt}
	}

	return c.completeRx()
}

// completeRx hands a fully-reassembled block to RxQueue and returns the
// ASK to send. Called from HandleEnd when the END packet itself is the
// last one needed, and from HandleData when a NACK-triggered DATA
// retransmit fills the last gap after END has already arrived; either
// way, this is the only place a block transfers ownership out of the
// receiver.
func (c *Channel) completeRx() RxOutcome {
	block := Block(c.Rx.Buffer)
	ask := &wire.Packet{
		Channel:     c.ID,
		SeqNum:      0,
		ServiceCode: wire.ServiceAsk,
	}

	outcome := RxOutcome{Send: ask, BlockReady: true}

	select {
	case c.RxQueue <- block:
	default:
		// Backpressure: consumer too slow. Drop and free.
		outcome.BlockDropped = true
	}

	c.Rx = RxState{}
	return outcome
}

// IsEndSeq reports whether seq is the terminal sequence number for the
// current receive.
func (c *Channel) IsEndSeq(seq uint16) bool {
	return c.Rx.Receiving && seq == c.Rx.TotalPackets-1
}
