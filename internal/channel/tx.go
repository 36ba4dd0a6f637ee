package channel

import (
	"time"

	"github.com/pavelkvkv/go-wireless-rdt/internal/bitmap"
	"github.com/pavelkvkv/go-wireless-rdt/internal/wire"
)

// AckTimeout and MaxRetry are the send-machine's retry constants.
const (
	AckTimeout = 100 * time.Millisecond
	MaxRetry   = 5
)

// TxState is the send state machine for one channel.
// When Sending is false, Buffer and SentMap are absent.
type TxState struct {
	Sending       bool
	CurrentSize   uint32
	TotalPackets  uint16
	Buffer        []byte
	RetryCount    int
	NextSeqToSend uint16
	SentMap       *bitmap.Bitmap
	LastSendTime  time.Time
}

// TxOutcome reports what the send machine produced on one Tick/event.
type TxOutcome struct {
	Send      []*wire.Packet
	Resent    int  // count of packets in Send that are retransmits, for stats
	Abandoned bool // block exceeded MaxRetry and was freed
}

func (c *Channel) buildPacket(seq uint16, isResend bool) *wire.Packet {
	pkt := &wire.Packet{Channel: c.ID, SeqNum: seq}
	switch {
	case seq == 0:
		pkt.ServiceCode = wire.ServiceBegin
		pkt.Payload = wire.EncodeBeginSize(c.Tx.CurrentSize)
	case seq == c.Tx.TotalPackets-1:
		pkt.ServiceCode = wire.ServiceEnd
	default:
		pkt.ServiceCode = wire.ServiceData
		start := (int(seq) - 1) * wire.PayloadSize
		end := start + wire.PayloadSize
		if end > len(c.Tx.Buffer) {
			end = len(c.Tx.Buffer)
		}
		if start < end {
			copy(pkt.Payload[:end-start], c.Tx.Buffer[start:end])
		}
	}
	c.Tx.SentMap.Set(int(seq))
	return pkt
}

// beginSend transitions Idle->Sending for block and returns the BEGIN
// packet plus every DATA/END packet that can be emitted without waiting:
// the whole block, since nothing gates a single burst; sending drains
// all not-yet-sent sequences up to total_packets-1.
func (c *Channel) beginSend(block Block, now time.Time) []*wire.Packet {
	totalPackets := wire.TotalPackets(uint32(len(block)))
	c.Tx = TxState{
		Sending:       true,
		CurrentSize:   uint32(len(block)),
		TotalPackets:  totalPackets,
		Buffer:        block,
		RetryCount:    0,
		NextSeqToSend: 1,
		SentMap:       bitmap.New(int(totalPackets)),
		LastSendTime:  now,
	}

	var pkts []*wire.Packet
	pkts = append(pkts, c.buildPacket(0, false))
	for seq := c.Tx.NextSeqToSend; seq < c.Tx.TotalPackets; seq++ {
		pkts = append(pkts, c.buildPacket(seq, false))
		c.Tx.NextSeqToSend = seq + 1
		c.Tx.LastSendTime = now
	}
	return pkts
}

// Tick drives the per-channel send machine once per engine tick (the
// 50ms engine tick). If Idle, it tries to dequeue the next block
// non-blocking and starts sending it. If Sending, it checks for an
// ACK_TIMEOUT-based retry/abandon.
func (c *Channel) Tick(now time.Time) TxOutcome {
	if !c.Tx.Sending {
		select {
		case block := <-c.TxQueue:
			pkts := c.beginSend(block, now)
			return TxOutcome{Send: pkts}
		default:
			return TxOutcome{}
		}
	}

	if now.Sub(c.Tx.LastSendTime) <= AckTimeout {
		return TxOutcome{}
	}

	c.Tx.RetryCount++
	if c.Tx.RetryCount >= MaxRetry {
		c.Tx = TxState{}
		return TxOutcome{Abandoned: true}
	}

	// Restart the block: re-burst everything from BEGIN.
	c.Tx.SentMap = bitmap.New(int(c.Tx.TotalPackets))
	c.Tx.NextSeqToSend = 1
	c.Tx.LastSendTime = now

	var pkts []*wire.Packet
	pkts = append(pkts, c.buildPacket(0, true))
	for seq := uint16(1); seq < c.Tx.TotalPackets; seq++ {
		pkts = append(pkts, c.buildPacket(seq, true))
		c.Tx.NextSeqToSend = seq + 1
	}
	return TxOutcome{Send: pkts, Resent: len(pkts)}
}

// HandleAsk processes an ASK: the in-flight block is done, free buffers
//.
func (c *Channel) HandleAsk() {
	c.Tx = TxState{}
}

// HandleNack retransmits exactly the listed missing sequences, without
// altering NextSeqToSend.
func (c *Channel) HandleNack(payload [wire.PayloadSize]byte, now time.Time) TxOutcome {
	if !c.Tx.Sending {
		return TxOutcome{}
	}
	missing := wire.DecodeNack(payload)
	var pkts []*wire.Packet
	for _, seq := range missing {
		if seq >= c.Tx.TotalPackets {
			continue
		}
		pkts = append(pkts, c.buildPacket(seq, true))
	}
	c.Tx.LastSendTime = now
	return TxOutcome{Send: pkts, Resent: len(pkts)}
}
