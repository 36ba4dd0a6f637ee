package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pavelkvkv/go-wireless-rdt/internal/rdtlog"
	"github.com/pavelkvkv/go-wireless-rdt/internal/wire"
)

func testLogger() *rdtlog.Logger { return rdtlog.New("test") }

// deliverBlock drives tx's whole BEGIN/DATA*/END burst straight into rx's
// HandleBegin/HandleData/HandleEnd, simulating an error-free link.
func deliverBlock(t *testing.T, tx, rx *Channel, block Block, now time.Time) RxOutcome {
	t.Helper()
	require.True(t, tx.Enqueue(block))

	outcome := tx.Tick(now)
	require.NotEmpty(t, outcome.Send)

	var rxOutcome RxOutcome
	for _, pkt := range outcome.Send {
		switch pkt.ServiceCode {
		case wire.ServiceBegin:
			rx.HandleBegin(pkt.Payload, now)
		case wire.ServiceData:
			rx.HandleData(pkt.SeqNum, pkt.Payload, now)
		case wire.ServiceEnd:
			rxOutcome = rx.HandleEnd(pkt.SeqNum, now)
		}
	}
	return rxOutcome
}

func TestFullBlockTransferNoLoss(t *testing.T) {
	now := time.Now()
	tx := New(0, 4, 4, 4096, testLogger())
	rx := New(0, 4, 4, 4096, testLogger())

	block := Block(make([]byte, 500))
	for i := range block {
		block[i] = byte(i)
	}

	outcome := deliverBlock(t, tx, rx, block, now)
	require.True(t, outcome.BlockReady)
	require.False(t, outcome.BlockDropped)
	require.NotNil(t, outcome.Send)
	require.Equal(t, wire.ServiceAsk, outcome.Send.ServiceCode)

	got, ok := rx.ReceiveBlock(0)
	require.True(t, ok)
	require.Equal(t, []byte(block), []byte(got))

	// ASK releases the tx-side state.
	tx.HandleAsk()
	require.False(t, tx.Tx.Sending)
}

func TestHandleEndWithMissingPacketsSendsNack(t *testing.T) {
	now := time.Now()
	tx := New(0, 4, 4, 4096, testLogger())
	rx := New(0, 4, 4, 4096, testLogger())

	block := Block(make([]byte, wire.PayloadSize*3))
	require.True(t, tx.Enqueue(block))
	outcome := tx.Tick(now)
	require.True(t, len(outcome.Send) >= 3)

	// Deliver BEGIN and END but drop every DATA packet.
	for _, pkt := range outcome.Send {
		switch pkt.ServiceCode {
		case wire.ServiceBegin:
			rx.HandleBegin(pkt.Payload, now)
		case wire.ServiceEnd:
			end := rx.HandleEnd(pkt.SeqNum, now)
			require.NotNil(t, end.Send)
			require.Equal(t, wire.ServiceNack, end.Send.ServiceCode)
			require.False(t, end.BlockReady)
		}
	}
}

// TestNackRecoveryCompletesBlockWithoutRestart covers END arriving before
// one missing DATA packet: the resulting NACK is answered with the
// retransmit, and the block must complete (ASK + BlockReady) off of that
// retransmitted DATA packet, not off a sender-side timeout restart.
func TestNackRecoveryCompletesBlockWithoutRestart(t *testing.T) {
	now := time.Now()
	tx := New(0, 4, 4, 4096, testLogger())
	rx := New(0, 4, 4, 4096, testLogger())

	block := Block(make([]byte, wire.PayloadSize*3))
	for i := range block {
		block[i] = byte(i)
	}
	require.True(t, tx.Enqueue(block))
	burst := tx.Tick(now)
	require.True(t, len(burst.Send) >= 5) // BEGIN + 3 DATA + END

	var dropped *wire.Packet
	var endOutcome RxOutcome
	for _, pkt := range burst.Send {
		switch pkt.ServiceCode {
		case wire.ServiceBegin:
			rx.HandleBegin(pkt.Payload, now)
		case wire.ServiceData:
			if pkt.SeqNum == 2 && dropped == nil {
				dropped = pkt // simulate losing exactly one DATA packet
				continue
			}
			rx.HandleData(pkt.SeqNum, pkt.Payload, now)
		case wire.ServiceEnd:
			endOutcome = rx.HandleEnd(pkt.SeqNum, now)
		}
	}
	require.NotNil(t, dropped)
	require.NotNil(t, endOutcome.Send)
	require.Equal(t, wire.ServiceNack, endOutcome.Send.ServiceCode)
	require.False(t, endOutcome.BlockReady)

	missing := wire.DecodeNack(endOutcome.Send.Payload)
	require.Equal(t, []uint16{2}, missing)

	retx := tx.HandleNack(endOutcome.Send.Payload, now.Add(time.Millisecond))
	require.Equal(t, 1, len(retx.Send))
	require.Equal(t, uint16(2), retx.Send[0].SeqNum)

	dataOutcome := rx.HandleData(retx.Send[0].SeqNum, retx.Send[0].Payload, now.Add(time.Millisecond))
	require.True(t, dataOutcome.BlockReady)
	require.False(t, dataOutcome.BlockDropped)
	require.NotNil(t, dataOutcome.Send)
	require.Equal(t, wire.ServiceAsk, dataOutcome.Send.ServiceCode)

	got, ok := rx.ReceiveBlock(0)
	require.True(t, ok)
	require.Equal(t, []byte(block), []byte(got))
}

func TestTxTimeoutRetriesThenAbandons(t *testing.T) {
	now := time.Now()
	tx := New(0, 4, 4, 4096, testLogger())

	block := Block(make([]byte, 100))
	require.True(t, tx.Enqueue(block))
	first := tx.Tick(now)
	require.NotEmpty(t, first.Send)
	require.Equal(t, 0, first.Resent)

	// Advance past AckTimeout MaxRetry times; each should retransmit the
	// whole burst until the final one abandons the block.
	for i := 0; i < MaxRetry-1; i++ {
		now = now.Add(AckTimeout + time.Millisecond)
		outcome := tx.Tick(now)
		require.NotEmpty(t, outcome.Send)
		require.Equal(t, len(outcome.Send), outcome.Resent)
		require.False(t, outcome.Abandoned)
	}

	now = now.Add(AckTimeout + time.Millisecond)
	final := tx.Tick(now)
	require.True(t, final.Abandoned)
	require.False(t, tx.Tx.Sending)
}

func TestHandleNackRetransmitsOnlyMissingSeqs(t *testing.T) {
	now := time.Now()
	tx := New(0, 4, 4, 4096, testLogger())

	block := Block(make([]byte, wire.PayloadSize*4))
	require.True(t, tx.Enqueue(block))
	tx.Tick(now)

	missing := []uint16{2, 4}
	payload := wire.EncodeNack(missing)
	outcome := tx.HandleNack(payload, now.Add(time.Millisecond))

	require.Equal(t, 2, len(outcome.Send))
	got := map[uint16]bool{}
	for _, pkt := range outcome.Send {
		got[pkt.SeqNum] = true
	}
	require.True(t, got[2])
	require.True(t, got[4])
	// NextSeqToSend is untouched by a NACK-driven resend.
	require.Equal(t, uint16(6), tx.Tx.NextSeqToSend)
}

func TestEnqueueRejectsOversizeBlock(t *testing.T) {
	c := New(0, 1, 1, 16, testLogger())
	ok := c.Enqueue(Block(make([]byte, 17)))
	require.False(t, ok)
}

func TestEnqueueDropsOnFullQueue(t *testing.T) {
	c := New(0, 1, 1, 64, testLogger())
	require.True(t, c.Enqueue(Block(make([]byte, 4))))
	require.False(t, c.Enqueue(Block(make([]byte, 4))))
}

func TestHandleDataIgnoresDuplicatesAndOutOfRange(t *testing.T) {
	now := time.Now()
	rx := New(0, 4, 4, 4096, testLogger())
	rx.HandleBegin(wire.EncodeBeginSize(wire.PayloadSize*2), now)

	rx.HandleData(1, [wire.PayloadSize]byte{}, now)
	require.Equal(t, 2, rx.Rx.PacketsReceived)

	rx.HandleData(1, [wire.PayloadSize]byte{}, now) // duplicate
	require.Equal(t, 2, rx.Rx.PacketsReceived)

	rx.HandleData(99, [wire.PayloadSize]byte{}, now) // out of range
	require.Equal(t, 2, rx.Rx.PacketsReceived)
}
