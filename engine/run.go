package engine

import (
	"time"

	"github.com/pavelkvkv/go-wireless-rdt/internal/channel"
	"github.com/pavelkvkv/go-wireless-rdt/internal/wire"
	"github.com/pavelkvkv/go-wireless-rdt/ports"
)

// OnReceive is the radio driver's inbound callback. It does only the
// source-MAC filter, the RSSI update, and a non-blocking copy into the
// event queue; CRC validation and channel dispatch happen later, in
// Run's engine task, never on this call stack, since this may run from
// an interrupt-like context.
func (e *Engine) OnReceive(src ports.MAC, data []byte, rssi int) {
	peer := e.Peer()
	if !peer.IsZero() && src != peer && peer != ports.Broadcast {
		// Peer filter: packets from any other source MAC are
		// silently dropped, no stats, no reassembly state change.
		return
	}

	e.stats.RecordRSSI(rssi)

	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case e.events <- ports.InboundPacket{Source: src, Data: buf, RSSI: rssi, Time: e.now()}:
	default:
		e.log.Warn("event queue full, dropping inbound datagram from %x", src)
	}
}

// Run executes the engine task until Stop is called: it blocks on the
// event queue with a Tick timeout, processes at most one inbound
// datagram per wakeup, then ticks every channel's send machine.
func (e *Engine) Run() {
	defer close(e.doneCh)
	ticker := time.NewTicker(Tick)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case evt := <-e.events:
			e.handleInbound(evt)
			e.tickAll()
		case <-ticker.C:
			e.tickAll()
		}
	}
}

// Stop signals Run to exit and waits for it to do so.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	<-e.doneCh
}

func (e *Engine) handleInbound(evt ports.InboundPacket) {
	pkt, err := wire.Decode(evt.Data)
	if err != nil {
		// CRC failure or malformed length: silent drop.
		e.log.Debug("dropping malformed packet from %x: %v", evt.Source, err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.channelAt(pkt.Channel)
	if c == nil {
		e.log.Debug("packet for unknown channel %d dropped", pkt.Channel)
		return
	}

	now := evt.Time
	switch pkt.ServiceCode {
	case wire.ServiceBegin:
		c.HandleBegin(pkt.Payload, now)
	case wire.ServiceEnd:
		outcome := c.HandleEnd(pkt.SeqNum, now)
		e.sendRx(outcome, pkt.Channel)
	case wire.ServiceData:
		outcome := c.HandleData(pkt.SeqNum, pkt.Payload, now)
		e.sendRx(outcome, pkt.Channel)
	case wire.ServiceAsk:
		c.HandleAsk()
	case wire.ServiceNack:
		outcome := c.HandleNack(pkt.Payload, now)
		e.sendTx(outcome)
	default:
		e.log.Debug("unknown service code %d on channel %d dropped", pkt.ServiceCode, pkt.Channel)
	}
}

func (e *Engine) tickAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, c := range e.channels {
		if c == nil {
			continue
		}
		outcome := c.Tick(now)
		e.sendTx(outcome)
	}
}

// sendRx transmits a receiver-side control packet (ASK/NACK) produced by
// HandleEnd or HandleData and notifies subscribers if a block just
// completed.
func (e *Engine) sendRx(outcome channel.RxOutcome, channelID uint8) {
	if outcome.Send != nil {
		e.transmit(outcome.Send)
	}
	if outcome.BlockReady && !outcome.BlockDropped {
		e.disp.Notify(channelID)
	}
}

// sendTx transmits every packet in a send-machine outcome and updates
// the sent/resent counters.
func (e *Engine) sendTx(outcome channel.TxOutcome) {
	for i, pkt := range outcome.Send {
		e.transmit(pkt)
		e.stats.RecordSend()
		if i < outcome.Resent {
			e.stats.RecordResend()
		}
	}
}

func (e *Engine) transmit(pkt *wire.Packet) {
	peer := e.peer
	if err := e.radio.Send(peer, pkt.Encode()); err != nil {
		e.log.Warn("radio send failed on channel %d: %v", pkt.Channel, err)
	}
}
