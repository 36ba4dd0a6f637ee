// Package dispatch implements the channel multiplexer's subscriber
// registry: zero or more consumers per channel, notified
// whenever a new block lands in that channel's rx queue. The
// register/trigger shape is grounded on
// ventosilenzioso-go-raknet/core/events/events.go's EventManager,
// generalized from a single global event type to one subscriber list per
// channel id.
package dispatch

import "sync"

// Handler is invoked with the channel id that just received a block. The
// handler is expected to call back into the channel's ReceiveBlock to
// actually dequeue it; dispatch only carries the notification, not the
// block itself, the channel id being the only discriminator a subscriber
// gets.
type Handler func(channel uint8)

// Dispatcher fans out per-channel block-arrival notifications to
// registered subscribers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[uint8][]Handler
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[uint8][]Handler)}
}

// Register subscribes h to notifications on channel.
func (d *Dispatcher) Register(channel uint8, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[channel] = append(d.handlers[channel], h)
}

// UnregisterAll removes every subscriber registered on channel. Handlers
// aren't directly comparable in general, so there is no per-handler
// removal.
func (d *Dispatcher) UnregisterAll(channel uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, channel)
}

// Notify invokes every subscriber registered on channel.
func (d *Dispatcher) Notify(channel uint8) {
	d.mu.RLock()
	hs := append([]Handler(nil), d.handlers[channel]...)
	d.mu.RUnlock()

	for _, h := range hs {
		h(channel)
	}
}
