// Package pairing implements the two-way pairing handshake with mutual
// acknowledgement and partial-pairing rollback. The
// clear-before-start / finalize-on-mutual-DONE / revert-on-timeout shape
// and the have_temp_peer / got_done_from_peer bookkeeping are ported
// directly from the C original's w_connect.c
// (Wireless_Pairing_Begin/wireless_pairing_task/
// wireless_pairing_receive_cb/finalize_pairing/revert_pairing), carried
// over in more detail than the distilled summary spelled out.
package pairing

import (
	"context"
	"sync"
	"time"

	"github.com/pavelkvkv/go-wireless-rdt/engine"
	"github.com/pavelkvkv/go-wireless-rdt/internal/rdtlog"
	"github.com/pavelkvkv/go-wireless-rdt/ports"
)

// Timeout is the overall pairing-task deadline.
const Timeout = 10 * time.Second

// broadcastInterval is how often the pairing task re-announces our MAC
// while waiting for a peer.
const broadcastInterval = 1000 * time.Millisecond

// State is the externally-queryable pairing status, mirroring
// Wireless_Pairing_Status_Get in the C original.
type State int

const (
	NotPaired State = iota
	Active
	Paired
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Paired:
		return "paired"
	default:
		return "not_paired"
	}
}

// Service drives the pairing handshake over engine.System.
type Service struct {
	eng   *engine.Engine
	store ports.Persistence
	local ports.MAC
	log   *rdtlog.Logger

	mu              sync.Mutex
	active          bool
	haveTempPeer    bool
	tempPeer        ports.MAC
	gotDoneFromPeer bool

	cancelTask context.CancelFunc
}

// New constructs a Service for the given local MAC.
func New(eng *engine.Engine, store ports.Persistence, local ports.MAC, log *rdtlog.Logger) *Service {
	return &Service{eng: eng, store: store, local: local, log: log}
}

// Status reports NotPaired, Active, or Paired, and is queryable at any
// time, not just at handshake end.
func (s *Service) Status() State {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	if active {
		return Active
	}

	peer, err := s.store.GetPairedPeer()
	if err != nil {
		s.log.Error("pairing: get paired peer: %v", err)
		return NotPaired
	}
	if peer.IsZero() {
		s.log.Info("pairing not found, mac: %x", peer)
		return NotPaired
	}
	s.log.Info("pairing found, mac: %x", peer)
	return Paired
}

// Begin starts the pairing handshake: it clears the persisted peer (to
// guard against a stale partial pairing), resets the temporary state,
// subscribes the pairing handler on SYSTEM, and starts the background
// pairing task with a Timeout deadline. ctx additionally lets the caller
// cancel early (e.g. process shutdown); this has no spec analogue but
// doesn't change the handshake semantics.
func (s *Service) Begin(ctx context.Context) {
	s.mu.Lock()
	s.active = true
	s.haveTempPeer = false
	s.tempPeer = ports.MAC{}
	s.gotDoneFromPeer = false
	s.mu.Unlock()

	if err := s.store.SetPairedPeer(ports.MAC{}); err != nil {
		s.log.Error("pairing: clear persisted peer: %v", err)
	}
	if err := s.store.Commit(); err != nil {
		s.log.Error("pairing: commit cleared peer: %v", err)
	}

	s.eng.Dispatcher().Register(engine.System, s.onBlock)

	taskCtx, cancel := context.WithTimeout(ctx, Timeout)
	s.cancelTask = cancel
	go s.task(taskCtx)
}

// task periodically broadcasts PAIRING_MAC until a mutual DONE is seen
// or the context deadline passes.
func (s *Service) task(ctx context.Context) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	s.broadcastMAC()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			done := s.gotDoneFromPeer
			s.mu.Unlock()
			if !done {
				s.log.Warn("pairing task timed out")
				s.revert()
			}
			return
		case <-ticker.C:
			s.mu.Lock()
			done := s.gotDoneFromPeer
			s.mu.Unlock()
			if done {
				s.finalize()
				return
			}
			s.broadcastMAC()
		}
	}
}

func (s *Service) broadcastMAC() {
	s.log.Info("broadcasting pairing request...")
	msg := message{Type: TypeMAC, PeerAddr: s.local, Channel: 0}
	s.eng.Enqueue(engine.System, msg.encode())
}

// onBlock is the pairing subscriber: it drains the System channel's rx
// queue and processes the pairing message within.
func (s *Service) onBlock(uint8) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	block, ok := s.eng.ReceiveBlock(engine.System, 0)
	if !ok {
		return
	}

	msg, ok := decodeMessage(block)
	if !ok {
		s.log.Error("pairing: invalid block size %d", len(block))
		return
	}

	switch msg.Type {
	case TypeMAC:
		s.handleMAC(msg)
	case TypeDone:
		s.handleDone(msg)
	default:
		s.log.Warn("pairing: unknown message type %d", msg.Type)
	}
}

func (s *Service) handleMAC(msg message) {
	if msg.PeerAddr.IsZero() {
		s.log.Warn("pairing request with zero MAC - ignoring")
		return
	}
	s.log.Info("received PAIRING_MAC from %x", msg.PeerAddr)

	s.rememberPeer(msg.PeerAddr)

	reply := message{Type: TypeDone, PeerAddr: s.local, Channel: 0}
	s.eng.Enqueue(engine.System, reply.encode())
	s.log.Info("sending DONE packet in response to pairing request")
}

func (s *Service) handleDone(msg message) {
	if msg.PeerAddr.IsZero() {
		s.log.Warn("received DONE from zero MAC - ignoring")
		return
	}
	s.log.Info("received PAIRING_DONE from %x", msg.PeerAddr)

	s.rememberPeer(msg.PeerAddr)

	s.mu.Lock()
	s.gotDoneFromPeer = true
	s.mu.Unlock()
}

func (s *Service) rememberPeer(peer ports.MAC) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveTempPeer {
		s.tempPeer = peer
		s.haveTempPeer = true
		return
	}
	if s.tempPeer != peer {
		s.log.Warn("received pairing message from different peer, ignoring")
	}
}

// finalize persists the temp peer, registers it with the radio, and
// unsubscribes.
func (s *Service) finalize() {
	s.log.Info("pairing successful, finalizing...")

	s.mu.Lock()
	peer := s.tempPeer
	s.mu.Unlock()

	if err := s.store.SetPairedPeer(peer); err != nil {
		s.log.Error("pairing: persist peer: %v", err)
	}
	if err := s.store.Commit(); err != nil {
		s.log.Error("pairing: commit: %v", err)
	}
	s.eng.SetPeer(peer)

	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.eng.Dispatcher().UnregisterAll(engine.System)
}

// revert persists an all-zero peer and unsubscribes.
func (s *Service) revert() {
	s.log.Warn("reverting pairing, no mutual confirmation")

	if err := s.store.SetPairedPeer(ports.MAC{}); err != nil {
		s.log.Error("pairing: clear peer on revert: %v", err)
	}
	if err := s.store.Commit(); err != nil {
		s.log.Error("pairing: commit revert: %v", err)
	}

	s.mu.Lock()
	s.active = false
	s.haveTempPeer = false
	s.gotDoneFromPeer = false
	s.tempPeer = ports.MAC{}
	s.mu.Unlock()

	s.eng.Dispatcher().UnregisterAll(engine.System)
}
