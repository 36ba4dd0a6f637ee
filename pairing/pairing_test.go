package pairing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pavelkvkv/go-wireless-rdt/engine"
	"github.com/pavelkvkv/go-wireless-rdt/internal/dispatch"
	"github.com/pavelkvkv/go-wireless-rdt/internal/linkstats"
	"github.com/pavelkvkv/go-wireless-rdt/internal/rdtlog"
	"github.com/pavelkvkv/go-wireless-rdt/ports"
)

type fakeRadio struct {
	mac   ports.MAC
	peer  *engine.Engine
	added []ports.MAC
}

func (r *fakeRadio) Send(peer ports.MAC, data []byte) error {
	if r.peer != nil {
		r.peer.OnReceive(r.mac, data, -50)
	}
	return nil
}
func (r *fakeRadio) AddPeer(mac ports.MAC) error {
	r.added = append(r.added, mac)
	return nil
}
func (r *fakeRadio) SetPMK(key []byte) error { return nil }

type memStore struct {
	peer    ports.MAC
	pending ports.MAC
}

func (m *memStore) GetPairedPeer() (ports.MAC, error) { return m.peer, nil }
func (m *memStore) SetPairedPeer(mac ports.MAC) error { m.pending = mac; return nil }
func (m *memStore) Commit() error                     { m.peer = m.pending; return nil }

func newPairedEngines(t *testing.T) (engA, engB *engine.Engine, macA, macB ports.MAC, radioA, radioB *fakeRadio) {
	t.Helper()
	macA = ports.MAC{1, 0, 0, 0, 0, 1}
	macB = ports.MAC{2, 0, 0, 0, 0, 2}

	radioA = &fakeRadio{mac: macA}
	radioB = &fakeRadio{mac: macB}

	engA = engine.New("A", radioA, linkstats.New("A"), dispatch.New(), rdtlog.New("A"), nil)
	engB = engine.New("B", radioB, linkstats.New("B"), dispatch.New(), rdtlog.New("B"), nil)
	radioA.peer = engB
	radioB.peer = engA

	cfgs := map[uint8]engine.ChannelConfig{
		engine.System: {RxQueueLen: 4, TxQueueLen: 4, MaxBlockSize: 256},
	}
	engA.InitChannels(cfgs)
	engB.InitChannels(cfgs)

	go engA.Run()
	go engB.Run()
	t.Cleanup(func() {
		engA.Stop()
		engB.Stop()
	})
	return engA, engB, macA, macB, radioA, radioB
}

func TestPairingHandshakeFinalizes(t *testing.T) {
	engA, engB, macA, macB, radioA, radioB := newPairedEngines(t)

	storeA := &memStore{}
	storeB := &memStore{}
	svcA := New(engA, storeA, macA, rdtlog.New("pairA"))
	svcB := New(engB, storeB, macB, rdtlog.New("pairB"))

	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	svcA.Begin(ctx)
	svcB.Begin(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if svcA.Status() == Paired && svcB.Status() == Paired {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	require.Equal(t, Paired, svcA.Status())
	require.Equal(t, Paired, svcB.Status())
	require.Equal(t, macB, engA.Peer())
	require.Equal(t, macA, engB.Peer())
	require.Contains(t, radioA.added, macB, "finalize must register the peer with the radio driver")
	require.Contains(t, radioB.added, macA, "finalize must register the peer with the radio driver")
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	msg := message{Type: TypeDone, PeerAddr: ports.MAC{9, 8, 7, 6, 5, 4}, Channel: 0}
	encoded := msg.encode()

	got, ok := decodeMessage(encoded)
	require.True(t, ok)
	require.Equal(t, msg, got)
}

func TestMessageDecodeRejectsShortBuffer(t *testing.T) {
	_, ok := decodeMessage([]byte{1, 2, 3})
	require.False(t, ok)
}
