package main

import (
	"fmt"
	"sync"

	"github.com/pavelkvkv/go-wireless-rdt/ports"
)

// loopbackRadio wires two engines together in-process, standing in for
// the real ESP-NOW broadcast link the C original drives (w_channels.c's
// Wireless_Channel_Receive_Callback_Register expects exactly this
// shape: an async callback fed by whatever owns the radio).
type loopbackRadio struct {
	mac ports.MAC

	mu    sync.Mutex
	peers map[ports.MAC]bool
	peer  *loopbackRadio // the other end of the pair

	onReceive func(src ports.MAC, data []byte, rssi int)
}

func newLoopbackRadio(mac ports.MAC) *loopbackRadio {
	return &loopbackRadio{mac: mac, peers: make(map[ports.MAC]bool)}
}

func link(a, b *loopbackRadio) {
	a.peer = b
	b.peer = a
}

func (r *loopbackRadio) Send(peer ports.MAC, data []byte) error {
	r.mu.Lock()
	dst := r.peer
	r.mu.Unlock()
	if dst == nil {
		return fmt.Errorf("loopback: no peer linked")
	}
	if dst.onReceive != nil {
		dst.onReceive(r.mac, data, -40)
	}
	return nil
}

func (r *loopbackRadio) AddPeer(mac ports.MAC) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[mac] = true
	return nil
}

func (r *loopbackRadio) SetPMK(key []byte) error { return nil }

// memPersistence is an in-memory ports.Persistence for the demo binary.
type memPersistence struct {
	mu      sync.Mutex
	peer    ports.MAC
	pending ports.MAC
}

func (p *memPersistence) GetPairedPeer() (ports.MAC, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer, nil
}

func (p *memPersistence) SetPairedPeer(mac ports.MAC) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = mac
	return nil
}

func (p *memPersistence) Commit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peer = p.pending
	return nil
}

// memFile implements ports.File over an in-memory byte slice.
type memFile struct {
	fs     *memFS
	path   string
	append bool
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	data, ok := f.fs.files[f.path]
	if !ok {
		return 0, ports.ErrNotFound
	}
	if off >= int64(len(data)) {
		return 0, fmt.Errorf("memfile: eof")
	}
	n := copy(p, data[off:])
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	data := f.fs.files[f.path]
	end := off + int64(len(p))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[off:end], p)
	f.fs.files[f.path] = data
	return len(p), nil
}

func (f *memFile) Write(p []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	f.fs.files[f.path] = append(f.fs.files[f.path], p...)
	return len(p), nil
}

func (f *memFile) Close() error { return nil }

// memFS is an in-memory ports.FileSystem for the demo binary.
type memFS struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFS() *memFS {
	return &memFS{files: make(map[string][]byte)}
}

func (fs *memFS) List(dir string) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []byte
	for name := range fs.files {
		out = append(out, []byte(name+"\n")...)
	}
	return out, nil
}

func (fs *memFS) Open(path string, mode string) (ports.File, error) {
	fs.mu.Lock()
	_, exists := fs.files[path]
	if !exists && mode == "r" {
		fs.mu.Unlock()
		return nil, ports.ErrNotFound
	}
	if !exists {
		fs.files[path] = nil
	}
	fs.mu.Unlock()
	return &memFile{fs: fs, path: path, append: mode == "a"}, nil
}
