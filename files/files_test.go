package files

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pavelkvkv/go-wireless-rdt/engine"
	"github.com/pavelkvkv/go-wireless-rdt/internal/dispatch"
	"github.com/pavelkvkv/go-wireless-rdt/internal/linkstats"
	"github.com/pavelkvkv/go-wireless-rdt/internal/rdtlog"
	"github.com/pavelkvkv/go-wireless-rdt/ports"
)

type fakeRadio struct {
	mac  ports.MAC
	peer *engine.Engine
}

func (r *fakeRadio) Send(peer ports.MAC, data []byte) error {
	if r.peer != nil {
		r.peer.OnReceive(r.mac, data, -50)
	}
	return nil
}
func (r *fakeRadio) AddPeer(ports.MAC) error { return nil }
func (r *fakeRadio) SetPMK(key []byte) error { return nil }

type memFile struct {
	fs   *memFS
	path string
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	data, ok := f.fs.files[f.path]
	if !ok {
		return 0, ports.ErrNotFound
	}
	if off >= int64(len(data)) {
		return 0, errEOF
	}
	return copy(p, data[off:]), nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
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
	f.fs.files[f.path] = append(f.fs.files[f.path], p...)
	return len(p), nil
}

func (f *memFile) Close() error { return nil }

type memFS struct {
	files map[string][]byte
}

func (fs *memFS) List(dir string) ([]byte, error) {
	var out []byte
	for name := range fs.files {
		out = append(out, []byte(name+"\n")...)
	}
	return out, nil
}

func (fs *memFS) Open(path string, mode string) (ports.File, error) {
	_, exists := fs.files[path]
	if !exists && mode == "r" {
		return nil, ports.ErrNotFound
	}
	if !exists {
		fs.files[path] = nil
	}
	return &memFile{fs: fs, path: path}, nil
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

const errEOF = simpleErr("eof")

func newFilesPair(t *testing.T) (client *Client, fs *memFS) {
	t.Helper()
	radioA := &fakeRadio{mac: ports.MAC{1}}
	radioB := &fakeRadio{mac: ports.MAC{2}}

	engA := engine.New("A", radioA, linkstats.New("A"), dispatch.New(), rdtlog.New("A"), nil)
	engB := engine.New("B", radioB, linkstats.New("B"), dispatch.New(), rdtlog.New("B"), nil)
	radioA.peer = engB
	radioB.peer = engA

	cfgs := map[uint8]engine.ChannelConfig{
		engine.Files: {RxQueueLen: 4, TxQueueLen: 4, MaxBlockSize: 64 * 1024},
	}
	engA.InitChannels(cfgs)
	engB.InitChannels(cfgs)

	go engA.Run()
	go engB.Run()
	t.Cleanup(func() {
		engA.Stop()
		engB.Stop()
	})

	fs = &memFS{files: make(map[string][]byte)}
	NewServer(engB, fs, rdtlog.New("filesB"))
	client = NewClient(engA, rdtlog.New("filesA"))
	return client, fs
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	client, _ := newFilesPair(t)

	res, err := client.Write("/a.bin", 0, []byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, RCOk, res.ReturnCode)

	res, err = client.Read("/a.bin", 0, 32)
	require.NoError(t, err)
	require.Equal(t, RCOk, res.ReturnCode)
	require.Equal(t, "hello world", string(res.Data))
}

func TestAppendWriteGrowsFile(t *testing.T) {
	client, _ := newFilesPair(t)

	_, err := client.Write("/log.txt", AppendOffset, []byte("one "))
	require.NoError(t, err)
	_, err = client.Write("/log.txt", AppendOffset, []byte("two"))
	require.NoError(t, err)

	res, err := client.Read("/log.txt", 0, 32)
	require.NoError(t, err)
	require.Equal(t, "one two", string(res.Data))
}

func TestReadMissingFileReturnsNoFile(t *testing.T) {
	client, _ := newFilesPair(t)

	res, err := client.Read("/nope.bin", 0, 16)
	require.NoError(t, err)
	require.Equal(t, RCNoFile, res.ReturnCode)
}

func TestListReturnsKnownPaths(t *testing.T) {
	client, fs := newFilesPair(t)
	fs.files["/existing.bin"] = []byte("x")

	res, err := client.List("/")
	require.NoError(t, err)
	require.Equal(t, RCOk, res.ReturnCode)
	require.Contains(t, string(res.Data), "existing.bin")
}

func TestNormalizePathAppendsSeparator(t *testing.T) {
	require.Equal(t, "/data/", normalizePath("/data"))
	require.Equal(t, "/data/", normalizePath("/data/"))
	require.Equal(t, "/a/b/", normalizePath("/a//b"))
}

func TestReadRequestCarriesNoPayloadBytes(t *testing.T) {
	msg := message{header: header{Command: CmdRead, RequestID: 7, Offset: 0, DataLength: 32}, Path: "/a.bin"}
	encoded := msg.encode()
	require.Equal(t, headerSize+len("/a.bin"), len(encoded), "a READ request must not carry payload bytes for the requested length")

	decoded, err := decodeMessage(encoded)
	require.NoError(t, err)
	require.Equal(t, uint32(32), decoded.DataLength)
	require.Empty(t, decoded.Data)
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	msg := message{
		header: header{Command: CmdWrite, ReturnCode: RCOk, RequestID: 42, Offset: 10, DataLength: 3, PathLength: 5},
		Path:   "/a/bc",
		Data:   []byte{1, 2, 3},
	}
	got, err := decodeMessage(msg.encode())
	require.NoError(t, err)
	require.Equal(t, msg.Command, got.Command)
	require.Equal(t, msg.RequestID, got.RequestID)
	require.Equal(t, msg.Offset, got.Offset)
	require.Equal(t, msg.Path, got.Path)
	require.Equal(t, msg.Data, got.Data)
}
