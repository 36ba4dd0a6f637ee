package files

import (
	"errors"
	"sync"

	"github.com/pavelkvkv/go-wireless-rdt/engine"
	"github.com/pavelkvkv/go-wireless-rdt/internal/rdtlog"
	"github.com/pavelkvkv/go-wireless-rdt/ports"
)

// Server answers LIST/READ/WRITE requests against a ports.FileSystem.
// It remembers the last read offset per
// path so a READ carrying NoSeekOffset continues where the previous
// one on that path left off, the way a single open file descriptor
// would in the C original. A WRITE carrying the same sentinel value is
// an append (see AppendOffset).
type Server struct {
	eng *engine.Engine
	fs  ports.FileSystem
	log *rdtlog.Logger

	mu       sync.Mutex
	readPos  map[string]int64
	writePos map[string]int64
}

// NewServer subscribes the server to engine.Files.
func NewServer(eng *engine.Engine, fs ports.FileSystem, log *rdtlog.Logger) *Server {
	s := &Server{
		eng:      eng,
		fs:       fs,
		log:      log,
		readPos:  make(map[string]int64),
		writePos: make(map[string]int64),
	}
	eng.Dispatcher().Register(engine.Files, s.onBlock)
	return s
}

func (s *Server) onBlock(uint8) {
	block, ok := s.eng.ReceiveBlock(engine.Files, 0)
	if !ok {
		return
	}

	req, err := decodeMessage(block)
	if err != nil {
		s.log.Error("files server: %v", err)
		return
	}

	if len(req.Path) > MaxPath || len(req.Data) > MaxData {
		s.reply(req, respCommand(req.Command), RCInternal, 0, nil)
		return
	}

	switch req.Command {
	case CmdList:
		s.handleList(req)
	case CmdRead:
		s.handleRead(req)
	case CmdWrite:
		s.handleWrite(req)
	default:
		// Responses to our own requests, or an unknown command; the
		// server only reacts to odd (request) commands.
	}
}

func respCommand(cmd uint8) uint8 {
	return cmd + 1
}

func (s *Server) reply(req message, command uint8, rc uint8, offset uint32, data []byte) {
	resp := message{
		header: header{
			Command:    command,
			ReturnCode: rc,
			RequestID:  req.RequestID,
			Offset:     offset,
		},
		Path: req.Path,
		Data: data,
	}
	s.eng.Enqueue(engine.Files, resp.encode())
}

func (s *Server) handleList(req message) {
	data, err := s.fs.List(req.Path)
	if err != nil {
		s.log.Error("files server: list %q: %v", req.Path, err)
		s.reply(req, CmdListResp, classifyErr(err), 0, nil)
		return
	}
	if len(data) > MaxData {
		data = data[:MaxData]
	}
	s.reply(req, CmdListResp, RCOk, 0, data)
}

func (s *Server) handleRead(req message) {
	f, err := s.fs.Open(req.Path, "r")
	if err != nil {
		s.log.Error("files server: open %q for read: %v", req.Path, err)
		s.reply(req, CmdReadResp, classifyErr(err), 0, nil)
		return
	}
	defer f.Close()

	offset := req.Offset
	if offset == NoSeekOffset {
		s.mu.Lock()
		offset = uint32(s.readPos[req.Path])
		s.mu.Unlock()
	}

	length := req.DataLength
	if length == 0 || length > MaxData {
		length = MaxData
	}

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, int64(offset))
	if err != nil && n == 0 {
		s.log.Error("files server: read %q at %d: %v", req.Path, offset, err)
		s.reply(req, CmdReadResp, RCIO, offset, nil)
		return
	}

	s.mu.Lock()
	s.readPos[req.Path] = int64(offset) + int64(n)
	s.mu.Unlock()

	s.reply(req, CmdReadResp, RCOk, offset, buf[:n])
}

func (s *Server) handleWrite(req message) {
	if req.Offset == AppendOffset {
		f, err := s.fs.Open(req.Path, "a")
		if err != nil {
			s.log.Error("files server: open %q for append: %v", req.Path, err)
			s.reply(req, CmdWriteResp, classifyErr(err), 0, nil)
			return
		}
		defer f.Close()

		n, err := f.Write(req.Data)
		if err != nil {
			s.log.Error("files server: append %q: %v", req.Path, err)
			s.reply(req, CmdWriteResp, RCIO, 0, nil)
			return
		}
		s.reply(req, CmdWriteResp, RCOk, AppendOffset, nil)
		_ = n
		return
	}

	offset := req.Offset
	if offset == NoSeekOffset {
		s.mu.Lock()
		offset = uint32(s.writePos[req.Path])
		s.mu.Unlock()
	}

	f, err := s.fs.Open(req.Path, "rw")
	if err != nil {
		s.log.Error("files server: open %q for write: %v", req.Path, err)
		s.reply(req, CmdWriteResp, classifyErr(err), 0, nil)
		return
	}
	defer f.Close()

	n, err := f.WriteAt(req.Data, int64(offset))
	if err != nil {
		s.log.Error("files server: write %q at %d: %v", req.Path, offset, err)
		s.reply(req, CmdWriteResp, RCIO, offset, nil)
		return
	}

	s.mu.Lock()
	s.writePos[req.Path] = int64(offset) + int64(n)
	s.mu.Unlock()

	s.reply(req, CmdWriteResp, RCOk, offset, nil)
}

func classifyErr(err error) uint8 {
	if errors.Is(err, ports.ErrNotFound) {
		return RCNoFile
	}
	return RCIO
}
