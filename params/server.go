package params

import (
	"github.com/pavelkvkv/go-wireless-rdt/engine"
	"github.com/pavelkvkv/go-wireless-rdt/internal/rdtlog"
)

// Server answers GET/SET requests against a Registry.
type Server struct {
	eng      *engine.Engine
	registry *Registry
	log      *rdtlog.Logger
}

// NewServer subscribes the server to engine.Params and returns it ready
// to answer requests.
func NewServer(eng *engine.Engine, registry *Registry, log *rdtlog.Logger) *Server {
	s := &Server{eng: eng, registry: registry, log: log}
	eng.Dispatcher().Register(engine.Params, s.onBlock)
	return s
}

func (s *Server) onBlock(uint8) {
	block, ok := s.eng.ReceiveBlock(engine.Params, 0)
	if !ok {
		return
	}

	req, ok := decodeMessage(block)
	if !ok {
		s.log.Error("params server: malformed request, %d bytes", len(block))
		return
	}
	if req.Op == OpResp {
		// Responses are for the client role; the server never sees its
		// own replies loop back in a correctly wired single engine.
		return
	}

	resp := s.handle(req)
	s.eng.Enqueue(engine.Params, resp.encode())
}

func (s *Server) handle(req message) message {
	resp := message{MessageType: req.MessageType, Op: OpResp}

	desc, found := s.registry.lookup(req.MessageType)
	if !found {
		resp.ReturnCode = RCNotRegistered
		return resp
	}

	switch req.Op {
	case OpGet:
		if desc.Read == nil {
			resp.ReturnCode = RCReadUnsupported
			return resp
		}
		data, err := desc.Read(MaxLength)
		if err != nil {
			s.log.Error("params server: read message_type=%d: %v", req.MessageType, err)
			resp.ReturnCode = RCReadUnsupported
			return resp
		}
		resp.Data = data
		resp.ReturnCode = RCOk
	case OpSet:
		if desc.Write == nil {
			resp.ReturnCode = RCWriteUnsupported
			return resp
		}
		if err := desc.Write(req.Data); err != nil {
			s.log.Error("params server: write message_type=%d: %v", req.MessageType, err)
			resp.ReturnCode = RCWriteUnsupported
			return resp
		}
		resp.ReturnCode = RCOk
	default:
		resp.ReturnCode = RCNotRegistered
	}
	return resp
}
