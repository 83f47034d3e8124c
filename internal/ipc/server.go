package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxLine bounds one request line. Longer frames are unrecoverable and
// close the connection.
const maxLine = 1 << 20

// requestTimeout bounds one request's handling, including the remote call
// behind send_text/mark_read.
const requestTimeout = 2 * time.Minute

// Server owns the account's unix socket while the daemon runs. Each
// connected client gets its own goroutine; the handler behind it funnels
// every write through the store's single writer path, so IPC commands
// never race the sync engine.
type Server struct {
	path    string
	handler Handler
	logger  *zap.Logger

	ln     net.Listener
	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[string]net.Conn
	closed bool
}

// NewServer creates an IPC server bound to nothing yet.
func NewServer(path string, h Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		path:    path,
		handler: h,
		logger:  logger.Named("ipc"),
		conns:   make(map[string]net.Conn),
	}
}

// Start binds the socket and begins accepting. A leftover socket file is
// removed first; the caller already holds the store lock, so any such
// file is stale, not a live daemon's.
func (s *Server) Start(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("bind socket: %w", err)
	}
	s.ln = ln
	s.logger.Info("listening", zap.String("socket", s.path))

	s.wg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

// Stop closes the listener, lets in-flight handlers finish writing their
// responses, then removes the socket file.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.closed = true
	conns := make([]net.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	// Shut down only the read half so a response in flight still reaches
	// its client; the handler closes the connection when it returns.
	for _, c := range conns {
		if uc, ok := c.(*net.UnixConn); ok {
			_ = uc.CloseRead()
		} else {
			_ = c.Close()
		}
	}
	s.wg.Wait()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || ctx.Err() != nil {
				return
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		id := uuid.NewString()
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[id] = conn
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(ctx, id, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, id string, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
	}()

	log := s.logger.With(zap.String("conn", id))
	log.Debug("client connected")

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLine)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			// Malformed but framed: answer and keep the connection.
			if werr := enc.Encode(Response{OK: false, Error: "malformed request: " + err.Error()}); werr != nil {
				return
			}
			continue
		}

		resp := s.dispatch(ctx, log, &req)
		if err := enc.Encode(resp); err != nil {
			log.Warn("write response failed", zap.Error(err))
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		// Broken framing or transport: nothing left to answer on.
		log.Debug("client read ended", zap.Error(err))
	}
}

func (s *Server) dispatch(ctx context.Context, log *zap.Logger, req *Request) Response {
	if err := req.Validate(); err != nil {
		return Response{OK: false, Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	switch req.Action {
	case ActionPing:
		if err := s.handler.Ping(ctx); err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true}

	case ActionSendText:
		id, err := s.handler.SendText(ctx, req.To, req.Message)
		if err != nil {
			log.Warn("send_text failed", zap.Int64("chat_id", req.To), zap.Error(err))
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true, MessageID: id}

	case ActionMarkRead:
		if err := s.handler.MarkRead(ctx, req.Chat, req.MessageIDs); err != nil {
			log.Warn("mark_read failed", zap.Int64("chat_id", req.Chat), zap.Error(err))
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true}
	}
	return Response{OK: false, Error: "unknown action " + req.Action}
}
