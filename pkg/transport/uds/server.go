package uds

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// ErrNoPeer is returned by Subscribe when ctx was not passed to a handler.
var ErrNoPeer = errors.New("no peer in context")

const (
	writeTimeout = 5 * time.Second

	// MaxRequestSize bounds one request line read from a client.
	MaxRequestSize = 16 << 20
)

// HandlerFunc processes a request and returns a response data payload or error.
type HandlerFunc func(ctx context.Context, req Message) (any, error)

type peerKey struct{}

// peer is one connected client. Writes are serialized because responses and
// published events are sent from different goroutines.
type peer struct {
	conn   net.Conn
	wmu    sync.Mutex
	topics map[string]struct{} // guarded by Server.mu
}

func (p *peer) write(line []byte) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := p.conn.Write(line)
	return err
}

// Server listens on a Unix domain socket and dispatches NDJSON messages.
type Server struct {
	socketPath string
	listener   net.Listener
	handlers   map[string]HandlerFunc
	clients    map[*peer]struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
	ready      chan struct{}
	readyOnce  sync.Once
}

// NewServer creates a new UDS server.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]HandlerFunc),
		clients:    make(map[*peer]struct{}),
		logger:     logger,
		ready:      make(chan struct{}),
	}
}

// Handle registers a handler for a method.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.handlers[method] = h
}

// Ready is closed once the socket is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Start begins listening. It removes any stale socket file first.
func (s *Server) Start(ctx context.Context) error {
	// Remove stale socket
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("server listening", "socket", s.socketPath)
	s.readyOnce.Do(func() { close(s.ready) })

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil // shutting down
			}
			s.logger.Error("accept error", "err", err)
			continue
		}
		p := &peer{conn: conn, topics: make(map[string]struct{})}
		s.mu.Lock()
		s.clients[p] = struct{}{}
		s.mu.Unlock()
		go s.handleConn(ctx, p)
	}
}

// Subscribe adds the calling peer to topic. It must be called with the
// context a handler received.
func (s *Server) Subscribe(ctx context.Context, topic string) error {
	p, ok := ctx.Value(peerKey{}).(*peer)
	if !ok {
		return ErrNoPeer
	}
	s.mu.Lock()
	p.topics[topic] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Unsubscribe removes the calling peer from topic.
func (s *Server) Unsubscribe(ctx context.Context, topic string) error {
	p, ok := ctx.Value(peerKey{}).(*peer)
	if !ok {
		return ErrNoPeer
	}
	s.mu.Lock()
	delete(p.topics, topic)
	s.mu.Unlock()
	return nil
}

// Subscribers returns how many peers are subscribed to topic.
func (s *Server) Subscribers(topic string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for p := range s.clients {
		if _, ok := p.topics[topic]; ok {
			n++
		}
	}
	return n
}

// Publish sends an event to the peers subscribed to topic.
func (s *Server) Publish(topic string, msg Message) {
	s.send(msg, func(p *peer) bool {
		_, ok := p.topics[topic]
		return ok
	})
}

// Broadcast sends an event to all connected clients.
func (s *Server) Broadcast(msg Message) {
	s.send(msg, func(*peer) bool { return true })
}

func (s *Server) send(msg Message, match func(*peer) bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("broadcast marshal error", "err", err)
		return
	}
	line := append(data, '\n')

	s.mu.RLock()
	targets := make([]*peer, 0, len(s.clients))
	for p := range s.clients {
		if match(p) {
			targets = append(targets, p)
		}
	}
	s.mu.RUnlock()

	for _, p := range targets {
		if err := p.write(line); err != nil {
			s.logger.Warn("dropping slow or closed client", "method", msg.Method, "err", err)
			p.conn.Close()
		}
	}
}

// Shutdown cleanly stops the server.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for p := range s.clients {
		p.conn.Close()
	}
	s.mu.Unlock()
	os.Remove(s.socketPath)
}

func (s *Server) handleConn(ctx context.Context, p *peer) {
	defer func() {
		p.conn.Close()
		s.mu.Lock()
		delete(s.clients, p)
		s.mu.Unlock()
	}()

	pctx := context.WithValue(ctx, peerKey{}, p)
	scanner := bufio.NewScanner(p.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxRequestSize)

	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			s.logger.Error("invalid message", "err", err)
			continue
		}

		if msg.Type != MsgTypeReq {
			continue
		}

		handler, ok := s.handlers[msg.Method]
		if !ok {
			resp := NewErrorResponse(msg.ID, msg.Method, fmt.Sprintf("unknown method: %s", msg.Method))
			s.writeMessage(p, resp)
			continue
		}

		result, err := handler(pctx, msg)
		var resp Message
		if err != nil {
			resp = NewErrorResponse(msg.ID, msg.Method, err.Error())
		} else if resp, err = NewResponse(msg.ID, msg.Method, result); err != nil {
			resp = NewErrorResponse(msg.ID, msg.Method, err.Error())
		}
		s.writeMessage(p, resp)
	}
}

func (s *Server) writeMessage(p *peer, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("marshal response error", "err", err)
		return
	}
	data = append(data, '\n')
	if err := p.write(data); err != nil {
		s.logger.Error("write response error", "err", err)
	}
}
