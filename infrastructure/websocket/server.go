package websocket

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	readBufferSize  = 8192
	writeBufferSize = 8192
)

type Options struct {
	Session       SessionConfig
	PongWait      time.Duration
	MaxFrameBytes int64
}

// Server upgrades HTTP requests to chat sessions and keeps track of them
// until they end, so that a shutdown can close every live connection.
type Server struct {
	ctx      context.Context
	log      *slog.Logger
	opts     Options
	services Services
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[domain.ConnectionID]*Session
	wg       sync.WaitGroup
}

// NewServer builds the websocket endpoint. ctx bounds every session it starts.
func NewServer(ctx context.Context, log *slog.Logger, opts Options, services Services) *Server {
	return &Server{
		ctx:      ctx,
		log:      log,
		opts:     opts,
		services: services,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		sessions: make(map[domain.ConnectionID]*Session),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	creds := auth.FromRequest(r)
	var header http.Header
	if creds.Subprotocol != "" {
		header = http.Header{"Sec-WebSocket-Protocol": []string{creds.Subprotocol}}
	}

	raw, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		// the upgrader already answered the client
		s.log.Debug("Websocket upgrade failed", "error", err)
		return
	}

	conn := newWSConn(raw, s.opts.MaxFrameBytes, s.opts.Session.WriteTimeout, s.opts.PongWait)
	session := NewSession(domain.ConnectionID(uuid.NewString()), s.log, conn, s.opts.Session, s.services, creds.Token)
	if !s.track(session) {
		_ = conn.WriteClose(websocket.CloseGoingAway, "server shutdown")
		_ = conn.Close()
		return
	}
	defer s.untrack(session)

	session.Run(s.ctx)
}

func (s *Server) track(session *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		return false
	}
	s.sessions[session.ID()] = session
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(session *Session) {
	s.mu.Lock()
	delete(s.sessions, session.ID())
	s.mu.Unlock()
	s.wg.Done()
}

// Count returns the number of live sessions on this process.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown refuses new sessions, closes the live ones and waits for their
// teardown, or for ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.sessions = nil
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("All websocket sessions closed", "count", len(sessions))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
