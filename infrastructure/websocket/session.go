package websocket

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	customerrors "chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/sink"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateRoomJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateRoomJoined:
		return "room_joined"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type SessionConfig struct {
	AuthTimeout  time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
	StoreTimeout time.Duration
	QueueSize    int
}

// Services is the shared state injected into every session.
type Services struct {
	Verifier      contract.ITokenVerifier
	Registry      contract.IRegistry
	Presence      contract.IPresenceTracker
	Conversations contract.IConversationStore
	Notifications contract.INotificationStore
	Metrics       *observability.Metrics
}

// errCloseSession asks the read loop to end the session.
type errCloseSession struct {
	code   int
	reason string
	cause  error
}

func (e errCloseSession) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.reason, e.cause)
	}
	return e.reason
}

func (e errCloseSession) Unwrap() error {
	return e.cause
}

func closeWith(code int, reason string, cause error) error {
	return errCloseSession{code: code, reason: reason, cause: cause}
}

type handler func(s *Session, ctx context.Context, cmd chat.Command) error

// handlers is the single dispatch table of authenticated sessions.
// Types missing here are ignored.
var handlers = map[chat.Type]handler{
	chat.Authenticate:    (*Session).handleLateAuthenticate,
	chat.JoinRoomRequest: (*Session).handleJoinRoom,
	chat.LeaveRoom:       (*Session).handleLeaveRoom,
	chat.NotificationAck: (*Session).handleNotificationAck,
}

// Session drives one live connection through
// Connecting -> Authenticated -> RoomJoined* -> Closed.
//
// Inbound frames are handled one at a time by the goroutine calling Run.
// Outbound events go through a bounded sink drained by a writer goroutine.
type Session struct {
	id       domain.ConnectionID
	log      *slog.Logger
	conn     Conn
	cfg      SessionConfig
	services Services
	token    string
	sink     *sink.ConnectionSink

	mu              sync.Mutex
	state           State
	user            domain.UserID
	room            *domain.ConversationID
	presenceCounted bool

	authenticated atomic.Bool
	closeOnce     sync.Once
	writerDone    chan struct{}
}

// NewSession prepares a session. token is the credential found in the
// handshake, empty when the client will send an authenticate frame.
func NewSession(id domain.ConnectionID, log *slog.Logger, conn Conn, cfg SessionConfig,
	services Services, token string) *Session {
	return &Session{
		id:       id,
		log:      log.With("connection_id", id),
		conn:     conn,
		cfg:      cfg,
		services: services,
		token:    token,
		sink: sink.NewConnectionSink(log, id, cfg.QueueSize,
			services.Metrics.EventsDelivered, services.Metrics.EventsDropped),
		state:      StateConnecting,
		writerDone: make(chan struct{}),
	}
}

func (s *Session) ID() domain.ConnectionID {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Room() (domain.ConversationID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return 0, false
	}
	return *s.room, true
}

// Run blocks until the connection is closed, by either side.
func (s *Session) Run(ctx context.Context) {
	s.services.Metrics.ActiveConnections.Inc()
	defer s.services.Metrics.ActiveConnections.Dec()

	go s.writeLoop()
	stop := context.AfterFunc(ctx, s.Close)
	defer stop()

	authTimer := time.AfterFunc(s.cfg.AuthTimeout, func() {
		if !s.authenticated.Load() {
			s.services.Metrics.AuthFailures.WithLabelValues("timeout").Inc()
			s.log.Info("Authentication timeout, closing connection")
			_ = s.conn.WriteClose(websocket.ClosePolicyViolation, "authentication timeout")
			_ = s.conn.Close()
		}
	})
	defer authTimer.Stop()

	err := s.serve(ctx)
	var closeErr errCloseSession
	if errors.As(err, &closeErr) {
		s.log.Info("Closing connection", "reason", closeErr.reason, "error", closeErr.cause)
		_ = s.conn.WriteClose(closeErr.code, closeErr.reason)
	} else if err != nil {
		s.log.Debug("Connection ended", "error", err)
	}
	s.teardown()
}

// Close forces the session to end, Run returns shortly after.
func (s *Session) Close() {
	_ = s.conn.WriteClose(websocket.CloseGoingAway, "server shutdown")
	_ = s.conn.Close()
}

func (s *Session) serve(ctx context.Context) error {
	if s.token != "" {
		if err := s.authenticate(ctx, s.token); err != nil {
			return err
		}
	} else if err := s.awaitAuthenticateFrame(ctx); err != nil {
		return err
	}

	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		cmd, err := chat.Decode(data)
		if err != nil {
			s.log.Debug("Ignoring malformed frame", "error", err)
			continue
		}
		h, ok := handlers[cmd.Name()]
		if !ok {
			s.services.Metrics.FramesIn.WithLabelValues("unknown").Inc()
			s.log.Debug("Ignoring unknown frame type", "type", cmd.Name())
			continue
		}
		s.services.Metrics.FramesIn.WithLabelValues(string(cmd.Name())).Inc()
		if err := h(s, ctx, cmd); err != nil {
			return err
		}
	}
}

// awaitAuthenticateFrame reads frames while Connecting. Anything but a valid
// authenticate frame closes the connection. The auth timer bounds the wait.
func (s *Session) awaitAuthenticateFrame(ctx context.Context) error {
	data, err := s.conn.ReadMessage()
	if err != nil {
		return err
	}
	cmd, err := chat.Decode(data)
	if err != nil {
		s.services.Metrics.AuthFailures.WithLabelValues("protocol").Inc()
		return closeWith(websocket.ClosePolicyViolation, "authentication required", err)
	}
	authCmd, ok := cmd.(chat.AuthenticateCommand)
	if !ok {
		s.services.Metrics.AuthFailures.WithLabelValues("protocol").Inc()
		return closeWith(websocket.ClosePolicyViolation, "authentication required",
			fmt.Errorf("%w: got %s", customerrors.ErrAuthentication, cmd.Name()))
	}
	s.services.Metrics.FramesIn.WithLabelValues(string(chat.Authenticate)).Inc()
	return s.authenticate(ctx, authCmd.Token)
}

// authenticate moves the session to Authenticated: inbox subscription, presence +1, connected.
func (s *Session) authenticate(ctx context.Context, token string) error {
	user, err := s.services.Verifier.Verify(token)
	if err != nil {
		s.services.Metrics.AuthFailures.WithLabelValues("invalid_token").Inc()
		return closeWith(websocket.ClosePolicyViolation, "authentication failed", err)
	}
	if !s.authenticated.CompareAndSwap(false, true) {
		// the auth timer already fired
		return closeWith(websocket.ClosePolicyViolation, "authentication timeout", customerrors.ErrAuthentication)
	}

	s.mu.Lock()
	s.user = user
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.services.Registry.Subscribe(domain.UserGroup(user), s.id, s.sink)

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if _, err := s.services.Presence.Increment(storeCtx, user); err != nil {
		return closeWith(websocket.CloseInternalServerErr, "presence unavailable", err)
	}
	s.mu.Lock()
	s.presenceCounted = true
	s.mu.Unlock()

	s.log.Info("Connection authenticated", "user_id", user)
	return s.sink.Consume(ctx, event.NewConnected())
}

func (s *Session) handleLateAuthenticate(_ context.Context, _ chat.Command) error {
	s.log.Debug("Ignoring authenticate frame, already authenticated")
	return nil
}

// handleJoinRoom always leaves the current room first. Any failure after that
// closes the connection: unknown room, not a member, store error or bad payload.
func (s *Session) handleJoinRoom(ctx context.Context, cmd chat.Command) error {
	s.leaveCurrentRoom()

	join, ok := cmd.(chat.JoinRoomCommand)
	if !ok {
		var cause error = customerrors.ErrInvalidPayload
		if invalid, isInvalid := cmd.(chat.InvalidCommand); isInvalid {
			cause = invalid.Err
		}
		return closeWith(websocket.ClosePolicyViolation, "invalid room", cause)
	}

	s.mu.Lock()
	user := s.user
	s.mu.Unlock()

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	member, err := s.services.Conversations.IsMember(storeCtx, join.Room, user)
	switch {
	case errors.Is(err, customerrors.ErrNotFound):
		return closeWith(websocket.ClosePolicyViolation, "unknown room", err)
	case err != nil:
		return closeWith(websocket.CloseInternalServerErr, "room lookup failed", err)
	case !member:
		return closeWith(websocket.ClosePolicyViolation, "not a member",
			fmt.Errorf("%w: user %d in conversation %d", customerrors.ErrAuthorization, user, join.Room))
	}

	s.services.Registry.Subscribe(domain.RoomGroup(join.Room), s.id, s.sink)
	room := join.Room
	s.mu.Lock()
	s.room = &room
	s.state = StateRoomJoined
	s.mu.Unlock()

	s.log.Debug("Room joined", "conversation_id", room)
	return s.sink.Consume(ctx, event.NewJoinedRoom(room))
}

func (s *Session) handleLeaveRoom(_ context.Context, _ chat.Command) error {
	s.leaveCurrentRoom()
	return nil
}

func (s *Session) leaveCurrentRoom() {
	s.mu.Lock()
	room := s.room
	s.room = nil
	if s.state == StateRoomJoined {
		s.state = StateAuthenticated
	}
	s.mu.Unlock()

	if room != nil {
		s.services.Registry.Unsubscribe(domain.RoomGroup(*room), s.id)
	}
}

// handleNotificationAck never closes the session: unknown or foreign ids are
// ignored and store failures are only logged.
func (s *Session) handleNotificationAck(ctx context.Context, cmd chat.Command) error {
	ack, ok := cmd.(chat.NotificationAckCommand)
	if !ok {
		s.log.Debug("Ignoring invalid notification ack")
		return nil
	}
	s.mu.Lock()
	user := s.user
	s.mu.Unlock()

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	n, err := s.services.Notifications.GetNotification(storeCtx, ack.NotificationID)
	if errors.Is(err, customerrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.log.Warn("Unable to load acknowledged notification", "notification_id", ack.NotificationID, "error", err)
		return nil
	}
	if n.RecipientID != user {
		s.log.Debug("Ignoring ack of a foreign notification", "notification_id", ack.NotificationID)
		return nil
	}

	if n.IsTransient() {
		err = s.services.Notifications.DeleteNotification(storeCtx, n.ID)
	} else {
		err = s.services.Notifications.MarkNotified(storeCtx, n.ID)
	}
	if err != nil && !errors.Is(err, customerrors.ErrNotFound) {
		s.log.Warn("Unable to acknowledge notification", "notification_id", n.ID, "error", err)
	}
	return nil
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.sink.Events():
			if !ok {
				return
			}
			data, err := e.Encode()
			if err != nil {
				s.log.Error("Unable to encode event", "type", e.Type, "error", err)
				continue
			}
			if err := s.conn.WriteMessage(data); err != nil {
				s.log.Debug("Write failed, closing connection", "error", err)
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.Ping(); err != nil {
				_ = s.conn.Close()
				return
			}
		}
	}
}

// teardown runs once whatever ended the session. Presence is only given back
// if this session took it.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		room, user, counted := s.room, s.user, s.presenceCounted
		wasAuthenticated := s.state != StateConnecting
		s.room = nil
		s.presenceCounted = false
		s.state = StateClosed
		s.mu.Unlock()

		if room != nil {
			s.services.Registry.Unsubscribe(domain.RoomGroup(*room), s.id)
		}
		if wasAuthenticated {
			s.services.Registry.Unsubscribe(domain.UserGroup(user), s.id)
		}
		if counted {
			// the session context may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
			if _, err := s.services.Presence.Decrement(ctx, user); err != nil {
				s.log.Error("Unable to decrement online counter", "error", err)
			}
			cancel()
		}

		s.sink.Close()
		select {
		case <-s.writerDone:
		case <-time.After(s.cfg.WriteTimeout):
		}
		_ = s.conn.Close()
		s.log.Info("Connection closed")
	})
}
