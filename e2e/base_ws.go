package e2e

import (
	"bytes"
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/rest"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const frameTimeout = 5 * time.Second

type BaseWsSuite struct {
	suite.Suite
	Config Config
	tokens *auth.TokenManager
}

// SetupSuite loads the environment configuration and checks the relay is up.
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("RELAY_ADDR not set")
	}
	s.tokens = auth.NewTokenManager(s.Config.JWTSecret, s.Config.JWTIssuer)

	if s.Config.HealthAddr != "" {
		s.step("Health probe")
		conn, err := grpc.NewClient(s.Config.HealthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		s.Require().NoError(err)
		defer conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		defer cancel()
		resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
		s.Require().NoError(err)
		s.Require().Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	}
}

func (s *BaseWsSuite) step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *BaseWsSuite) Token(user int64) string {
	token, err := s.tokens.GenerateToken(domain.UserID(user), nil, time.Hour)
	s.Require().NoError(err)
	return token
}

// Connect opens an authenticated socket and consumes the connected event.
func (s *BaseWsSuite) Connect(name string, user int64) *websocket.Conn {
	s.step(name)
	u := url.URL{Scheme: "ws", Host: s.Config.RelayAddr, Path: "/ws/chat/"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), http.Header{
		"Authorization": []string{"Bearer " + s.Token(user)},
	})
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = conn.Close() })
	s.Require().Equal(event.Connected, s.Read(conn).Type)
	return conn
}

func (s *BaseWsSuite) Send(conn *websocket.Conn, frameType string, payload any) {
	data, err := json.Marshal(map[string]any{"type": frameType, "payload": payload})
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, data))
}

func (s *BaseWsSuite) Read(conn *websocket.Conn) event.Envelope {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(frameTimeout)))
	_, data, err := conn.ReadMessage()
	s.Require().NoError(err)
	if s.Config.DebugJSON {
		s.T().Logf("FRAME: %s", data)
	}
	e, err := event.Decode(data)
	s.Require().NoError(err)
	return e
}

// Hook calls an internal endpoint the way the CRUD layer does after a commit.
func (s *BaseWsSuite) Hook(path string, body any) {
	data, err := json.Marshal(body)
	s.Require().NoError(err)
	req, err := http.NewRequest(http.MethodPost, "http://"+s.Config.RelayAddr+path, bytes.NewReader(data))
	s.Require().NoError(err)
	req.Header.Set(rest.InternalTokenHeader, s.Config.InternalToken)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusAccepted, resp.StatusCode)
}

func (s *BaseWsSuite) Notifications(user int64) []event.NotificationPayload {
	req, err := http.NewRequest(http.MethodGet, "http://"+s.Config.RelayAddr+"/api/notifications", nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+s.Token(user))
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var list []event.NotificationPayload
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&list))
	return list
}
