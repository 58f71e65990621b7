package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the transport seen by a Session.
// ReadMessage is called by one goroutine, WriteMessage by another one;
// Ping, WriteClose and Close may be called from anywhere.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Ping() error
	WriteClose(code int, reason string) error
	Close() error
}

// wsConn adapts a gorilla connection: every read extends the keepalive
// deadline, every pong too, and every write is bounded by writeTimeout.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	pongWait     time.Duration
}

func newWSConn(conn *websocket.Conn, maxFrameBytes int64, writeTimeout, pongWait time.Duration) *wsConn {
	c := &wsConn{conn: conn, writeTimeout: writeTimeout, pongWait: pongWait}
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return c
}

// ReadMessage skips binary frames, the protocol is JSON text only.
func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		if messageType == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

func (c *wsConn) WriteClose(code int, reason string) error {
	return c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(c.writeTimeout))
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
