package connection

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the write side of a member connection.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// WSConn serializes writes to a websocket connection. gorilla/websocket
// supports one concurrent writer only.
type WSConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func NewWSConn(ws *websocket.Conn, writeTimeout time.Duration) *WSConn {
	return &WSConn{
		ws:           ws,
		writeTimeout: writeTimeout,
	}
}

func (c *WSConn) ReadJSON(v any) error {
	return c.ws.ReadJSON(v)
}

func (c *WSConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}

	return c.ws.WriteJSON(v)
}

func (c *WSConn) Close() error {
	return c.ws.Close()
}
