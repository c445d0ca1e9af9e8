// README: gorilla/websocket connection wrapper.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rxflow/internal/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Conn struct {
	ws     *websocket.Conn
	userID types.ID
	role   string

	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
}

func NewConn(ws *websocket.Conn, userID types.ID, role string) *Conn {
	return &Conn{ws: ws, userID: userID, role: role, closed: make(chan struct{})}
}

func (c *Conn) UserID() types.ID { return c.userID }

func (c *Conn) Role() string { return c.role }

// Send writes msg with a bounded deadline. Writes are serialised per connection.
func (c *Conn) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteJSON(msg)
}

func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.ws.Close()
	})
	return err
}

// Serve registers the connection, keeps it alive with pings and blocks until
// the peer goes away or the connection is replaced.
func (c *Conn) Serve(registry *Registry) {
	registry.Register(c)
	defer func() {
		registry.Unregister(c.userID, c)
		_ = c.Close()
	}()

	c.ws.SetReadLimit(4096)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.pingLoop()
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
