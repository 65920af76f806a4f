package gateway

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection is one WebSocket client with a write mutex serializing
// outbound frames.
type Connection struct {
	UserID    string
	SessionID string // per-connection UUID, for log correlation
	Conn      net.Conn
	CreatedAt time.Time
	writeMu   sync.Mutex
}

// WriteText sends a WebSocket text frame to this connection.
func (c *Connection) WriteText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// manager is a goroutine-safe registry of connections keyed by user ID.
// A user reconnecting replaces their previous connection.
type manager struct {
	mu     sync.RWMutex
	byUser map[string]*Connection
}

func newManager() *manager {
	return &manager{byUser: make(map[string]*Connection)}
}

// add registers conn and returns the connection it displaced, if any.
func (m *manager) add(conn *Connection) *Connection {
	m.mu.Lock()
	prev := m.byUser[conn.UserID]
	m.byUser[conn.UserID] = conn
	m.mu.Unlock()
	return prev
}

// remove drops conn from the registry if it is still the user's current
// connection. It reports whether the entry was removed.
func (m *manager) remove(conn *Connection) bool {
	m.mu.Lock()
	current, ok := m.byUser[conn.UserID]
	if ok && current == conn {
		delete(m.byUser, conn.UserID)
	} else {
		ok = false
	}
	m.mu.Unlock()
	return ok
}

func (m *manager) get(userID string) *Connection {
	m.mu.RLock()
	conn := m.byUser[userID]
	m.mu.RUnlock()
	return conn
}

func (m *manager) count() int {
	m.mu.RLock()
	n := len(m.byUser)
	m.mu.RUnlock()
	return n
}

func (m *manager) all() []*Connection {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.byUser))
	for _, conn := range m.byUser {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()
	return conns
}
