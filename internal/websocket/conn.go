package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SafeConn serializes writes to one connection. Directives arrive from the
// read loop, the grace-timer goroutine and the countdown goroutine at the
// same time; gorilla allows only one concurrent writer.
type SafeConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewSafeConn(conn *websocket.Conn) *SafeConn {
	return &SafeConn{conn: conn}
}

// WriteJSON sends one payload with a write deadline.
func (s *SafeConn) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse.
func (s *SafeConn) WriteError(errMsg string) error {
	return s.WriteJSON(ErrorResponse{Event: EventError, Error: errMsg})
}

// ReadJSON reads and decodes the next message. It sets a read deadline; a
// browser that stops reporting for this long is treated as gone.
func (s *SafeConn) ReadJSON(v interface{}) error {
	s.conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	return s.conn.ReadJSON(v)
}

// Close closes the underlying connection.
func (s *SafeConn) Close() error {
	return s.conn.Close()
}
