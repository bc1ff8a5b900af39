package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// socket adapts a gorilla websocket connection to hub.Socket. Gorilla
// allows only one concurrent writer, so every write and close frame goes
// through mu.
type socket struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newSocket(ws *websocket.Conn) *socket {
	return &socket{ws: ws}
}

func (s *socket) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return s.ws.WriteMessage(websocket.TextMessage, data)
}

// CloseWithReason sends a close frame carrying the reason, then tears the
// connection down. The close frame is best-effort.
func (s *socket) CloseWithReason(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return s.ws.Close()
}
