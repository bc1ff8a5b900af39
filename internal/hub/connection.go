package hub

import (
	"context"
	"sync"
)

// Close reasons passed to the peer when the server shuts a socket.
const (
	ReasonSuperseded  = "superseded"
	ReasonServerClose = "server_close"
	ReasonShutdown    = "server_shutdown"
	ReasonWriteFailed = "write_failed"
)

// Key identifies one logical connection slot. At most one live socket is
// registered under a given key at any instant.
type Key struct {
	AccountID int64
	DeviceID  string
}

// Socket is the write side of a live client connection. Implementations
// must be safe for concurrent use; the registry fans out to sockets from
// many goroutines.
type Socket interface {
	Write(data []byte) error
	CloseWithReason(reason string) error
}

// Connection owns a live socket, the cancel handle that unblocks its read
// loop, and its key. It is exclusively owned by the registry entry; the
// session loop holds a borrowed reference for its lifetime.
type Connection struct {
	key    Key
	sock   Socket
	cancel context.CancelFunc

	closeOnce sync.Once
}

func NewConnection(key Key, sock Socket, cancel context.CancelFunc) *Connection {
	return &Connection{key: key, sock: sock, cancel: cancel}
}

// Key returns the connection's identity pair.
func (c *Connection) Key() Key {
	return c.key
}

// Send writes one serialized packet to the socket.
func (c *Connection) Send(data []byte) error {
	return c.sock.Write(data)
}

// close cancels the read loop and closes the socket with the given reason.
// Safe to call multiple times; only the first call takes effect.
func (c *Connection) close(reason string) {
	c.closeOnce.Do(func() {
		// Close frame first: cancellation tears the transport down and
		// would race the reason out of the peer's view.
		_ = c.sock.CloseWithReason(reason)
		if c.cancel != nil {
			c.cancel()
		}
	})
}
