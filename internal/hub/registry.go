package hub

import (
	"log"
	"sync"

	"pulsegate/internal/model"
)

// Registry is the concurrent table of live connections, keyed by
// (account, device). Entries live in a sync.Map so existential scans and
// send fan-outs iterate without holding a lock; register/unregister
// mutations are serialized by mu so evict-then-insert for a key is atomic
// with respect to other mutations of that key.
//
// One Registry instance is created at process start and passed to its
// consumers; it is not a package-level singleton so tests can run their
// own isolated tables.
type Registry struct {
	mu    sync.Mutex
	conns sync.Map // Key -> *Connection
}

func NewRegistry() *Registry {
	return &Registry{}
}

// TryRegister installs conn under its key. If the key already has a live
// entry, that entry is first closed with the superseded reason and its
// loop cancelled. Insertion cannot fail once eviction completes, so the
// return value is always true.
func (r *Registry) TryRegister(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := conn.Key()
	if old, ok := r.conns.Load(key); ok {
		log.Printf("[Registry] Evicting superseded connection: account=%d device=%s", key.AccountID, key.DeviceID)
		old.(*Connection).close(ReasonSuperseded)
	}
	r.conns.Store(key, conn)
	return true
}

// Unregister closes and removes the entry for key. Idempotent; no-op if
// the key is absent. An empty reason defaults to the generic
// server-initiated close.
func (r *Registry) Unregister(key Key, reason string) {
	if reason == "" {
		reason = ReasonServerClose
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.conns.LoadAndDelete(key)
	if !ok {
		return
	}
	entry.(*Connection).close(reason)
}

// Drop removes conn only if it still owns its registry slot. A session
// loop that was superseded must not evict its successor on the way out,
// so loop teardown goes through Drop rather than Unregister.
func (r *Registry) Drop(conn *Connection, reason string) {
	if reason == "" {
		reason = ReasonServerClose
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := conn.Key()
	if entry, ok := r.conns.Load(key); ok && entry.(*Connection) == conn {
		r.conns.Delete(key)
	}
	conn.close(reason)
}

// IsDeviceConnected reports whether any live connection matches deviceID.
func (r *Registry) IsDeviceConnected(deviceID string) bool {
	found := false
	r.conns.Range(func(k, _ interface{}) bool {
		if k.(Key).DeviceID == deviceID {
			found = true
			return false
		}
		return true
	})
	return found
}

// IsAccountConnected reports whether any live connection matches accountID.
func (r *Registry) IsAccountConnected(accountID int64) bool {
	found := false
	r.conns.Range(func(k, _ interface{}) bool {
		if k.(Key).AccountID == accountID {
			found = true
			return false
		}
		return true
	})
	return found
}

// SendToAccount fans out pkt to every live connection for accountID.
// Per-socket failures are isolated and logged; a dead socket is dropped
// without blocking delivery to the others.
func (r *Registry) SendToAccount(accountID int64, pkt *model.Packet) {
	r.send(pkt, func(k Key) bool { return k.AccountID == accountID })
}

// SendToDevice fans out pkt to every live connection for deviceID.
func (r *Registry) SendToDevice(deviceID string, pkt *model.Packet) {
	r.send(pkt, func(k Key) bool { return k.DeviceID == deviceID })
}

func (r *Registry) send(pkt *model.Packet, match func(Key) bool) {
	data, err := pkt.Encode()
	if err != nil {
		log.Printf("[Registry] Send skipped, encode failed: type=%s err=%v", pkt.Type, err)
		return
	}

	var failed []*Connection
	r.conns.Range(func(k, v interface{}) bool {
		if !match(k.(Key)) {
			return true
		}
		conn := v.(*Connection)
		if err := conn.Send(data); err != nil {
			key := conn.Key()
			log.Printf("[Registry] Send failed: account=%d device=%s type=%s err=%v",
				key.AccountID, key.DeviceID, pkt.Type, err)
			failed = append(failed, conn)
		}
		return true
	})

	for _, conn := range failed {
		r.Drop(conn, ReasonWriteFailed)
	}
}

// Len returns the current number of live connections.
func (r *Registry) Len() int {
	n := 0
	r.conns.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Shutdown closes every live connection. Called once at process teardown.
func (r *Registry) Shutdown() {
	r.conns.Range(func(k, _ interface{}) bool {
		r.Unregister(k.(Key), ReasonShutdown)
		return true
	})
	log.Printf("[Registry] Shutdown complete")
}
