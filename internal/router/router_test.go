package router

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"pulsegate/internal/hub"
	"pulsegate/internal/model"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeSocket struct {
	mu     sync.Mutex
	writes [][]byte
}

func (s *fakeSocket) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, data)
	return nil
}

func (s *fakeSocket) CloseWithReason(string) error { return nil }

func (s *fakeSocket) lastPacket(t *testing.T) *model.Packet {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 {
		t.Fatal("Expected a reply packet, got none")
	}
	var pkt model.Packet
	if err := json.Unmarshal(s.writes[len(s.writes)-1], &pkt); err != nil {
		t.Fatalf("Invalid reply frame: %v", err)
	}
	return &pkt
}

type fakeHandler struct {
	typ     string
	handled []*model.Packet
	err     error
	panics  bool
}

func (h *fakeHandler) Type() string { return h.typ }

func (h *fakeHandler) Handle(_ context.Context, _ int64, _ string, pkt *model.Packet, _ *hub.Connection) error {
	if h.panics {
		panic("handler exploded")
	}
	h.handled = append(h.handled, pkt)
	return h.err
}

type fakeResolver struct {
	addrs map[string]string
	err   error
}

func (r *fakeResolver) Resolve(_ context.Context, name string) (string, bool, error) {
	if r.err != nil {
		return "", false, r.err
	}
	addr, ok := r.addrs[name]
	return addr, ok, nil
}

type forwardCall struct {
	accountID int64
	deviceID  string
	pkt       *model.Packet
	addr      string
}

type fakeForwarder struct {
	calls []forwardCall
	err   error
}

func (f *fakeForwarder) Forward(_ context.Context, accountID int64, deviceID string, pkt *model.Packet, addr string) error {
	f.calls = append(f.calls, forwardCall{accountID, deviceID, pkt, addr})
	return f.err
}

func testConn(sock hub.Socket) *hub.Connection {
	return hub.NewConnection(hub.Key{AccountID: 1, DeviceID: "d1"}, sock, nil)
}

// =============================================================================
// Routing
// =============================================================================

func TestRouter_KeepaliveBypassesHandlerTable(t *testing.T) {
	// Even a handler registered for the keepalive type string must never
	// see the packet.
	pingHandler := &fakeHandler{typ: model.PacketTypePing}
	r, err := New(nil, nil, pingHandler)
	if err != nil {
		t.Fatalf("Expected router construction to succeed: %v", err)
	}

	sock := &fakeSocket{}
	r.Route(context.Background(), 1, "d1", &model.Packet{Type: model.PacketTypePing}, testConn(sock))

	if len(pingHandler.handled) != 0 {
		t.Error("Expected keepalive to bypass the handler table")
	}
	if got := sock.lastPacket(t); got.Type != model.PacketTypePong {
		t.Errorf("Expected pong reply, got %q", got.Type)
	}
}

func TestRouter_LocalHandlerDispatch(t *testing.T) {
	h := &fakeHandler{typ: "chat_read"}
	r, _ := New(nil, nil, h)

	pkt := &model.Packet{Type: "chat_read", Data: json.RawMessage(`{"ids":[1]}`)}
	r.Route(context.Background(), 1, "d1", pkt, testConn(&fakeSocket{}))

	if len(h.handled) != 1 || h.handled[0] != pkt {
		t.Error("Expected handler to receive the packet")
	}
}

func TestRouter_LocalHandlerWinsOverEndpoint(t *testing.T) {
	h := &fakeHandler{typ: "chat_read"}
	fwd := &fakeForwarder{}
	r, _ := New(&fakeResolver{addrs: map[string]string{"chat": "1.2.3.4:80"}}, fwd, h)

	pkt := &model.Packet{Type: "chat_read", Endpoint: "chat"}
	r.Route(context.Background(), 1, "d1", pkt, testConn(&fakeSocket{}))

	if len(h.handled) != 1 {
		t.Error("Expected local handler to win")
	}
	if len(fwd.calls) != 0 {
		t.Error("Expected no forwarding when a local handler matched")
	}
}

func TestRouter_ForwardsToResolvedEndpoint(t *testing.T) {
	fwd := &fakeForwarder{}
	r, _ := New(&fakeResolver{addrs: map[string]string{"chat": "10.0.0.7:8080"}}, fwd)

	pkt := &model.Packet{Type: "typing", Endpoint: "chat"}
	sock := &fakeSocket{}
	r.Route(context.Background(), 42, "d9", pkt, testConn(sock))

	if len(fwd.calls) != 1 {
		t.Fatalf("Expected 1 forward call, got %d", len(fwd.calls))
	}
	call := fwd.calls[0]
	if call.accountID != 42 || call.deviceID != "d9" || call.addr != "10.0.0.7:8080" {
		t.Errorf("Unexpected forward call: %+v", call)
	}
	if len(sock.writes) != 0 {
		t.Error("Expected no reply on successful forward")
	}
}

func TestRouter_ForwardFailureIsSwallowed(t *testing.T) {
	fwd := &fakeForwarder{err: errors.New("connection refused")}
	r, _ := New(&fakeResolver{addrs: map[string]string{"chat": "10.0.0.7:8080"}}, fwd)

	sock := &fakeSocket{}
	r.Route(context.Background(), 1, "d1", &model.Packet{Type: "typing", Endpoint: "chat"}, testConn(sock))

	if len(sock.writes) != 0 {
		t.Error("Expected forward failure to be invisible to the sender")
	}
}

func TestRouter_UnprocessableFallback(t *testing.T) {
	r, _ := New(&fakeResolver{addrs: map[string]string{}}, &fakeForwarder{})

	cases := []struct {
		name string
		pkt  *model.Packet
	}{
		{"no handler no endpoint", &model.Packet{Type: "mystery"}},
		{"unresolvable endpoint", &model.Packet{Type: "mystery", Endpoint: "ghost"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sock := &fakeSocket{}
			r.Route(context.Background(), 1, "d1", tc.pkt, testConn(sock))

			got := sock.lastPacket(t)
			if got.Type != model.PacketTypeError {
				t.Errorf("Expected error packet, got %q", got.Type)
			}
			if got.ErrorMessage != "Unprocessable packet: mystery" {
				t.Errorf("Unexpected error message: %q", got.ErrorMessage)
			}
		})
	}
}

func TestRouter_ResolverErrorFallsBackToErrorReply(t *testing.T) {
	r, _ := New(&fakeResolver{err: errors.New("redis down")}, &fakeForwarder{})

	sock := &fakeSocket{}
	r.Route(context.Background(), 1, "d1", &model.Packet{Type: "typing", Endpoint: "chat"}, testConn(sock))

	if got := sock.lastPacket(t); got.Type != model.PacketTypeError {
		t.Errorf("Expected error packet, got %q", got.Type)
	}
}

func TestRouter_HandlerPanicIsContained(t *testing.T) {
	h := &fakeHandler{typ: "boom", panics: true}
	r, _ := New(nil, nil, h)

	// Must not propagate to the caller (the session loop).
	r.Route(context.Background(), 1, "d1", &model.Packet{Type: "boom"}, testConn(&fakeSocket{}))
}

func TestRouter_NilConnDropsReplies(t *testing.T) {
	r, _ := New(nil, nil)
	// Forwarded packets have no socket; replies are dropped, not panicked on.
	r.Route(context.Background(), 1, "d1", &model.Packet{Type: "mystery"}, nil)
	r.Route(context.Background(), 1, "d1", &model.Packet{Type: model.PacketTypePing}, nil)
}

func TestNew_DuplicateHandlerType(t *testing.T) {
	_, err := New(nil, nil, &fakeHandler{typ: "chat_read"}, &fakeHandler{typ: "chat_read"})
	if err == nil {
		t.Fatal("Expected duplicate handler registration to fail")
	}
}
