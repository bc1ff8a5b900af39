// Package router dispatches inbound packets: keepalive fast path first,
// then the local handler table, then endpoint forwarding, and finally an
// unprocessable-packet error reply.
package router

import (
	"context"
	"fmt"
	"log"

	"pulsegate/internal/hub"
	"pulsegate/internal/model"
)

// Handler processes one locally-handled packet type. Implementations
// declare their type string; the router builds its table from the full
// handler set once at startup.
type Handler interface {
	Type() string
	Handle(ctx context.Context, accountID int64, deviceID string, pkt *model.Packet, conn *hub.Connection) error
}

// Resolver maps an endpoint name to a network address. ok is false when
// the name is unknown.
type Resolver interface {
	Resolve(ctx context.Context, name string) (addr string, ok bool, err error)
}

// Forwarder delivers a packet to a remote instance at addr.
type Forwarder interface {
	Forward(ctx context.Context, accountID int64, deviceID string, pkt *model.Packet, addr string) error
}

// Router routes inbound packets to local handlers or remote endpoints.
type Router struct {
	handlers  map[string]Handler
	resolver  Resolver
	forwarder Forwarder
}

// New builds the handler table. Two handlers claiming the same type is a
// startup configuration error.
func New(resolver Resolver, forwarder Forwarder, handlers ...Handler) (*Router, error) {
	table := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		if _, exists := table[h.Type()]; exists {
			return nil, fmt.Errorf("duplicate packet handler for type %q", h.Type())
		}
		table[h.Type()] = h
	}
	return &Router{
		handlers:  table,
		resolver:  resolver,
		forwarder: forwarder,
	}, nil
}

// Route dispatches one inbound packet. conn may be nil for packets that
// arrived over the forward path; replies are then dropped.
//
// Keepalives are answered before anything else and never reach the
// handler table. A local handler always wins over endpoint forwarding.
func (r *Router) Route(ctx context.Context, accountID int64, deviceID string, pkt *model.Packet, conn *hub.Connection) {
	if pkt.Type == model.PacketTypePing {
		r.reply(conn, &model.Packet{Type: model.PacketTypePong})
		return
	}

	if h, ok := r.handlers[pkt.Type]; ok {
		r.dispatch(ctx, h, accountID, deviceID, pkt, conn)
		return
	}

	if pkt.Endpoint != "" && r.resolver != nil && r.forwarder != nil {
		addr, ok, err := r.resolver.Resolve(ctx, pkt.Endpoint)
		if err != nil {
			log.Printf("[Router] Resolve failed: endpoint=%s err=%v", pkt.Endpoint, err)
		}
		if ok {
			// Best-effort: a failed remote call is logged and swallowed,
			// never retried or surfaced to the sender.
			if err := r.forwarder.Forward(ctx, accountID, deviceID, pkt, addr); err != nil {
				log.Printf("[Router] Forward failed: endpoint=%s addr=%s type=%s err=%v",
					pkt.Endpoint, addr, pkt.Type, err)
			}
			return
		}
	}

	r.reply(conn, model.NewUnprocessablePacket(pkt.Type))
}

// dispatch invokes a handler, keeping its failures away from the session
// loop. A handler panic is recovered here; the connection stays open.
func (r *Router) dispatch(ctx context.Context, h Handler, accountID int64, deviceID string, pkt *model.Packet, conn *hub.Connection) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Router] Handler panic: type=%s account=%d err=%v", pkt.Type, accountID, rec)
		}
	}()

	if err := h.Handle(ctx, accountID, deviceID, pkt, conn); err != nil {
		log.Printf("[Router] Handler error: type=%s account=%d err=%v", pkt.Type, accountID, err)
	}
}

func (r *Router) reply(conn *hub.Connection, pkt *model.Packet) {
	if conn == nil {
		return
	}
	data, err := pkt.Encode()
	if err != nil {
		log.Printf("[Router] Reply encode failed: type=%s err=%v", pkt.Type, err)
		return
	}
	if err := conn.Send(data); err != nil {
		log.Printf("[Router] Reply send failed: type=%s err=%v", pkt.Type, err)
	}
}
