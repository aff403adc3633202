// Package router implements the Correlator / Topic Router: it classifies
// each fully reassembled inbound message by topic and dispatches it either
// to the pending-request table (request/response families) or to a
// broadcast handler (shared-attribute updates, server-side RPC requests).
package router

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/rustyeddy/tbmqtt/internal/pending"
)

// Table is the subset of *pending.Table the router needs.
type Table interface {
	TakeByID(id int64) (*pending.Entry, bool)
	TakeByFamily(family pending.Family) (*pending.Entry, bool)
}

// Router classifies and dispatches completed inbound messages.
type Router struct {
	table Table

	// OnSharedAttribute is invoked for the unsolicited shared-attribute
	// push topic. Never nil after New.
	OnSharedAttribute func(payload []byte)

	// OnServerRPC is invoked for an unsolicited server-side RPC request,
	// with its echo-back id. Never nil after New.
	OnServerRPC func(id int64, payload []byte)
}

// New returns a Router bound to table. The broadcast handlers default to
// no-ops and should be set before the first message is routed.
func New(table Table) *Router {
	return &Router{
		table:             table,
		OnSharedAttribute: func([]byte) {},
		OnServerRPC:       func(int64, []byte) {},
	}
}

// Route classifies topic and dispatches payload accordingly. Unknown
// prefixes, unparseable ids, and stale/duplicate responses are logged and
// dropped — none of these are fatal conditions.
func (r *Router) Route(topic string, payload []byte) {
	switch {
	case topic == TopicSharedAttributes:
		// checked before the attrResponsePrefix case below: the exact
		// shared-attributes topic is a strict prefix of the response
		// topic family, so the exact match must win first.
		r.OnSharedAttribute(payload)

	case strings.HasPrefix(topic, attrResponsePrefix):
		id, ok := parseTrailingID(topic, attrResponsePrefix)
		if !ok {
			slog.Warn("router: malformed attribute response topic", "topic", topic)
			return
		}
		r.deliver(id, pending.AttributeFetch, payload, -1)

	case strings.HasPrefix(topic, serverRPCRequestPrefix):
		id, ok := parseTrailingID(topic, serverRPCRequestPrefix)
		if !ok {
			slog.Warn("router: malformed server rpc request topic", "topic", topic)
			return
		}
		r.OnServerRPC(id, payload)

	case strings.HasPrefix(topic, clientRPCResponsePrefix):
		id, ok := parseTrailingID(topic, clientRPCResponsePrefix)
		if !ok {
			slog.Warn("router: malformed client rpc response topic", "topic", topic)
			return
		}
		r.deliver(id, pending.ClientRPC, payload, -1)

	case strings.HasPrefix(topic, fwResponsePrefix):
		id, chunk, ok := parseFirmwareResponseTopic(topic)
		if !ok {
			slog.Warn("router: malformed firmware response topic", "topic", topic)
			return
		}
		r.deliver(id, pending.FirmwareChunk, payload, chunk)

	case topic == TopicProvisionResponse:
		e, ok := r.table.TakeByFamily(pending.Provision)
		if !ok {
			slog.Warn("router: provision response with no matching request")
			return
		}
		if e.OnResponse != nil {
			e.OnResponse(pending.Response{ID: e.ID, Family: pending.Provision, Payload: payload, Chunk: -1})
		}

	default:
		slog.Warn("router: unknown topic dropped", "topic", topic)
	}
}

func (r *Router) deliver(id int64, family pending.Family, payload []byte, chunk int) {
	e, ok := r.table.TakeByID(id)
	if !ok {
		slog.Warn("router: response with no matching request dropped",
			"family", family, "id", id)
		return
	}
	if e.OnResponse != nil {
		e.OnResponse(pending.Response{ID: id, Family: family, Payload: payload, Chunk: chunk})
	}
}

func parseTrailingID(topic, prefix string) (int64, bool) {
	suffix := strings.TrimPrefix(topic, prefix)
	id, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// parseFirmwareResponseTopic parses "v2/fw/response/<id>/chunk/<chunk>".
func parseFirmwareResponseTopic(topic string) (id int64, chunk int, ok bool) {
	rest := strings.TrimPrefix(topic, fwResponsePrefix)
	parts := strings.Split(rest, "/chunk/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	idVal, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	chunkVal, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return idVal, chunkVal, true
}
