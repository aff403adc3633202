// Package helper implements the Helper-layer Request Registries: the
// domain-facing wrapper around the low-level engine that formats request
// payloads, decodes responses, and tracks its own per-family pending
// records so a helper-level callback can run after the low-level one
// resolves. One Manager owns every registry and the single mutex that
// guards them, matching the "all helper registries share one mutex"
// discipline the engine requires.
package helper

import (
	"sync"

	"github.com/rustyeddy/tbmqtt/internal/pending"
)

// Requester is the subset of the low-level engine the helper registries
// need: allocate a correlation id (or reuse idHint), register its callback
// pair, and publish the formatted request payload. Implemented by
// *tbmqtt.Client.
type Requester interface {
	// Request allocates a correlation id (idHint > 0 reuses it, the
	// firmware-chunk case), inserts a pending entry of the given family,
	// builds the publish topic from the allocated id via topic, and
	// publishes payload to it at qos.
	Request(family pending.Family, idHint int64, topic func(id int64) string, payload []byte, qos byte,
		onResponse pending.ResponseFunc, onTimeout pending.TimeoutFunc) (int64, error)
	Publish(topic string, payload []byte, retain bool, qos byte) error
}

// ResponseFunc is called once a request's response has been fully
// processed by its registry. context is whatever the caller passed to the
// corresponding *Request call.
type ResponseFunc func(id int64, context any)

// TimeoutFunc is called when a request's low-level entry expired or the
// connection dropped before a response arrived.
type TimeoutFunc func(id int64, context any)

// PayloadResponseFunc is used by registries whose response body is not
// otherwise modeled (client RPC, provisioning): the caller gets the raw
// decoded payload alongside the id and context.
type PayloadResponseFunc func(id int64, context any, payload []byte)

// ChunkResponseFunc is used by the OTA registry, whose response also
// carries the fragment's chunk index.
type ChunkResponseFunc func(id int64, context any, chunk int, payload []byte)

// Manager owns every helper registry and the single mutex guarding them,
// per spec.md's "helper-level mutex guards all registries together"
// design. No user callback is ever invoked while mu is held.
type Manager struct {
	req Requester

	mu sync.Mutex

	clientAttrs *attributeSet
	sharedAttrs *attributeSet

	attributeFetches map[int64]*attributeFetchRecord
	clientRPCs       map[int64]*payloadRecord
	otaRequests      map[int64]*otaRecord
	provisions       map[int64]*payloadRecord

	onServerRPC func(id int64, payload []byte)
}

// NewManager returns a Manager that issues requests through req.
func NewManager(req Requester) *Manager {
	return &Manager{
		req:              req,
		clientAttrs:      newAttributeSet(),
		sharedAttrs:      newAttributeSet(),
		attributeFetches: make(map[int64]*attributeFetchRecord),
		clientRPCs:       make(map[int64]*payloadRecord),
		otaRequests:      make(map[int64]*otaRecord),
		provisions:       make(map[int64]*payloadRecord),
		onServerRPC:      func(int64, []byte) {},
	}
}

type payloadRecord struct {
	context    any
	onResponse PayloadResponseFunc
	onTimeout  TimeoutFunc
}

type otaRecord struct {
	context    any
	onResponse ChunkResponseFunc
	onTimeout  TimeoutFunc
}

type attributeFetchRecord struct {
	context    any
	onResponse ResponseFunc
	onTimeout  TimeoutFunc
}
