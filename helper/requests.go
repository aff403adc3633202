package helper

import (
	"fmt"
	"log/slog"

	"github.com/rustyeddy/tbmqtt/codec"
	"github.com/rustyeddy/tbmqtt/internal/pending"
	"github.com/rustyeddy/tbmqtt/internal/router"
)

type clientRPCRequestBody struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

var clientRPCRequestCodec codec.JSON[clientRPCRequestBody]

// ClientRPCRequest issues a client-side RPC call. onResponse fires with the
// raw decoded response payload; the response body's domain shape is not
// the engine's concern, matching spec.md's "no payload validation beyond
// correlation" non-goal.
func (m *Manager) ClientRPCRequest(context any, method string, params any, onResponse PayloadResponseFunc, onTimeout TimeoutFunc) (int64, error) {
	payload, err := clientRPCRequestCodec.Marshal(clientRPCRequestBody{Method: method, Params: params})
	if err != nil {
		return 0, fmt.Errorf("helper: marshal client rpc request: %w", err)
	}

	id, err := m.req.Request(pending.ClientRPC, 0, router.ClientRPCRequestTopic, payload, 1,
		m.onClientRPCResponse, m.onClientRPCTimeout)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.clientRPCs[id] = &payloadRecord{context: context, onResponse: onResponse, onTimeout: onTimeout}
	m.mu.Unlock()

	return id, nil
}

func (m *Manager) onClientRPCResponse(resp pending.Response) {
	m.mu.Lock()
	record, ok := m.clientRPCs[resp.ID]
	delete(m.clientRPCs, resp.ID)
	m.mu.Unlock()

	if !ok {
		slog.Warn("helper: client rpc response with no matching helper record", "id", resp.ID)
		return
	}
	if record.onResponse != nil {
		record.onResponse(resp.ID, record.context, resp.Payload)
	}
}

func (m *Manager) onClientRPCTimeout(id int64) {
	m.mu.Lock()
	record, ok := m.clientRPCs[id]
	delete(m.clientRPCs, id)
	m.mu.Unlock()

	if ok && record.onTimeout != nil {
		record.onTimeout(id, record.context)
	}
}

// OTARequest asks for one chunk of a firmware image. reqID is 0 for the
// first chunk (a fresh correlation id is allocated and returned) and the
// previously-returned id for every subsequent chunk of the same image — the
// low-level table tolerates re-registering an id that just completed for
// exactly this reason.
func (m *Manager) OTARequest(context any, reqID int64, chunk int, payload []byte, onResponse ChunkResponseFunc, onTimeout TimeoutFunc) (int64, error) {
	topic := func(id int64) string { return router.FirmwareRequestTopic(id, chunk) }

	id, err := m.req.Request(pending.FirmwareChunk, reqID, topic, payload, 1,
		m.onOTAResponse, m.onOTATimeout)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.otaRequests[id] = &otaRecord{context: context, onResponse: onResponse, onTimeout: onTimeout}
	m.mu.Unlock()

	return id, nil
}

func (m *Manager) onOTAResponse(resp pending.Response) {
	m.mu.Lock()
	record, ok := m.otaRequests[resp.ID]
	delete(m.otaRequests, resp.ID)
	m.mu.Unlock()

	if !ok {
		slog.Warn("helper: firmware chunk response with no matching helper record", "id", resp.ID)
		return
	}
	if record.onResponse != nil {
		record.onResponse(resp.ID, record.context, resp.Chunk, resp.Payload)
	}
}

func (m *Manager) onOTATimeout(id int64) {
	m.mu.Lock()
	record, ok := m.otaRequests[id]
	delete(m.otaRequests, id)
	m.mu.Unlock()

	if ok && record.onTimeout != nil {
		record.onTimeout(id, record.context)
	}
}

// ProvisionRequest sends a device provisioning request. The response
// topic carries no id, so correlation relies on take-by-family at the
// low-level table. The number of outstanding provisioning requests is not
// limited; when several are outstanding, a response is matched to the
// earliest one still pending.
func (m *Manager) ProvisionRequest(context any, payload []byte, onResponse PayloadResponseFunc, onTimeout TimeoutFunc) (int64, error) {
	topic := func(int64) string { return router.TopicProvisionRequest }

	id, err := m.req.Request(pending.Provision, 0, topic, payload, 1,
		m.onProvisionResponse, m.onProvisionTimeout)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.provisions[id] = &payloadRecord{context: context, onResponse: onResponse, onTimeout: onTimeout}
	m.mu.Unlock()

	return id, nil
}

func (m *Manager) onProvisionResponse(resp pending.Response) {
	m.mu.Lock()
	record, ok := m.provisions[resp.ID]
	delete(m.provisions, resp.ID)
	m.mu.Unlock()

	if !ok {
		slog.Warn("helper: provision response with no matching helper record", "id", resp.ID)
		return
	}
	if record.onResponse != nil {
		record.onResponse(resp.ID, record.context, resp.Payload)
	}
}

func (m *Manager) onProvisionTimeout(id int64) {
	m.mu.Lock()
	record, ok := m.provisions[id]
	delete(m.provisions, id)
	m.mu.Unlock()

	if ok && record.onTimeout != nil {
		record.onTimeout(id, record.context)
	}
}

// ClaimPublish sends a device claim request. Fire-and-forget: claiming is
// not a request/response family, matching server RPC and shared attribute
// pushes.
func (m *Manager) ClaimPublish(payload []byte) error {
	return m.req.Publish(router.TopicClaim, payload, false, 1)
}

// SetServerRPCHandler registers the broadcast handler invoked for every
// unsolicited server-side RPC request. Replaces any previous handler.
func (m *Manager) SetServerRPCHandler(fn func(id int64, payload []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn == nil {
		fn = func(int64, []byte) {}
	}
	m.onServerRPC = fn
}

// HandleServerRPC is the broadcast handler wired to the router's
// OnServerRPC hook.
func (m *Manager) HandleServerRPC(id int64, payload []byte) {
	m.mu.Lock()
	fn := m.onServerRPC
	m.mu.Unlock()
	fn(id, payload)
}

// ServerRPCResponse replies to a server-side RPC request, echoing its id
// back in the response topic. Fire-and-forget, like every publish-only
// operation in this package.
func (m *Manager) ServerRPCResponse(id int64, payload []byte) error {
	return m.req.Publish(router.ServerRPCResponseTopic(id), payload, false, 1)
}
