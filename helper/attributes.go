package helper

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rustyeddy/tbmqtt/codec"
	"github.com/rustyeddy/tbmqtt/internal/pending"
	"github.com/rustyeddy/tbmqtt/internal/router"
)

var (
	attributeRequestCodec  codec.JSON[attributeRequestBody]
	attributeResponseCodec codec.JSON[attributeResponseBody]
	sharedPushCodec        codec.JSON[map[string]json.RawMessage]
)

// attributeChangeFunc is invoked for a registered key whenever a value for
// it arrives, either via an attribute-fetch response or an unsolicited
// shared-attribute push.
type attributeChangeFunc func(key string, value json.RawMessage)

// attributeSet is the authoritative key/value store backing the
// client-attribute and shared-attribute registries (Manager.clientAttrs and
// Manager.sharedAttrs). It is always accessed under Manager.mu.
type attributeSet struct {
	values    map[string]json.RawMessage
	callbacks map[string][]attributeChangeFunc
}

func newAttributeSet() *attributeSet {
	return &attributeSet{
		values:    make(map[string]json.RawMessage),
		callbacks: make(map[string][]attributeChangeFunc),
	}
}

func (s *attributeSet) register(key string, onChange attributeChangeFunc) {
	if _, ok := s.values[key]; !ok {
		s.values[key] = nil
	}
	if onChange != nil {
		s.callbacks[key] = append(s.callbacks[key], onChange)
	}
}

func (s *attributeSet) has(key string) bool {
	_, ok := s.values[key]
	return ok
}

func (s *attributeSet) get(key string) (json.RawMessage, bool) {
	v, ok := s.values[key]
	return v, ok
}

// apply records value for key and returns a copy of the callbacks
// registered for it, to be invoked after the caller releases Manager.mu.
func (s *attributeSet) apply(key string, value json.RawMessage) []attributeChangeFunc {
	s.values[key] = value
	cbs := s.callbacks[key]
	if len(cbs) == 0 {
		return nil
	}
	out := make([]attributeChangeFunc, len(cbs))
	copy(out, cbs)
	return out
}

// RegisterClientAttribute declares key as owned by the client-attribute
// registry. onChange, if non-nil, fires whenever an attribute-fetch
// response carries a value for key; publishing client attributes does not
// update the registry or fire it.
func (m *Manager) RegisterClientAttribute(key string, onChange func(key string, value json.RawMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientAttrs.register(key, onChange)
}

// RegisterSharedAttribute declares key as owned by the shared-attribute
// registry. onChange fires on attribute-fetch responses and on unsolicited
// shared-attribute pushes from the platform.
func (m *Manager) RegisterSharedAttribute(key string, onChange func(key string, value json.RawMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sharedAttrs.register(key, onChange)
}

// ClientAttribute returns the last known value for a registered
// client-side attribute key.
func (m *Manager) ClientAttribute(key string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientAttrs.get(key)
}

// SharedAttribute returns the last known value for a registered
// shared-attribute key.
func (m *Manager) SharedAttribute(key string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sharedAttrs.get(key)
}

// attributeRequestBody is the wire shape of an attribute-fetch request.
type attributeRequestBody struct {
	ClientKeys string `json:"clientKeys,omitempty"`
	SharedKeys string `json:"sharedKeys,omitempty"`
}

// attributeResponseBody is the wire shape of an attribute-fetch response.
type attributeResponseBody struct {
	Client map[string]json.RawMessage `json:"client"`
	Shared map[string]json.RawMessage `json:"shared"`
}

// AttributesRequest fetches the given keys, splitting them into client and
// shared groups by consulting the two attribute registries (a key present
// in neither is logged and skipped). onResponse fires with (id, context)
// once the response has been decoded and routed into the registries;
// onTimeout fires if no response arrives within the engine's timeout.
func (m *Manager) AttributesRequest(context any, keys []string, onResponse ResponseFunc, onTimeout TimeoutFunc) (int64, error) {
	var clientKeys, sharedKeys []string

	m.mu.Lock()
	for _, key := range keys {
		switch {
		case m.clientAttrs.has(key):
			clientKeys = append(clientKeys, key)
		case m.sharedAttrs.has(key):
			sharedKeys = append(sharedKeys, key)
		default:
			slog.Warn("helper: attribute key not registered in either registry, skipped", "key", key)
		}
	}
	m.mu.Unlock()

	if len(clientKeys) == 0 && len(sharedKeys) == 0 {
		return 0, fmt.Errorf("helper: attributes request has no known keys")
	}

	body := attributeRequestBody{
		ClientKeys: strings.Join(clientKeys, ","),
		SharedKeys: strings.Join(sharedKeys, ","),
	}
	payload, err := attributeRequestCodec.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("helper: marshal attributes request: %w", err)
	}

	id, err := m.req.Request(pending.AttributeFetch, 0, router.AttributesRequestTopic, payload, 1,
		m.onAttributeResponse, m.onAttributeTimeout)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.attributeFetches[id] = &attributeFetchRecord{context: context, onResponse: onResponse, onTimeout: onTimeout}
	m.mu.Unlock()

	return id, nil
}

func (m *Manager) onAttributeResponse(resp pending.Response) {
	m.mu.Lock()
	record, ok := m.attributeFetches[resp.ID]
	if !ok {
		m.mu.Unlock()
		slog.Warn("helper: attribute response with no matching helper record", "id", resp.ID)
		return
	}
	delete(m.attributeFetches, resp.ID)

	body, err := attributeResponseCodec.Unmarshal(resp.Payload)
	if err != nil {
		m.mu.Unlock()
		slog.Warn("helper: malformed attribute response payload dropped", "id", resp.ID, "error", err)
		if record.onTimeout != nil {
			record.onTimeout(resp.ID, record.context)
		}
		return
	}

	var fired []func()
	for key, value := range body.Client {
		for _, cb := range m.clientAttrs.apply(key, value) {
			cb, key, value := cb, key, value
			fired = append(fired, func() { cb(key, value) })
		}
	}
	for key, value := range body.Shared {
		for _, cb := range m.sharedAttrs.apply(key, value) {
			cb, key, value := cb, key, value
			fired = append(fired, func() { cb(key, value) })
		}
	}
	m.mu.Unlock()

	for _, fire := range fired {
		fire()
	}
	if record.onResponse != nil {
		record.onResponse(resp.ID, record.context)
	}
}

func (m *Manager) onAttributeTimeout(id int64) {
	m.mu.Lock()
	record, ok := m.attributeFetches[id]
	delete(m.attributeFetches, id)
	m.mu.Unlock()

	if ok && record.onTimeout != nil {
		record.onTimeout(id, record.context)
	}
}

// HandleSharedAttribute is the broadcast handler for unsolicited
// shared-attribute pushes (topic v1/devices/me/attributes). Keys not
// registered with RegisterSharedAttribute are stored anyway, the same way
// an attribute-fetch response would seed a previously-unknown key, but no
// callback exists to fire for them.
func (m *Manager) HandleSharedAttribute(payload []byte) {
	values, err := sharedPushCodec.Unmarshal(payload)
	if err != nil {
		slog.Warn("helper: malformed shared attribute push dropped", "error", err)
		return
	}

	m.mu.Lock()
	var fired []func()
	for key, value := range values {
		for _, cb := range m.sharedAttrs.apply(key, value) {
			cb, key, value := cb, key, value
			fired = append(fired, func() { cb(key, value) })
		}
	}
	m.mu.Unlock()

	for _, fire := range fired {
		fire()
	}
}
