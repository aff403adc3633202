package helper

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tbmqtt/internal/pending"
)

type publishedMsg struct {
	topic   string
	payload []byte
	retain  bool
	qos     byte
}

type fakeEntry struct {
	family     pending.Family
	onResponse pending.ResponseFunc
	onTimeout  pending.TimeoutFunc
}

// fakeRequester stands in for *tbmqtt.Client in these tests, the way
// messenger/mqtt_test.go test doubles stand in for a live MQTT client.
type fakeRequester struct {
	mu        sync.Mutex
	published []publishedMsg
	entries   map[int64]*fakeEntry
	nextID    int64
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{entries: make(map[int64]*fakeEntry)}
}

func (f *fakeRequester) Request(family pending.Family, idHint int64, topic func(int64) string, payload []byte, qos byte,
	onResponse pending.ResponseFunc, onTimeout pending.TimeoutFunc) (int64, error) {
	f.mu.Lock()
	id := idHint
	if id <= 0 {
		f.nextID++
		id = f.nextID
	} else if id > f.nextID {
		f.nextID = id
	}
	f.entries[id] = &fakeEntry{family: family, onResponse: onResponse, onTimeout: onTimeout}
	f.mu.Unlock()

	return id, f.Publish(topic(id), payload, false, qos)
}

func (f *fakeRequester) Publish(topic string, payload []byte, retain bool, qos byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMsg{topic: topic, payload: payload, retain: retain, qos: qos})
	return nil
}

func (f *fakeRequester) respond(id int64, resp pending.Response) {
	f.mu.Lock()
	e, ok := f.entries[id]
	delete(f.entries, id)
	f.mu.Unlock()
	if ok && e.onResponse != nil {
		e.onResponse(resp)
	}
}

func (f *fakeRequester) timeout(id int64) {
	f.mu.Lock()
	e, ok := f.entries[id]
	delete(f.entries, id)
	f.mu.Unlock()
	if ok && e.onTimeout != nil {
		e.onTimeout(id)
	}
}

func (f *fakeRequester) last() publishedMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

func TestAttributesRequest_HappyPath(t *testing.T) {
	req := newFakeRequester()
	m := NewManager(req)

	var tempChanged, fwChanged json.RawMessage
	m.RegisterClientAttribute("temp", func(_ string, v json.RawMessage) { tempChanged = v })
	m.RegisterSharedAttribute("fwVersion", func(_ string, v json.RawMessage) { fwChanged = v })

	var respID int64
	var respCtx any
	id, err := m.AttributesRequest("ctx", []string{"temp", "fwVersion"}, func(id int64, ctx any) {
		respID, respCtx = id, ctx
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	msg := req.last()
	assert.Equal(t, "v1/devices/me/attributes/request/1", msg.topic)
	var sent map[string]string
	require.NoError(t, json.Unmarshal(msg.payload, &sent))
	assert.Equal(t, "temp", sent["clientKeys"])
	assert.Equal(t, "fwVersion", sent["sharedKeys"])

	req.respond(id, pending.Response{
		ID:      id,
		Family:  pending.AttributeFetch,
		Payload: []byte(`{"client":{"temp":21},"shared":{"fwVersion":"1.0"}}`),
		Chunk:   -1,
	})

	assert.Equal(t, id, respID)
	assert.Equal(t, "ctx", respCtx)
	assert.JSONEq(t, "21", string(tempChanged))
	assert.JSONEq(t, `"1.0"`, string(fwChanged))

	val, ok := m.ClientAttribute("temp")
	require.True(t, ok)
	assert.JSONEq(t, "21", string(val))
}

func TestAttributesRequest_UnknownKeyRejected(t *testing.T) {
	m := NewManager(newFakeRequester())
	_, err := m.AttributesRequest(nil, []string{"nope"}, nil, nil)
	require.Error(t, err)
}

func TestAttributesRequest_Timeout(t *testing.T) {
	req := newFakeRequester()
	m := NewManager(req)
	m.RegisterClientAttribute("temp", nil)

	var timedOutID int64
	id, err := m.AttributesRequest(nil, []string{"temp"}, nil, func(id int64, _ any) { timedOutID = id })
	require.NoError(t, err)

	req.timeout(id)
	assert.Equal(t, id, timedOutID)
}

func TestClientRPCRequest_HappyPath(t *testing.T) {
	req := newFakeRequester()
	m := NewManager(req)

	var gotPayload []byte
	id, err := m.ClientRPCRequest(nil, "getTime", nil, func(_ int64, _ any, payload []byte) {
		gotPayload = payload
	}, nil)
	require.NoError(t, err)

	msg := req.last()
	assert.Equal(t, "v1/devices/me/rpc/request/1", msg.topic)

	req.respond(id, pending.Response{ID: id, Family: pending.ClientRPC, Payload: []byte(`{"ok":true}`), Chunk: -1})
	assert.JSONEq(t, `{"ok":true}`, string(gotPayload))
}

func TestOTARequest_ChunkIDReuse(t *testing.T) {
	req := newFakeRequester()
	m := NewManager(req)

	id1, err := m.OTARequest(nil, 0, 0, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "v2/fw/request/1/chunk/0", req.last().topic)

	req.respond(id1, pending.Response{ID: id1, Family: pending.FirmwareChunk, Chunk: 0, Payload: []byte("abc")})

	id2, err := m.OTARequest(nil, id1, 1, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, "v2/fw/request/1/chunk/1", req.last().topic)
}

func TestProvisionRequest_HappyPath(t *testing.T) {
	req := newFakeRequester()
	m := NewManager(req)

	var gotID int64
	id, err := m.ProvisionRequest(nil, []byte(`{}`), func(id int64, _ any, _ []byte) { gotID = id }, nil)
	require.NoError(t, err)
	assert.Equal(t, "/provision/request", req.last().topic)

	req.respond(id, pending.Response{ID: id, Family: pending.Provision, Payload: []byte(`{}`), Chunk: -1})
	assert.Equal(t, id, gotID)
}

func TestClaimPublish(t *testing.T) {
	req := newFakeRequester()
	m := NewManager(req)

	require.NoError(t, m.ClaimPublish([]byte(`{"secretKey":"abc"}`)))
	assert.Equal(t, "v1/devices/me/claim", req.last().topic)
}

func TestServerRPC_HandlerAndResponse(t *testing.T) {
	req := newFakeRequester()
	m := NewManager(req)

	var gotID int64
	var gotPayload []byte
	m.SetServerRPCHandler(func(id int64, payload []byte) {
		gotID, gotPayload = id, payload
	})

	m.HandleServerRPC(5, []byte(`{"method":"reboot"}`))
	assert.Equal(t, int64(5), gotID)
	assert.JSONEq(t, `{"method":"reboot"}`, string(gotPayload))

	require.NoError(t, m.ServerRPCResponse(5, []byte(`{"ok":true}`)))
	assert.Equal(t, "v1/devices/me/rpc/response/5", req.last().topic)
}

func TestHandleSharedAttribute_Push(t *testing.T) {
	m := NewManager(newFakeRequester())

	var got json.RawMessage
	m.RegisterSharedAttribute("fwVersion", func(_ string, v json.RawMessage) { got = v })

	m.HandleSharedAttribute([]byte(`{"fwVersion":"2.0"}`))
	assert.JSONEq(t, `"2.0"`, string(got))
}
