package router

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tbmqtt/internal/pending"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestRoute_AttributeFetchResponse(t *testing.T) {
	tbl := pending.New()
	var got pending.Response
	id, err := tbl.Insert(pending.AttributeFetch, 0, nil, func(r pending.Response) { got = r }, nil)
	require.NoError(t, err)

	r := New(tbl)
	r.Route("v1/devices/me/attributes/response/"+itoa(id), []byte(`{"client":{"temp":21}}`))

	assert.Equal(t, id, got.ID)
	assert.Equal(t, pending.AttributeFetch, got.Family)
	assert.Equal(t, 0, tbl.Len())
}

func TestRoute_SharedAttributePushIsBroadcast(t *testing.T) {
	tbl := pending.New()
	r := New(tbl)

	var payload []byte
	r.OnSharedAttribute = func(p []byte) { payload = p }

	r.Route(TopicSharedAttributes, []byte(`{"fwVersion":"1.0"}`))
	assert.Equal(t, []byte(`{"fwVersion":"1.0"}`), payload)
}

func TestRoute_ExactSharedAttributeTopicWinsOverResponsePrefix(t *testing.T) {
	tbl := pending.New()
	r := New(tbl)

	var broadcast bool
	r.OnSharedAttribute = func([]byte) { broadcast = true }

	r.Route(TopicSharedAttributes, []byte(`{}`))
	assert.True(t, broadcast)
}

func TestRoute_ServerRPCRequestIsBroadcastWithID(t *testing.T) {
	tbl := pending.New()
	r := New(tbl)

	var gotID int64
	var gotPayload []byte
	r.OnServerRPC = func(id int64, payload []byte) { gotID = id; gotPayload = payload }

	r.Route("v1/devices/me/rpc/request/7", []byte(`{"method":"setGpio"}`))
	assert.EqualValues(t, 7, gotID)
	assert.Equal(t, []byte(`{"method":"setGpio"}`), gotPayload)
}

func TestRoute_ClientRPCResponse(t *testing.T) {
	tbl := pending.New()
	var got pending.Response
	id, _ := tbl.Insert(pending.ClientRPC, 0, nil, func(r pending.Response) { got = r }, nil)

	r := New(tbl)
	r.Route("v1/devices/me/rpc/response/"+itoa(id), []byte(`{"result":true}`))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, pending.ClientRPC, got.Family)
}

func TestRoute_FirmwareChunkCarriesChunkIndex(t *testing.T) {
	tbl := pending.New()
	var got pending.Response
	id, _ := tbl.Insert(pending.FirmwareChunk, 0, nil, func(r pending.Response) { got = r }, nil)

	r := New(tbl)
	r.Route("v2/fw/response/"+itoa(id)+"/chunk/3", []byte("firmwarebytes"))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, 3, got.Chunk)
}

func TestRoute_ProvisionResponseHasNoIDInTopic(t *testing.T) {
	tbl := pending.New()
	var got pending.Response
	id, _ := tbl.Insert(pending.Provision, 0, nil, func(r pending.Response) { got = r }, nil)

	r := New(tbl)
	r.Route(TopicProvisionResponse, []byte(`{"credentialsType":"ACCESS_TOKEN"}`))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, pending.Provision, got.Family)
}

func TestRoute_UnknownTopicDropped(t *testing.T) {
	tbl := pending.New()
	r := New(tbl)
	// must not panic
	r.Route("some/unrelated/topic", []byte("x"))
}

func TestRoute_StaleResponseDroppedNotFatal(t *testing.T) {
	tbl := pending.New()
	r := New(tbl)
	// no entry was ever inserted for id 99
	r.Route("v1/devices/me/rpc/response/99", []byte("x"))
}

func TestRoute_MalformedIDDropped(t *testing.T) {
	tbl := pending.New()
	r := New(tbl)
	r.Route("v1/devices/me/rpc/response/not-a-number", []byte("x"))
}

