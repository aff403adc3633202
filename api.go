package tbmqtt

import (
	"encoding/json"

	"github.com/rustyeddy/tbmqtt/helper"
	"github.com/rustyeddy/tbmqtt/internal/router"
)

// TelemetryPublish sends a time-series telemetry payload. Fire-and-forget.
func (c *Client) TelemetryPublish(payload []byte) error {
	return c.Publish(router.TopicTelemetry, payload, false, 1)
}

// ClientAttributesPublish pushes client-side attribute updates.
// Fire-and-forget.
func (c *Client) ClientAttributesPublish(payload []byte) error {
	return c.Publish(router.TopicSharedAttributes, payload, false, 1)
}

// ClaimPublish sends a device claim request. Fire-and-forget.
func (c *Client) ClaimPublish(payload []byte) error {
	return c.helper.ClaimPublish(payload)
}

// AttributesRequest fetches the given attribute keys, splitting them into
// client and shared groups automatically. Register keys first with
// RegisterClientAttribute/RegisterSharedAttribute.
func (c *Client) AttributesRequest(context any, keys []string, onResponse helper.ResponseFunc, onTimeout helper.TimeoutFunc) (int64, error) {
	return c.helper.AttributesRequest(context, keys, onResponse, onTimeout)
}

// ClientRPCRequest issues a client-side RPC call to the platform.
func (c *Client) ClientRPCRequest(context any, method string, params any, onResponse helper.PayloadResponseFunc, onTimeout helper.TimeoutFunc) (int64, error) {
	return c.helper.ClientRPCRequest(context, method, params, onResponse, onTimeout)
}

// OTARequest asks for one chunk of a firmware image. Pass the previously
// returned id as reqID to fetch the next chunk of the same image.
func (c *Client) OTARequest(context any, reqID int64, chunk int, payload []byte, onResponse helper.ChunkResponseFunc, onTimeout helper.TimeoutFunc) (int64, error) {
	return c.helper.OTARequest(context, reqID, chunk, payload, onResponse, onTimeout)
}

// ProvisionRequest sends a device provisioning request.
func (c *Client) ProvisionRequest(context any, payload []byte, onResponse helper.PayloadResponseFunc, onTimeout helper.TimeoutFunc) (int64, error) {
	return c.helper.ProvisionRequest(context, payload, onResponse, onTimeout)
}

// ServerRPCResponse replies to an unsolicited server-side RPC request,
// echoing its id. Fire-and-forget.
func (c *Client) ServerRPCResponse(id int64, payload []byte) error {
	return c.helper.ServerRPCResponse(id, payload)
}

// RegisterClientAttribute declares key as owned by the client-attribute
// registry; onChange fires whenever a value for it is received.
func (c *Client) RegisterClientAttribute(key string, onChange func(key string, value json.RawMessage)) {
	c.helper.RegisterClientAttribute(key, onChange)
}

// RegisterSharedAttribute declares key as owned by the shared-attribute
// registry; onChange fires on attribute-fetch responses and unsolicited
// shared-attribute pushes alike.
func (c *Client) RegisterSharedAttribute(key string, onChange func(key string, value json.RawMessage)) {
	c.helper.RegisterSharedAttribute(key, onChange)
}

// SetServerRPCHandler registers the broadcast handler for unsolicited
// server-side RPC requests.
func (c *Client) SetServerRPCHandler(fn func(id int64, payload []byte)) {
	c.helper.SetServerRPCHandler(fn)
}
