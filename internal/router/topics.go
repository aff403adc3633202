package router

import "fmt"

const (
	TopicSharedAttributes   = "v1/devices/me/attributes"
	attrResponsePrefix      = "v1/devices/me/attributes/response/"
	attrRequestPattern      = "v1/devices/me/attributes/request/%d"
	serverRPCRequestPrefix  = "v1/devices/me/rpc/request/"
	serverRPCResponsePatt   = "v1/devices/me/rpc/response/%d"
	clientRPCResponsePrefix = "v1/devices/me/rpc/response/"
	clientRPCRequestPatt    = "v1/devices/me/rpc/request/%d"
	fwResponsePrefix        = "v2/fw/response/"
	fwRequestPattern        = "v2/fw/request/%d/chunk/%d"
	TopicProvisionRequest   = "/provision/request"
	TopicProvisionResponse  = "/provision/response"
	TopicTelemetry          = "v1/devices/me/telemetry"
	TopicClaim              = "v1/devices/me/claim"

	// Subscribe-side wildcard forms of the same topic families, used once
	// at connect time to register the six inbound subscriptions spec.md
	// §4.6 requires before the connection is considered Connected.
	SubAttributesResponse = "v1/devices/me/attributes/response/+"
	SubServerRPCRequest   = "v1/devices/me/rpc/request/+"
	SubClientRPCResponse  = "v1/devices/me/rpc/response/+"
	SubFirmwareResponse   = "v2/fw/response/+/chunk/+"
)

// SubscribeTopics lists the six inbound topics the engine subscribes to on
// connect, in the order spec.md §4.6 describes them.
func SubscribeTopics() []string {
	return []string{
		TopicSharedAttributes,
		SubAttributesResponse,
		SubServerRPCRequest,
		SubClientRPCResponse,
		SubFirmwareResponse,
		TopicProvisionResponse,
	}
}

// AttributesRequestTopic returns the publish topic for an attribute fetch
// carrying the given correlation id.
func AttributesRequestTopic(id int64) string { return fmt.Sprintf(attrRequestPattern, id) }

// ClientRPCRequestTopic returns the publish topic for a client-side RPC
// request carrying the given correlation id.
func ClientRPCRequestTopic(id int64) string { return fmt.Sprintf(clientRPCRequestPatt, id) }

// ServerRPCResponseTopic returns the publish topic for replying to a
// server-side RPC request with the given (echoed) id.
func ServerRPCResponseTopic(id int64) string { return fmt.Sprintf(serverRPCResponsePatt, id) }

// FirmwareRequestTopic returns the publish topic for requesting the given
// chunk of a firmware image under correlation id.
func FirmwareRequestTopic(id int64, chunk int) string {
	return fmt.Sprintf(fwRequestPattern, id, chunk)
}
