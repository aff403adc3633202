// Package codec holds the generic wire-format helpers used by the helper
// registries to turn Go values into MQTT payload bytes and back.
package codec

// Codec marshals and unmarshals values of type T to and from a wire
// representation. The helper registries use this to keep request/response
// body shapes (attribute requests and responses, shared-attribute pushes,
// client RPC requests) separate
// from transport and correlation concerns.
type Codec[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(b []byte) (T, error)
}
