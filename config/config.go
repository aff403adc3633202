// Package config models the transport configuration options spec.md §6
// recognizes, and loads them with spf13/viper from YAML, JSON, TOML or
// environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Schema is the MQTT connection schema.
type Schema string

const (
	SchemaMQTT  Schema = "mqtt"
	SchemaMQTTS Schema = "mqtts"
	SchemaWS    Schema = "ws"
	SchemaWSS   Schema = "wss"
)

// CredentialsKind selects how the device authenticates to the broker.
type CredentialsKind string

const (
	CredentialsNone        CredentialsKind = "none"
	CredentialsAccessToken CredentialsKind = "accessToken"
	CredentialsBasicMQTT   CredentialsKind = "basicMqtt"
	CredentialsX509        CredentialsKind = "x509"
)

// Credentials holds the fields relevant to whichever CredentialsKind is
// selected; unused fields are simply left zero.
type Credentials struct {
	Kind        CredentialsKind `mapstructure:"kind"`
	AccessToken string          `mapstructure:"accessToken"`
	ClientID    string          `mapstructure:"clientId"`
	Username    string          `mapstructure:"username"`
	Password    string          `mapstructure:"password"`
}

// Verification holds the server-certificate verification options used when
// Schema implies TLS.
type Verification struct {
	CertPEM             string `mapstructure:"certPem"`
	SkipCommonNameCheck bool   `mapstructure:"skipCommonNameCheck"`
}

// Authentication holds the client certificate presented for mutual TLS,
// required when Credentials.Kind is CredentialsX509.
type Authentication struct {
	ClientCertPEM     string `mapstructure:"clientCertPem"`
	ClientKeyPEM      string `mapstructure:"clientKeyPem"`
	ClientKeyPassword string `mapstructure:"clientKeyPassword"`
}

// Transport is the full transport configuration recognized by spec.md §6.
type Transport struct {
	Schema         Schema         `mapstructure:"schema"`
	Host           string         `mapstructure:"host"`
	Port           int            `mapstructure:"port"`
	Path           string         `mapstructure:"path"`
	Credentials    Credentials    `mapstructure:"credentials"`
	Verification   Verification   `mapstructure:"verification"`
	Authentication Authentication `mapstructure:"authentication"`
	LogRxTxPackage bool           `mapstructure:"logRxtxPackage"`
}

// TLS reports whether Schema implies a TLS-protected connection.
func (t Transport) TLS() bool {
	return t.Schema == SchemaMQTTS || t.Schema == SchemaWSS
}

// WebSocket reports whether Schema implies a websocket transport.
func (t Transport) WebSocket() bool {
	return t.Schema == SchemaWS || t.Schema == SchemaWSS
}

// Validate checks the cross-field invariants spec.md §6 calls out: X.509
// credentials require TLS.
func (t Transport) Validate() error {
	switch t.Schema {
	case SchemaMQTT, SchemaMQTTS, SchemaWS, SchemaWSS:
	default:
		return fmt.Errorf("config: unsupported schema %q", t.Schema)
	}
	if t.Host == "" {
		return fmt.Errorf("config: host is required")
	}
	if t.Credentials.Kind == CredentialsX509 && !t.TLS() {
		return fmt.Errorf("config: x509 credentials require a TLS schema (mqtts/wss)")
	}
	return nil
}

// BrokerURL builds the broker URL paho.mqtt.golang expects.
func (t Transport) BrokerURL() string {
	scheme := string(t.Schema)
	if t.WebSocket() {
		path := t.Path
		if path == "" {
			path = "/mqtt"
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return fmt.Sprintf("%s://%s:%d%s", scheme, t.Host, t.Port, path)
	}
	// paho treats mqtt/mqtts as tcp/ssl.
	tcpScheme := "tcp"
	if t.TLS() {
		tcpScheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", tcpScheme, t.Host, t.Port)
}

// Load reads a transport configuration from path (YAML/JSON/TOML inferred
// from extension) with environment variable overrides under the TBMQTT_
// prefix, e.g. TBMQTT_HOST, TBMQTT_CREDENTIALS_ACCESSTOKEN.
func Load(path string) (Transport, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TBMQTT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("schema", string(SchemaMQTT))
	v.SetDefault("port", 1883)
	v.SetDefault("credentials.kind", string(CredentialsNone))

	if err := v.ReadInConfig(); err != nil {
		return Transport{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var t Transport
	if err := v.Unmarshal(&t); err != nil {
		return Transport{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Transport{}, err
	}
	return t, nil
}
