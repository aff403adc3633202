package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "transport.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, "host: demo.thingsboard.io\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SchemaMQTT, cfg.Schema)
	assert.Equal(t, 1883, cfg.Port)
	assert.Equal(t, CredentialsNone, cfg.Credentials.Kind)
}

func TestLoad_AccessTokenCredentials(t *testing.T) {
	path := writeConfig(t, `
host: demo.thingsboard.io
port: 1883
credentials:
  kind: accessToken
  accessToken: A1_TEST_TOKEN
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CredentialsAccessToken, cfg.Credentials.Kind)
	assert.Equal(t, "A1_TEST_TOKEN", cfg.Credentials.AccessToken)
}

func TestValidate_X509RequiresTLS(t *testing.T) {
	cfg := Transport{
		Schema:      SchemaMQTT,
		Host:        "demo.thingsboard.io",
		Credentials: Credentials{Kind: CredentialsX509},
	}
	err := cfg.Validate()
	assert.Error(t, err)

	cfg.Schema = SchemaMQTTS
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MissingHost(t *testing.T) {
	cfg := Transport{Schema: SchemaMQTT}
	assert.Error(t, cfg.Validate())
}

func TestBrokerURL_TCPAndSSL(t *testing.T) {
	cfg := Transport{Schema: SchemaMQTT, Host: "broker", Port: 1883}
	assert.Equal(t, "tcp://broker:1883", cfg.BrokerURL())

	cfg.Schema = SchemaMQTTS
	assert.Equal(t, "ssl://broker:1883", cfg.BrokerURL())
}

func TestBrokerURL_WebSocket(t *testing.T) {
	cfg := Transport{Schema: SchemaWS, Host: "broker", Port: 8080, Path: "mqtt"}
	assert.Equal(t, "ws://broker:8080/mqtt", cfg.BrokerURL())

	cfg.Schema = SchemaWSS
	assert.Equal(t, "wss://broker:8080/mqtt", cfg.BrokerURL())
}

func TestWebSocketAndTLS(t *testing.T) {
	cfg := Transport{Schema: SchemaWSS}
	assert.True(t, cfg.WebSocket())
	assert.True(t, cfg.TLS())
}
