package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "localhost:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "chat.events.v1", cfg.KafkaTopic)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
	assert.Equal(t, time.Second, cfg.TypingIdle)
	assert.Equal(t, cfg.S3Endpoint, cfg.S3PublicEndpoint)
}

func TestLoadRequiresBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadParsesBrokerList(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092 ,,c:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092", "c:9092"}, cfg.KafkaBrokers)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("CALL_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("TYPING_IDLE", "250ms")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("CHAT_SERVER_URL", "https://chat.internal:8443")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.TypingIdle)
	assert.True(t, cfg.S3UseSSL)
	assert.Equal(t, "https://chat.internal:8443", cfg.ServerURL)
}
