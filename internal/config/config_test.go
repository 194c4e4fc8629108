package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	c := Load(v)
	assert.Equal(t, "http://localhost:8000/api/v1", c.Server)
	assert.Equal(t, 15*time.Second, c.RequestTimeout)
	assert.Equal(t, 3*time.Second, c.PollInterval)
	assert.Equal(t, TransportSSE, c.Stream.Transport)
	assert.Equal(t, 5, c.Stream.MaxRetries)
	assert.Equal(t, 30*time.Second, c.Stream.Cooldown)
}

func TestLoad_NormalisesValues(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("server", "https://books.example.com/api/v1/")
	v.Set("stream.transport", "WebSocket")
	v.Set("poll_interval", "0s")
	v.Set("stream.max_retries", -3)
	v.Set("stream.initial_backoff", "2s")
	v.Set("stream.max_backoff", "1s")

	c := Load(v)
	assert.Equal(t, "https://books.example.com/api/v1", c.Server)
	assert.Equal(t, TransportWebSocket, c.Stream.Transport)
	assert.Equal(t, 3*time.Second, c.PollInterval)
	assert.Equal(t, 0, c.Stream.MaxRetries)
	assert.Equal(t, 2*time.Second, c.Stream.MaxBackoff)
}

func TestLoad_UnknownTransportFallsBackToSSE(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("stream.transport", "carrier-pigeon")
	assert.Equal(t, TransportSSE, Load(v).Stream.Transport)
}
