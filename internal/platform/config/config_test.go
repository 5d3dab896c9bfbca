package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 72*time.Hour, cfg.ClaimTokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.EmailConfirmTTL)
	assert.Equal(t, time.Hour, cfg.GateWindow)
	assert.NotEmpty(t, cfg.ClaimSigningKey)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CLAIM_GATE_ADDR", ":9999")
	t.Setenv("CLAIM_TOKEN_TTL", "1h")
	t.Setenv("GATE_RATE_WINDOW", "30m")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg := FromEnv()
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, time.Hour, cfg.ClaimTokenTTL)
	assert.Equal(t, 30*time.Minute, cfg.GateWindow)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestParseTenants(t *testing.T) {
	tenants := parseTenants("t1=https://t1.example.com, t2=https://t2.example.com,,bad")
	assert.Equal(t, map[string]string{
		"t1": "https://t1.example.com",
		"t2": "https://t2.example.com",
	}, tenants)

	assert.Empty(t, parseTenants(""))
}
