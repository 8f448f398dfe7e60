package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvRequiresNodeURL(t *testing.T) {
	t.Setenv("ACHIEVEMENTS_GATEWAY_NODE_URL", "")
	t.Setenv("ACHIEVEMENTS_GATEWAY_JWT_SECRET", "secret")
	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestLoadFromEnvRequiresJWTSecret(t *testing.T) {
	t.Setenv("ACHIEVEMENTS_GATEWAY_NODE_URL", "http://localhost:8080")
	t.Setenv("ACHIEVEMENTS_GATEWAY_JWT_SECRET", "")
	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestLoadFromEnvAppliesDefaults(t *testing.T) {
	t.Setenv("ACHIEVEMENTS_GATEWAY_NODE_URL", "http://localhost:8080")
	t.Setenv("ACHIEVEMENTS_GATEWAY_JWT_SECRET", "secret")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t, ":8090", cfg.ListenAddress)
	require.Equal(t, "achievements-gateway.db", cfg.SQLitePath)
	require.Equal(t, "ws://localhost:8080/ws/events", cfg.NodeWSURL)
	require.Equal(t, 24*time.Hour, cfg.ReconInterval)
	require.Equal(t, 120, cfg.RateLimitPerMin)
}

func TestLoadFromEnvParsesOverrides(t *testing.T) {
	t.Setenv("ACHIEVEMENTS_GATEWAY_NODE_URL", "https://node.giro.example")
	t.Setenv("ACHIEVEMENTS_GATEWAY_JWT_SECRET", "secret")
	t.Setenv("ACHIEVEMENTS_GATEWAY_RECON_INTERVAL", "1h")
	t.Setenv("ACHIEVEMENTS_GATEWAY_RATE_LIMIT", "30")
	t.Setenv("ACHIEVEMENTS_GATEWAY_ALLOWED_ORIGINS", "https://app.giro.example, https://staging.giro.example")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t, time.Hour, cfg.ReconInterval)
	require.Equal(t, 30, cfg.RateLimitPerMin)
	require.Equal(t, []string{"https://app.giro.example", "https://staging.giro.example"}, cfg.AllowedOrigins)
	require.Equal(t, "wss://node.giro.example/ws/events", cfg.NodeWSURL)
}

func TestLoadFromEnvRejectsBadInterval(t *testing.T) {
	t.Setenv("ACHIEVEMENTS_GATEWAY_NODE_URL", "http://localhost:8080")
	t.Setenv("ACHIEVEMENTS_GATEWAY_JWT_SECRET", "secret")
	t.Setenv("ACHIEVEMENTS_GATEWAY_RECON_INTERVAL", "soon")
	_, err := LoadFromEnv()
	require.Error(t, err)
}
