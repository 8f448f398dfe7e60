// Package config loads the achievements gateway configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration for the achievements gateway service.
type Config struct {
	ListenAddress   string
	Environment     string
	NodeURL         string
	NodeWSURL       string
	NodeAuthToken   string
	DatabaseDSN     string
	SQLitePath      string
	IdempotencyPath string
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	ReconOutputDir  string
	ReconInterval   time.Duration
	RateLimitPerMin int
	AllowedOrigins  []string
	OTLPEndpoint    string
	OTLPInsecure    bool
	OTLPHeaders     string
}

// LoadFromEnv builds a configuration using environment variables. The node
// URL and JWT secret are the only required settings; everything else has a
// development default. When ACHIEVEMENTS_GATEWAY_DB_DSN is set the gateway
// mirrors into Postgres, otherwise it falls back to the local SQLite file.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		ListenAddress:   getenvDefault("ACHIEVEMENTS_GATEWAY_LISTEN", ":8090"),
		Environment:     getenvDefault("GIRO_ENV", "local"),
		NodeURL:         os.Getenv("ACHIEVEMENTS_GATEWAY_NODE_URL"),
		NodeWSURL:       strings.TrimSpace(os.Getenv("ACHIEVEMENTS_GATEWAY_NODE_WS_URL")),
		NodeAuthToken:   os.Getenv("ACHIEVEMENTS_GATEWAY_NODE_TOKEN"),
		DatabaseDSN:     strings.TrimSpace(os.Getenv("ACHIEVEMENTS_GATEWAY_DB_DSN")),
		SQLitePath:      getenvDefault("ACHIEVEMENTS_GATEWAY_SQLITE_PATH", "achievements-gateway.db"),
		IdempotencyPath: getenvDefault("ACHIEVEMENTS_GATEWAY_IDEMPOTENCY_PATH", "achievements-idempotency.db"),
		JWTSecret:       os.Getenv("ACHIEVEMENTS_GATEWAY_JWT_SECRET"),
		JWTIssuer:       getenvDefault("ACHIEVEMENTS_GATEWAY_JWT_ISSUER", "girochain"),
		JWTAudience:     strings.TrimSpace(os.Getenv("ACHIEVEMENTS_GATEWAY_JWT_AUDIENCE")),
		ReconOutputDir:  getenvDefault("ACHIEVEMENTS_GATEWAY_RECON_DIR", "giro-data/recon"),
		ReconInterval:   24 * time.Hour,
		RateLimitPerMin: 120,
		OTLPEndpoint:    strings.TrimSpace(os.Getenv("ACHIEVEMENTS_GATEWAY_OTLP_ENDPOINT")),
		OTLPHeaders:     os.Getenv("ACHIEVEMENTS_GATEWAY_OTLP_HEADERS"),
	}

	if raw := strings.TrimSpace(os.Getenv("ACHIEVEMENTS_GATEWAY_RECON_INTERVAL")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse ACHIEVEMENTS_GATEWAY_RECON_INTERVAL: %w", err)
		}
		if dur <= 0 {
			return Config{}, errors.New("ACHIEVEMENTS_GATEWAY_RECON_INTERVAL must be positive")
		}
		cfg.ReconInterval = dur
	}

	if raw := strings.TrimSpace(os.Getenv("ACHIEVEMENTS_GATEWAY_RATE_LIMIT")); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse ACHIEVEMENTS_GATEWAY_RATE_LIMIT: %w", err)
		}
		if val <= 0 {
			return Config{}, errors.New("ACHIEVEMENTS_GATEWAY_RATE_LIMIT must be positive")
		}
		cfg.RateLimitPerMin = val
	}

	if raw := strings.TrimSpace(os.Getenv("ACHIEVEMENTS_GATEWAY_ALLOWED_ORIGINS")); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ACHIEVEMENTS_GATEWAY_OTLP_INSECURE")); raw != "" {
		val, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse ACHIEVEMENTS_GATEWAY_OTLP_INSECURE: %w", err)
		}
		cfg.OTLPInsecure = val
	}

	if cfg.NodeURL == "" {
		return Config{}, errors.New("ACHIEVEMENTS_GATEWAY_NODE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("ACHIEVEMENTS_GATEWAY_JWT_SECRET is required")
	}
	if cfg.NodeWSURL == "" {
		cfg.NodeWSURL = deriveWSURL(cfg.NodeURL)
	}
	return cfg, nil
}

// deriveWSURL rewrites the RPC base URL into the event stream endpoint.
func deriveWSURL(nodeURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(nodeURL), "/")
	switch {
	case strings.HasPrefix(trimmed, "https://"):
		trimmed = "wss://" + strings.TrimPrefix(trimmed, "https://")
	case strings.HasPrefix(trimmed, "http://"):
		trimmed = "ws://" + strings.TrimPrefix(trimmed, "http://")
	}
	return trimmed + "/ws/events"
}

func getenvDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
