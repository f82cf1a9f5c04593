// Package config loads server configuration from environment variables,
// optionally layered over a market deployment profile.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	// DatabasePath is the SQLite database file.
	DatabasePath string

	// JWTSecret signs and verifies buyer bearer tokens.
	JWTSecret string

	// GatewayKind selects the payment gateway variant: "hosted" or "onchain".
	GatewayKind string

	// Hosted gateway settings.
	GatewayBaseURL   string
	GatewayKeyID     string
	GatewayKeySecret string

	// On-chain gateway settings.
	ChainRPCURL      string
	MerchantAddress  string
	ChainNetwork     string
	MinConfirmations uint64
	WeiPerMinor      string // decimal string; parsed into a big.Int at wiring

	// Currency is the market's ISO 4217 code, used as the default for
	// catalog seeding.
	Currency string

	// PendingOrderTTL bounds how long an unpaid order stays confirmable.
	PendingOrderTTL time.Duration

	// MaxCartLines caps distinct product lines per checkout.
	MaxCartLines int

	// Rate limiting (requests per second per actor).
	RateLimitRPS   float64
	RateLimitBurst int

	// CORSOrigins is the comma-separated browser origin allow-list.
	CORSOrigins []string

	// RedisAddr enables the shared idempotency store when non-empty.
	RedisAddr      string
	IdempotencyTTL time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:         getenv("PORT", "8080"),
		LogLevel:     getenv("LOG_LEVEL", "INFO"),
		DatabasePath: getenv("DATABASE_PATH", "./data/commerce.db"),
		JWTSecret:    os.Getenv("JWT_SECRET"),

		GatewayKind:      getenv("GATEWAY_KIND", "hosted"),
		GatewayBaseURL:   os.Getenv("GATEWAY_BASE_URL"),
		GatewayKeyID:     os.Getenv("GATEWAY_KEY_ID"),
		GatewayKeySecret: os.Getenv("GATEWAY_KEY_SECRET"),

		ChainRPCURL:      os.Getenv("CHAIN_RPC_URL"),
		MerchantAddress:  os.Getenv("MERCHANT_ADDRESS"),
		ChainNetwork:     getenv("CHAIN_NETWORK", "polygon-amoy"),
		MinConfirmations: getuint("CHAIN_MIN_CONFIRMATIONS", 2),
		WeiPerMinor:      getenv("CHAIN_WEI_PER_MINOR", "1000000000"),

		Currency: getenv("DEFAULT_CURRENCY", "INR"),

		PendingOrderTTL: getdur("PENDING_ORDER_TTL", 30*time.Minute),
		MaxCartLines:    int(getuint("MAX_CART_LINES", 100)),

		RateLimitRPS:   getfloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: int(getuint("RATE_LIMIT_BURST", 20)),

		CORSOrigins: splitCSV(os.Getenv("CORS_ORIGINS")),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getuint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getfloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getdur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
