package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. FromEnv keeps main lean; every
// value has a development default except the secrets, which fall back to dev
// placeholders that must be overridden in production.
type Server struct {
	Addr string

	// Claim token signing (symmetric, HS256).
	ClaimSigningKey string
	ClaimTokenTTL   time.Duration
	EmailConfirmTTL time.Duration

	// Identity provider credential verification.
	IdentitySigningKey string
	IdentityIssuer     string

	// Admission proofs.
	RecaptchaSecret     string
	RecaptchaVerifyURL  string
	StorefrontKey       string
	StripeWebhookSecret string

	// Rate-limit windows.
	GateWindow        time.Duration
	EmailChangeWindow time.Duration

	// Link construction for dispatched mail.
	ClaimBaseURL string

	// Tenants maps a tenant tag to its post-claim redirect origin. Unknown
	// tenants fall back to ClaimBaseURL.
	Tenants map[string]string

	PostgresURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
}

// RedisConfig holds connection tuning for the optional Redis-backed stores.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the audit fan-out target. Empty brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds the Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:            getEnv("CLAIM_GATE_ADDR", ":8080"),
		ClaimSigningKey: getEnv("CLAIM_SIGNING_KEY", "dev-secret-key-change-in-production"),
		ClaimTokenTTL:   getDuration("CLAIM_TOKEN_TTL", 72*time.Hour),
		EmailConfirmTTL: getDuration("EMAIL_CONFIRM_TTL", 24*time.Hour),

		IdentitySigningKey: getEnv("IDENTITY_SIGNING_KEY", "dev-identity-key-change-in-production"),
		IdentityIssuer:     getEnv("IDENTITY_ISSUER", "identity.local"),

		RecaptchaSecret:     os.Getenv("RECAPTCHA_SECRET"),
		RecaptchaVerifyURL:  getEnv("RECAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify"),
		StorefrontKey:       getEnv("STOREFRONT_SIGNING_KEY", "dev-storefront-key"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		GateWindow:        getDuration("GATE_RATE_WINDOW", time.Hour),
		EmailChangeWindow: getDuration("EMAIL_CHANGE_RATE_WINDOW", time.Hour),

		ClaimBaseURL: getEnv("CLAIM_BASE_URL", "http://localhost:8080"),
		Tenants:      parseTenants(os.Getenv("CLAIM_TENANT_ORIGINS")),

		PostgresURL: os.Getenv("POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_AUDIT_TOPIC", "claim-audit"),
		},
	}
}

// parseTenants parses "t1=https://t1.example.com,t2=https://t2.example.com".
func parseTenants(raw string) map[string]string {
	tenants := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		tenants[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return tenants
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
