// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the server needs to start. All values come from
// environment variables so the same binary runs locally and in production.
type Config struct {
	Port        string
	Environment string

	DatabaseURL string
	RedisURL    string

	JWTSecret      string
	JWTExpiry      time.Duration
	BCryptCost     int
	SignupBalance  float64
	RequestTimeout time.Duration

	OpenAIKey    string
	AnthropicKey string
	GoogleKey    string
	TogetherKey  string
	ArbiterModel string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeSuccessURL    string
	StripeCancelURL     string

	StorageDir   string
	S3Bucket     string
	S3Region     string
	MaxUploadMB  int64
	RateLimitRPS float64
	RateBurst    int

	AllowedOrigins []string
}

// Load reads the environment into a Config. Missing optional values fall
// back to development defaults; missing provider keys just disable that
// provider's models.
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),

		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTExpiry:      getEnvDuration("JWT_EXPIRY", 24*time.Hour),
		BCryptCost:     getEnvInt("BCRYPT_COST", 12),
		SignupBalance:  getEnvFloat("SIGNUP_BALANCE_USD", 0),
		RequestTimeout: getEnvDuration("PROVIDER_TIMEOUT", 120*time.Second),

		OpenAIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicKey: getEnv("ANTHROPIC_API_KEY", ""),
		GoogleKey:    getEnv("GEMINI_API_KEY", ""),
		TogetherKey:  getEnv("TOGETHER_API_KEY", ""),
		ArbiterModel: getEnv("ARBITER_MODEL", ""),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeSuccessURL:    getEnv("STRIPE_SUCCESS_URL", "http://localhost:3000/billing?status=success"),
		StripeCancelURL:     getEnv("STRIPE_CANCEL_URL", "http://localhost:3000/billing?status=cancelled"),

		StorageDir:   getEnv("STORAGE_DIR", "./uploads"),
		S3Bucket:     getEnv("S3_BUCKET", ""),
		S3Region:     getEnv("S3_REGION", "us-east-1"),
		MaxUploadMB:  int64(getEnvInt("MAX_UPLOAD_MB", 20)),
		RateLimitRPS: getEnvFloat("RATE_LIMIT_RPS", 10),
		RateBurst:    getEnvInt("RATE_LIMIT_BURST", 20),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// IsProduction reports whether we are running with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
