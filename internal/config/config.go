package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	LLMProxyURL string
	LLMProxyKey string

	CreemAPIKey        string
	CreemWebhookSecret string
	CreemProductIDs    string

	RedisAddr          string
	RedisPassword      string
	RateLimitPerMinute int
	RateLimitBurst     int

	CORSOrigins []string

	FreeDailyGenerations int
	FreeTierTimezone     string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "resumeforge"),
		AppVersion:  getenv("APP_VERSION", "1.0.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:     getenv("DATABASE_TYPE", "sqlite"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "resumeforge"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		LLMProxyURL: getenv("LLM_PROXY_URL", "https://llm-proxy.densematrix.ai"),
		LLMProxyKey: strings.TrimSpace(getenv("LLM_PROXY_KEY", "")),

		CreemAPIKey:        strings.TrimSpace(getenv("CREEM_API_KEY", "")),
		CreemWebhookSecret: strings.TrimSpace(getenv("CREEM_WEBHOOK_SECRET", "")),
		CreemProductIDs:    strings.TrimSpace(getenv("CREEM_PRODUCT_IDS", "")),

		RedisAddr:          strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:      getenv("REDIS_PASSWORD", ""),
		RateLimitPerMinute: getenvInt("RATE_LIMIT_PER_MINUTE", 30),
		RateLimitBurst:     getenvInt("RATE_LIMIT_BURST", 10),

		CORSOrigins: splitList(getenv("CORS_ORIGINS", "*")),

		FreeDailyGenerations: getenvInt("FREE_DAILY_GENERATIONS", 5),
		FreeTierTimezone:     getenv("FREE_TIER_TIMEZONE", "UTC"),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
