package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port             string
	LogLevel         string
	DatabasePath     string
	RateSchedulePath string
	MaxBodySizeBytes int64

	// Admin endpoints (partner rate writes, reload) require a bearer token
	// signed with this secret.
	JWTSecret string

	QuoteCacheBackend string // memory, redis or none
	QuoteCacheTTL     time.Duration
	RedisAddr         string
	RedisPassword     string
	RedisDB           int

	RateLimitRPS   float64
	RateLimitBurst int

	BatchConcurrency      int
	MaxBatchSize          int
	MaxSplitParts         int
	PartnerReloadInterval time.Duration

	AllowedOrigins []string
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	Cfg = &AppConfig{
		Port:             getEnv("PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DatabasePath:     getEnv("DATABASE_PATH", "./commissions.db"),
		RateSchedulePath: getEnv("RATE_SCHEDULE_PATH", "config/rates.yaml"),
		MaxBodySizeBytes: getEnvAsInt64("MAX_BODY_SIZE_BYTES", 1<<20),

		JWTSecret: getEnv("JWT_SECRET", ""),

		QuoteCacheBackend: strings.ToLower(getEnv("QUOTE_CACHE_BACKEND", "memory")),
		QuoteCacheTTL:     getEnvAsDuration("QUOTE_CACHE_TTL", 10*time.Minute),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvAsInt("REDIS_DB", 0),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 30),

		BatchConcurrency:      getEnvAsInt("BATCH_CONCURRENCY", 8),
		MaxBatchSize:          getEnvAsInt("MAX_BATCH_SIZE", 500),
		MaxSplitParts:         getEnvAsInt("MAX_SPLIT_PARTS", 1000),
		PartnerReloadInterval: getEnvAsDuration("PARTNER_RELOAD_INTERVAL", 5*time.Minute),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	if Cfg.JWTSecret == "" {
		log.Println("WARNING: JWT_SECRET not set. Admin endpoints will reject every request.")
	} else if len(Cfg.JWTSecret) < 32 {
		log.Fatalf("FATAL: JWT_SECRET must be at least 32 bytes long. Current length: %d", len(Cfg.JWTSecret))
	}

	switch Cfg.QuoteCacheBackend {
	case "memory", "redis", "none":
	default:
		log.Printf("WARNING: Unknown QUOTE_CACHE_BACKEND '%s'. Using 'memory'.", Cfg.QuoteCacheBackend)
		Cfg.QuoteCacheBackend = "memory"
	}
	if Cfg.BatchConcurrency < 1 {
		log.Printf("WARNING: BATCH_CONCURRENCY must be positive, got %d. Using 1.", Cfg.BatchConcurrency)
		Cfg.BatchConcurrency = 1
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, Schedule=%s, QuoteCache=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.RateSchedulePath, Cfg.QuoteCacheBackend)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %v", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
