package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the execution core.
type Config struct {
	Port string

	// Bots
	BotsFile string

	// Venue
	Venue            string  // "paper" is the only built-in venue
	VenueRateLimit   float64 // calls per second, 0 disables throttling
	VenueRateBurst   int
	SessionHealth    time.Duration
	SessionFailLimit int
	SymbolCacheTTL   time.Duration // 0 keeps symbol metadata for the process lifetime

	// Submission engine
	SubmitMaxAttempts int
	RetryDelay        time.Duration

	// Trailing stop
	TrailInterval time.Duration

	// Paper venue
	PaperBalance  float64
	PaperLeverage int64
	PaperSymbols  []string
	PaperFeed     bool
	PaperFeedTick time.Duration

	// Auth
	JWTSecret  string
	APIKeyHash string // bcrypt hash exchanged for tokens at /api/auth/token
	TokenTTL   time.Duration

	// HTTP
	RateLimitPerSec float64
	RateLimitBurst  int
	RequestTimeout  time.Duration

	// gRPC health
	GRPCHealthAddr string

	// Logging
	LogLevel string
	LogFile  string
	LogDev   bool
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		BotsFile:          getEnv("BOTS_FILE", "./bots.yaml"),
		Venue:             strings.ToLower(getEnv("VENUE", "paper")),
		VenueRateLimit:    getEnvFloat("VENUE_RATE_LIMIT", 20),
		VenueRateBurst:    getEnvInt("VENUE_RATE_BURST", 5),
		SessionHealth:     getEnvDuration("SESSION_HEALTH_INTERVAL", 30*time.Second),
		SessionFailLimit:  getEnvInt("SESSION_FAILURE_THRESHOLD", 3),
		SymbolCacheTTL:    getEnvDuration("SYMBOL_CACHE_TTL", 10*time.Minute),
		SubmitMaxAttempts: getEnvInt("SUBMIT_MAX_ATTEMPTS", 3),
		RetryDelay:        getEnvDuration("RETRY_DELAY", 0),
		TrailInterval:     getEnvDuration("TRAIL_INTERVAL", 5*time.Second),
		PaperBalance:      getEnvFloat("PAPER_BALANCE", 10000),
		PaperLeverage:     int64(getEnvInt("PAPER_LEVERAGE", 100)),
		PaperSymbols:      splitAndTrim(getEnv("PAPER_SYMBOLS", "EURUSD=1.08500,GBPUSD=1.27000,XAUUSD=2350.00")),
		PaperFeed:         getEnv("PAPER_FEED", "true") == "true",
		PaperFeedTick:     getEnvDuration("PAPER_FEED_INTERVAL", time.Second),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		APIKeyHash:        os.Getenv("API_KEY_HASH"),
		TokenTTL:          getEnvDuration("TOKEN_TTL", 24*time.Hour),
		RateLimitPerSec:   getEnvFloat("RATE_LIMIT_PER_SEC", 10),
		RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", 20),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		GRPCHealthAddr:    getEnv("GRPC_HEALTH_ADDR", ""),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:           getEnv("LOG_FILE", ""),
		LogDev:            getEnv("LOG_DEV", "false") == "true",
	}
	if cfg.SubmitMaxAttempts <= 0 {
		return nil, fmt.Errorf("SUBMIT_MAX_ATTEMPTS must be positive, got %d", cfg.SubmitMaxAttempts)
	}
	if cfg.TrailInterval <= 0 {
		return nil, fmt.Errorf("TRAIL_INTERVAL must be positive, got %s", cfg.TrailInterval)
	}
	return cfg, nil
}

// PaperPrices parses PAPER_SYMBOLS entries of the form SYMBOL=price.
// Entries without a price are returned with 0.
func (c *Config) PaperPrices() map[string]float64 {
	out := make(map[string]float64, len(c.PaperSymbols))
	for _, entry := range c.PaperSymbols {
		sym, price, _ := strings.Cut(entry, "=")
		f, _ := strconv.ParseFloat(strings.TrimSpace(price), 64)
		out[strings.ToUpper(strings.TrimSpace(sym))] = f
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
