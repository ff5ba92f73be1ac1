package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
	DefaultLocale      string
	GeoIPDBPath        string

	SessionIdleTTL time.Duration

	HistoryStore  string
	HistoryKey    string
	StoragePath   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string

	SimulatorMinDelay    time.Duration
	SimulatorMaxDelay    time.Duration
	SimulatorFailureRate float64
	RetryMaxAttempts     int
	RetryBackoff         time.Duration

	ImageMaxWidth  int
	ImageMaxBytes  int64
	ImageMaxPixels int64
}

var historyStores = map[string]bool{
	"file":     true,
	"memory":   true,
	"redis":    true,
	"postgres": true,
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", "*"),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "en"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),

		SessionIdleTTL: time.Minute * time.Duration(getEnvInt("SESSION_IDLE_MINUTES", 30)),

		HistoryStore:  strings.ToLower(getEnv("HISTORY_STORE", "file")),
		HistoryKey:    getEnv("HISTORY_KEY", "ai-studio:history"),
		StoragePath:   getEnv("STORAGE_PATH", "./data"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		DatabaseURL:   os.Getenv("DATABASE_URL"),

		SimulatorMinDelay:    getEnvMillis("SIMULATOR_MIN_DELAY_MS", 1000),
		SimulatorMaxDelay:    getEnvMillis("SIMULATOR_MAX_DELAY_MS", 2000),
		SimulatorFailureRate: getEnvFloat("SIMULATOR_FAILURE_RATE", 0.2),
		RetryMaxAttempts:     getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBackoff:         getEnvMillis("RETRY_BACKOFF_MS", 500),

		ImageMaxWidth:  getEnvInt("IMAGE_MAX_WIDTH", 1920),
		ImageMaxBytes:  int64(getEnvInt("IMAGE_MAX_BYTES", 10*1024*1024)),
		ImageMaxPixels: int64(getEnvInt("IMAGE_MAX_PIXELS", 40_000_000)),
	}

	if !historyStores[cfg.HistoryStore] {
		return nil, fmt.Errorf("HISTORY_STORE %q is not supported", cfg.HistoryStore)
	}
	if cfg.HistoryStore == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when HISTORY_STORE=postgres")
	}
	if cfg.SimulatorMaxDelay < cfg.SimulatorMinDelay {
		return nil, fmt.Errorf("SIMULATOR_MAX_DELAY_MS must not be lower than SIMULATOR_MIN_DELAY_MS")
	}
	if cfg.SimulatorFailureRate < 0 || cfg.SimulatorFailureRate > 1 {
		return nil, fmt.Errorf("SIMULATOR_FAILURE_RATE must be between 0 and 1")
	}
	if cfg.RetryMaxAttempts < 1 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Millisecond * time.Duration(getEnvInt(key, fallback))
}

func getEnvList(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, fallback), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
