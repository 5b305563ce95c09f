package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendNone     = "none"
)

// Config holds all configuration for the application.
// Load is the only place that reads the process environment.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Leaderboard engine
	Leaderboard LeaderboardConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool

	// APIRateLimit is requests per minute per client IP; 0 disables it.
	// Enforced only when Redis is enabled.
	APIRateLimit int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// HorizonConfig is one named forward offset, e.g. "24h" -> 24 * time.Hour.
type HorizonConfig struct {
	Name     string
	Duration time.Duration
}

// LeaderboardConfig holds the scoring and cache policy.
type LeaderboardConfig struct {
	Horizons      []HorizonConfig
	Windows       []time.Duration
	DefaultWindow time.Duration
	MaxWindow     time.Duration

	PriceTolerance time.Duration
	MinSample      int

	CacheTTL         time.Duration
	RefreshTimeout   time.Duration
	ColdStartTimeout time.Duration
	RefreshBatchSize int64
	TriggerRate      float64

	StorageBackend  string // memory, postgres
	SnapshotBackend string // none, redis, postgres
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	horizons, err := ParseHorizons(getEnv("LEADERBOARD_HORIZONS", "1h=1h,24h=24h,7d=168h"))
	if err != nil {
		return nil, fmt.Errorf("parse LEADERBOARD_HORIZONS: %w", err)
	}

	windows, err := ParseWindows(getEnv("LEADERBOARD_WINDOWS", "24h,168h,720h"))
	if err != nil {
		return nil, fmt.Errorf("parse LEADERBOARD_WINDOWS: %w", err)
	}

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Leaderboard: LeaderboardConfig{
			Horizons:         horizons,
			Windows:          windows,
			DefaultWindow:    getEnvAsDuration("LEADERBOARD_DEFAULT_WINDOW", "168h"),
			MaxWindow:        getEnvAsDuration("LEADERBOARD_MAX_WINDOW", "2160h"),
			PriceTolerance:   getEnvAsDuration("PRICE_TOLERANCE", "15m"),
			MinSample:        getEnvAsInt("LEADERBOARD_MIN_SAMPLE", 5),
			CacheTTL:         getEnvAsDuration("LEADERBOARD_CACHE_TTL", "60s"),
			RefreshTimeout:   getEnvAsDuration("LEADERBOARD_REFRESH_TIMEOUT", "30s"),
			ColdStartTimeout: getEnvAsDuration("LEADERBOARD_COLD_START_TIMEOUT", "10s"),
			RefreshBatchSize: int64(getEnvAsInt("LEADERBOARD_REFRESH_BATCH", 100)),
			TriggerRate:      getEnvAsFloat("LEADERBOARD_TRIGGER_RATE", 2),
			StorageBackend:   getEnv("STORAGE_BACKEND", BackendPostgres),
			SnapshotBackend:  getEnv("SNAPSHOT_BACKEND", BackendNone),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),

		APIRateLimit: getEnvAsInt("API_RATE_LIMIT", 0),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	lb := c.Leaderboard

	switch lb.StorageBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of: memory, postgres")
	}

	switch lb.SnapshotBackend {
	case BackendNone, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("SNAPSHOT_BACKEND must be one of: none, redis, postgres")
	}

	// Database URL is required whenever postgres backs anything
	if (lb.StorageBackend == BackendPostgres || lb.SnapshotBackend == BackendPostgres) && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if lb.SnapshotBackend == BackendRedis && !c.Redis.Enabled {
		return fmt.Errorf("SNAPSHOT_BACKEND=redis requires REDIS_ENABLED=true")
	}

	if len(lb.Horizons) == 0 {
		return fmt.Errorf("at least one horizon is required")
	}

	if lb.DefaultWindow <= 0 || lb.DefaultWindow > lb.MaxWindow {
		return fmt.Errorf("LEADERBOARD_DEFAULT_WINDOW must be in (0, %s]", lb.MaxWindow)
	}

	for _, w := range lb.Windows {
		if w > lb.MaxWindow {
			return fmt.Errorf("window %s exceeds LEADERBOARD_MAX_WINDOW %s", w, lb.MaxWindow)
		}
	}

	if lb.MinSample < 1 {
		return fmt.Errorf("LEADERBOARD_MIN_SAMPLE must be >= 1")
	}

	if lb.PriceTolerance < 0 {
		return fmt.Errorf("PRICE_TOLERANCE must not be negative")
	}

	if lb.CacheTTL <= 0 || lb.RefreshTimeout <= 0 || lb.ColdStartTimeout <= 0 {
		return fmt.Errorf("cache TTL and timeouts must be positive")
	}

	return nil
}

// ParseHorizons parses "name=duration" pairs separated by commas.
// Order is preserved; names and durations must be unique and positive.
func ParseHorizons(raw string) ([]HorizonConfig, error) {
	var out []HorizonConfig
	seen := make(map[string]bool)

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("horizon %q: expected name=duration", part)
		}
		name = strings.TrimSpace(name)

		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("horizon %q: %w", name, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("horizon %q: duration must be positive", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("horizon %q: duplicate name", name)
		}
		seen[name] = true

		out = append(out, HorizonConfig{Name: name, Duration: d})
	}

	return out, nil
}

// ParseWindows parses a comma separated list of durations.
func ParseWindows(raw string) ([]time.Duration, error) {
	var out []time.Duration

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", part, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("window %q: duration must be positive", part)
		}

		out = append(out, d)
	}

	return out, nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
