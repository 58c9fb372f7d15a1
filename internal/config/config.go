package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	TickInterval    time.Duration
	TickSimDuration time.Duration
	SpeedMultiplier float64
	StopDelay       time.Duration
	SimDays         int
	FleetSize       int
	RandomSeed      int64

	DataDir          string
	FeedURL          string
	FeedCacheDir     string
	FeedDownloadWait time.Duration

	RiskHorizon    time.Duration
	RiskStep       time.Duration
	RiskTopN       int
	RiskDistanceKm float64
	RiskMinScore   float64

	TileZoomLevel int

	SpeedEnrichEnabled bool
	OverpassURL        string
	OverpassMaxFetch   int
	OverpassDelay      time.Duration

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitWhitelist []string
}

func Load() (*Config, error) {
	multiplier := getFloatEnv("SPEED_MULTIPLIER", 1)
	if multiplier <= 0 || math.IsNaN(multiplier) || math.IsInf(multiplier, 0) {
		return nil, fmt.Errorf("SPEED_MULTIPLIER must be a positive number, got %v", multiplier)
	}

	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		TickInterval:    getDurationEnv("TICK_INTERVAL", time.Second),
		TickSimDuration: getDurationEnv("TICK_SIM_DURATION", time.Second),
		SpeedMultiplier: multiplier,
		StopDelay:       getDurationEnv("STOP_DELAY", 5*time.Second),
		SimDays:         getIntEnv("SIM_DAYS", 365),
		FleetSize:       getIntEnv("FLEET_SIZE", 100),
		RandomSeed:      int64(getIntEnv("RANDOM_SEED", 42)),

		DataDir:          getEnv("DATA_DIR", ""),
		FeedURL:          getEnv("FEED_URL", ""),
		FeedCacheDir:     getEnv("FEED_CACHE_DIR", os.TempDir()),
		FeedDownloadWait: getDurationEnv("FEED_DOWNLOAD_TIMEOUT", 2*time.Minute),

		RiskHorizon:    getDurationEnv("RISK_HORIZON", 30*time.Minute),
		RiskStep:       getDurationEnv("RISK_STEP", 30*time.Second),
		RiskTopN:       getIntEnv("RISK_TOP_N", 20),
		RiskDistanceKm: getFloatEnv("RISK_DISTANCE_KM", 2),
		RiskMinScore:   getFloatEnv("RISK_MIN_SCORE", 0.35),

		TileZoomLevel: getIntEnv("TILE_ZOOM_LEVEL", 8),

		SpeedEnrichEnabled: getBoolEnv("SPEED_ENRICH_ENABLED", false),
		OverpassURL:        getEnv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		OverpassMaxFetch:   getIntEnv("OVERPASS_MAX_FETCH", 60),
		OverpassDelay:      getDurationEnv("OVERPASS_DELAY", 250*time.Millisecond),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		CacheTTL:      getDurationEnv("CACHE_TTL", 24*time.Hour),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),
	}

	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("TICK_INTERVAL must be positive, got %s", cfg.TickInterval)
	}
	if cfg.RiskStep <= 0 || cfg.RiskHorizon < 0 {
		return nil, fmt.Errorf("invalid risk window: horizon %s step %s", cfg.RiskHorizon, cfg.RiskStep)
	}
	if cfg.SimDays < 1 {
		cfg.SimDays = 1
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
