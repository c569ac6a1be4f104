package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/soundvault/backend/internal/abuse"
	"github.com/soundvault/backend/internal/logger"
	"github.com/soundvault/backend/internal/ratelimit"
)

// Config holds all recognized process configuration, read from the
// environment at startup. Secrets are immutable for the process lifetime.
type Config struct {
	Port     string
	LogLevel string
	LogFile  string

	// SigningSecret signs access tokens; RootSecret derives per-track
	// encryption keys. Both must be shared across instances in production.
	SigningSecret []byte
	RootSecret    []byte

	DefaultTokenTTL time.Duration
	AuditAll        bool

	RateTable       ratelimit.Table
	RateBackend     string // "memory" or "redis"
	AbuseThresholds abuse.Thresholds

	RedisHost     string
	RedisPort     string
	RedisPassword string

	DatabaseURL string // empty selects sqlite at SQLitePath
	SQLitePath  string

	ChunkBackend string // "s3" or "memory"
	S3Region     string
	S3Bucket     string

	EventSink       string // "log" or "redis"
	EventSinkBuffer int

	OTLPEndpoint string
	Environment  string
}

// Load reads configuration from the environment. Missing secrets fall back
// to securely generated per-process values - fine for development, wrong
// for multi-instance production where tokens must verify on any instance.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnvOrDefault("PORT", "8787"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:         getEnvOrDefault("LOG_FILE", "server.log"),
		DefaultTokenTTL: getEnvDuration("TOKEN_DEFAULT_TTL_SECONDS", time.Hour),
		AuditAll:        getEnvBool("AUDIT_ALL", false),
		RateBackend:     getEnvOrDefault("RATE_LIMIT_BACKEND", "memory"),
		RedisHost:       os.Getenv("REDIS_HOST"),
		RedisPort:       getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      getEnvOrDefault("SQLITE_PATH", "soundvault.db"),
		ChunkBackend:    getEnvOrDefault("CHUNK_STORE_BACKEND", "memory"),
		S3Region:        getEnvOrDefault("AWS_REGION", "us-east-1"),
		S3Bucket:        os.Getenv("AWS_BUCKET"),
		EventSink:       getEnvOrDefault("SECURITY_EVENT_SINK", "log"),
		EventSinkBuffer: getEnvInt("SECURITY_EVENT_BUFFER", 1024),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Environment:     getEnvOrDefault("ENVIRONMENT", "development"),
	}

	var err error
	if cfg.SigningSecret, err = loadSecret("TOKEN_SIGNING_SECRET"); err != nil {
		return nil, err
	}
	if cfg.RootSecret, err = loadSecret("ENCRYPTION_ROOT_SECRET"); err != nil {
		return nil, err
	}

	cfg.RateTable = loadRateTable()
	cfg.AbuseThresholds = loadAbuseThresholds()

	if cfg.ChunkBackend == "s3" && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("AWS_BUCKET is required when CHUNK_STORE_BACKEND=s3")
	}

	return cfg, nil
}

// loadSecret reads a hex or raw secret from the environment, generating a
// random per-process value when unset.
func loadSecret(envVar string) ([]byte, error) {
	if raw := os.Getenv(envVar); raw != "" {
		if decoded, err := hex.DecodeString(raw); err == nil && len(decoded) >= 16 {
			return decoded, nil
		}
		if len(raw) < 16 {
			return nil, fmt.Errorf("%s must be at least 16 bytes", envVar)
		}
		return []byte(raw), nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", envVar, err)
	}
	logger.Warn(fmt.Sprintf("%s not set - generated a random secret for this process only; tokens and ciphertext will not survive a restart", envVar))
	return secret, nil
}

// loadRateTable builds the per-route-class budget table. Each class can be
// overridden with RATE_LIMIT_<CLASS>, formatted "limit/windowSeconds".
func loadRateTable() ratelimit.Table {
	table := ratelimit.DefaultTable()
	for class := range table {
		envVar := "RATE_LIMIT_" + strings.ToUpper(string(class))
		raw := os.Getenv(envVar)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, "/", 2)
		if len(parts) != 2 {
			logger.Warn(fmt.Sprintf("Ignoring malformed %s=%q (want limit/windowSeconds)", envVar, raw))
			continue
		}
		limit, err1 := strconv.Atoi(parts[0])
		windowSec, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || limit <= 0 || windowSec <= 0 {
			logger.Warn(fmt.Sprintf("Ignoring malformed %s=%q (want limit/windowSeconds)", envVar, raw))
			continue
		}
		table[class] = ratelimit.WindowConfig{
			Limit:  limit,
			Window: time.Duration(windowSec) * time.Second,
		}
	}
	return table
}

func loadAbuseThresholds() abuse.Thresholds {
	t := abuse.DefaultThresholds()
	t.TrackRequestLimit = getEnvInt("ABUSE_TRACK_REQUEST_LIMIT", t.TrackRequestLimit)
	t.TrackRequestWindow = getEnvDuration("ABUSE_TRACK_REQUEST_WINDOW_SECONDS", t.TrackRequestWindow)
	t.DistinctOriginLimit = getEnvInt("ABUSE_DISTINCT_ORIGIN_LIMIT", t.DistinctOriginLimit)
	t.ConcurrencyWindow = getEnvDuration("ABUSE_CONCURRENCY_WINDOW_SECONDS", t.ConcurrencyWindow)
	t.ChunkRepeatLimit = getEnvInt("ABUSE_CHUNK_REPEAT_LIMIT", t.ChunkRepeatLimit)
	t.ChunkRepeatWindow = getEnvDuration("ABUSE_CHUNK_REPEAT_WINDOW_SECONDS", t.ChunkRepeatWindow)
	t.HistoryCapacity = getEnvInt("ABUSE_HISTORY_CAPACITY", t.HistoryCapacity)
	t.HistoryHorizon = getEnvDuration("ABUSE_HISTORY_HORIZON_SECONDS", t.HistoryHorizon)
	return t
}

func getEnvOrDefault(key, fallback string) string {
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
		logger.Warn(fmt.Sprintf("Ignoring non-numeric %s=%q", key, v))
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
		logger.Warn(fmt.Sprintf("Ignoring non-numeric %s=%q", key, v))
	}
	return fallback
}
