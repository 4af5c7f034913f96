// Package gwconfig loads the gateway's environment-variable configuration,
// following the teacher's internal/config/env.go idiom: typed accessors
// that log their source (environment vs. default) at debug level, with
// sensitive keys redacted from the log line itself.
package gwconfig

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gonka-ai/inference-gateway/internal/log"
)

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "key") || strings.Contains(lower, "token") || strings.Contains(lower, "password")
}

// ParseString reads a string environment variable, logging its source.
func ParseString(key, defaultValue string) string {
	return parseString(log.WithComponent("gwconfig"), key, defaultValue)
}

func parseString(logger zerolog.Logger, key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		logger.Debug().Str("key", key).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	if isSensitive(key) {
		logger.Debug().Str("key", key).Str("source", "environment").Bool("sensitive", true).Msg("using environment variable")
	} else {
		logger.Debug().Str("key", key).Str("value", value).Str("source", "environment").Msg("using environment variable")
	}
	return value
}

// ParseInt reads an integer environment variable, falling back to
// defaultValue on parse error or absence.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("gwconfig")
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		logger.Debug().Str("key", key).Int("default", defaultValue).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", value).Int("default", defaultValue).Msg("invalid integer, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Int("value", n).Str("source", "environment").Msg("using environment variable")
	return n
}

// ParseDuration reads a Go-duration-format environment variable.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := log.WithComponent("gwconfig")
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		logger.Debug().Str("key", key).Dur("default", defaultValue).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", value).Dur("default", defaultValue).Msg("invalid duration, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Dur("value", d).Str("source", "environment").Msg("using environment variable")
	return d
}

// ParseBool reads a boolean environment variable ("true"/"false"/"1"/"0"/
// "yes"/"no", case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("gwconfig")
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		logger.Debug().Str("key", key).Bool("default", defaultValue).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		logger.Debug().Str("key", key).Bool("value", true).Str("source", "environment").Msg("using environment variable")
		return true
	case "false", "0", "no":
		logger.Debug().Str("key", key).Bool("value", false).Str("source", "environment").Msg("using environment variable")
		return false
	default:
		logger.Warn().Str("key", key).Str("value", value).Bool("default", defaultValue).Msg("invalid boolean, using default")
		return defaultValue
	}
}

// Config is the gateway's fully-resolved runtime configuration.
type Config struct {
	Host string
	Port int

	VLLMURL string

	APIKeysFile  string
	AdminAPIKey  string
	DefaultRPM   int
	DefaultTPM   int

	SessionTTL        time.Duration
	SessionMaxHistory int

	DataDir    string
	ModelsFile string
	ModelsWatch bool

	RedisAddr string

	OTelExporter   string
	OTelEndpoint   string
	OTelSampleRate float64

	LogLevel string
}

// Load reads the full Config from the process environment.
func Load() Config {
	dataDir := ParseString("GONKA_DATA_DIR", "./data")
	return Config{
		Host: ParseString("GONKA_GATEWAY_HOST", "0.0.0.0"),
		Port: ParseInt("GONKA_GATEWAY_PORT", 8080),

		VLLMURL: ParseString("GONKA_VLLM_URL", "http://localhost:8000"),

		APIKeysFile: ParseString("GONKA_API_KEYS_FILE", dataDir+"/keys.json"),
		AdminAPIKey: ParseString("GONKA_ADMIN_API_KEY", ""),
		DefaultRPM:  ParseInt("GONKA_DEFAULT_RPM", 60),
		DefaultTPM:  ParseInt("GONKA_DEFAULT_TPM", 100_000),

		SessionTTL:        ParseDuration("GONKA_SESSION_TTL", time.Hour),
		SessionMaxHistory: ParseInt("GONKA_SESSION_MAX_HISTORY", 100),

		DataDir:     dataDir,
		ModelsFile:  ParseString("GONKA_MODELS_FILE", "./config/models.yaml"),
		ModelsWatch: ParseBool("GONKA_MODELS_WATCH", false),

		RedisAddr: ParseString("GONKA_REDIS_ADDR", ""),

		OTelExporter:   ParseString("GONKA_OTEL_EXPORTER", "noop"),
		OTelEndpoint:   ParseString("GONKA_OTEL_ENDPOINT", "localhost:4318"),
		OTelSampleRate: parseFloat("GONKA_OTEL_SAMPLE_RATE", 0.0),

		LogLevel: ParseString("GONKA_LOG_LEVEL", "info"),
	}
}

func parseFloat(key string, defaultValue float64) float64 {
	logger := log.WithComponent("gwconfig")
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		logger.Debug().Str("key", key).Float64("default", defaultValue).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", value).Float64("default", defaultValue).Msg("invalid float, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Float64("value", f).Str("source", "environment").Msg("using environment variable")
	return f
}
