package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Reporting ReportingConfig
	Bus       BusConfig
	Collector CollectorConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig holds the persistence gateway settings: the remote document
// store connection and the local fallback cache.
type StorageConfig struct {
	MongoURI         string
	Database         string
	Collection       string
	CachePath        string
	MaxHistoryLimit  int
	SyncWindow       int
	ProbeTimeout     time.Duration
	ReconnectTimeout time.Duration
}

// AuthConfig holds token and user-store settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	UsersPath string
}

// ReportingConfig holds the daily-report writer settings.
type ReportingConfig struct {
	Dir string
}

// BusConfig holds the live alert fan-out settings. An empty URL disables
// publishing.
type BusConfig struct {
	NATSURL string
	Subject string
}

// CollectorConfig holds the SSH auth-log collector settings.
type CollectorConfig struct {
	Enabled  bool
	Host     string
	User     string
	Password string
	LogPath  string
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

const (
	defaultHost            = "0.0.0.0"
	defaultPort            = "8000"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultMongoURI         = "mongodb://localhost:27017"
	defaultDatabase         = "threat_detection"
	defaultCollection       = "threats"
	defaultCachePath        = "data/threats.json"
	defaultMaxHistoryLimit  = 2000
	defaultSyncWindow       = 1000
	defaultProbeTimeout     = 3 * time.Second
	defaultReconnectTimeout = 2 * time.Second

	defaultJWTSecret = "change-this-secret"
	defaultTokenTTL  = 60 * time.Minute
	defaultUsersPath = "data/users.json"
	defaultReportDir = "data/reports"

	defaultBusSubject = "netguard.threats.detected"

	defaultCollectorLogPath = "/var/log/auth.log"

	defaultLogFormat = "json"
)

// Load reads configuration from a .env file when present, then environment
// variables, applying defaults when values are not provided or invalid.
func Load() (Config, error) {
	// A .env next to the binary wins; fall back to the parent for the
	// cmd/<name> working-directory case.
	for _, path := range []string{".env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", defaultHost),
			Port:            getEnv("SERVER_PORT", defaultPort),
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Storage: StorageConfig{
			MongoURI:         getEnv("MONGO_URI", defaultMongoURI),
			Database:         getEnv("DB_NAME", defaultDatabase),
			Collection:       getEnv("COLLECTION_NAME", defaultCollection),
			CachePath:        getEnv("JSON_DB_PATH", defaultCachePath),
			MaxHistoryLimit:  defaultMaxHistoryLimit,
			SyncWindow:       defaultSyncWindow,
			ProbeTimeout:     defaultProbeTimeout,
			ReconnectTimeout: defaultReconnectTimeout,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("SECRET_KEY", defaultJWTSecret),
			TokenTTL:  defaultTokenTTL,
			UsersPath: getEnv("USERS_PATH", defaultUsersPath),
		},
		Reporting: ReportingConfig{
			Dir: getEnv("REPORT_DIR", defaultReportDir),
		},
		Bus: BusConfig{
			NATSURL: getEnv("NATS_URL", ""),
			Subject: getEnv("NATS_SUBJECT", defaultBusSubject),
		},
		Collector: CollectorConfig{
			Enabled:  getEnv("COLLECTOR_ENABLED", "false") == "true",
			Host:     getEnv("TARGET_SERVER_IP", ""),
			User:     getEnv("TARGET_SSH_USER", "root"),
			Password: getEnv("TARGET_SSH_PASSWORD", ""),
			LogPath:  getEnv("COLLECTOR_LOG_PATH", defaultCollectorLogPath),
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
	}

	if v := os.Getenv("MAX_HISTORY_LIMIT"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MAX_HISTORY_LIMIT: %w", err)
		}
		cfg.Storage.MaxHistoryLimit = n
	}

	if v := os.Getenv("SYNC_WINDOW"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SYNC_WINDOW: %w", err)
		}
		cfg.Storage.SyncWindow = n
	}

	if v := os.Getenv("PROBE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid PROBE_TIMEOUT: must be a positive duration")
		}
		cfg.Storage.ProbeTimeout = d
	}

	if v := os.Getenv("RECONNECT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid RECONNECT_TIMEOUT: must be a positive duration")
		}
		cfg.Storage.ReconnectTimeout = d
	}

	if v := os.Getenv("TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid TOKEN_TTL: must be a positive duration")
		}
		cfg.Auth.TokenTTL = d
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if cfg.Collector.Enabled && cfg.Collector.Host == "" {
		return Config{}, fmt.Errorf("COLLECTOR_ENABLED requires TARGET_SERVER_IP")
	}

	return cfg, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
