package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joseph-ayodele/po-extractor/constants"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	LLM       LLMConfig
	Reconcile ReconcileConfig
	Queue     QueueConfig
	Archive   ArchiveConfig
	Log       LogConfig
}

// DatabaseConfig holds database-related configuration. An empty DSN selects in-memory SQLite.
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr    string
	GRPCAddr    string
	UploadDir   string
	MaxUploadMB int
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
	RatePerSec  float64
}

// ReconcileConfig holds the global reconciliation knobs.
type ReconcileConfig struct {
	QuantityPrecision int
	MatchThreshold    float64
	KeepAddressOnMiss bool
	ProfilesFile      string
}

// QueueConfig holds background worker configuration
type QueueConfig struct {
	Workers        int
	Size           int
	ProcessTimeout time.Duration
	InboxDir       string
	InboxDebounce  time.Duration
}

// LogConfig selects the slog handler commands install.
type LogConfig struct {
	Format string // json | text
	Level  string // debug | info | warn | error
}

// ArchiveConfig holds the optional S3-compatible upload archive.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Enabled reports whether uploads should be archived.
func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != "" && a.Bucket != ""
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:    getEnv("HTTP_ADDR", ":5000"),
			GRPCAddr:    getEnv("GRPC_ADDR", ":8080"),
			UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
			MaxUploadMB: getEnvAsInt("MAX_UPLOAD_MB", constants.DefaultMaxUploadMB),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			RatePerSec:  getEnvAsFloat64("LLM_RATE_PER_SEC", 2),
		},
		Reconcile: ReconcileConfig{
			QuantityPrecision: getEnvAsInt("QUANTITY_PRECISION", constants.DefaultQuantityPrecision),
			MatchThreshold:    getEnvAsFloat64("MATCH_THRESHOLD", constants.DefaultMatchThreshold),
			KeepAddressOnMiss: getEnvAsBool("KEEP_ADDRESS_ON_MISS", false),
			ProfilesFile:      getEnv("PROFILES_FILE", ""),
		},
		Queue: QueueConfig{
			Workers:        getEnvAsInt("QUEUE_WORKERS", 4),
			Size:           getEnvAsInt("QUEUE_SIZE", 256),
			ProcessTimeout: getEnvAsDuration("PROCESS_TIMEOUT", 3*time.Minute),
			InboxDir:       getEnv("INBOX_DIR", ""),
			InboxDebounce:  getEnvAsDuration("INBOX_DEBOUNCE", 2*time.Second),
		},
		Archive: ArchiveConfig{
			Endpoint:  getEnv("R2_ENDPOINT", ""),
			AccessKey: getEnv("R2_ACCESS_KEY", ""),
			SecretKey: getEnv("R2_SECRET_KEY", ""),
			Bucket:    getEnv("R2_BUCKET_NAME", ""),
		},
		Log: LogConfig{
			Format: getEnv("LOG_FORMAT", "json"),
			Level:  getEnv("LOG_LEVEL", "info"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Reconcile.QuantityPrecision < 0 {
		return NewAppError("CONFIG_ERROR", "QUANTITY_PRECISION must not be negative", ErrInvalidInput)
	}
	if c.Reconcile.MatchThreshold < 0 || c.Reconcile.MatchThreshold > 1 {
		return NewAppError("CONFIG_ERROR", "MATCH_THRESHOLD must be within [0,1]", ErrInvalidInput)
	}
	if c.Queue.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "QUEUE_WORKERS must be positive", ErrInvalidInput)
	}
	return nil
}

// ValidateLLM is checked only by commands that call the language model.
func (c *Config) ValidateLLM() error {
	if c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY or OPENAI_BASE_URL is required", ErrInvalidInput)
	}
	return nil
}
