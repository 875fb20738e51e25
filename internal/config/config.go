package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for the application
type Config struct {
	Storage     StorageConfig
	ObjectStore ObjectStoreConfig
	Idempotency IdempotencyConfig
	Ingestion   IngestionConfig
	Server      ServerConfig
	Logging     LoggingConfig
}

// StorageConfig holds session store configuration
type StorageConfig struct {
	Type          string `validate:"oneof=dynamodb mongodb postgresql"`
	Region        string // For AWS DynamoDB
	TableName     string `validate:"required_if=Type dynamodb"`
	Endpoint      string // Custom endpoint for local testing
	CreateTable   bool
	MongoDBURI    string `validate:"required_if=Type mongodb"`
	MongoDatabase string
	PostgresURI   string `validate:"required_if=Type postgresql"`
}

// ObjectStoreConfig holds bucket configuration for raw posts and weekly archives
type ObjectStoreConfig struct {
	Type         string `validate:"oneof=s3 memory"`
	Bucket       string `validate:"required_if=Type s3"`
	Region       string
	Endpoint     string
	RawPrefix    string `validate:"required"`
	ArchiveLayer string `validate:"required"`
}

// IdempotencyConfig holds idempotency store configuration
type IdempotencyConfig struct {
	Backend     string `validate:"omitempty,oneof=dynamodb redis memory"`
	TableName   string `validate:"required_if=Backend dynamodb"`
	Region      string
	Endpoint    string
	CreateTable bool
	RedisURL    string `validate:"required_if=Backend redis"`
	KeyPrefix   string
	TTL         time.Duration `validate:"gt=0"`
	Lease       time.Duration `validate:"gt=0"`
}

// IngestionConfig holds blog fetch and scheduling configuration
type IngestionConfig struct {
	APIEndpoint  string `validate:"required,url"`
	CategoryID   string
	PostsPerPage int `validate:"gte=1,lte=100"`
	Username     string
	Password     string
	Interval     time.Duration `validate:"gt=0"`
	Timeout      time.Duration
	RetryCount   int `validate:"gte=1"`
	RetryBackoff time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int `validate:"gte=0,lte=65535"`
}

// LoggingConfig holds log output configuration
type LoggingConfig struct {
	Level  string `validate:"oneof=DEBUG INFO WARNING WARN ERROR CRITICAL"`
	Format string `validate:"oneof=json console"`
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	region := getEnv("AWS_REGION", "us-east-1")

	cfg := &Config{
		Storage: StorageConfig{
			Type:          getEnv("STORAGE_TYPE", "dynamodb"),
			Region:        region,
			TableName:     getEnv("DYNAMODB_TABLE", "wod_sessions"),
			Endpoint:      getEnv("DYNAMODB_ENDPOINT", ""), // For local DynamoDB
			CreateTable:   getEnvBool("CREATE_TABLES", false),
			MongoDBURI:    getEnv("MONGODB_URI", ""),
			MongoDatabase: getEnv("MONGODB_DATABASE", "wod"),
			PostgresURI:   getEnv("POSTGRES_URI", ""),
		},
		ObjectStore: ObjectStoreConfig{
			Type:         getEnv("OBJECT_STORE_TYPE", "s3"),
			Bucket:       getEnv("INVICTUS_BUCKET", ""),
			Region:       region,
			Endpoint:     getEnv("S3_ENDPOINT", ""),
			RawPrefix:    getEnv("RAW_PREFIX", "raw"),
			ArchiveLayer: getEnv("ARCHIVE_LAYER", "weekly"),
		},
		Idempotency: IdempotencyConfig{
			Backend:     getEnv("IDEMPOTENCY_BACKEND", ""),
			TableName:   getEnv("IDEMPOTENCY_TABLE", ""),
			Region:      region,
			Endpoint:    getEnv("DYNAMODB_ENDPOINT", ""),
			CreateTable: getEnvBool("CREATE_TABLES", false),
			RedisURL:    getEnv("IDEMPOTENCY_REDIS_URL", ""),
			KeyPrefix:   getEnv("IDEMPOTENCY_KEY_PREFIX", "idempotency:"),
			TTL:         getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
			Lease:       getEnvDuration("IDEMPOTENCY_LEASE", 5*time.Minute),
		},
		Ingestion: IngestionConfig{
			APIEndpoint:  getEnv("INVICTUS_WEIGHTLIFTING_API", ""),
			CategoryID:   getEnv("INVICTUS_WEIGHTLIFTING_API_CAT_ID", "213"),
			PostsPerPage: getEnvInt("POSTS_PER_PAGE", 1),
			Username:     getEnv("INVICTUS_USER", ""),
			Password:     getEnv("INVICTUS_PASS", ""),
			Interval:     getEnvDuration("INGESTION_INTERVAL", 24*time.Hour),
			Timeout:      getEnvDuration("API_TIMEOUT", 30*time.Second),
			RetryCount:   getEnvInt("RETRY_COUNT", 3),
			RetryBackoff: getEnvDuration("RETRY_BACKOFF", time.Second),
		},
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Logging: LoggingConfig{
			Level:  strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Historical deployments set IDEMPOTENCY_TABLE without a backend.
	if cfg.Idempotency.Backend == "" && cfg.Idempotency.TableName != "" {
		cfg.Idempotency.Backend = "dynamodb"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and reports the first failing fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
