package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type (
	// Config holds configuration settings for the dispatch engine
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Run state (Redis)
		Redis RedisConfig

		// Execution store (Mongo) and archive
		Mongo   MongoConfig
		Archive ArchiveConfig

		// Chat model
		Chat ChatConfig

		// Execution & Persistence
		NodeTimeout     time.Duration
		TaskTimeout     time.Duration
		QueueBatchSize  int
		ShutdownTimeout time.Duration
	}

	// RedisConfig describes the workflow run-state store
	RedisConfig struct {
		Addr     string
		Password string
		Prefix   string
		DB       int
		TTL      time.Duration
	}

	// MongoConfig describes the execution-data store. An empty URI
	// disables Mongo persistence
	MongoConfig struct {
		URI        string
		Database   string
		Collection string
	}

	// ArchiveConfig describes the optional blob archive. An empty bucket
	// URL disables archiving
	ArchiveConfig struct {
		BucketURL string
		Prefix    string
	}

	// ChatConfig describes the model endpoint for chat nodes. An empty
	// API key disables chat execution
	ChatConfig struct {
		BaseURL string
		APIKey  string
		Model   string
	}
)

const (
	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535

	DefaultRedisEndpoint = "localhost:6379"
	DefaultRedisPrefix   = "weave"
	DefaultRedisDB       = 0
	DefaultStateTTL      = 24 * time.Hour

	DefaultMongoDatabase   = "weave"
	DefaultMongoCollection = "executions"

	DefaultChatModel = "gpt-4o-mini"

	DefaultNodeTimeout     = 30 * time.Second
	DefaultTaskTimeout     = 30 * time.Second
	DefaultQueueBatchSize  = 16
	DefaultShutdownTimeout = 10 * time.Second

	MaxNodeTimeoutSecs = 24 * 60 * 60
	MaxStateTTLSecs    = 365 * 24 * 60 * 60
	MaxQueueBatchSize  = 4096
)

var (
	ErrInvalidAPIPort        = errors.New("invalid API port")
	ErrInvalidNodeTimeout    = errors.New("node timeout must be positive")
	ErrInvalidTaskTimeout    = errors.New("task timeout must be positive")
	ErrInvalidQueueBatchSize = errors.New("queue batch size must be positive")
	ErrRedisAddrEmpty        = errors.New("redis address empty")
	ErrRedisPrefixEmpty      = errors.New("redis prefix empty")
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// server, stores, and persistence queue
func NewDefaultConfig() *Config {
	return &Config{
		APIHost: DefaultAPIHost,
		APIPort: DefaultAPIPort,
		Redis: RedisConfig{
			Addr:   DefaultRedisEndpoint,
			Prefix: DefaultRedisPrefix,
			DB:     DefaultRedisDB,
			TTL:    DefaultStateTTL,
		},
		Mongo: MongoConfig{
			Database:   DefaultMongoDatabase,
			Collection: DefaultMongoCollection,
		},
		Chat: ChatConfig{
			Model: DefaultChatModel,
		},
		NodeTimeout:     DefaultNodeTimeout,
		TaskTimeout:     DefaultTaskTimeout,
		QueueBatchSize:  DefaultQueueBatchSize,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        "info",
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	if apiHost := os.Getenv("API_HOST"); apiHost != "" {
		c.APIHost = apiHost
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}

	loadRedisFromEnv(&c.Redis)

	if uri := os.Getenv("MONGO_URI"); uri != "" {
		c.Mongo.URI = uri
	}
	if db := os.Getenv("MONGO_DATABASE"); db != "" {
		c.Mongo.Database = db
	}
	if coll := os.Getenv("MONGO_COLLECTION"); coll != "" {
		c.Mongo.Collection = coll
	}

	if bucket := os.Getenv("ARCHIVE_BUCKET_URL"); bucket != "" {
		c.Archive.BucketURL = bucket
	}
	if prefix := os.Getenv("ARCHIVE_PREFIX"); prefix != "" {
		c.Archive.Prefix = prefix
	}

	if baseURL := os.Getenv("CHAT_BASE_URL"); baseURL != "" {
		c.Chat.BaseURL = baseURL
	}
	if apiKey := os.Getenv("CHAT_API_KEY"); apiKey != "" {
		c.Chat.APIKey = apiKey
	}
	if model := os.Getenv("CHAT_MODEL"); model != "" {
		c.Chat.Model = model
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvSeconds(
		"NODE_TIMEOUT", &c.NodeTimeout, MaxNodeTimeoutSecs,
	); err != nil {
		return err
	}
	if err := loadEnvSeconds(
		"TASK_TIMEOUT", &c.TaskTimeout, MaxNodeTimeoutSecs,
	); err != nil {
		return err
	}
	if err := loadEnvSeconds(
		"STATE_TTL", &c.Redis.TTL, MaxStateTTLSecs,
	); err != nil {
		return err
	}
	return loadEnvInt(
		"QUEUE_BATCH_SIZE", &c.QueueBatchSize, 0, MaxQueueBatchSize,
	)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}
	if c.Redis.Addr == "" {
		return ErrRedisAddrEmpty
	}
	if c.Redis.Prefix == "" {
		return ErrRedisPrefixEmpty
	}
	if c.NodeTimeout <= 0 {
		return ErrInvalidNodeTimeout
	}
	if c.TaskTimeout <= 0 {
		return ErrInvalidTaskTimeout
	}
	if c.QueueBatchSize <= 0 {
		return ErrInvalidQueueBatchSize
	}
	return nil
}

func loadRedisFromEnv(r *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		r.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		r.Password = password
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			r.DB = db
		}
	}
	if prefix := os.Getenv("REDIS_PREFIX"); prefix != "" {
		r.Prefix = prefix
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max). Returns an error if
// the value cannot be parsed or falls outside the valid range.
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

// loadEnvSeconds reads key as a whole number of seconds
func loadEnvSeconds(key string, dst *time.Duration, maxSecs int64) error {
	var secs int64
	if err := loadEnvInt(key, &secs, 0, maxSecs); err != nil {
		return err
	}
	if secs > 0 {
		*dst = time.Duration(secs) * time.Second
	}
	return nil
}
