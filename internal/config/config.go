// Package config assembles the workflow's configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/CKThompson00/workflow-automation/internal/logging"
	"github.com/CKThompson00/workflow-automation/pkg/docstore"
	"github.com/CKThompson00/workflow-automation/pkg/messagepipeline"
	"github.com/CKThompson00/workflow-automation/pkg/workflow"
	"github.com/joho/godotenv"
)

// DocStoreBackend selects where received messages are stored.
type DocStoreBackend string

const (
	// BackendNone stores nothing; received messages are only logged.
	BackendNone      DocStoreBackend = "none"
	BackendMemory    DocStoreBackend = "memory"
	BackendRedis     DocStoreBackend = "redis"
	BackendFirestore DocStoreBackend = "firestore"
	BackendMongo     DocStoreBackend = "mongo"
)

// DocStoreConfig configures the document store of the workflow processor.
type DocStoreConfig struct {
	Backend DocStoreBackend
	// CacheSize puts an LRU cache of this many documents in front of the
	// backend. Zero disables the cache.
	CacheSize int
	Redis     *docstore.RedisConfig
	Firestore *docstore.FirestoreConfig
	Mongo     *docstore.MongoConfig
}

// Config holds all configuration for the workflow.
type Config struct {
	ServiceBus *messagepipeline.ServiceBusConfig
	Log        logging.Config
	DocStore   DocStoreConfig
	Postgres   *workflow.PostgresConfig
}

// Load reads configuration from environment variables, loading a .env file
// first if one is present. Variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceBus: messagepipeline.NewServiceBusDefaults(),
		Log: logging.Config{
			Level: getEnv("LOG_LEVEL", "info"),
			Dir:   os.Getenv("LOG_DIR"),
		},
		DocStore: DocStoreConfig{
			Backend:   DocStoreBackend(strings.ToLower(getEnv("DOCSTORE_BACKEND", string(BackendNone)))),
			CacheSize: getEnvAsInt("DOCSTORE_CACHE_SIZE", 0),
			Redis:     docstore.LoadRedisConfigFromEnv(),
			Firestore: docstore.LoadFirestoreConfigFromEnv(),
			Mongo:     docstore.LoadMongoConfigFromEnv(),
		},
		Postgres: workflow.LoadPostgresConfigFromEnv(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ServiceBus.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.DocStore.Backend {
	case BackendNone, BackendMemory, BackendRedis, BackendMongo:
	case BackendFirestore:
		if c.DocStore.Firestore.ProjectID == "" {
			errs = append(errs, errors.New("firestore project id is required (FIRESTORE_PROJECT_ID)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown document store backend %q", c.DocStore.Backend))
	}
	if c.DocStore.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("document cache size cannot be negative, got %d", c.DocStore.CacheSize))
	}
	if c.DocStore.Backend == BackendNone && c.Postgres.DatabaseURL != "" {
		errs = append(errs, errors.New("WORKFLOW_DATABASE_URL requires a document store backend"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}
