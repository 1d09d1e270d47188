package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig holds the configuration for a MongoDB (or Cosmos DB for MongoDB) collection.
type MongoConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// LoadMongoConfigFromEnv reads MONGO_URI, MONGO_DATABASE and MONGO_COLLECTION.
func LoadMongoConfigFromEnv() *MongoConfig {
	cfg := &MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "workflow",
		Collection:     "Messages",
		ConnectTimeout: 10 * time.Second,
	}
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		cfg.URI = uri
	}
	if db := os.Getenv("MONGO_DATABASE"); db != "" {
		cfg.Database = db
	}
	if coll := os.Getenv("MONGO_COLLECTION"); coll != "" {
		cfg.Collection = coll
	}
	return cfg
}

// mongoEnvelope stores a value under its key as the document _id.
type mongoEnvelope[V any] struct {
	ID    string `bson:"_id"`
	Value V      `bson:"value"`
}

// MongoStore is a generic Store backed by one MongoDB collection.
type MongoStore[K comparable, V any] struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     zerolog.Logger
}

// NewMongoStore connects to MongoDB and pings it before returning.
func NewMongoStore[K comparable, V any](ctx context.Context, cfg *MongoConfig, logger zerolog.Logger) (*MongoStore[K, V], error) {
	if cfg.Database == "" || cfg.Collection == "" {
		return nil, fmt.Errorf("mongo database and collection are required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info().Str("database", cfg.Database).Str("collection", cfg.Collection).Msg("Successfully connected to MongoDB.")
	return &MongoStore[K, V]{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		logger:     logger.With().Str("component", "MongoStore").Logger(),
	}, nil
}

// Put upserts the document stored under key.
func (s *MongoStore[K, V]) Put(ctx context.Context, key K, value V) error {
	stringKey := fmt.Sprintf("%v", key)
	opts := options.Replace().SetUpsert(true)
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": stringKey}, mongoEnvelope[V]{ID: stringKey, Value: value}, opts)
	if err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to write document to MongoDB.")
		return fmt.Errorf("mongo upsert for %s: %w", stringKey, err)
	}
	s.logger.Debug().Str("key", stringKey).Msg("Successfully wrote document to MongoDB.")
	return nil
}

// Get retrieves the document stored under key.
func (s *MongoStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := fmt.Sprintf("%v", key)
	var env mongoEnvelope[V]
	err := s.collection.FindOne(ctx, bson.M{"_id": stringKey}).Decode(&env)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return zero, fmt.Errorf("key '%s': %w", stringKey, ErrNotFound)
		}
		return zero, fmt.Errorf("mongo find for %s: %w", stringKey, err)
	}
	return env.Value, nil
}

// Close disconnects the client.
func (s *MongoStore[K, V]) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
