package docstore

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore client.
type FirestoreConfig struct {
	ProjectID       string
	CollectionName  string
	CredentialsFile string // Optional
}

// LoadFirestoreConfigFromEnv reads FIRESTORE_PROJECT_ID, FIRESTORE_COLLECTION and GOOGLE_CREDENTIALS_FILE.
func LoadFirestoreConfigFromEnv() *FirestoreConfig {
	cfg := &FirestoreConfig{
		ProjectID:       os.Getenv("FIRESTORE_PROJECT_ID"),
		CollectionName:  "Messages",
		CredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
	}
	if c := os.Getenv("FIRESTORE_COLLECTION"); c != "" {
		cfg.CollectionName = c
	}
	return cfg
}

// NewFirestoreClient creates a Firestore client. When FIRESTORE_EMULATOR_HOST is
// set the client library connects to the emulator instead.
func NewFirestoreClient(ctx context.Context, cfg *FirestoreConfig, logger zerolog.Logger) (*firestore.Client, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for Firestore client.")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for Firestore client.")
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return client, nil
}

// FirestoreStore is a generic Store backed by one Firestore collection.
type FirestoreStore[K comparable, V any] struct {
	client         *firestore.Client
	collectionName string
	ownsClient     bool
	logger         zerolog.Logger
}

// NewFirestoreStore creates a new generic FirestoreStore over an injected client.
// The client's lifecycle stays with the caller.
func NewFirestoreStore[K comparable, V any](
	cfg *FirestoreConfig,
	client *firestore.Client,
	logger zerolog.Logger,
) (*FirestoreStore[K, V], error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("firestore collection name is required")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreStore initialized.")

	return &FirestoreStore[K, V]{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreStore").Logger(),
	}, nil
}

// ConnectFirestoreStore creates a client from cfg and a store that closes it on Close.
func ConnectFirestoreStore[K comparable, V any](ctx context.Context, cfg *FirestoreConfig, logger zerolog.Logger) (*FirestoreStore[K, V], error) {
	client, err := NewFirestoreClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	store, err := NewFirestoreStore[K, V](cfg, client, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	store.ownsClient = true
	return store, nil
}

// Put writes the document to Firestore.
func (s *FirestoreStore[K, V]) Put(ctx context.Context, key K, value V) error {
	stringKey := fmt.Sprintf("%v", key)
	_, err := s.client.Collection(s.collectionName).Doc(stringKey).Set(ctx, value)
	if err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to write document to Firestore.")
		return fmt.Errorf("firestore set for %s: %w", stringKey, err)
	}
	s.logger.Debug().Str("key", stringKey).Msg("Successfully wrote document to Firestore.")
	return nil
}

// Get retrieves a single document from Firestore by its key.
func (s *FirestoreStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := fmt.Sprintf("%v", key)
	docSnap, err := s.client.Collection(s.collectionName).Doc(stringKey).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return zero, fmt.Errorf("key '%s': %w", stringKey, ErrNotFound)
		}
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to get document from Firestore.")
		return zero, fmt.Errorf("firestore get for %s: %w", stringKey, err)
	}

	var value V
	if err := docSnap.DataTo(&value); err != nil {
		return zero, fmt.Errorf("firestore DataTo for %s: %w", stringKey, err)
	}
	return value, nil
}

// Close closes the client only when the store created it.
func (s *FirestoreStore[K, V]) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}
