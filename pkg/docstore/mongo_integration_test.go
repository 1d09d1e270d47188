//go:build integration

package docstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/CKThompson00/workflow-automation/pkg/docstore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMongoStore_Integration(t *testing.T) {
	if os.Getenv("MONGO_URI") == "" {
		t.Skip("MONGO_URI not set; skipping MongoDB integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	cfg := docstore.LoadMongoConfigFromEnv()
	cfg.Collection = "docstore-test-" + uuid.NewString()
	s, err := docstore.NewMongoStore[string, testDocument](ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	t.Run("Put, replace and Get", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "doc-1", testDocument{ID: "doc-1", Body: "v1"}))
		require.NoError(t, s.Put(ctx, "doc-1", testDocument{ID: "doc-1", Body: "v2"}))

		got, err := s.Get(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "v2", got.Body)
	})

	t.Run("Get Miss", func(t *testing.T) {
		_, err := s.Get(ctx, "non-existent-doc")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})
}
