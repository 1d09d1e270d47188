//go:build integration

package workflow_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/CKThompson00/workflow-automation/pkg/workflow"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepository_Integration(t *testing.T) {
	if os.Getenv("WORKFLOW_DATABASE_URL") == "" {
		t.Skip("WORKFLOW_DATABASE_URL not set; skipping Postgres integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	pool, err := workflow.NewPool(ctx, workflow.LoadPostgresConfigFromEnv(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := workflow.NewPostgresRepository(pool, zerolog.Nop())
	require.NoError(t, repo.EnsureSchema(ctx))

	id := uuid.NewString()
	created := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("Create and Get", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, workflow.Record{
			ID:          id,
			Status:      workflow.StatusInitial,
			CurrentStep: workflow.FirstStep,
			CreatedDate: created,
		}))

		rec, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusInitial, rec.Status)
		assert.Equal(t, workflow.FirstStep, rec.CurrentStep)
		assert.True(t, created.Equal(rec.CreatedDate))
	})

	t.Run("Tracker advances the workflow", func(t *testing.T) {
		tracker := workflow.NewTracker(repo, zerolog.Nop())
		require.NoError(t, tracker.Advance(ctx, id, 2, workflow.StatusSuccessful, "step two done"))

		rec, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, rec.CurrentStep)
		assert.Equal(t, workflow.StatusSuccessful, rec.Status)

		steps, err := repo.Steps(ctx, id)
		require.NoError(t, err)
		require.Len(t, steps, 1)
		assert.Equal(t, "step two done", steps[0].Comment)
	})

	t.Run("Unknown workflow", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, workflow.ErrNotFound)
		assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.NewString(), 2, workflow.StatusFailed), workflow.ErrNotFound)
	})
}

func TestNewPool_RequiresURL(t *testing.T) {
	_, err := workflow.NewPool(context.Background(), &workflow.PostgresConfig{ConnectTimeout: time.Second}, zerolog.Nop())
	assert.Error(t, err)
}
