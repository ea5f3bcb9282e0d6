package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipwayci/slipway/pkg/domain"
)

func TestSaveAndGetRun(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	state := &domain.RunState{
		RunID:       "run-1",
		Status:      domain.RunStatusRunning,
		Services:    []string{"billing"},
		SubmittedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveRun(ctx, state))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, got.Status)

	// Later mutation of the caller's struct does not leak into the store.
	state.Status = domain.RunStatusCancelled
	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, got.Status)
}

func TestGetRunNotFound(t *testing.T) {
	store := NewRunStore()

	_, err := store.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, store.SaveRun(ctx, &domain.RunState{
			RunID:       id,
			Status:      domain.RunStatusCompleted,
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "old", runs[2].RunID)
}

func TestDeleteRun(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	require.NoError(t, store.SaveRun(ctx, &domain.RunState{RunID: "run-1"}))
	require.NoError(t, store.DeleteRun(ctx, "run-1"))

	_, err := store.GetRun(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}
