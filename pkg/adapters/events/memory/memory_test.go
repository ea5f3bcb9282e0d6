package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipwayci/slipway/pkg/domain"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	ctx := context.Background()

	var received []domain.Event
	require.NoError(t, bus.Subscribe(ctx, "run.events", func(ctx context.Context, event domain.Event) error {
		received = append(received, event)
		return nil
	}))

	event := domain.Event{ID: "e1", Type: domain.EventTypeRunStarted, RunID: "run-1"}
	require.NoError(t, bus.Publish(ctx, "run.events", event))

	require.Len(t, received, 1)
	assert.Equal(t, "run-1", received[0].RunID)
}

func TestPublishTopicIsolation(t *testing.T) {
	bus := NewEventBus()
	ctx := context.Background()

	calls := 0
	require.NoError(t, bus.Subscribe(ctx, "run.events", func(ctx context.Context, event domain.Event) error {
		calls++
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, "other.topic", domain.Event{ID: "e1"}))
	assert.Equal(t, 0, calls)
}

func TestPublishContinuesAfterHandlerError(t *testing.T) {
	bus := NewEventBus()
	ctx := context.Background()

	second := false
	require.NoError(t, bus.Subscribe(ctx, "run.events", func(ctx context.Context, event domain.Event) error {
		return errors.New("handler broke")
	}))
	require.NoError(t, bus.Subscribe(ctx, "run.events", func(ctx context.Context, event domain.Event) error {
		second = true
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, "run.events", domain.Event{ID: "e1"}))
	assert.True(t, second, "one handler's error must not starve the others")
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	bus := NewEventBus()
	subCtx, cancel := context.WithCancel(context.Background())

	calls := 0
	require.NoError(t, bus.Subscribe(subCtx, "run.events", func(ctx context.Context, event domain.Event) error {
		calls++
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), "run.events", domain.Event{ID: "e1"}))
	assert.Equal(t, 1, calls)

	cancel()

	require.NoError(t, bus.Publish(context.Background(), "run.events", domain.Event{ID: "e2"}))
	assert.Equal(t, 1, calls, "a cancelled subscription receives nothing")

	bus.mu.RLock()
	remaining := len(bus.subscribers["run.events"])
	bus.mu.RUnlock()
	assert.Zero(t, remaining, "dead subscriptions are pruned, not retained")
}

func TestClose(t *testing.T) {
	bus := NewEventBus()
	ctx := context.Background()

	calls := 0
	require.NoError(t, bus.Subscribe(ctx, "run.events", func(ctx context.Context, event domain.Event) error {
		calls++
		return nil
	}))

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Publish(ctx, "run.events", domain.Event{ID: "e1"}))
	assert.Equal(t, 0, calls)
}
