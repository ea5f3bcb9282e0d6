package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/slipwayci/slipway/pkg/domain"
)

// RunStore implements ports.RunStore using Redis.
type RunStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRunStore creates a new Redis run store. Run states expire after
// ttl.
func NewRunStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RunStore {
	return &RunStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveRun persists the state of a run.
func (s *RunStore) SaveRun(ctx context.Context, state *domain.RunState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}

	if err := s.client.Set(ctx, runKey(state.RunID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}

	s.logger.Debug("run state saved",
		zap.String("run_id", state.RunID),
		zap.String("status", string(state.Status)))

	return nil
}

// GetRun retrieves the state of a run.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*domain.RunState, error) {
	data, err := s.client.Get(ctx, runKey(runID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run state: %w", err)
	}

	var state domain.RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run state: %w", err)
	}

	return &state, nil
}

// ListRuns returns all stored runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context) ([]*domain.RunState, error) {
	pattern := "slipway:run:*"

	var cursor uint64
	var keys []string

	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan run keys: %w", err)
		}

		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			break
		}
	}

	states := make([]*domain.RunState, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}

		var state domain.RunState
		if err := json.Unmarshal(data, &state); err != nil {
			continue
		}

		states = append(states, &state)
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].SubmittedAt.After(states[j].SubmittedAt)
	})

	return states, nil
}

// DeleteRun removes the state of a run.
func (s *RunStore) DeleteRun(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, runKey(runID)).Err(); err != nil {
		return fmt.Errorf("failed to delete run state: %w", err)
	}

	s.logger.Debug("run state deleted", zap.String("run_id", runID))
	return nil
}

// runKey returns the Redis key for a run state.
func runKey(runID string) string {
	return fmt.Sprintf("slipway:run:%s", runID)
}
