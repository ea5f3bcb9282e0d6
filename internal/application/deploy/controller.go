package deploy

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slipwayci/slipway/pkg/domain"
	"github.com/slipwayci/slipway/pkg/ports"
)

// Topic is the event bus topic deployment lifecycle events publish on.
const Topic = "run.events"

// Controller drives rollouts against a cluster backend.
//
// Rollouts are serialized across services: two deploy stages targeting
// one cluster never reconfigure it concurrently, while test, build and
// push stages stay fully parallel.
type Controller struct {
	cluster ports.ClusterBackend
	creds   ports.CredentialProvider
	events  ports.EventBus
	metrics ports.MetricsCollector
	logger  *zap.Logger

	pollInterval     time.Duration
	stabilityTimeout time.Duration
	rollbackEnabled  bool

	mu sync.Mutex
}

// NewController creates a deployment controller.
func NewController(
	cluster ports.ClusterBackend,
	creds ports.CredentialProvider,
	events ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	pollInterval, stabilityTimeout time.Duration,
	rollbackEnabled bool,
) *Controller {
	return &Controller{
		cluster:          cluster,
		creds:            creds,
		events:           events,
		metrics:          metrics,
		logger:           logger,
		pollInterval:     pollInterval,
		stabilityTimeout: stabilityTimeout,
		rollbackEnabled:  rollbackEnabled,
	}
}

// Deploy rolls imageRef out for a service and waits for stability. On
// timeout or an explicit failure signal it resubmits the previously
// running image and reports failed with rolled_back=true, so the target
// environment is never left worse than before the attempt.
//
// An in-flight rollout ignores cancellation of ctx until it reaches a
// terminal state; abandoning a half-applied rollout is worse than
// finishing it.
func (c *Controller) Deploy(ctx context.Context, runID string, service domain.Service, environment, imageRef string) (*domain.DeploymentResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()

	// Detach from run cancellation for the duration of the rollout.
	rctx := context.WithoutCancel(ctx)

	deployment := &domain.Deployment{
		ServiceID:   service.ID,
		Environment: environment,
		Image:       imageRef,
		State:       domain.RolloutStatePending,
	}

	c.publish(rctx, domain.EventTypeDeploymentStarted, runID, service.ID, map[string]interface{}{
		"image":       imageRef,
		"environment": environment,
	})

	template, err := os.ReadFile(service.DescriptorTemplate)
	if err != nil {
		return c.finish(rctx, runID, deployment, start, fmt.Errorf("failed to read descriptor template: %w", err))
	}

	descriptor, err := RenderDescriptor(template, imageRef)
	if err != nil {
		return c.finish(rctx, runID, deployment, start, err)
	}

	creds, err := c.creds.ClusterCredentials(rctx)
	if err != nil {
		return c.finish(rctx, runID, deployment, start, fmt.Errorf("failed to obtain cluster credentials: %w", err))
	}

	// Record the rollback target before touching the cluster.
	previous, err := c.cluster.CurrentImage(rctx, environment, service.ID, creds)
	if err != nil {
		c.logger.Warn("could not determine previously running image, rollback unavailable",
			zap.String("service", service.ID),
			zap.Error(err))
	}
	deployment.PreviousImage = previous

	if err := c.cluster.Apply(rctx, descriptor, creds); err != nil {
		return c.finish(rctx, runID, deployment, start, fmt.Errorf("failed to submit descriptor: %w", err))
	}

	deployment.State = domain.RolloutStateInProgress

	c.logger.Info("rollout submitted",
		zap.String("run_id", runID),
		zap.String("service", service.ID),
		zap.String("environment", environment),
		zap.String("image", imageRef),
		zap.String("previous_image", previous))

	outcome := c.awaitStability(rctx, environment, service.ID, creds)
	if outcome == pollStable {
		deployment.State = domain.RolloutStateStable
		return c.finish(rctx, runID, deployment, start, nil)
	}

	var cause error
	if outcome == pollFailed {
		cause = &domain.RolloutFailedError{ServiceID: service.ID}
	} else {
		cause = &domain.RolloutTimeoutError{ServiceID: service.ID, Timeout: c.stabilityTimeout}
	}

	if !c.rollbackEnabled || deployment.PreviousImage == "" {
		deployment.State = domain.RolloutStateFailed
		return c.finish(rctx, runID, deployment, start, cause)
	}

	if err := c.rollback(rctx, deployment, template, creds); err != nil {
		c.logger.Error("rollback failed",
			zap.String("service", service.ID),
			zap.String("previous_image", deployment.PreviousImage),
			zap.Error(err))
		deployment.State = domain.RolloutStateFailed
		return c.finish(rctx, runID, deployment, start, cause)
	}

	deployment.State = domain.RolloutStateRolledBack
	deployment.RolledBack = true
	return c.finish(rctx, runID, deployment, start, cause)
}

// pollOutcome is the terminal result of the stability polling loop.
type pollOutcome int

const (
	pollTimedOut pollOutcome = iota
	pollStable
	pollFailed
)

// awaitStability polls the cluster backend until the rollout stabilizes,
// the backend reports an explicit failure, or the stability window
// elapses.
func (c *Controller) awaitStability(ctx context.Context, environment, serviceID string, creds domain.ClusterCredentials) pollOutcome {
	deadline := time.Now().Add(c.stabilityTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		state, err := c.cluster.RolloutStatus(ctx, environment, serviceID, creds)
		if err != nil {
			c.logger.Warn("rollout status query failed",
				zap.String("service", serviceID),
				zap.Error(err))
		} else {
			switch state {
			case domain.RolloutStateStable:
				return pollStable
			case domain.RolloutStateFailed:
				return pollFailed
			}
		}

		<-ticker.C
	}

	return pollTimedOut
}

// rollback resubmits the descriptor with the previously running image.
func (c *Controller) rollback(ctx context.Context, deployment *domain.Deployment, template []byte, creds domain.ClusterCredentials) error {
	descriptor, err := RenderDescriptor(template, deployment.PreviousImage)
	if err != nil {
		return err
	}

	if err := c.cluster.Apply(ctx, descriptor, creds); err != nil {
		return fmt.Errorf("failed to resubmit previous image: %w", err)
	}

	c.logger.Warn("rolled back to previous image",
		zap.String("service", deployment.ServiceID),
		zap.String("previous_image", deployment.PreviousImage))

	return nil
}

// finish archives the deployment into a result, publishes the terminal
// event and records metrics. The reported state is failed (not
// rolled-back) for any unsuccessful attempt; RolledBack distinguishes
// whether the previous image was restored.
func (c *Controller) finish(ctx context.Context, runID string, deployment *domain.Deployment, start time.Time, cause error) (*domain.DeploymentResult, error) {
	resultState := domain.RolloutStateFailed
	if deployment.State == domain.RolloutStateStable {
		resultState = domain.RolloutStateStable
	}

	result := &domain.DeploymentResult{
		State:         resultState,
		RolledBack:    deployment.RolledBack,
		PreviousImage: deployment.PreviousImage,
	}

	c.metrics.RecordDeployment(string(deployment.State), deployment.RolledBack, time.Since(start))

	data := map[string]interface{}{
		"state":       string(deployment.State),
		"rolled_back": deployment.RolledBack,
	}
	if cause != nil {
		data["error"] = cause.Error()
	}
	c.publish(ctx, domain.EventTypeDeploymentCompleted, runID, deployment.ServiceID, data)

	return result, cause
}

func (c *Controller) publish(ctx context.Context, eventType domain.EventType, runID, serviceID string, data map[string]interface{}) {
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		ServiceID: serviceID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	if err := c.events.Publish(ctx, Topic, event); err != nil {
		c.logger.Error("failed to publish deployment event",
			zap.String("type", string(eventType)),
			zap.Error(err))
	}
}
