package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slipwayci/slipway/internal/application/deploy"
	"github.com/slipwayci/slipway/internal/application/executor"
	"github.com/slipwayci/slipway/pkg/domain"
	"github.com/slipwayci/slipway/pkg/ports"
)

// Topic is the event bus topic pipeline lifecycle events publish on.
const Topic = "run.events"

// Pipeline runs one service's stages in declared order on a single
// logical thread of control.
type Pipeline struct {
	executor *executor.Executor
	deployer *deploy.Controller
	events   ports.EventBus
	logger   *zap.Logger
}

// New creates a service pipeline runner.
func New(exec *executor.Executor, deployer *deploy.Controller, events ports.EventBus, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		executor: exec,
		deployer: deployer,
		events:   events,
		logger:   logger,
	}
}

// Execute runs every stage of a service. A stage failure marks all later
// stages skipped. Cancellation is cooperative: a stage already running
// finishes before the pipeline halts. onFatal, when non-nil, is invoked
// for internal invariant violations that must abort the whole run.
func (p *Pipeline) Execute(ctx context.Context, runID string, service domain.Service, trigger domain.TriggerContext, environment string, onFatal func()) domain.PipelineResult {
	result := domain.PipelineResult{
		ServiceID:    service.ID,
		StageResults: make([]domain.StageResult, 0, len(service.Stages)),
		FinalStatus:  domain.PipelineStatusSuccess,
	}

	p.publish(ctx, domain.EventTypePipelineStarted, runID, service.ID, "", nil)

	// Cache keys and outputs of completed stages, for downstream
	// fingerprint chaining.
	keys := make(map[string]string)
	outputs := make(map[string]string)

	halted := false

	for _, stage := range service.Stages {
		if halted {
			result.StageResults = append(result.StageResults, skipped(stage))
			continue
		}

		if ctx.Err() != nil {
			result.FinalStatus = domain.PipelineStatusFailed
			if result.Error == "" {
				result.Error = ctx.Err().Error()
			}
			result.StageResults = append(result.StageResults, skipped(stage))
			halted = true
			continue
		}

		p.publish(ctx, domain.EventTypeStageStarted, runID, service.ID, stage.Name, nil)

		var stageResult domain.StageResult
		if stage.Kind == domain.StageKindDeploy {
			var deployErr error
			stageResult, deployErr = p.runDeploy(ctx, runID, service, stage, environment, outputs)
			if deployErr != nil && result.Error == "" {
				result.Error = deployErr.Error()
			}
		} else {
			upstream := upstreamOf(stage, service)
			sc := executor.StageContext{
				RunID:          runID,
				Service:        service,
				Trigger:        trigger,
				UpstreamKey:    keys[upstream],
				UpstreamOutput: outputs[upstream],
			}

			var key string
			var execErr error
			stageResult, key, execErr = p.executor.Run(ctx, stage, sc)

			if execErr != nil {
				result.Error = execErr.Error()
				if domain.IsFingerprintCollision(execErr) && onFatal != nil {
					p.logger.Error("fingerprint collision, aborting run",
						zap.String("run_id", runID),
						zap.String("service", service.ID),
						zap.String("stage", stage.Name))
					onFatal()
				}
			}

			if key != "" {
				keys[stage.Name] = key
			}
			if stageResult.Output != "" {
				outputs[stage.Name] = stageResult.Output
			}
		}

		result.StageResults = append(result.StageResults, stageResult)

		p.publish(ctx, domain.EventTypeStageCompleted, runID, service.ID, stage.Name, map[string]interface{}{
			"status": string(stageResult.Status),
		})

		if stageResult.Status == domain.StageStatusFailed {
			result.FinalStatus = domain.PipelineStatusFailed
			halted = true
		}
	}

	p.publish(ctx, domain.EventTypePipelineCompleted, runID, service.ID, "", map[string]interface{}{
		"final_status": string(result.FinalStatus),
	})

	p.logger.Info("service pipeline finished",
		zap.String("run_id", runID),
		zap.String("service", service.ID),
		zap.String("final_status", string(result.FinalStatus)))

	return result
}

// runDeploy hands the deploy stage off to the deployment controller. The
// returned error marks an execution error (rollout timeout or
// infrastructure failure) as opposed to a reported stage failure.
func (p *Pipeline) runDeploy(ctx context.Context, runID string, service domain.Service, stage domain.Stage, environment string, outputs map[string]string) (domain.StageResult, error) {
	start := time.Now()

	result := domain.StageResult{
		Stage: stage.Name,
		Kind:  stage.Kind,
	}

	imageRef := outputs[upstreamOf(stage, service)]
	if imageRef == "" {
		result.Status = domain.StageStatusFailed
		result.Error = "no pushed image available to deploy"
		result.Duration = time.Since(start)
		return result, errors.New(result.Error)
	}

	deployResult, err := p.deployer.Deploy(ctx, runID, service, environment, imageRef)
	result.Duration = time.Since(start)

	if err != nil {
		result.Status = domain.StageStatusFailed
		result.Error = err.Error()
		if deployResult != nil && deployResult.RolledBack {
			result.Output = "rolled back to " + deployResult.PreviousImage
		}
		return result, err
	}

	result.Status = domain.StageStatusPassed
	result.Output = imageRef
	return result, nil
}

// upstreamOf resolves which earlier stage's output a stage consumes.
// Explicit declarations win; otherwise push consumes the last build and
// deploy consumes the last push.
func upstreamOf(stage domain.Stage, service domain.Service) string {
	if stage.UsesOutputOf != "" {
		return stage.UsesOutputOf
	}

	var implicit domain.StageKind
	switch stage.Kind {
	case domain.StageKindPush:
		implicit = domain.StageKindBuild
	case domain.StageKindDeploy:
		implicit = domain.StageKindPush
	default:
		return ""
	}

	name := ""
	for _, candidate := range service.Stages {
		if candidate.Name == stage.Name {
			break
		}
		if candidate.Kind == implicit {
			name = candidate.Name
		}
	}
	return name
}

func skipped(stage domain.Stage) domain.StageResult {
	return domain.StageResult{
		Stage:  stage.Name,
		Kind:   stage.Kind,
		Status: domain.StageStatusSkipped,
	}
}

func (p *Pipeline) publish(ctx context.Context, eventType domain.EventType, runID, serviceID, stage string, data map[string]interface{}) {
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		ServiceID: serviceID,
		Stage:     stage,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	if err := p.events.Publish(ctx, Topic, event); err != nil {
		p.logger.Error("failed to publish pipeline event",
			zap.String("type", string(eventType)),
			zap.Error(err))
	}
}
