package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/slipwayci/slipway/internal/application/pipeline"
	"github.com/slipwayci/slipway/pkg/domain"
	"github.com/slipwayci/slipway/pkg/ports"
)

// Topic is the event bus topic run lifecycle events publish on.
const Topic = "run.events"

// Manager coordinates run execution across services.
type Manager struct {
	pipelines *pipeline.Pipeline
	cache     ports.ArtifactCache
	store     ports.RunStore
	events    ports.EventBus
	metrics   ports.MetricsCollector
	validator *Validator
	logger    *zap.Logger

	maxConcurrent int64
	runTimeout    time.Duration

	// Track active runs for cancellation.
	runs   sync.Map // map[string]context.CancelFunc
	active sync.WaitGroup
}

// NewManager creates a new orchestrator manager.
func NewManager(
	pipelines *pipeline.Pipeline,
	cache ports.ArtifactCache,
	store ports.RunStore,
	events ports.EventBus,
	metrics ports.MetricsCollector,
	validator *Validator,
	logger *zap.Logger,
	maxConcurrent int64,
	runTimeout time.Duration,
) *Manager {
	return &Manager{
		pipelines:     pipelines,
		cache:         cache,
		store:         store,
		events:        events,
		metrics:       metrics,
		validator:     validator,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		runTimeout:    runTimeout,
	}
}

// Execute admits and runs a run to completion, returning its result.
func (m *Manager) Execute(ctx context.Context, spec *domain.RunSpec, trigger domain.TriggerContext) (*domain.RunResult, error) {
	runID, err := m.admit(ctx, spec, trigger)
	if err != nil {
		return nil, err
	}

	return m.run(ctx, runID, spec, trigger), nil
}

// Submit admits a run and executes it in the background, returning its
// ID immediately. Used by the control API.
func (m *Manager) Submit(ctx context.Context, spec *domain.RunSpec, trigger domain.TriggerContext) (string, error) {
	runID, err := m.admit(ctx, spec, trigger)
	if err != nil {
		return "", err
	}

	m.active.Add(1)
	go func() {
		defer m.active.Done()
		// The run outlives the submitting request.
		m.run(context.Background(), runID, spec, trigger)
	}()

	return runID, nil
}

// Cancel cooperatively cancels an in-flight run. Stages already
// executing finish first; rollouts in progress reach a terminal state
// before the pipeline halts.
func (m *Manager) Cancel(runID string) error {
	val, ok := m.runs.Load(runID)
	if !ok {
		return fmt.Errorf("run %s is not in flight", runID)
	}

	val.(context.CancelFunc)()

	m.publish(context.Background(), domain.EventTypeRunCancelled, runID, nil)

	m.logger.Info("run cancellation requested", zap.String("run_id", runID))
	return nil
}

// Status returns the stored state of a run.
func (m *Manager) Status(ctx context.Context, runID string) (*domain.RunState, error) {
	return m.store.GetRun(ctx, runID)
}

// List returns the stored states of all runs, newest first.
func (m *Manager) List(ctx context.Context) ([]*domain.RunState, error) {
	return m.store.ListRuns(ctx)
}

// Shutdown cancels all in-flight runs and waits for them to reach a
// terminal state, or until ctx expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")

	m.runs.Range(func(key, value interface{}) bool {
		value.(context.CancelFunc)()
		return true
	})

	done := make(chan struct{})
	go func() {
		m.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("orchestrator manager shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// admit validates the spec and registers the pending run.
func (m *Manager) admit(ctx context.Context, spec *domain.RunSpec, trigger domain.TriggerContext) (string, error) {
	if err := m.validator.Validate(spec); err != nil {
		m.logger.Error("run spec validation failed", zap.Error(err))
		return "", fmt.Errorf("validation failed: %w", err)
	}

	runID := uuid.New().String()

	serviceIDs := make([]string, len(spec.Services))
	for i, svc := range spec.Services {
		serviceIDs[i] = svc.ID
	}

	state := &domain.RunState{
		RunID:       runID,
		Trigger:     trigger,
		Status:      domain.RunStatusPending,
		Services:    serviceIDs,
		SubmittedAt: time.Now().UTC(),
	}

	if err := m.store.SaveRun(ctx, state); err != nil {
		return "", fmt.Errorf("failed to save run state: %w", err)
	}

	return runID, nil
}

// run executes an admitted run to its terminal state.
func (m *Manager) run(ctx context.Context, runID string, spec *domain.RunSpec, trigger domain.TriggerContext) *domain.RunResult {
	start := time.Now()

	var runCtx context.Context
	var cancel context.CancelFunc
	if m.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, m.runTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	m.runs.Store(runID, cancel)
	defer m.runs.Delete(runID)
	defer m.cache.ReleaseRun(runID)

	deployAllowed := DeployAllowed(trigger, spec.ReleaseBranch)
	services := GateServices(spec.Services, deployAllowed)

	m.metrics.RecordRunStarted()
	m.publish(runCtx, domain.EventTypeRunStarted, runID, map[string]interface{}{
		"branch":         trigger.Branch,
		"commit":         trigger.Commit,
		"event":          trigger.Event,
		"deploy_allowed": deployAllowed,
	})

	m.saveState(runID, trigger, services, domain.RunStatusRunning, nil)

	m.logger.Info("run started",
		zap.String("run_id", runID),
		zap.Int("services", len(services)),
		zap.String("branch", trigger.Branch),
		zap.String("commit", trigger.Commit),
		zap.Bool("deploy_allowed", deployAllowed))

	results := make([]domain.PipelineResult, len(services))

	sem := semaphore.NewWeighted(m.maxConcurrent)
	var wg sync.WaitGroup
	var activeCount sync.Map

	for i := range services {
		wg.Add(1)
		go func(idx int, svc domain.Service) {
			defer wg.Done()

			if err := sem.Acquire(runCtx, 1); err != nil {
				// Cancelled before this pipeline ever began: reported
				// distinctly from a failure.
				results[idx] = domain.PipelineResult{
					ServiceID:   svc.ID,
					FinalStatus: domain.PipelineStatusNotStarted,
				}
				return
			}
			defer sem.Release(1)

			activeCount.Store(idx, struct{}{})
			m.metrics.SetActivePipelines(mapLen(&activeCount))
			defer func() {
				activeCount.Delete(idx)
				m.metrics.SetActivePipelines(mapLen(&activeCount))
			}()

			results[idx] = m.pipelines.Execute(runCtx, runID, svc, trigger, spec.Environment, cancel)
		}(i, services[i])
	}

	wg.Wait()

	result := m.aggregate(runID, results, start)

	// A run whose pipelines all reached a terminal state is completed
	// even when cancellation arrived late; only never-started pipelines
	// mark the run cancelled.
	status := domain.RunStatusCompleted
	for _, pr := range results {
		if pr.FinalStatus == domain.PipelineStatusNotStarted {
			status = domain.RunStatusCancelled
			break
		}
	}

	m.saveState(runID, trigger, services, status, result)

	m.metrics.RecordRunCompleted(string(result.Verdict), result.CompletedAt.Sub(result.StartedAt))
	m.publish(context.Background(), domain.EventTypeRunCompleted, runID, map[string]interface{}{
		"verdict":     string(result.Verdict),
		"error_count": result.ErrorCount,
	})

	m.logger.Info("run completed",
		zap.String("run_id", runID),
		zap.String("verdict", string(result.Verdict)),
		zap.Int("error_count", result.ErrorCount),
		zap.Duration("duration", result.CompletedAt.Sub(result.StartedAt)))

	return result
}

// aggregate folds pipeline outcomes into the run verdict. Failures are
// collected, never thrown across pipeline boundaries, so the result
// always lists every service's outcome.
func (m *Manager) aggregate(runID string, results []domain.PipelineResult, start time.Time) *domain.RunResult {
	succeeded := 0
	errorCount := 0

	for _, pr := range results {
		if pr.FinalStatus == domain.PipelineStatusSuccess {
			succeeded++
		}
		if pr.Error != "" {
			errorCount++
		}
	}

	var verdict domain.Verdict
	switch {
	case succeeded == len(results):
		verdict = domain.VerdictSuccess
	case succeeded > 0:
		verdict = domain.VerdictPartialFailure
	default:
		verdict = domain.VerdictFailure
	}

	return &domain.RunResult{
		RunID:           runID,
		Verdict:         verdict,
		PipelineResults: results,
		ErrorCount:      errorCount,
		StartedAt:       start.UTC(),
		CompletedAt:     time.Now().UTC(),
	}
}

func (m *Manager) saveState(runID string, trigger domain.TriggerContext, services []domain.Service, status domain.RunStatus, result *domain.RunResult) {
	serviceIDs := make([]string, len(services))
	for i, svc := range services {
		serviceIDs[i] = svc.ID
	}

	state := &domain.RunState{
		RunID:       runID,
		Trigger:     trigger,
		Status:      status,
		Services:    serviceIDs,
		Result:      result,
		SubmittedAt: time.Now().UTC(),
	}
	if result != nil {
		state.SubmittedAt = result.StartedAt
		completed := result.CompletedAt
		state.CompletedAt = &completed
	}

	// Saving state is best-effort bookkeeping for the control API; the
	// run result itself is returned to the caller regardless.
	if err := m.store.SaveRun(context.Background(), state); err != nil {
		m.logger.Error("failed to save run state",
			zap.String("run_id", runID),
			zap.Error(err))
	}
}

func (m *Manager) publish(ctx context.Context, eventType domain.EventType, runID string, data map[string]interface{}) {
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	if err := m.events.Publish(ctx, Topic, event); err != nil {
		m.logger.Error("failed to publish run event",
			zap.String("type", string(eventType)),
			zap.Error(err))
	}
}

func mapLen(m *sync.Map) int {
	n := 0
	m.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
