package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/slipwayci/slipway/internal/fingerprint"
	"github.com/slipwayci/slipway/pkg/domain"
	"github.com/slipwayci/slipway/pkg/ports"
)

// MutableTag is the latest-style tag published alongside the immutable
// commit tag on every push.
const MutableTag = "latest"

// Executor runs a single stage for one service.
type Executor struct {
	cache   ports.ArtifactCache
	runner  ports.CommandRunner
	builder ports.BuildBackend
	creds   ports.CredentialProvider
	metrics ports.MetricsCollector
	logger  *zap.Logger

	maxRetries int
	retryDelay time.Duration
}

// StageContext carries the per-service, per-run surroundings of one
// stage execution.
type StageContext struct {
	RunID   string
	Service domain.Service
	Trigger domain.TriggerContext

	// UpstreamKey and UpstreamOutput belong to the stage whose output
	// this stage consumes; both empty for the first stage.
	UpstreamKey    string
	UpstreamOutput string
}

// New creates a stage executor. maxRetries bounds retries of transient
// infrastructure errors; test stages are never retried.
func New(
	cache ports.ArtifactCache,
	runner ports.CommandRunner,
	builder ports.BuildBackend,
	creds ports.CredentialProvider,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	maxRetries int,
	retryDelay time.Duration,
) *Executor {
	return &Executor{
		cache:      cache,
		runner:     runner,
		builder:    builder,
		creds:      creds,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Run executes one stage. It returns the stage result, the cache key
// the stage was stored under (empty when fingerprinting failed), and a
// non-nil error only for execution errors: exhausted transient
// infrastructure failures, fingerprint collisions, or an unfingerprintable
// stage. Reported test and build failures appear in the result alone.
func (e *Executor) Run(ctx context.Context, stage domain.Stage, sc StageContext) (domain.StageResult, string, error) {
	start := time.Now()

	result := domain.StageResult{
		Stage: stage.Name,
		Kind:  stage.Kind,
	}

	digest, err := fingerprint.Stage(stage, sc.Service.Source, sc.UpstreamKey)
	if err != nil {
		result.Status = domain.StageStatusFailed
		result.Error = err.Error()
		result.Duration = time.Since(start)
		e.record(result)
		return result, "", fmt.Errorf("failed to fingerprint stage %s: %w", stage.Name, err)
	}

	key := fingerprint.Key(sc.Service.ID, stage.Name, digest)

	if artifact := e.lookup(ctx, sc.RunID, key, stage.Kind); artifact != nil {
		result.Status = domain.StageStatusCached
		result.Output = artifact.Ref
		result.Duration = time.Since(start)
		e.record(result)
		e.logger.Info("stage served from cache",
			zap.String("run_id", sc.RunID),
			zap.String("service", sc.Service.ID),
			zap.String("stage", stage.Name),
			zap.String("key", key))
		return result, key, nil
	}

	artifact, logs, execErr := e.executeWithRetry(ctx, stage, sc, digest)
	result.Logs = logs
	result.Duration = time.Since(start)

	if execErr != nil {
		result.Status = domain.StageStatusFailed
		result.Error = execErr.Error()
		e.record(result)

		// Test and build failures are reported outcomes, not
		// orchestrator errors.
		var testErr *domain.TestFailureError
		var buildErr *domain.BuildFailureError
		if errors.As(execErr, &testErr) || errors.As(execErr, &buildErr) {
			return result, key, nil
		}
		return result, key, execErr
	}

	result.Status = domain.StageStatusPassed
	result.Output = artifact.Ref

	if err := e.cache.Put(ctx, key, artifact); err != nil {
		if domain.IsFingerprintCollision(err) {
			result.Status = domain.StageStatusFailed
			result.Error = err.Error()
			e.record(result)
			return result, key, err
		}
		// A store write failure costs a future cache hit, nothing more.
		e.logger.Warn("cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}

	e.record(result)
	return result, key, nil
}

// lookup queries the cache, degrading any store failure to a miss.
func (e *Executor) lookup(ctx context.Context, runID, key string, kind domain.StageKind) *domain.Artifact {
	artifact, err := e.cache.Get(ctx, runID, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			e.logger.Warn("cache read failed, treating as miss",
				zap.String("key", key),
				zap.Error(err))
		}
		e.metrics.RecordCacheMiss(string(kind))
		return nil
	}

	e.metrics.RecordCacheHit(string(kind))
	return artifact
}

// executeWithRetry runs the stage action, retrying transient
// infrastructure errors with linear backoff. Test stages run exactly
// once: retrying a flaky test masks real regressions.
func (e *Executor) executeWithRetry(ctx context.Context, stage domain.Stage, sc StageContext, digest string) (*domain.Artifact, string, error) {
	attempts := 1
	if stage.Kind != domain.StageKindTest {
		attempts += e.maxRetries
	}

	// An attempt, once started, runs to completion. Cancellation halts
	// the pipeline between stages and between retry attempts, never by
	// killing an external process mid-write.
	attemptCtx := context.WithoutCancel(ctx)

	var artifact *domain.Artifact
	var logs string
	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		artifact, logs, err = e.execute(attemptCtx, stage, sc, digest)
		if err == nil || !domain.IsTransient(err) {
			return artifact, logs, err
		}

		if attempt == attempts {
			break
		}

		e.logger.Warn("transient infrastructure error, retrying stage",
			zap.String("service", sc.Service.ID),
			zap.String("stage", stage.Name),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, logs, err
		case <-time.After(e.retryDelay * time.Duration(attempt)):
		}
	}

	return artifact, logs, err
}

// execute dispatches a single stage attempt by kind.
func (e *Executor) execute(ctx context.Context, stage domain.Stage, sc StageContext, digest string) (*domain.Artifact, string, error) {
	switch stage.Kind {
	case domain.StageKindTest:
		return e.runTest(ctx, stage, sc, digest)
	case domain.StageKindBuild:
		return e.runBuild(ctx, stage, sc)
	case domain.StageKindPush:
		return e.runPush(ctx, stage, sc)
	default:
		return nil, "", fmt.Errorf("stage kind %s is not executable by the stage executor", stage.Kind)
	}
}

func (e *Executor) runTest(ctx context.Context, stage domain.Stage, sc StageContext, digest string) (*domain.Artifact, string, error) {
	res, err := e.runner.Run(ctx, sc.Service.Source, nil, stage.Command)
	if err != nil {
		return nil, "", &domain.TransientInfraError{Op: "run test command", Err: err}
	}

	logs := res.Stdout + res.Stderr
	if res.ExitCode != 0 {
		return nil, logs, &domain.TestFailureError{
			ServiceID: sc.Service.ID,
			Stage:     stage.Name,
			ExitCode:  res.ExitCode,
		}
	}

	ref := fmt.Sprintf("testreport/%s/%s", sc.Service.ID, digest[:12])
	return newArtifact(stage.Kind, ref), logs, nil
}

func (e *Executor) runBuild(ctx context.Context, stage domain.Stage, sc StageContext) (*domain.Artifact, string, error) {
	contextDir := sc.Service.BuildContext
	if contextDir == "" {
		contextDir = sc.Service.Source
	} else if !filepath.IsAbs(contextDir) {
		contextDir = filepath.Join(sc.Service.Source, contextDir)
	}

	ref, err := e.builder.Build(ctx, ports.BuildRequest{
		ContextDir: contextDir,
		Dockerfile: sc.Service.Dockerfile,
		Image:      sc.Service.Image,
		CommitTag:  sc.Trigger.Commit,
	})
	if err != nil {
		if domain.IsTransient(err) {
			return nil, "", err
		}
		return nil, err.Error(), &domain.BuildFailureError{
			ServiceID: sc.Service.ID,
			Stage:     stage.Name,
			Err:       err,
		}
	}

	return newArtifact(stage.Kind, ref), "", nil
}

func (e *Executor) runPush(ctx context.Context, stage domain.Stage, sc StageContext) (*domain.Artifact, string, error) {
	if sc.UpstreamOutput == "" {
		return nil, "", fmt.Errorf("push stage %s has no built image to publish", stage.Name)
	}

	creds, err := e.creds.RegistryCredentials(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to obtain registry credentials: %w", err)
	}

	tags := []string{sc.Trigger.Commit, MutableTag}
	pushed, err := e.builder.Push(ctx, sc.UpstreamOutput, tags, creds)
	if err != nil {
		return nil, "", err
	}

	// The immutable commit-tagged reference is what deploys roll out.
	return newArtifact(stage.Kind, pushed[0]), "", nil
}

func (e *Executor) record(result domain.StageResult) {
	e.metrics.RecordStageExecuted(string(result.Kind), string(result.Status), result.Duration)
}

// newArtifact builds a cacheable artifact for a stage output. The digest
// is derived from the reference so identical writers under one key are
// idempotent and differing writers surface a collision.
func newArtifact(kind domain.StageKind, ref string) *domain.Artifact {
	sum := sha256.Sum256([]byte(ref))
	return &domain.Artifact{
		Kind:      kind,
		Ref:       ref,
		Digest:    hex.EncodeToString(sum[:]),
		CreatedAt: time.Now().UTC(),
	}
}
