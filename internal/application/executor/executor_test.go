package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slipwayci/slipway/internal/fingerprint"
	"github.com/slipwayci/slipway/pkg/adapters/cache/memory"
	"github.com/slipwayci/slipway/pkg/adapters/metrics/noop"
	"github.com/slipwayci/slipway/pkg/domain"
	"github.com/slipwayci/slipway/pkg/ports"
)

type fakeRunner struct {
	results []*ports.CommandResult
	errs    []error
	calls   int
}

func (r *fakeRunner) Run(ctx context.Context, dir string, env []string, command []string) (*ports.CommandResult, error) {
	i := r.calls
	r.calls++
	if i >= len(r.results) {
		i = len(r.results) - 1
	}
	return r.results[i], r.errs[i]
}

type fakeBuilder struct {
	buildRefs []string
	buildErrs []error
	builds    int

	pushed   [][]string
	pushErr  error
	pushRefs []string
}

func (b *fakeBuilder) Build(ctx context.Context, req ports.BuildRequest) (string, error) {
	i := b.builds
	b.builds++
	if i >= len(b.buildRefs) {
		i = len(b.buildRefs) - 1
	}
	return b.buildRefs[i], b.buildErrs[i]
}

func (b *fakeBuilder) Push(ctx context.Context, imageRef string, tags []string, creds domain.RegistryCredentials) ([]string, error) {
	b.pushed = append(b.pushed, tags)
	if b.pushErr != nil {
		return nil, b.pushErr
	}
	if b.pushRefs != nil {
		return b.pushRefs, nil
	}
	return []string{imageRef}, nil
}

type fakeCreds struct{}

func (fakeCreds) RegistryCredentials(ctx context.Context) (domain.RegistryCredentials, error) {
	return domain.RegistryCredentials{Server: "registry.local"}, nil
}

func (fakeCreds) ClusterCredentials(ctx context.Context) (domain.ClusterCredentials, error) {
	return domain.ClusterCredentials{}, nil
}

// brokenCache fails every operation to exercise cache degradation.
type brokenCache struct{}

func (brokenCache) Get(ctx context.Context, runID, key string) (*domain.Artifact, error) {
	return nil, errors.New("store unavailable")
}

func (brokenCache) Put(ctx context.Context, key string, artifact *domain.Artifact) error {
	return errors.New("store unavailable")
}

func (brokenCache) Invalidate(ctx context.Context, prefix string) error { return nil }
func (brokenCache) ReleaseRun(runID string)                             {}

func newExecutor(cache ports.ArtifactCache, runner ports.CommandRunner, builder ports.BuildBackend, maxRetries int) *Executor {
	return New(cache, runner, builder, fakeCreds{}, noop.NewCollector(), zap.NewNop(), maxRetries, time.Millisecond)
}

func stageContext(t *testing.T) StageContext {
	t.Helper()
	return StageContext{
		RunID: "run-1",
		Service: domain.Service{
			ID:     "billing",
			Source: t.TempDir(),
			Image:  "registry.local/billing",
		},
		Trigger: domain.TriggerContext{
			Branch: "main",
			Commit: "abc1234",
			Event:  domain.TriggerEventPush,
		},
	}
}

func TestRunTestPasses(t *testing.T) {
	runner := &fakeRunner{
		results: []*ports.CommandResult{{Stdout: "ok", ExitCode: 0}},
		errs:    []error{nil},
	}
	cache := memory.NewArtifactCache(8)
	exec := newExecutor(cache, runner, &fakeBuilder{}, 3)

	stage := domain.Stage{Name: "unit", Kind: domain.StageKindTest, Command: []string{"make", "test"}}
	sc := stageContext(t)

	result, key, err := exec.Run(context.Background(), stage, sc)
	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusPassed, result.Status)
	assert.Contains(t, result.Logs, "ok")
	assert.NotEmpty(t, key)

	// A second run with identical inputs is served from the cache.
	replay, _, err := exec.Run(context.Background(), stage, sc)
	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusCached, replay.Status)
	assert.Equal(t, 1, runner.calls)
}

func TestRunTestFailureIsReportedNotRetried(t *testing.T) {
	runner := &fakeRunner{
		results: []*ports.CommandResult{{Stderr: "assertion failed", ExitCode: 1}},
		errs:    []error{nil},
	}
	exec := newExecutor(memory.NewArtifactCache(8), runner, &fakeBuilder{}, 3)

	stage := domain.Stage{Name: "unit", Kind: domain.StageKindTest, Command: []string{"make", "test"}}

	result, _, err := exec.Run(context.Background(), stage, stageContext(t))
	assert.NoError(t, err, "a reported test failure is not an execution error")
	assert.Equal(t, domain.StageStatusFailed, result.Status)
	assert.Contains(t, result.Logs, "assertion failed")
	assert.Equal(t, 1, runner.calls, "test stages run exactly once")
}

func TestRunTestCommandErrorNotRetried(t *testing.T) {
	runner := &fakeRunner{
		results: []*ports.CommandResult{nil},
		errs:    []error{errors.New("executable not found")},
	}
	exec := newExecutor(memory.NewArtifactCache(8), runner, &fakeBuilder{}, 3)

	stage := domain.Stage{Name: "unit", Kind: domain.StageKindTest, Command: []string{"make", "test"}}

	result, _, err := exec.Run(context.Background(), stage, stageContext(t))
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.Equal(t, domain.StageStatusFailed, result.Status)
	assert.Equal(t, 1, runner.calls, "test stages are never retried, even for infrastructure errors")
}

func TestRunBuildRetriesTransientErrors(t *testing.T) {
	builder := &fakeBuilder{
		buildRefs: []string{"", "registry.local/billing:abc1234"},
		buildErrs: []error{&domain.TransientInfraError{Op: "build", Err: errors.New("daemon busy")}, nil},
	}
	exec := newExecutor(memory.NewArtifactCache(8), &fakeRunner{}, builder, 2)

	stage := domain.Stage{Name: "image", Kind: domain.StageKindBuild}

	result, _, err := exec.Run(context.Background(), stage, stageContext(t))
	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusPassed, result.Status)
	assert.Equal(t, "registry.local/billing:abc1234", result.Output)
	assert.Equal(t, 2, builder.builds)
}

func TestRunBuildExhaustsRetries(t *testing.T) {
	transient := &domain.TransientInfraError{Op: "build", Err: errors.New("daemon busy")}
	builder := &fakeBuilder{
		buildRefs: []string{""},
		buildErrs: []error{transient},
	}
	exec := newExecutor(memory.NewArtifactCache(8), &fakeRunner{}, builder, 2)

	stage := domain.Stage{Name: "image", Kind: domain.StageKindBuild}

	result, _, err := exec.Run(context.Background(), stage, stageContext(t))
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.Equal(t, domain.StageStatusFailed, result.Status)
	assert.Equal(t, 3, builder.builds, "one attempt plus two retries")
}

func TestRunBuildFailureIsReported(t *testing.T) {
	builder := &fakeBuilder{
		buildRefs: []string{""},
		buildErrs: []error{errors.New("compile error")},
	}
	exec := newExecutor(memory.NewArtifactCache(8), &fakeRunner{}, builder, 2)

	stage := domain.Stage{Name: "image", Kind: domain.StageKindBuild}

	result, _, err := exec.Run(context.Background(), stage, stageContext(t))
	assert.NoError(t, err, "a deterministic build failure is a reported outcome")
	assert.Equal(t, domain.StageStatusFailed, result.Status)
	assert.Equal(t, 1, builder.builds, "deterministic failures are not retried")
}

// cancelAwareRunner records whether the command's ctx was already
// cancelled when it ran, standing in for an external process that a
// cancelled ctx would kill mid-write.
type cancelAwareRunner struct {
	sawCancelled bool
}

func (r *cancelAwareRunner) Run(ctx context.Context, dir string, env []string, command []string) (*ports.CommandResult, error) {
	if ctx.Err() != nil {
		r.sawCancelled = true
		return nil, ctx.Err()
	}
	return &ports.CommandResult{Stdout: "done", ExitCode: 0}, nil
}

func TestRunStartedStageCompletesDespiteCancellation(t *testing.T) {
	runner := &cancelAwareRunner{}
	exec := newExecutor(memory.NewArtifactCache(8), runner, &fakeBuilder{}, 0)

	stage := domain.Stage{Name: "unit", Kind: domain.StageKindTest, Command: []string{"make", "test"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, _, err := exec.Run(ctx, stage, stageContext(t))
	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusPassed, result.Status)
	assert.False(t, runner.sawCancelled, "run cancellation must never reach a started command")
}

func TestRunDegradesCacheFailureToMiss(t *testing.T) {
	runner := &fakeRunner{
		results: []*ports.CommandResult{{ExitCode: 0}},
		errs:    []error{nil},
	}
	exec := newExecutor(brokenCache{}, runner, &fakeBuilder{}, 0)

	stage := domain.Stage{Name: "unit", Kind: domain.StageKindTest, Command: []string{"make", "test"}}

	result, _, err := exec.Run(context.Background(), stage, stageContext(t))
	require.NoError(t, err, "cache unavailability must not fail the stage")
	assert.Equal(t, domain.StageStatusPassed, result.Status)
	assert.Equal(t, 1, runner.calls)
}

func TestRunSurfacesFingerprintCollision(t *testing.T) {
	cache := memory.NewArtifactCache(8)
	sc := stageContext(t)
	stage := domain.Stage{Name: "image", Kind: domain.StageKindBuild}

	// Seed the exact key this stage will compute with a differing
	// artifact. The missOnGet wrapper hides it from lookup so the stage
	// executes and collides on the write path.
	digest, err := fingerprint.Stage(stage, sc.Service.Source, "")
	require.NoError(t, err)
	key := fingerprint.Key(sc.Service.ID, stage.Name, digest)

	require.NoError(t, cache.Put(context.Background(), key, &domain.Artifact{
		Kind:   domain.StageKindBuild,
		Ref:    "registry.local/billing:other",
		Digest: "different-digest",
	}))

	builder := &fakeBuilder{
		buildRefs: []string{"registry.local/billing:abc1234"},
		buildErrs: []error{nil},
	}
	exec := newExecutor(missOnGet{cache}, &fakeRunner{}, builder, 0)

	result, _, err := exec.Run(context.Background(), stage, sc)
	require.Error(t, err)
	assert.True(t, domain.IsFingerprintCollision(err))
	assert.Equal(t, domain.StageStatusFailed, result.Status)
}

// missOnGet forces execution by hiding cached entries from lookup while
// leaving Put semantics intact.
type missOnGet struct {
	ports.ArtifactCache
}

func (missOnGet) Get(ctx context.Context, runID, key string) (*domain.Artifact, error) {
	return nil, domain.ErrCacheMiss
}

func TestRunPushPublishesCommitAndMutableTags(t *testing.T) {
	builder := &fakeBuilder{
		pushRefs: []string{"registry.local/billing:abc1234", "registry.local/billing:latest"},
	}
	exec := newExecutor(memory.NewArtifactCache(8), &fakeRunner{}, builder, 0)

	stage := domain.Stage{Name: "publish", Kind: domain.StageKindPush}
	sc := stageContext(t)
	sc.UpstreamKey = "billing/image@deadbeef"
	sc.UpstreamOutput = "registry.local/billing:abc1234"

	result, _, err := exec.Run(context.Background(), stage, sc)
	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusPassed, result.Status)
	assert.Equal(t, "registry.local/billing:abc1234", result.Output, "the immutable reference is the stage output")

	require.Len(t, builder.pushed, 1)
	assert.Equal(t, []string{"abc1234", MutableTag}, builder.pushed[0])
}

func TestRunPushWithoutUpstreamImage(t *testing.T) {
	exec := newExecutor(memory.NewArtifactCache(8), &fakeRunner{}, &fakeBuilder{}, 0)

	stage := domain.Stage{Name: "publish", Kind: domain.StageKindPush}

	result, _, err := exec.Run(context.Background(), stage, stageContext(t))
	require.Error(t, err)
	assert.Equal(t, domain.StageStatusFailed, result.Status)
}
