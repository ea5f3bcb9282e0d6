package ports

import (
	"context"
	"time"

	"github.com/slipwayci/slipway/pkg/domain"
)

// ArtifactCache is the shared, content-addressed store of stage outputs.
// Keys are fingerprints; entries read by a run are leased and must not
// be evicted until the run releases them. Concurrent Put of identical
// values for one key is a no-op; differing values must surface a
// fingerprint collision, never a silent overwrite.
type ArtifactCache interface {
	// Get returns the artifact stored under key, recording an eviction
	// lease for runID. Returns domain.ErrCacheMiss when absent.
	Get(ctx context.Context, runID, key string) (*domain.Artifact, error)

	// Put stores an artifact under key. Returns a
	// domain.FingerprintCollisionError when a differing artifact is
	// already stored under the same key.
	Put(ctx context.Context, key string, artifact *domain.Artifact) error

	// Invalidate drops all entries whose key starts with prefix.
	Invalidate(ctx context.Context, prefix string) error

	// ReleaseRun drops the eviction leases held by a run.
	ReleaseRun(runID string)
}

// RunStore persists run state for the control API.
type RunStore interface {
	SaveRun(ctx context.Context, state *domain.RunState) error
	GetRun(ctx context.Context, runID string) (*domain.RunState, error)
	ListRuns(ctx context.Context) ([]*domain.RunState, error)
	DeleteRun(ctx context.Context, runID string) error
}

// EventHandler processes a single lifecycle event.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and subscribes to run lifecycle events. A
// subscription lives until its ctx is cancelled or the bus is closed.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// MetricsCollector records orchestrator metrics.
type MetricsCollector interface {
	RecordRunStarted()
	RecordRunCompleted(verdict string, duration time.Duration)
	RecordStageExecuted(kind, status string, duration time.Duration)
	RecordCacheHit(kind string)
	RecordCacheMiss(kind string)
	RecordDeployment(state string, rolledBack bool, duration time.Duration)
	SetActivePipelines(count int)
}

// CommandResult captures the observable output of an external command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner executes an external command in a working directory and
// captures its output. A non-zero exit is reported through
// CommandResult, not through the error.
type CommandRunner interface {
	Run(ctx context.Context, dir string, env []string, command []string) (*CommandResult, error)
}

// BuildRequest describes one container image build.
type BuildRequest struct {
	ContextDir string
	Dockerfile string
	Image      string
	CommitTag  string
}

// BuildBackend produces container images and publishes them to a
// registry under a mutable latest-style tag and an immutable commit tag.
type BuildBackend interface {
	Build(ctx context.Context, req BuildRequest) (string, error)
	Push(ctx context.Context, imageRef string, tags []string, creds domain.RegistryCredentials) ([]string, error)
}

// ClusterBackend accepts deployment descriptors and answers rollout
// status queries for the deployment controller's polling loop. Every
// method authenticates with the given credentials so the status poll
// and rollback-target query address the same cluster Apply targets.
type ClusterBackend interface {
	Apply(ctx context.Context, descriptor []byte, creds domain.ClusterCredentials) error
	RolloutStatus(ctx context.Context, environment, serviceID string, creds domain.ClusterCredentials) (domain.RolloutState, error)
	CurrentImage(ctx context.Context, environment, serviceID string, creds domain.ClusterCredentials) (string, error)
}

// CredentialProvider supplies registry and cluster credentials for the
// duration of a single call. The orchestrator never persists them.
type CredentialProvider interface {
	RegistryCredentials(ctx context.Context) (domain.RegistryCredentials, error)
	ClusterCredentials(ctx context.Context) (domain.ClusterCredentials, error)
}
