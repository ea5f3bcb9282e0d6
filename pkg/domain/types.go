package domain

import "time"

// StageKind identifies what a stage does.
type StageKind string

const (
	StageKindTest   StageKind = "test"
	StageKindBuild  StageKind = "build"
	StageKindPush   StageKind = "push"
	StageKindDeploy StageKind = "deploy"
)

// StageStatus is the terminal status of a single stage.
type StageStatus string

const (
	StageStatusPassed  StageStatus = "passed"
	StageStatusFailed  StageStatus = "failed"
	StageStatusCached  StageStatus = "cached"
	StageStatusSkipped StageStatus = "skipped"
)

// PipelineStatus is the terminal status of one service's pipeline.
type PipelineStatus string

const (
	PipelineStatusSuccess    PipelineStatus = "success"
	PipelineStatusFailed     PipelineStatus = "failed"
	PipelineStatusNotStarted PipelineStatus = "not-started"
)

// Verdict is the aggregated outcome of a run.
type Verdict string

const (
	VerdictSuccess        Verdict = "success"
	VerdictPartialFailure Verdict = "partial-failure"
	VerdictFailure        Verdict = "failure"
)

// RolloutState tracks a deployment through its state machine.
type RolloutState string

const (
	RolloutStatePending    RolloutState = "pending"
	RolloutStateInProgress RolloutState = "in-progress"
	RolloutStateStable     RolloutState = "stable"
	RolloutStateFailed     RolloutState = "failed"
	RolloutStateRolledBack RolloutState = "rolled-back"
)

// RunStatus tracks a run through its lifecycle in the run store.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Stage is a single step of a service pipeline. Stages execute in
// declared order; UsesOutputOf chains a stage's cache key to the
// fingerprint of an earlier stage whose output it consumes.
type Stage struct {
	Name         string    `json:"name" yaml:"name"`
	Kind         StageKind `json:"kind" yaml:"kind"`
	Command      []string  `json:"command,omitempty" yaml:"command,omitempty"`
	Inputs       []string  `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	UsesOutputOf string    `json:"uses_output_of,omitempty" yaml:"uses_output_of,omitempty"`
}

// Service is one deployable unit declared for a run. Immutable once the
// run starts.
type Service struct {
	ID                 string  `json:"id" yaml:"id"`
	Source             string  `json:"source" yaml:"source"`
	BuildContext       string  `json:"build_context,omitempty" yaml:"build_context,omitempty"`
	Dockerfile         string  `json:"dockerfile,omitempty" yaml:"dockerfile,omitempty"`
	Image              string  `json:"image,omitempty" yaml:"image,omitempty"`
	DescriptorTemplate string  `json:"descriptor_template,omitempty" yaml:"descriptor_template,omitempty"`
	Stages             []Stage `json:"stages" yaml:"stages"`
}

// TriggerContext describes the event that started a run.
type TriggerContext struct {
	Branch string `json:"branch" yaml:"branch"`
	Commit string `json:"commit" yaml:"commit"`
	Event  string `json:"event" yaml:"event"`
}

// Trigger event types.
const (
	TriggerEventPush        = "push"
	TriggerEventPullRequest = "pull_request"
	TriggerEventManual      = "manual"
)

// RunSpec is the declarative input for one run: the services to build
// and the release gating policy.
type RunSpec struct {
	Services      []Service `json:"services" yaml:"services"`
	ReleaseBranch string    `json:"release_branch" yaml:"release_branch"`
	Environment   string    `json:"environment" yaml:"environment"`
}

// Artifact is a cached stage output: an image reference, a test report
// or any other content-addressed product.
type Artifact struct {
	Kind      StageKind `json:"kind"`
	Ref       string    `json:"ref"`
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`
}

// StageResult records the outcome of one stage execution.
type StageResult struct {
	Stage    string        `json:"stage"`
	Kind     StageKind     `json:"kind"`
	Status   StageStatus   `json:"status"`
	Output   string        `json:"output,omitempty"`
	Logs     string        `json:"logs,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// PipelineResult is the outcome of one service's pipeline within a run.
type PipelineResult struct {
	ServiceID    string         `json:"service_id"`
	StageResults []StageResult  `json:"stage_results"`
	FinalStatus  PipelineStatus `json:"final_status"`
	Error        string         `json:"error,omitempty"`
}

// RunResult is the aggregated outcome of a run across all services.
// ErrorCount counts execution errors (infrastructure failures and
// internal invariant violations), as opposed to reported test or build
// failures.
type RunResult struct {
	RunID           string           `json:"run_id"`
	Verdict         Verdict          `json:"verdict"`
	PipelineResults []PipelineResult `json:"pipeline_results"`
	ErrorCount      int              `json:"error_count"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     time.Time        `json:"completed_at"`
}

// RunState is the persisted view of a run served by the control API.
type RunState struct {
	RunID       string         `json:"run_id"`
	Trigger     TriggerContext `json:"trigger"`
	Status      RunStatus      `json:"status"`
	Services    []string       `json:"services"`
	Result      *RunResult     `json:"result,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Deployment is one rollout attempt owned by the deployment controller
// for its duration.
type Deployment struct {
	ServiceID     string       `json:"service_id"`
	Environment   string       `json:"environment"`
	Image         string       `json:"image"`
	PreviousImage string       `json:"previous_image,omitempty"`
	State         RolloutState `json:"state"`
	RolledBack    bool         `json:"rolled_back"`
}

// DeploymentResult is the terminal outcome of a rollout attempt.
type DeploymentResult struct {
	State         RolloutState `json:"state"`
	RolledBack    bool         `json:"rolled_back"`
	PreviousImage string       `json:"previous_image,omitempty"`
}

// RegistryCredentials authenticate against a container registry for the
// duration of a single push. Never persisted.
type RegistryCredentials struct {
	Server   string
	Username string
	Token    string
}

// ClusterCredentials select and authenticate a cluster for the duration
// of a single rollout. Never persisted.
type ClusterCredentials struct {
	Kubeconfig string
	Context    string
}
