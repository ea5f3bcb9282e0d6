package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrCacheMiss is returned by an artifact cache when no entry exists for
// a fingerprint.
var ErrCacheMiss = errors.New("cache miss")

// ErrRunNotFound is returned by a run store when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// TestFailureError reports failing assertions in a test stage. Not
// retried: only a code fix recovers it.
type TestFailureError struct {
	ServiceID string
	Stage     string
	ExitCode  int
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test stage %s failed for service %s (exit %d)", e.Stage, e.ServiceID, e.ExitCode)
}

// BuildFailureError reports a compile or containerization error. Not
// retried.
type BuildFailureError struct {
	ServiceID string
	Stage     string
	Err       error
}

func (e *BuildFailureError) Error() string {
	return fmt.Sprintf("build stage %s failed for service %s: %v", e.Stage, e.ServiceID, e.Err)
}

func (e *BuildFailureError) Unwrap() error { return e.Err }

// TransientInfraError wraps a registry or cluster API timeout or 5xx.
// Eligible for bounded retry with backoff at the stage executor and
// deployment controller boundaries, never at the test stage.
type TransientInfraError struct {
	Op  string
	Err error
}

func (e *TransientInfraError) Error() string {
	return fmt.Sprintf("transient infrastructure error during %s: %v", e.Op, e.Err)
}

func (e *TransientInfraError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a transient
// infrastructure error.
func IsTransient(err error) bool {
	var t *TransientInfraError
	return errors.As(err, &t)
}

// RolloutTimeoutError reports a deployment that did not stabilize within
// the configured window. Triggers rollback, not a retry of the rollout.
type RolloutTimeoutError struct {
	ServiceID string
	Timeout   time.Duration
}

func (e *RolloutTimeoutError) Error() string {
	return fmt.Sprintf("rollout of service %s did not stabilize within %s", e.ServiceID, e.Timeout)
}

// RolloutFailedError reports an explicit failure signal from the cluster
// backend, as opposed to a rollout that merely ran out its stability
// window. Triggers rollback.
type RolloutFailedError struct {
	ServiceID string
}

func (e *RolloutFailedError) Error() string {
	return fmt.Sprintf("cluster backend reported rollout failure for service %s", e.ServiceID)
}

// FingerprintCollisionError reports two writers producing differing
// artifacts under the same cache key. An internal invariant violation,
// fatal to the run.
type FingerprintCollisionError struct {
	Key string
}

func (e *FingerprintCollisionError) Error() string {
	return fmt.Sprintf("fingerprint collision on cache key %s", e.Key)
}

// IsFingerprintCollision reports whether err is (or wraps) a fingerprint
// collision.
func IsFingerprintCollision(err error) bool {
	var c *FingerprintCollisionError
	return errors.As(err, &c)
}
