// Package orchestrator coordinates a run across all declared services.
//
// The manager:
//   - Validates the run spec before admission
//   - Evaluates the release gate once per run, stripping deploy stages
//     for non-release triggers
//   - Executes one service pipeline per service concurrently, bounded
//     by a semaphore
//   - Aggregates pipeline outcomes into the run verdict
//   - Tracks in-flight runs for cancellation and publishes lifecycle
//     events
package orchestrator
