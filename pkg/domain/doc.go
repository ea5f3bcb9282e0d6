// Package domain contains the core types shared across the orchestrator:
// services, stages, runs, deployments, lifecycle events and the error
// taxonomy used to classify stage failures.
package domain
