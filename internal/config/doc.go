// Package config provides configuration for the orchestrator.
//
// Configuration is loaded from environment variables using the env
// package. All values have sensible defaults for development use.
package config
