// Package cache provides artifact cache implementations.
//
// Implementations:
//   - memory: In-process LRU with run leases, used by one-shot runs and tests
//   - redis: Redis with JSON serialization, shared across runs and hosts
package cache
