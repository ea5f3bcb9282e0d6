// Package storage provides run store implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization and TTL
//   - memory: In-memory for one-shot runs and testing
package storage
