// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams with consumer groups, for multi-instance serve mode
//   - memory: In-memory for one-shot runs and testing
package events
