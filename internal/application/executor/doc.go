// Package executor runs individual pipeline stages: it fingerprints the
// stage, consults the artifact cache, executes on a miss and writes the
// result back. Cache failures degrade to a miss; they never fail a
// stage.
package executor
