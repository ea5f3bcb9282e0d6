// Package pipeline executes the ordered stage sequence of one service.
// Stages run strictly sequentially; a failed stage skips every later
// stage of the same service and never affects other services.
package pipeline
