// Package websocket streams run lifecycle events to clients watching a
// run in progress.
package websocket
