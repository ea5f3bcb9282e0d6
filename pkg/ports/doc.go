// Package ports defines the interfaces between the application core and
// its adapters: artifact cache, run store, event bus, metrics, command
// execution, container build backend, cluster backend and credential
// provider.
package ports
