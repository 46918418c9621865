// Package recorder persists daemon events for callers that opt in to
// buffering history.
//
// The Recorder subscribes to system_update and alert events, batches
// metric samples, and flushes them to TimescaleDB on a size or interval
// trigger. It is an external collaborator of the connection core: the
// client works identically with recording disabled.
package recorder
