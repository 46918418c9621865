// Package connection implements the connection lifecycle and request
// correlation manager for a SysMedic daemon.
//
// The Manager:
//   - Owns one disposable WebSocket transport, replaced wholesale on
//     each (re)connect
//   - Probes liveness and treats a missed acknowledgment as loss
//   - Reconnects with capped exponential backoff, at most one attempt
//     or timer in flight
//   - Correlates request/response pairs over the shared connection
//   - Delivers everything else as typed events via the router hub
package connection
