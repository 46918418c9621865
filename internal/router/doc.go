// Package router implements the message dispatcher.
//
// The dispatcher:
//   - Decodes each inbound frame into an envelope
//   - Routes correlated responses to the pending-request resolver
//   - Classifies everything else into typed events (welcome,
//     system_update, alert, unknown) for subscribers
//   - Reports malformed frames as error events without touching
//     connection state
package router
