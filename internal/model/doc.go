// Package model defines the payload types carried by SysMedic daemon
// messages.
//
// Conventions:
//   - Usage percentages: float64, expected range 0-100 (out-of-range is
//     reported, never rejected)
//   - Durations and uptimes: human-readable strings, passed through
//   - IDs: uuid.UUID, assigned locally on receipt
package model
