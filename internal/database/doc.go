// Package database manages the PostgreSQL/TimescaleDB connection pool
// used by the optional metrics recorder.
package database
