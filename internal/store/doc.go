// Package store keeps a SQLite history of test sessions and their case results.
//
// Each session is a run, identified by a UUIDv7, holding one result row per
// test case in execution order (seq). Errors and metrics are stored as JSON.
//
// # Database Configuration
//
//   - WAL mode: history can be read while a session is writing
//   - synchronous=NORMAL
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: results must reference a run
//
// The schema is embedded from schema.sql and upgraded through PRAGMA user_version.
package store
