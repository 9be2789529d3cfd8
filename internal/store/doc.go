// Package store provides storage and pub/sub for completed cycle records.
//
// This package is internal to pollpool. It keeps the cycle history behind
// the REST API and streams new records to SSE clients.
//
// The main components are:
//
//   - [Store]: interface defining storage and subscription operations
//   - [MemoryStore]: bounded in-memory ring
//   - [SQLiteStore]: persistent store backed by SQLite
//   - [CycleRecord]: storage representation of one cycle
//
// Subscribers receive records via channels with non-blocking sends (slow
// subscribers miss records rather than block the cycle loop).
package store
