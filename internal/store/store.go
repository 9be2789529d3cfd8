package store

import (
	"context"
	"time"
)

// CycleRecord is the storage representation of one completed cycle.
//
// CycleRecord is optimized for JSON serialization (used by the REST API and
// SSE) and decoupled from the pollpool types to allow independent evolution.
type CycleRecord struct {
	// ID is the cycle's UUID.
	ID string `json:"id"`

	// StartedAt is the wall-clock start of the cycle.
	StartedAt time.Time `json:"started_at"`

	// DurationMs is the cycle duration in milliseconds.
	DurationMs int64 `json:"duration_ms"`

	// PoolSize is the number of workers the cycle ran with.
	PoolSize int `json:"pool_size"`

	// IntervalMs is the nominal interval in milliseconds.
	IntervalMs int64 `json:"interval_ms"`

	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Succeeded int `json:"succeeded"`

	// Weight is the cycle weight; nil for cycles where no task settled.
	Weight *float64 `json:"weight"`

	// Triggered reports whether a recalculation was triggered.
	Triggered bool `json:"triggered"`

	// Trigger is the rule that decided the trigger query.
	Trigger string `json:"trigger"`

	// Action is the sizing action taken: grow, shrink or hold.
	Action string `json:"action"`

	// Reason explains the action.
	Reason string `json:"reason"`

	// NextPoolSize is the pool size chosen for the following cycle.
	NextPoolSize int `json:"next_pool_size"`

	// Bucket is the outcome's caching bucket key, hex encoded.
	Bucket string `json:"bucket"`
}

// Store defines storage and subscription for cycle records.
//
// Implementations must be safe for concurrent access. The pub/sub mechanism
// pushes new records to connected clients (e.g., via Server-Sent Events).
type Store interface {
	// Append stores a record and notifies all subscribers.
	Append(ctx context.Context, rec CycleRecord) error

	// Recent returns up to n records, newest first.
	Recent(ctx context.Context, n int) ([]CycleRecord, error)

	// Latest returns the newest record; ok is false when the store is empty.
	Latest(ctx context.Context) (rec CycleRecord, ok bool, err error)

	// Subscribe returns a channel that receives new records.
	// Slow consumers may miss records. Call Unsubscribe when done.
	Subscribe() <-chan CycleRecord

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan CycleRecord)

	// Close releases resources held by the store.
	Close() error
}
