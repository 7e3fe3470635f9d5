// Package store provides the DedupRepo interface for inbound alert deduplication.
package store

import (
	"time"
)

// DedupRecord tracks one inbound delivery, keyed by the sender's idempotency key.
type DedupRecord struct {
	Key         string     `json:"key"`
	FamilyID    string     `json:"family_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo guards alert ingestion against upstream retries.
type DedupRepo interface {
	// RecordInbound inserts a record for key. It returns false if the key was
	// already recorded.
	RecordInbound(key, familyID string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for key.
	MarkProcessed(key string) error

	// ForgetInbound removes key so that a failed delivery can be retried.
	ForgetInbound(key string) error
}
