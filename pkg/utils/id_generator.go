// Package utils provides shared utility functions used across the application.
//
// Go Learning Note — "pkg/" Directory Convention:
// Code under pkg/ is intended to be importable by external projects (unlike
// internal/ which is compiler-enforced private). This is a community convention,
// not a Go language feature.
package utils

import (
	"github.com/google/uuid"
)

// GenerateID creates a new UUID v4 string used as a noise record id.
//
// Go Learning Note — "github.com/google/uuid":
// uuid.New() creates a v4 (random) UUID like
// "550e8400-e29b-41d4-a716-446655440000". Clients submitting from many
// devices can be assigned ids without any coordination, and the collision
// probability is astronomically low (1 in 2^122).
func GenerateID() string {
	return uuid.New().String()
}

// IsValidID reports whether s parses as a UUID. Handlers use it to reject
// malformed path parameters before touching the store.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// OperationID names one counter-changing operation on a record, e.g.
// "<record id>:created". Replaying the same operation reuses the same id, so
// the counter store can apply it at most once.
func OperationID(recordID, action string) string {
	return recordID + ":" + action
}
