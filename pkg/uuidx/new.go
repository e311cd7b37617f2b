// Package uuidx generates the identifiers used throughout parley.
// Version 7 UUIDs are time-ordered, which keeps badger keys that embed
// them sorted by creation time.
package uuidx

import "github.com/google/uuid"

// New returns a fresh version 7 UUID. It panics when the random source
// fails, which is not a recoverable condition.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns a fresh version 7 UUID in its canonical string form.
func NewString() string {
	return New().String()
}

// IsValid reports whether s parses as a UUID. Handlers use it to reject
// malformed path parameters before touching the store.
func IsValid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
