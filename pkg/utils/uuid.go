package utils

import "github.com/google/uuid"

// NewRunID returns a fresh identifier for one sweep or scoring run.
func NewRunID() string {
	return uuid.NewString()
}
