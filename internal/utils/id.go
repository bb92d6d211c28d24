package utils

import "github.com/google/uuid"

// NewID returns a random identifier for correlating a session in logs.
func NewID() string {
	return uuid.NewString()
}
