package utils

import "github.com/google/uuid"

// NewID returns a globally unique document identifier.
func NewID() string {
	return uuid.NewString()
}
