package utils

import "github.com/google/uuid"

// MustTokenId returns a random id for a signed token and its session.
func MustTokenId() string {
	return uuid.NewString()
}
