// Package uuid provides identifier generation and validation.
//
// Queue items use time-ordered v7 identifiers: a millisecond timestamp prefix
// followed by random bits, so rapid successive writes never collide and ids
// sort roughly by creation time. Records use random v4 identifiers.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Accepts v4 and v7, with the RFC 4122 variant nibble.
var idRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[47][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new random UUID v4.
func New() string {
	return uuid.New().String()
}

// NewTimeOrdered generates a UUID v7. If the generator fails (entropy source
// exhausted) it falls back to v4 so callers never receive an empty id.
func NewTimeOrdered() string {
	id, err := uuid.NewV7()
	if err != nil {
		return New()
	}
	return id.String()
}

// IsValid checks if a string is a dashed UUID v4 or v7.
func IsValid(s string) bool {
	return idRegex.MatchString(s)
}

// Validate returns an error if the string is not a valid identifier.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID format: %q", s)
	}
	return nil
}
