// Package uuid provides UUID v4 generation and validation for
// client-assigned record ids.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// New generates a new UUID v4 string.
func New() string {
	return uuid.New().String()
}

// IsValid reports whether s is a valid UUID v4. Offline-created records
// carry client-assigned ids; anything else is rejected at the API boundary.
func IsValid(s string) bool {
	id, err := uuid.Parse(s)
	return err == nil && id.Version() == 4
}

// Validate returns an error if s is not a valid UUID v4.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID v4: %q", s)
	}
	return nil
}
