// Package uuid generates string UUIDs for record and request identifiers.
package uuid

import guuid "github.com/google/uuid"

// New returns a random (v4) UUID string.
func New() string {
	return guuid.NewString()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	_, err := guuid.Parse(s)
	return err == nil
}
