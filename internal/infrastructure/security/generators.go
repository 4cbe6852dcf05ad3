// Package security provides identifiers, tokens and password checks.
package security

import "github.com/oklog/ulid/v2"

// GenerateULID generates a new ULID string.
func GenerateULID() string {
	return ulid.Make().String()
}
