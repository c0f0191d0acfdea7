// Package id provides unique identifier generation for generation records.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// Prefix marks generation record IDs.
const Prefix = "gen_"

// Generate creates a new unique generation ID.
// Format: gen_<uuid without dashes>
// Example: gen_6f1c2b7e0a5d4c8e9b3f2a1d0c9e8b7a
func Generate() string {
	return Prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Valid reports whether s has the shape of a generated ID.
func Valid(s string) bool {
	rest, ok := strings.CutPrefix(s, Prefix)
	if !ok || len(rest) != 32 {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
