// Package id issues identifiers.
//
// Catalog and account rows are keyed by random UUIDs. Short-lived opaque
// values (token ids, request ids, audit record keys) use prefixed NanoIDs,
// which are shorter and URL-safe.
package id

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// New returns a new entity identifier (a random UUID in canonical form).
func New() string {
	return uuid.NewString()
}

// IsEntityID reports whether s is a well-formed entity identifier.
func IsEntityID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// Generate creates a prefixed opaque ID, e.g. "req-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	n, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + n, nil
}

// MustGenerate is like Generate but panics if the system runs out of entropy.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return v
}
