// Package gen provides utility functions for generating values.
package gen

import (
	"strings"

	"github.com/google/uuid"
)

const sep = "|"

// Key joins the parts with the key separator.
func Key(parts ...string) string {
	return strings.Join(parts, sep)
}

// UUIDv5 generates a UUIDv5 in the URL namespace from the joined parts.
func UUIDv5(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(Key(parts...))).String()
}

// UUID returns a random UUIDv4.
func UUID() string {
	return uuid.NewString()
}
