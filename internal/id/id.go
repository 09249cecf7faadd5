// Package id generates and inspects cortex's 128-bit time-sortable record
// identifiers.
//
// Spec §4.2's bit layout — 48-bit millisecond Unix timestamp, 4-bit version
// marker (7), 12 random bits, 2-bit variant (10), 62 random bits — is RFC
// 9562 UUIDv7 verbatim, so generation delegates to google/uuid's NewV7
// rather than hand-packing bits.
package id

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New generates a fresh time-sortable identifier in standard 8-4-4-4-12
// hex textual form. IDs generated later always sort lexicographically
// after IDs generated earlier, down to 1ms resolution.
func New() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("id: generate: %w", err)
	}
	return u.String(), nil
}

// MustNew is New but panics on failure — used where entropy exhaustion
// would already be a fatal process condition (e.g. at pipeline startup).
func MustNew() string {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// CreatedAt extracts the embedded millisecond timestamp from a UUIDv7
// textual identifier.
func CreatedAt(textual string) (time.Time, error) {
	u, err := uuid.Parse(textual)
	if err != nil {
		return time.Time{}, fmt.Errorf("id: parse %q: %w", textual, err)
	}
	if u.Version() != 7 {
		return time.Time{}, fmt.Errorf("id: %q is not a v7 identifier (version %d)", textual, u.Version())
	}
	ms := int64(u[0])<<40 | int64(u[1])<<32 | int64(u[2])<<24 | int64(u[3])<<16 | int64(u[4])<<8 | int64(u[5])
	return time.UnixMilli(ms).UTC(), nil
}

// Valid reports whether textual is a well-formed 8-4-4-4-12 identifier.
func Valid(textual string) bool {
	_, err := uuid.Parse(textual)
	return err == nil
}

// Short returns the first 13 characters of textual, the form history
// commit messages embed (spec §4.8 stage 8).
func Short(textual string) string {
	if len(textual) <= 13 {
		return textual
	}
	return textual[:13]
}

// Less reports whether a sorts before b — lexicographic order on the
// textual form, which for UUIDv7 is equivalent to creation-time order.
func Less(a, b string) bool {
	return a < b
}
