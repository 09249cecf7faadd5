// Package contenthash computes the normalized content fingerprint used to
// detect re-ingestion of the same observation under a different surface
// form (whitespace, case).
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Normalize lowercases s, collapses any run of whitespace to a single
// space, and trims leading/trailing space.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastWasSpace := true // drop leading whitespace
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteByte(' ')
			}
			lastWasSpace = true
			continue
		}
		b.WriteRune(unicode.ToLower(r))
		lastWasSpace = false
	}
	return strings.TrimRight(b.String(), " ")
}

// Sum returns the lowercase hex SHA-256 digest of the normalized form of
// body. Two observations with the same Sum are considered the same
// content regardless of surface formatting.
func Sum(body string) string {
	h := sha256.Sum256([]byte(Normalize(body)))
	return hex.EncodeToString(h[:])
}
