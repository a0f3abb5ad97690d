// Package randomid generates local identifiers for upload tasks.
package randomid

import (
	"crypto/rand"
)

const lowercaseAlphanumericChars = "abcdefghijklmnopqrstuvwxyz1234567890"

// GenerateUniqueID generates a random string of the given length using
// only lowercase alphanumeric characters.
func GenerateUniqueID(length int) string {
	charsLen := len(lowercaseAlphanumericChars)
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}

	for i := 0; i < length; i++ {
		b[i] = lowercaseAlphanumericChars[int(b[i])%charsLen]
	}
	return string(b)
}
