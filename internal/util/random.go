// Package util provides utility functions shared across journey components.
package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; not suitable for cryptographic purposes.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateFileSuffix generates a short random suffix used to keep
// timestamp-derived filenames collision free when multiple records for the
// same owner are created within the same second.
func GenerateFileSuffix() string {
	return GenerateRandomHex(6)
}
