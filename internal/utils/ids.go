package utils

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateNanoIDWithPrefix returns a prefixed nanoid, e.g. "email_x3k2...".
func GenerateNanoIDWithPrefix(prefix string, length int) string {
	id, err := gonanoid.Generate(nanoIDAlphabet, length)
	if err != nil {
		// gonanoid only fails on a broken random source
		id = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%s", prefix, id)
}

// Now returns the current UTC time truncated to microseconds, matching the
// precision of the timestamp columns.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
