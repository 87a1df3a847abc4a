// Package token generates opaque session tokens.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewSession returns a 64-character hex token from 32 bytes of OS randomness.
// A guessable token would break the session model entirely, so entropy
// failure is fatal rather than degraded.
func NewSession() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("session token entropy unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}
