// Package idempotency makes side-effecting operations safe to repeat.
//
// A Guard records completed operations in a Store under a key derived from
// the operation name and the identifier of its target. An ObjectGuard uses
// the presence of the target object itself as the completion signal. Both
// fail open: when the store cannot be reached the operation runs anyway.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key derives the idempotency key for an operation on a target identifier.
// The result is a 64 character hex SHA-256 digest of "operation:identifier".
func Key(operation, identifier string) string {
	sum := sha256.Sum256([]byte(operation + ":" + identifier))
	return hex.EncodeToString(sum[:])
}

// shortKey abbreviates a key for log lines.
func shortKey(key string) string {
	if len(key) > 16 {
		return key[:16]
	}
	return key
}
