package security

import "time"

// IsExpiredAt reports whether a credential expiring at expiresAt is dead at
// now. Expiry is inclusive and has no skew allowance. The zero time means
// the credential does not expire.
func IsExpiredAt(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !expiresAt.After(now)
}
