package security

import (
	"crypto/subtle"

	"golang.org/x/oauth2"
)

// PKCEMethodS256 is the only supported code_challenge_method.
const PKCEMethodS256 = "S256"

// VerifyPKCE reports whether challenge is the unpadded base64url SHA-256 of
// verifier (RFC 7636 S256). The comparison is constant time.
func VerifyPKCE(verifier, challenge string) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	computed := oauth2.S256ChallengeFromVerifier(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
