package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// NewAgentToken returns a fresh bearer token and the salt used to hash it at
// rest. The plaintext token leaves this process exactly once, in the
// registration response.
func NewAgentToken() (token string, salt string, err error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", "", err
	}
	saltBytes := make([]byte, 16)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", "", err
	}
	return hex.EncodeToString(tokenBytes), hex.EncodeToString(saltBytes), nil
}

// HashAgentToken produces the digest stored in place of the token.
func HashAgentToken(salt, token string) string {
	sum := sha256.Sum256([]byte(salt + token))
	return hex.EncodeToString(sum[:])
}

// VerifyAgentToken compares a presented token against a stored salted digest in
// constant time.
func VerifyAgentToken(salt, storedHash, token string) bool {
	computed := HashAgentToken(salt, token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
