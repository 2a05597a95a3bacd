package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// transferTokenBytes is the entropy of an ownership-transfer token (256 bits).
const transferTokenBytes = 32

// NewTransferToken returns a random single-use token and its hash. Only the hash is stored;
// the token is shown to the initiating owner once.
func NewTransferToken() (token, hash string, err error) {
	b := make([]byte, transferTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, HashTransferToken(token), nil
}

// HashTransferToken returns a SHA-256 hash of the token string, hex-encoded.
func HashTransferToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TransferTokenHashEqual performs constant-time comparison of the provided token's hash
// with the stored hash. Empty tokens never match.
func TransferTokenHashEqual(providedToken, storedHash string) bool {
	if providedToken == "" {
		return false
	}
	providedHash := HashTransferToken(providedToken)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
