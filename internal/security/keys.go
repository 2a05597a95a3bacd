package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrInvalidKey is returned when a key is missing, malformed, or of an unsupported type.
var ErrInvalidKey = errors.New("invalid key")

// PEM block types accepted for the JWT key pair. Keys are loaded in the
// algorithm-neutral encodings only: PKCS#8 for the private half, PKIX for the public one.
const (
	privateBlock = "PRIVATE KEY"
	publicBlock  = "PUBLIC KEY"
)

// LoadPEM returns s itself when it is inline PEM and otherwise reads the file s names.
// Inline PEM may carry literal "\n" sequences, as it does when passed through a single-line env var.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

func decodeBlock(s, blockType string) ([]byte, error) {
	raw, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != blockType {
		return nil, ErrInvalidKey
	}
	return block.Bytes, nil
}

// ParsePrivateKey parses a PKCS#8 "PRIVATE KEY" block holding an RSA or P-256 key.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	der, err := decodeBlock(s, privateBlock)
	if err != nil {
		return nil, err
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok || KeyAlg(signer.Public()) == "" {
		return nil, ErrInvalidKey
	}
	return signer, nil
}

// ParsePublicKey parses a PKIX "PUBLIC KEY" block holding an RSA or P-256 key.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	der, err := decodeBlock(s, publicBlock)
	if err != nil {
		return nil, err
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if KeyAlg(pub) == "" {
		return nil, ErrInvalidKey
	}
	return pub, nil
}

// NewTokenProviderFromPEM builds the provider cmd/server and cmd/seed use from
// JWT_PRIVATE_KEY and JWT_PUBLIC_KEY. An empty privatePEM yields a validate-only provider.
func NewTokenProviderFromPEM(privatePEM, publicPEM, issuer, audience string, accessTTL time.Duration) (*TokenProvider, error) {
	pub, err := ParsePublicKey(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("parse JWT public key: %w", err)
	}
	var signer crypto.Signer
	if strings.TrimSpace(privatePEM) != "" {
		if signer, err = ParsePrivateKey(privatePEM); err != nil {
			return nil, fmt.Errorf("parse JWT private key: %w", err)
		}
		if KeyAlg(signer.Public()) != KeyAlg(pub) {
			return nil, fmt.Errorf("JWT private and public keys use different algorithms: %w", ErrInvalidKey)
		}
	}
	return NewTokenProvider(signer, pub, issuer, audience, accessTTL), nil
}

// KeyAlg names the JWT algorithm for pub: RS256 for RSA, ES256 for P-256 ECDSA, empty for anything else.
func KeyAlg(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		if k.Curve == elliptic.P256() {
			return "ES256"
		}
	}
	return ""
}
