package security

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSigningDisabled is returned by IssueAccess when the provider has no private key.
	ErrSigningDisabled = errors.New("token signing disabled: no private key configured")
)

// AccessClaims holds JWT claims for the access token. OrgID is the organization the session is bound to.
type AccessClaims struct {
	jwt.RegisteredClaims
	OrgID string `json:"org_id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Identity is the authenticated caller carried by a valid access token.
type Identity struct {
	UserID      string
	OrgID       string
	Email       string
	DisplayName string
}

// TokenProvider validates access JWTs and, when it holds a private key, issues them.
// Production sessions are issued by the authentication service; issuance here serves development tooling.
// The algorithm is fixed by the configured key, so a token signed with any other one is rejected.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	alg        string
	issuer     string
	audience   string
	accessTTL  time.Duration
}

// NewTokenProvider returns a TokenProvider. privateKey may be nil for a validate-only provider.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		alg:        KeyAlg(publicKey),
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
	}
}

// IssueAccess issues an access JWT for id. Returns the token string and its expiration time.
func (p *TokenProvider) IssueAccess(id Identity) (token string, expiresAt time.Time, err error) {
	if p.privateKey == nil {
		return "", time.Time{}, ErrSigningDisabled
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   id.UserID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		OrgID: id.OrgID,
		Email: id.Email,
		Name:  id.DisplayName,
	}
	token, err = p.sign(claims)
	return token, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	method := jwt.GetSigningMethod(KeyAlg(p.privateKey.Public()))
	if method == nil || method.Alg() != p.alg {
		return "", ErrInvalidKey
	}
	return jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud) and returns the caller.
func (p *TokenProvider) ValidateAccess(tokenString string) (*Identity, error) {
	if p.alg == "" {
		return nil, ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(*jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	},
		jwt.WithValidMethods([]string{p.alg}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: claims.Subject, OrgID: claims.OrgID, Email: claims.Email, DisplayName: claims.Name}, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
