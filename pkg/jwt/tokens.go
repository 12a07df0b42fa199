package jwt

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const defaultIssuer = "todofordevs"

// ErrEmptySecret is returned when a signer is built without key material.
var ErrEmptySecret = errors.New("jwt: signing secret is empty")

// Identity is the user data embedded into issued tokens.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Claims defines JWT payload.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	jwtlib.RegisteredClaims
}

// GenerateToken issues a signed JWT with provided secret and ttl.
func GenerateToken(identity Identity, issuer, secret string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	claims := Claims{
		UserID: identity.UserID,
		Email:  identity.Email,
		Name:   identity.Name,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse validates signature, algorithm and expiry and extracts claims from token.
func Parse(token, issuer, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}),
		jwtlib.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(issuer))
	}
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.UserID) == "" {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Signer signs and verifies tokens with a server-held HMAC secret.
type Signer struct {
	secret string
	issuer string
	now    func() time.Time
}

// NewSigner constructs a Signer. An empty issuer defaults to "todofordevs".
func NewSigner(secret, issuer string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = defaultIssuer
	}
	return &Signer{secret: secret, issuer: issuer, now: time.Now}, nil
}

// Sign mints a token for identity valid for ttl.
func (s *Signer) Sign(identity Identity, ttl time.Duration) (string, error) {
	return GenerateToken(identity, s.issuer, s.secret, ttl, s.now())
}

// Parse verifies token and returns its claims.
func (s *Signer) Parse(token string) (*Claims, error) {
	return Parse(token, s.issuer, s.secret)
}
