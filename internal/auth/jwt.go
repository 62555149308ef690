// Package auth verifies the bearer tokens that identify a caller for
// personalized trending and search. Tokens are minted by the platform's
// identity service; this package only checks them.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAccess is the only token type accepted for API calls.
const TokenTypeAccess = "access"

// DefaultLeeway tolerates small clock skew between issuer and verifier.
const DefaultLeeway = 30 * time.Second

var (
	// ErrInvalidToken is returned for any malformed, mis-signed or
	// wrong-type token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned for a token past its expiry plus leeway.
	ErrExpiredToken = errors.New("token has expired")

	// ErrEmptySubject is returned when issuing a token without a subject.
	ErrEmptySubject = errors.New("subject cannot be empty")
)

// Claims are the claims read from an access token. Subject is the user ID
// used to load the caller's UserContext.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// Verifier validates HS256 access tokens. During a key rotation tokens
// signed with either the current or the previous secret are accepted.
type Verifier struct {
	current  []byte
	previous []byte
	issuer   string
	leeway   time.Duration
}

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	Secret         string
	PreviousSecret string // optional, set while rotating
	Issuer         string // optional; checked when set
	Leeway         time.Duration
}

// NewVerifier creates a Verifier. A zero Leeway uses DefaultLeeway.
func NewVerifier(cfg VerifierConfig) *Verifier {
	v := &Verifier{
		current: []byte(cfg.Secret),
		issuer:  cfg.Issuer,
		leeway:  cfg.Leeway,
	}
	if cfg.PreviousSecret != "" {
		v.previous = []byte(cfg.PreviousSecret)
	}
	if v.leeway == 0 {
		v.leeway = DefaultLeeway
	}
	return v
}

// Verify parses token and returns its claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	claims, err := v.parse(token, v.current)
	if err != nil && v.previous != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		claims, err = v.parse(token, v.previous)
	}
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	default:
		return nil, ErrInvalidToken
	}
	if claims.Type != TokenTypeAccess || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v *Verifier) parse(token string, secret []byte) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(v.leeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Issue signs an access token for subject with the current secret. It is
// used by local tooling and tests; production tokens come from the
// identity service.
func (v *Verifier) Issue(subject string, ttl time.Duration, now time.Time) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: TokenTypeAccess,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.current)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
