package decoupled

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenLifetime matches a shopping session
const DefaultTokenLifetime = 48 * time.Hour

// CartClaims binds a cart to its owner. The subject is the cart key that
// identifies the shopping session.
type CartClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user_id"`
}

// CartKey returns the session key the token was issued for
func (c *CartClaims) CartKey() string {
	return c.Subject
}

// TokenCodec issues and verifies HS256 cart tokens
type TokenCodec struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
	now      func() time.Time
}

// TokenOption configures a TokenCodec
type TokenOption func(*TokenCodec)

// WithIssuer sets and requires the iss claim
func WithIssuer(issuer string) TokenOption {
	return func(c *TokenCodec) {
		c.issuer = issuer
	}
}

// WithTokenLifetime sets how long issued tokens are valid
func WithTokenLifetime(d time.Duration) TokenOption {
	return func(c *TokenCodec) {
		if d > 0 {
			c.lifetime = d
		}
	}
}

// WithTokenClock overrides the time source
func WithTokenClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec creates a codec signing with secret
func NewTokenCodec(secret []byte, opts ...TokenOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	c := &TokenCodec{
		secret:   secret,
		lifetime: DefaultTokenLifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for the cart. userID is 0 for a guest cart.
func (c *TokenCodec) Issue(cartKey string, userID int64) (string, error) {
	if cartKey == "" {
		return "", errors.New("decoupled: cart key is required")
	}
	now := c.now()
	claims := CartClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cartKey,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.lifetime)),
		},
		UserID: userID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign cart token: %w", err)
	}
	return signed, nil
}

// Decode verifies the token and returns its claims. Every failure wraps
// ErrInvalidToken.
func (c *TokenCodec) Decode(raw string) (*CartClaims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &CartClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing cart key", ErrInvalidToken)
	}
	if claims.UserID < 0 {
		return nil, fmt.Errorf("%w: negative owner", ErrInvalidToken)
	}
	return claims, nil
}
