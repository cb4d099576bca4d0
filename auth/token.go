package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTTL is the fixed lifetime of a session token.
const SessionTTL = 7 * 24 * time.Hour

// ErrEmptySecret is returned when a TokenService is built without a secret.
var ErrEmptySecret = errors.New("token secret is empty")

// Claims is the payload of a session token.
type Claims struct {
	UserID   int64    `json:"userId"`
	UserType UserType `json:"userType"`
	jwt.RegisteredClaims
}

// Expiry returns the expiration time, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// TokenService signs and verifies HS256 session tokens with a process-wide
// secret. It is safe for concurrent use; the secret is never mutated.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService copies secret into a new TokenService.
func NewTokenService(secret string) (*TokenService, error) {
	return NewTokenServiceWithClock(secret, time.Now)
}

// NewTokenServiceWithClock is NewTokenService with an explicit time source.
func NewTokenServiceWithClock(secret string, now func() time.Time) (*TokenService, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if now == nil {
		now = time.Now
	}
	return &TokenService{secret: []byte(secret), now: now}, nil
}

// Issue signs a token for u.
func (s *TokenService) Issue(u User) (string, error) {
	return s.Sign(Claims{UserID: u.ID, UserType: u.UserType})
}

// Sign stamps c with issued-at now and expiry now+SessionTTL and returns the
// signed compact token. Any timestamps already on c are replaced.
func (s *TokenService) Sign(c Claims) (string, error) {
	now := s.now()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(SessionTTL))
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify returns the claims of a valid token and nil for anything else:
// malformed, tampered and expired tokens are indistinguishable here.
func (s *TokenService) Verify(token string) *Claims {
	c, err := s.Inspect(token)
	if err != nil {
		return nil
	}
	return c
}

// Inspect is Verify with the failure cause. Use it for logging, never for
// authorization decisions.
func (s *TokenService) Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignatureMismatch
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if claims.UserID <= 0 || !claims.UserType.Valid() {
		return nil, ErrMalformed
	}
	return claims, nil
}

// DecodeUnverified decodes the claims segment without checking the signature
// or expiry. It only tells the caller what the token says about itself.
func DecodeUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: no expiry", ErrMalformed)
	}
	return claims, nil
}
