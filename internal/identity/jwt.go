package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken wraps every token verification failure.
var ErrInvalidToken = errors.New("invalid session token")

// Claims are the session token claims. The subject is the user id.
type Claims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// JWTProvider verifies HMAC-signed session tokens issued by the backend.
type JWTProvider struct {
	secret []byte
	issuer string
	token  string
	now    func() time.Time
}

// NewJWTProvider returns a provider that verifies token with secret. When
// issuer is set, tokens must carry a matching iss claim.
func NewJWTProvider(secret, issuer, token string) (*JWTProvider, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &JWTProvider{
		secret: []byte(secret),
		issuer: issuer,
		token:  strings.TrimSpace(token),
		now:    time.Now,
	}, nil
}

// CurrentUser verifies the configured token.
func (p *JWTProvider) CurrentUser(context.Context) (*User, error) {
	if p.token == "" {
		return nil, ErrNoSession
	}
	return p.Verify(p.token)
}

// Verify parses and validates a token and returns its user.
func (p *JWTProvider) Verify(token string) (*User, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &User{
		ID:            claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}, nil
}

// Issue signs a session token for user valid for ttl.
func (p *JWTProvider) Issue(user User, ttl time.Duration) (string, error) {
	if strings.TrimSpace(user.ID) == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := p.now()
	claims := Claims{
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
