package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestStaticProvider(t *testing.T) {
	user, err := NewStaticProvider(" alice ").CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, "alice", user.ID)

	_, err = NewStaticProvider("").CurrentUser(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
}

func TestJWTProviderRoundTrip(t *testing.T) {
	issuer, err := NewJWTProvider("s3cret", "stanza", "")
	require.NoError(t, err)

	token, err := issuer.Issue(User{ID: "alice", Email: "a@example.com", EmailVerified: true}, time.Hour)
	require.NoError(t, err)

	provider, err := NewJWTProvider("s3cret", "stanza", token)
	require.NoError(t, err)

	user, err := provider.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, "alice", user.ID)
	require.Equal(t, "a@example.com", user.Email)
	require.True(t, user.EmailVerified)
}

func TestJWTProviderRejects(t *testing.T) {
	good, err := NewJWTProvider("s3cret", "stanza", "")
	require.NoError(t, err)
	valid, err := good.Issue(User{ID: "alice"}, time.Hour)
	require.NoError(t, err)

	expiredIssuer, err := NewJWTProvider("s3cret", "stanza", "")
	require.NoError(t, err)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredIssuer.Issue(User{ID: "alice"}, time.Hour)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "stanza",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		issuer string
		token  string
	}{
		{name: "wrong secret", secret: "other", issuer: "stanza", token: valid},
		{name: "wrong issuer", secret: "s3cret", issuer: "elsewhere", token: valid},
		{name: "expired", secret: "s3cret", issuer: "stanza", token: expired},
		{name: "missing subject", secret: "s3cret", issuer: "stanza", token: noSubject},
		{name: "garbage", secret: "s3cret", issuer: "stanza", token: "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewJWTProvider(tt.secret, tt.issuer, tt.token)
			require.NoError(t, err)
			_, err = provider.CurrentUser(context.Background())
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTProviderWithoutToken(t *testing.T) {
	provider, err := NewJWTProvider("s3cret", "", "")
	require.NoError(t, err)
	_, err = provider.CurrentUser(context.Background())
	require.ErrorIs(t, err, ErrNoSession)

	_, err = NewJWTProvider("", "", "")
	require.Error(t, err)
}
