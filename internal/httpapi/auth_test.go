package httpapi

import (
	"context"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/service"
)

const testSecret = "test-secret-key-with-at-least-32-chars"

type authenticatorStub struct {
	user domain.User
	err  error
}

func (s authenticatorStub) Authenticate(_ context.Context, username string, password string) (domain.User, error) {
	if s.err != nil {
		return domain.User{}, s.err
	}
	if username != s.user.Username || password != "secreto1" {
		return domain.User{}, service.ErrInvalidCredentials
	}
	return s.user, nil
}

func newStubAuth(now time.Time) *AuthManager {
	auth := NewAuthManager(testSecret, time.Hour, authenticatorStub{user: domain.User{
		ID:       "usr_1",
		Username: "laura",
		Role:     domain.RoleCashier,
		Active:   true,
	}})
	auth.now = func() time.Time { return now }
	return auth
}

func TestLoginIssuesParsableToken(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	auth := newStubAuth(now)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "laura", Password: "secreto1"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, now.Add(time.Hour), resp.ExpiresAt)
	assert.Equal(t, "usr_1", resp.User.ID)

	actor, err := auth.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{UserID: "usr_1", Username: "laura", Role: domain.RoleCashier}, actor)
}

func TestLoginPropagatesCredentialErrors(t *testing.T) {
	auth := newStubAuth(time.Now())
	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "laura", Password: "otra"})
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	inactive := NewAuthManager(testSecret, time.Hour, authenticatorStub{err: service.ErrInactiveAccount})
	_, err = inactive.Login(context.Background(), domain.LoginRequest{Username: "laura", Password: "secreto1"})
	assert.ErrorIs(t, err, service.ErrInactiveAccount)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	auth := newStubAuth(now)
	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "laura", Password: "secreto1"})
	require.NoError(t, err)

	auth.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = auth.ParseToken(resp.AccessToken)
	assert.ErrorIs(t, err, errInvalidToken)
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	now := time.Now()
	auth := newStubAuth(now)

	other := NewAuthManager("another-secret-key-with-32-chars-min", time.Hour, authenticatorStub{user: domain.User{ID: "usr_1", Username: "laura"}})
	resp, err := other.Login(context.Background(), domain.LoginRequest{Username: "laura", Password: "secreto1"})
	require.NoError(t, err)
	_, err = auth.ParseToken(resp.AccessToken)
	assert.Error(t, err, "token signed with another secret")

	wrongIssuer := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "usr_1",
			Issuer:    "elsewhere",
			ExpiresAt: jwtlib.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := wrongIssuer.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = auth.ParseToken(signed)
	assert.Error(t, err, "token from another issuer")

	unsigned := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "usr_1",
			Issuer:    tokenIssuer,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err = unsigned.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ParseToken(signed)
	assert.Error(t, err, "unsigned token")

	noSubject := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err = noSubject.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = auth.ParseToken(signed)
	assert.Error(t, err, "token without subject")
}

func TestNewAuthManagerDefaultsTTL(t *testing.T) {
	auth := NewAuthManager(testSecret, 0, authenticatorStub{})
	assert.Equal(t, 8*time.Hour, auth.tokenTTL)
}
