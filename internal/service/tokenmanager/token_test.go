package tokenmanager

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/rewardledger/internal/models"
)

func Test_TokenManager(t *testing.T) {
	t.Parallel()

	caller := models.Caller{AccountID: uuid.New(), Role: models.RoleAdmin}

	newManager := func(t *testing.T, ttl time.Duration) *TokenManager {
		m, err := New(Config{SecretKey: "test-secret-key", AccessTTL: ttl})
		require.NoError(t, err, "token manager should be created without errors")
		return m
	}

	sign := func(t *testing.T, claims jwt.Claims) string {
		value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
		require.NoError(t, err)
		return value
	}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err, "token manager should be created without errors")

		require.Equal(t, "secret", m.key, "secret key should be set")
		require.Equal(t, defaultAccessTokenTTL, m.accessTTL, "default access token TTL should be set")
		require.Equal(t, defaultSigningMethod, m.alg.Alg(), "default signing method should be set")
	})

	t.Run("new fails", func(t *testing.T) {
		_, err := New(Config{})
		require.Error(t, err, "empty key is not allowed")

		_, err = New(Config{SecretKey: "secret", Alg: "nope"})
		require.Error(t, err)
	})

	t.Run("issue claims", func(t *testing.T) {
		m := newManager(t, 15*time.Minute)

		issued, err := m.Issue(caller)
		require.NoError(t, err)

		token, err := jwt.ParseWithClaims(issued.Value, &AccessTokenClaims{}, func(token *jwt.Token) (any, error) {
			return []byte("test-secret-key"), nil
		})
		require.NoError(t, err)
		require.True(t, token.Valid, "access token should be valid")

		claims, ok := token.Claims.(*AccessTokenClaims)
		require.True(t, ok, "claims should be of type AccessTokenClaims")
		assert.Equal(t, caller.AccountID, claims.AccountID)
		assert.Equal(t, models.RoleAdmin, claims.Role)
		assert.NotEmpty(t, claims.ID, "token has to has jti")
		assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, time.Second)
		assert.WithinDuration(t, issued.ExpiresAt, claims.ExpiresAt.Time, 0)
	})

	t.Run("parse valid token", func(t *testing.T) {
		m := newManager(t, 15*time.Minute)
		issued, err := m.Issue(caller)
		require.NoError(t, err)

		parsed, err := m.Parse(issued.Value)

		require.NoError(t, err)
		require.Equal(t, caller, parsed)
	})

	t.Run("role defaults to user", func(t *testing.T) {
		m := newManager(t, 0)
		id := uuid.New()
		value := sign(t, AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
			AccountID:        id,
		})

		parsed, err := m.Parse(value)

		require.NoError(t, err)
		require.Equal(t, models.Caller{AccountID: id, Role: models.RoleUser}, parsed)
	})

	t.Run("parse fails", func(t *testing.T) {
		m := newManager(t, 0)
		later := jwt.NewNumericDate(time.Now().Add(time.Minute))

		tests := []struct {
			name  string
			token string
		}{
			{"not a token", "invalid token"},
			{"expired", sign(t, AccessTokenClaims{
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
				AccountID:        uuid.New(),
			})},
			{"without expiration", sign(t, AccessTokenClaims{AccountID: uuid.New()})},
			{"without uid", sign(t, AccessTokenClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: later}})},
			{"unknown role", sign(t, AccessTokenClaims{
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: later},
				AccountID:        uuid.New(),
				Role:             "root",
			})},
			{"other key", func() string {
				value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
					RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: later},
					AccountID:        uuid.New(),
				}).SignedString([]byte("other-key"))
				require.NoError(t, err)
				return value
			}()},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := m.Parse(tt.token)

				require.ErrorIs(t, err, ErrInvalidToken)
			})
		}
	})
}
