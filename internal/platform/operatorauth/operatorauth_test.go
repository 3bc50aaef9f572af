package operatorauth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/middleware/auth"
	"certledger/pkg/requestcontext"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := New("test-signing-key", time.Hour)

	token, err := svc.Generate(context.Background(), "ops@issuer", []string{auth.ScopeIssue})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@issuer", claims.Subject)
	assert.Equal(t, []string{auth.ScopeIssue}, claims.Scopes)
}

func TestGenerateRejectsEmptyInput(t *testing.T) {
	svc := New("test-signing-key", time.Hour)

	_, err := svc.Generate(context.Background(), "", DefaultScopes)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = svc.Generate(context.Background(), "ops", nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestParseExpired(t *testing.T) {
	svc := New("test-signing-key", time.Minute)
	ctx := requestcontext.WithTime(context.Background(), time.Now().Add(-time.Hour))

	token, err := svc.Generate(ctx, "ops", DefaultScopes)
	require.NoError(t, err)

	_, err = svc.Parse(token)
	require.ErrorContains(t, err, "token expired")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestParseRejectsForeignTokens(t *testing.T) {
	svc := New("test-signing-key", time.Hour)

	t.Run("wrong key", func(t *testing.T) {
		other := New("other-key", time.Hour)
		token, err := other.Generate(context.Background(), "ops", DefaultScopes)
		require.NoError(t, err)
		_, err = svc.Parse(token)
		require.ErrorContains(t, err, "invalid token")
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := New("test-signing-key", time.Hour, WithIssuer("someone-else"))
		token, err := other.Generate(context.Background(), "ops", DefaultScopes)
		require.NoError(t, err)
		_, err = svc.Parse(token)
		require.Error(t, err)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, OperatorClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "ops", Issuer: DefaultIssuer},
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.Parse(signed)
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Parse("invalid-token-string")
		require.ErrorContains(t, err, "invalid token")
	})
}
