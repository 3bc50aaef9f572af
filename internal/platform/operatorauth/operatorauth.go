// Package operatorauth issues and validates the HS256 bearer tokens that
// guard issuer-side operations (create, revoke, renew, export).
package operatorauth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/middleware/auth"
	"certledger/pkg/requestcontext"
)

// DefaultIssuer is the iss claim stamped on operator tokens.
const DefaultIssuer = "certledger"

// DefaultScopes are granted when a token is generated without explicit scopes.
var DefaultScopes = []string{auth.ScopeIssue, auth.ScopeManage, auth.ScopeExport}

// OperatorClaims represents the JWT claims for operator tokens.
type OperatorClaims struct {
	Scope []string `json:"scope"`
	Env   string   `json:"env,omitempty"`
	jwt.RegisteredClaims
}

// Service handles operator token creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
	env        string
}

// Option configures a Service.
type Option func(*Service)

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithEnv annotates issued tokens with an environment string.
func WithEnv(env string) Option {
	return func(s *Service) {
		s.env = env
	}
}

func New(signingKey string, tokenTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		signingKey: []byte(signingKey),
		issuer:     DefaultIssuer,
		tokenTTL:   tokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate signs a token for subject carrying scopes.
func (s *Service) Generate(ctx context.Context, subject string, scopes []string) (string, error) {
	if subject == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject cannot be empty")
	}
	if len(scopes) == 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "scopes cannot be empty")
	}
	now := requestcontext.Now(ctx)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, OperatorClaims{
		Scope: scopes,
		Env:   s.env,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Parse validates signature, algorithm, expiry and issuer.
func (s *Service) Parse(tokenString string) (*OperatorClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*OperatorClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return claims, nil
}

// ValidateToken satisfies auth.TokenValidator.
func (s *Service) ValidateToken(tokenString string) (*auth.Claims, error) {
	claims, err := s.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	return &auth.Claims{Subject: claims.Subject, Scopes: claims.Scope}, nil
}

var _ auth.TokenValidator = (*Service)(nil)
