package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"certledger/pkg/requestcontext"
)

type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) ValidateToken(tokenString string) (*Claims, error) {
	args := m.Called(tokenString)
	if claims := args.Get(0); claims != nil {
		return claims.(*Claims), args.Error(1)
	}
	return nil, args.Error(1)
}

type captureHandler struct {
	called bool
	ctx    context.Context
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

type AuthMiddlewareSuite struct {
	suite.Suite
	validator *MockTokenValidator
	next      *captureHandler
	logger    *slog.Logger
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.validator = new(MockTokenValidator)
	s.next = &captureHandler{}
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *AuthMiddlewareSuite) serve(header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/certificates", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	RequireScope(s.validator, ScopeIssue, s.logger)(s.next).ServeHTTP(w, req)
	return w
}

func (s *AuthMiddlewareSuite) TestMissingHeader() {
	w := s.serve("")
	s.Equal(http.StatusUnauthorized, w.Code)
	s.False(s.next.called)
}

func (s *AuthMiddlewareSuite) TestInvalidToken() {
	s.validator.On("ValidateToken", "bad").Return(nil, errors.New("signature invalid"))

	w := s.serve("Bearer bad")
	s.Equal(http.StatusUnauthorized, w.Code)
	s.False(s.next.called)
	s.validator.AssertExpectations(s.T())
}

func (s *AuthMiddlewareSuite) TestMissingScope() {
	s.validator.On("ValidateToken", "tok").Return(&Claims{Subject: "ops", Scopes: []string{ScopeExport}}, nil)

	w := s.serve("Bearer tok")
	s.Equal(http.StatusForbidden, w.Code)
	s.False(s.next.called)
}

func (s *AuthMiddlewareSuite) TestValidTokenPopulatesOperator() {
	s.validator.On("ValidateToken", "tok").Return(&Claims{Subject: "ops@issuer", Scopes: []string{ScopeIssue}}, nil)

	w := s.serve("Bearer tok")
	s.Equal(http.StatusOK, w.Code)
	s.Require().True(s.next.called)
	s.Equal("ops@issuer", requestcontext.Operator(s.next.ctx))
}

func (s *AuthMiddlewareSuite) identify(header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/certificates/tx-1", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	Identify(s.validator, s.logger)(s.next).ServeHTTP(w, req)
	return w
}

func (s *AuthMiddlewareSuite) TestIdentifyAdmitsAnonymous() {
	w := s.identify("")
	s.Equal(http.StatusOK, w.Code)
	s.Require().True(s.next.called)
	s.Empty(requestcontext.Operator(s.next.ctx))
}

func (s *AuthMiddlewareSuite) TestIdentifyIgnoresInvalidToken() {
	s.validator.On("ValidateToken", "bad").Return(nil, errors.New("expired"))

	w := s.identify("Bearer bad")
	s.Equal(http.StatusOK, w.Code)
	s.Empty(requestcontext.Operator(s.next.ctx))
}

func (s *AuthMiddlewareSuite) TestIdentifyRecordsOperator() {
	s.validator.On("ValidateToken", "tok").Return(&Claims{Subject: "registrar", Scopes: []string{ScopeManage}}, nil)

	s.identify("Bearer tok")
	s.Equal("registrar", requestcontext.Operator(s.next.ctx))
}
