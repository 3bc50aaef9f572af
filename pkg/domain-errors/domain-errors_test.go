package domainerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite tests the domain error primitives.
//
// Justification: ledger failures are classified once and then travel through
// chain, service and transport layers. The code has to survive every hop.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorString() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeNotFound, Message: "certificate not found"}
		s.Equal("certificate not found", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeStaleFulfillment}
		s.Equal("stale_fulfillment", err.Error())
	})

	s.Run("prefixes operation and reference", func() {
		err := &Error{Code: CodeLedgerRejected, Op: "certificate.revoke", Ref: "abc", Message: "rejected"}
		s.Equal("certificate.revoke(abc): rejected", err.Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatching() {
	s.Run("matches by code only", func() {
		err1 := &Error{Code: CodeNotFound, Message: "tx not found"}
		err2 := &Error{Code: CodeNotFound, Message: "asset not found"}
		s.True(err1.Is(err2))
	})

	s.Run("does not match different codes", func() {
		s.False((&Error{Code: CodeNotFound}).Is(&Error{Code: CodeInternal}))
	})

	s.Run("does not match non-domain errors", func() {
		s.False((&Error{Code: CodeNotFound}).Is(errors.New("not found")))
	})

	s.Run("works with errors.Is through chain", func() {
		inner := &Error{Code: CodeStaleFulfillment, Message: "output spent"}
		wrapped := &Error{Code: CodeInternal, Message: "wrapped", Err: inner}
		s.True(errors.Is(wrapped, &Error{Code: CodeStaleFulfillment}))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("preserves existing domain code", func() {
		inner := New(CodeStaleFulfillment, "output spent")
		err := Wrap(inner, CodeInternal, "revoke failed")
		s.True(HasCode(err, CodeStaleFulfillment))
		s.Equal("revoke failed", err.Error())
	})

	s.Run("classifies foreign errors with given code", func() {
		err := Wrap(errors.New("boom"), CodeLedgerRejected, "commit failed")
		s.True(HasCode(err, CodeLedgerRejected))
	})
}

func (s *DomainErrorsSuite) TestWithOp() {
	s.Run("nil stays nil", func() {
		s.NoError(WithOp(nil, CodeInternal, "op", "ref"))
	})

	s.Run("keeps code and message of domain errors", func() {
		err := WithOp(New(CodeNotFound, "no chain"), CodeInternal, "certificate.verify", "tx1")
		var de *Error
		s.Require().ErrorAs(err, &de)
		s.Equal(CodeNotFound, de.Code)
		s.Equal("certificate.verify", de.Op)
		s.Equal("tx1", de.Ref)
		s.Equal("certificate.verify(tx1): no chain", err.Error())
	})

	s.Run("classifies foreign errors with fallback", func() {
		cause := errors.New("dial tcp: refused")
		err := WithOp(cause, CodeLedgerRejected, "certificate.create", "")
		s.True(HasCode(err, CodeLedgerRejected))
		s.ErrorIs(err, cause)
	})
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeUnknownOutcome, CodeOf(New(CodeUnknownOutcome, "timed out")))
	s.Equal(CodeInternal, CodeOf(errors.New("plain")))
}
