package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "certledger/pkg/domain-errors"
)

// DecodeJSON decodes a required JSON request body into T. On failure it
// writes a bad_request response and returns nil, false.
//
//	req, ok := httputil.DecodeJSON[models.CreateRequest](w, r, h.logger, ctx, requestID)
//	if !ok {
//	    return
//	}
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req, err := decode[T](r, false)
	if err != nil {
		rejectBody(w, logger, ctx, requestID, err)
		return nil, false
	}
	return req, true
}

// DecodeOptionalJSON is DecodeJSON for endpoints whose body may be omitted.
// An absent body yields nil, true.
func DecodeOptionalJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req, err := decode[T](r, true)
	if err != nil {
		rejectBody(w, logger, ctx, requestID, err)
		return nil, false
	}
	return req, true
}

func decode[T any](r *http.Request, optional bool) (*T, error) {
	if r.Body == nil || r.Body == http.NoBody {
		if optional {
			return nil, nil
		}
		return nil, io.EOF
	}
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func rejectBody(w http.ResponseWriter, logger *slog.Logger, ctx context.Context, requestID string, err error) {
	logger.WarnContext(ctx, "failed to decode request body",
		"error", err,
		"request_id", requestID,
	)
	WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
}

// Validatable is implemented by request types that support validation.
type Validatable interface {
	Validate() error
}

// Normalizable is implemented by request types that trim or canonicalise input.
type Normalizable interface {
	Normalize()
}

// Sanitizable is implemented by request types that strip unsafe input.
type Sanitizable interface {
	Sanitize()
}

// PrepareRequest sanitizes, normalizes and validates req, in that order.
func PrepareRequest(req any) error {
	if s, ok := req.(Sanitizable); ok {
		s.Sanitize()
	}
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := req.(Validatable); ok {
		return v.Validate()
	}
	return nil
}

// DecodeAndPrepare decodes the body and runs PrepareRequest on it.
//
//	req, ok := httputil.DecodeAndPrepare[models.CreateRequest](w, r, h.logger, ctx, requestID)
//	if !ok {
//	    return
//	}
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger, ctx, requestID)
	if !ok {
		return nil, false
	}
	if !prepare(w, req, logger, ctx, requestID) {
		return nil, false
	}
	return req, true
}

// DecodeOptionalAndPrepare prepares the body when one was sent. An absent
// body yields nil, true.
//
//	req, ok := httputil.DecodeOptionalAndPrepare[models.RenewRequest](w, r, h.logger, ctx, requestID)
func DecodeOptionalAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req, ok := DecodeOptionalJSON[T](w, r, logger, ctx, requestID)
	if !ok || req == nil {
		return req, ok
	}
	if !prepare(w, req, logger, ctx, requestID) {
		return nil, false
	}
	return req, true
}

func prepare(w http.ResponseWriter, req any, logger *slog.Logger, ctx context.Context, requestID string) bool {
	err := PrepareRequest(req)
	if err == nil {
		return true
	}
	logger.WarnContext(ctx, "invalid request",
		"error", err,
		"request_id", requestID,
	)
	// domain errors keep their code
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		WriteError(w, err)
	} else {
		WriteError(w, dErrors.New(dErrors.CodeValidation, err.Error()))
	}
	return false
}
