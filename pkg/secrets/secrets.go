// Package secrets generates random key material for operator configuration.
package secrets

import (
	"crypto/rand"
	"encoding/base64"

	dErrors "certledger/pkg/domain-errors"
)

const secretBytes = 32

// Generate creates a cryptographically secure random secret.
// Returns a base64url string suitable for an HS256 signing key.
func Generate() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate secret")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
