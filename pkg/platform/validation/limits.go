package validation

import (
	"fmt"

	dErrors "certledger/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	MaxBodySize = 64 * 1024
)

// Certificate field limits. Metadata is written to the ledger forever, so
// every free-text field is bounded.
const (
	MaxNameLength       = 100
	MaxCompetenceLength = 200
	MaxIdentifierLength = 64

	// MaxValidMonths caps one validity period at a hundred years.
	MaxValidMonths = 1200
)

// Operator token limits
const (
	MaxScopes      = 10
	MaxScopeLength = 100
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length
// in runes.
func CheckStringLength(fieldName, value string, max int) error {
	if len([]rune(value)) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckEachStringLength validates that each string in a slice does not exceed the maximum length.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if err := CheckStringLength(fieldName, v, max); err != nil {
			return err
		}
	}
	return nil
}
