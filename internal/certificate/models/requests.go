package models

import (
	"unicode/utf8"

	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/validation"
	s "certledger/pkg/string"
	tags "certledger/pkg/validation"
)

// DefaultMinIdentifierLength is the shortest identifier accepted.
const DefaultMinIdentifierLength = 5

// CreateRequest is the input to certificate creation.
type CreateRequest struct {
	HolderName  string `json:"holder_name" validate:"required,notblank"`
	Surname     string `json:"surname"     validate:"required,notblank"`
	Competence  string `json:"competence"  validate:"required,notblank"`
	Identifier  string `json:"identifier"  validate:"required"`
	ValidMonths *int   `json:"valid_months,omitempty" validate:"omitempty,min=1"`
}

func (r *CreateRequest) Normalize() {
	s.TrimStrings(&r.HolderName, &r.Surname, &r.Competence)
}

// Validate checks request shape. The identifier minimum is deployment
// specific and applied by ValidateWith.
func (r *CreateRequest) Validate() error {
	if err := tags.Validate(r); err != nil {
		return err
	}
	if r.ValidMonths != nil && *r.ValidMonths > validation.MaxValidMonths {
		return dErrors.New(dErrors.CodeInvalidInput, "valid_months is too large")
	}
	for _, f := range []struct {
		name, value string
		max         int
	}{
		{"holder_name", r.HolderName, validation.MaxNameLength},
		{"surname", r.Surname, validation.MaxNameLength},
		{"competence", r.Competence, validation.MaxCompetenceLength},
		{"identifier", r.Identifier, validation.MaxIdentifierLength},
	} {
		if err := validation.CheckStringLength(f.name, f.value, f.max); err != nil {
			return err
		}
	}
	return nil
}

// ValidateWith is Validate plus the configured identifier minimum.
func (r *CreateRequest) ValidateWith(minIdentifierLength int) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if utf8.RuneCountInString(r.Identifier) < minIdentifierLength {
		return dErrors.New(dErrors.CodeInvalidInput, "identifier is too short")
	}
	return nil
}

// RenewRequest is the input to certificate renewal.
type RenewRequest struct {
	NewValidMonths *int `json:"new_valid_months,omitempty" validate:"omitempty,min=1"`
}

func (r *RenewRequest) Validate() error {
	if err := tags.Validate(r); err != nil {
		return err
	}
	if r.NewValidMonths != nil && *r.NewValidMonths > validation.MaxValidMonths {
		return dErrors.New(dErrors.CodeInvalidInput, "new_valid_months is too large")
	}
	return nil
}
