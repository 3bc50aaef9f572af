// Package lifecycle is the certificate state machine.
//
//	Valid --revoke--> Revoked (terminal)
//	Valid --renew(n)--> Valid, expiry moved to now+30n days
//	Valid past its expiry reads as Expired and accepts no transition.
package lifecycle

import (
	"fmt"
	"time"

	"certledger/internal/certificate/models"
	dErrors "certledger/pkg/domain-errors"
)

// StateOf derives the current state from the tail metadata of a chain.
// Revoked takes precedence over expired.
func StateOf(md models.Metadata, now time.Time) models.Status {
	if md.Status == models.StatusRevoked {
		return models.StatusRevoked
	}
	if md.ExpiryDate != nil && now.After(md.ExpiryDate.Time) {
		return models.StatusExpired
	}
	return models.StatusValid
}

// Revoke returns the metadata of a revocation recorded at now. The expiry
// date is carried forward unchanged.
func Revoke(current models.Metadata, now time.Time) (models.Metadata, error) {
	if err := requireValid(current, now, "revoke"); err != nil {
		return models.Metadata{}, err
	}
	return models.Metadata{
		Status:         models.StatusRevoked,
		RevocationDate: models.NewTimestamp(now).Ptr(),
		ExpiryDate:     current.ExpiryDate,
		Version:        models.MetadataVersion,
	}, nil
}

// Renew returns the metadata of a renewal for months recorded at now.
func Renew(current models.Metadata, now time.Time, months int) (models.Metadata, error) {
	if months <= 0 {
		return models.Metadata{}, dErrors.New(dErrors.CodeInvalidInput, "new_valid_months must be positive")
	}
	if err := requireValid(current, now, "renew"); err != nil {
		return models.Metadata{}, err
	}
	return models.Metadata{
		Status:      models.StatusValid,
		RenewalDate: models.NewTimestamp(now).Ptr(),
		ExpiryDate:  models.ExpiryAfter(now, months).Ptr(),
		Version:     models.MetadataVersion,
	}, nil
}

func requireValid(current models.Metadata, now time.Time, event string) error {
	if state := StateOf(current, now); state != models.StatusValid {
		return dErrors.New(dErrors.CodeInvalidTransition, fmt.Sprintf("cannot %s a %s certificate", event, state))
	}
	return nil
}
