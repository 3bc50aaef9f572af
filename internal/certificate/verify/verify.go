// Package verify reconstructs certificate state by replaying its chain.
// Negative verdicts are results, not errors.
package verify

import (
	"context"
	"time"

	"certledger/internal/certificate/issuer"
	"certledger/internal/certificate/lifecycle"
	"certledger/internal/certificate/models"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/requestcontext"
)

// Reader is the read side of the chain abstraction.
type Reader interface {
	Resolve(ctx context.Context, ref string) (string, error)
	GetChain(ctx context.Context, assetID string) ([]models.Record, error)
}

// Engine verifies certificates. It never mutates the chain.
type Engine struct {
	reader Reader
}

func NewEngine(reader Reader) *Engine {
	return &Engine{reader: reader}
}

// Verify returns the verdict for the certificate ref belongs to. ref may be
// the CREATE id or the id of any later record.
func (e *Engine) Verify(ctx context.Context, iss *issuer.Context, ref string) (*models.CertificateView, error) {
	view, _, err := e.Inspect(ctx, iss, ref)
	return view, err
}

// Inspect is Verify that also returns the chain it evaluated.
func (e *Engine) Inspect(ctx context.Context, iss *issuer.Context, ref string) (*models.CertificateView, []models.Record, error) {
	assetID, err := e.reader.Resolve(ctx, ref)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return NotFound(), nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	records, err := e.reader.GetChain(ctx, assetID)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return NotFound(), nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return Evaluate(records, iss, requestcontext.Now(ctx)), records, nil
}

// NotFound is the verdict for a reference with no committed chain.
func NotFound() *models.CertificateView {
	return &models.CertificateView{Valid: false, Reason: models.ReasonNotFound}
}

// Evaluate computes the verdict of a chain at now. The last record is
// authoritative for status and expiry. The holder identifier is visible only
// to the issuer that sealed it.
func Evaluate(records []models.Record, iss *issuer.Context, now time.Time) *models.CertificateView {
	if len(records) == 0 || records[0].Asset == nil {
		return NotFound()
	}
	asset := records[0].Asset
	tail := records[len(records)-1].Metadata

	switch lifecycle.StateOf(tail, now) {
	case models.StatusRevoked:
		return &models.CertificateView{
			Valid:          false,
			Reason:         models.ReasonRevoked,
			Status:         models.StatusRevoked,
			AssetID:        records[0].ID,
			RevocationDate: tail.RevocationDate,
		}
	case models.StatusExpired:
		return &models.CertificateView{
			Valid:      false,
			Reason:     models.ReasonExpired,
			Status:     models.StatusExpired,
			AssetID:    records[0].ID,
			ExpiryDate: tail.ExpiryDate,
		}
	}

	return &models.CertificateView{
		Valid:      true,
		Status:     tail.Status,
		AssetID:    records[0].ID,
		ExpiryDate: tail.ExpiryDate,
		Holder: &models.HolderView{
			Name:       asset.Holder.Name,
			Surname:    asset.Holder.Surname,
			Identifier: iss.Decrypt(asset.Holder.EncryptedIdentifier),
		},
		Competence:      asset.Competence,
		IssuerPublicKey: asset.IssuerPublicKey,
		History:         History(records),
	}
}

// History maps every record to its event, oldest first.
func History(records []models.Record) []models.HistoryEntry {
	out := make([]models.HistoryEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, models.HistoryEntry{
			TransactionID: rec.ID,
			Operation:     rec.Operation,
			Status:        rec.Metadata.Status,
			Timestamp:     rec.Metadata.EventDate(),
		})
	}
	return out
}
