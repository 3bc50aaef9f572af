package chain

import (
	"context"
	"errors"
	"time"

	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
	"certledger/internal/platform/tracer"
	dErrors "certledger/pkg/domain-errors"
)

// Reconcile outcomes reported to the Recorder.
const (
	ReconcileCommitted = "committed"
	ReconcileStale     = "stale"
	ReconcileUnknown   = "unknown"
)

// reconcile decides the outcome of a commit that timed out. The prepared id
// is a content hash, so the transaction is either retrievable under it or
// was never committed. A TRANSFER whose input was consumed by some other
// transaction lost a race and is reported stale.
func (c *Chain) reconcile(ctx context.Context, op string, p *Prepared) (rec *models.Record, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanLedgerReconcile,
		tracer.String(tracer.AttrTransactionID, p.Tx.ID),
		tracer.String(tracer.AttrAssetID, p.Record.AssetID),
	)
	defer func() { span.End(err) }()

	for attempt := 1; attempt <= c.attempts; attempt++ {
		span.SetAttributes(tracer.Int(tracer.AttrAttempt, attempt))

		decided, stale, err := c.lookup(ctx, p)
		switch {
		case err != nil:
			c.logger.WarnContext(ctx, "reconcile lookup failed",
				"op", op,
				"transaction_id", p.Tx.ID,
				"attempt", attempt,
				"error", err,
			)
		case decided && stale:
			c.report(ReconcileStale)
			span.SetAttributes(tracer.String(tracer.AttrReconciled, ReconcileStale))
			return nil, fail(dErrors.CodeStaleFulfillment, "output was spent by another transaction", op, p.Record.AssetID)
		case decided:
			c.report(ReconcileCommitted)
			span.SetAttributes(tracer.String(tracer.AttrReconciled, ReconcileCommitted))
			c.logger.InfoContext(ctx, "timed-out commit found on ledger",
				"op", op,
				"transaction_id", p.Tx.ID,
				"attempt", attempt,
			)
			out := p.Record
			return &out, nil
		}

		if attempt == c.attempts || !c.wait(ctx) {
			break
		}
	}

	c.report(ReconcileUnknown)
	span.SetAttributes(tracer.String(tracer.AttrReconciled, ReconcileUnknown))
	c.logger.ErrorContext(ctx, "commit outcome unknown after reconciliation",
		"op", op,
		"transaction_id", p.Tx.ID,
		"asset_id", p.Record.AssetID,
		"attempts", c.attempts,
	)
	return nil, fail(dErrors.CodeUnknownOutcome, "commit timed out and its outcome could not be determined", op, p.Record.AssetID)
}

// lookup looks the prepared transaction up once. decided is false while the
// ledger shows no trace of it or of a competing spend.
func (c *Chain) lookup(ctx context.Context, p *Prepared) (decided, stale bool, err error) {
	start := time.Now()
	_, err = c.client.Retrieve(ctx, p.Tx.ID)
	c.observe("retrieve", start)
	if err == nil {
		return true, false, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return false, false, err
	}
	if p.Tx.Operation != ledger.OperationTransfer {
		return false, false, nil
	}

	spent := p.Tx.Inputs[0].Fulfills
	start = time.Now()
	txs, err := c.client.Chain(ctx, p.Record.AssetID)
	c.observe("chain", start)
	if err != nil {
		return false, false, err
	}
	for _, tx := range txs {
		if tx.ID == p.Tx.ID || tx.Operation != ledger.OperationTransfer {
			continue
		}
		for _, in := range tx.Inputs {
			if in.Fulfills != nil && *in.Fulfills == *spent {
				return true, true, nil
			}
		}
	}
	return false, false, nil
}

func (c *Chain) report(outcome string) {
	if c.recorder != nil {
		c.recorder.ObserveReconcile(outcome)
	}
}

func (c *Chain) wait(ctx context.Context) bool {
	timer := time.NewTimer(c.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
