// Package ledger models the append-only transaction substrate certificates are
// recorded on. It defines the wire transaction, the ports drivers implement
// (Client, BlockSource) and the validation rules every substrate enforces.
package ledger

import (
	"context"
	"errors"
)

// Substrate outcomes. Drivers return these (possibly wrapped) so callers can
// classify failures without parsing messages.
var (
	ErrNotFound    = errors.New("transaction not found")
	ErrDoubleSpend = errors.New("output already spent")
	ErrDuplicate   = errors.New("transaction already committed")
	ErrInvalid     = errors.New("transaction rejected")
	ErrUnavailable = errors.New("ledger unavailable")
	ErrTimeout     = errors.New("ledger commit timed out")
)

// Client is the commit-and-retrieve boundary of the substrate.
type Client interface {
	// Commit submits a signed transaction and returns its id once committed.
	// ErrTimeout means the outcome is unknown.
	Commit(ctx context.Context, tx *Transaction) (string, error)
	// Retrieve returns a committed transaction or ErrNotFound.
	Retrieve(ctx context.Context, id string) (*Transaction, error)
	// Chain returns every committed transaction of an asset in commit order.
	// An unknown asset yields an empty slice, not an error.
	Chain(ctx context.Context, assetID string) ([]*Transaction, error)
	// Ping reports whether the substrate is reachable.
	Ping(ctx context.Context) error
}

// Block is one committed block with its raw transaction payloads.
type Block struct {
	Height       int64
	Transactions [][]byte
}

// BlockSource enumerates committed blocks for bulk export.
type BlockSource interface {
	Height(ctx context.Context) (int64, error)
	Block(ctx context.Context, height int64) (*Block, error)
}

// IsInfrastructure reports whether err is a substrate availability problem as
// opposed to a verdict about the transaction itself.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}
