// Package memory is an in-process ledger substrate. Commits are serialised,
// so of two transfers spending the same output exactly one succeeds.
package memory

import (
	"context"
	"fmt"
	"sync"

	"certledger/internal/ledger"
)

// Ledger stores committed transactions in memory. One block per commit.
type Ledger struct {
	mu     sync.RWMutex
	txs    map[string]*ledger.Transaction
	chains map[string][]string
	spent  map[ledger.OutputRef]string
	blocks [][]byte
}

func New() *Ledger {
	return &Ledger{
		txs:    make(map[string]*ledger.Transaction),
		chains: make(map[string][]string),
		spent:  make(map[ledger.OutputRef]string),
	}
}

// Commit validates tx against the committed state and appends it.
func (l *Ledger) Commit(ctx context.Context, tx *ledger.Transaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	raw, err := ledger.Encode(tx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrInvalid, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ledger.Validate(tx, snapshot{l}); err != nil {
		return "", err
	}

	stored, err := ledger.Decode(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrInvalid, err)
	}
	l.txs[stored.ID] = stored
	l.chains[stored.AssetID()] = append(l.chains[stored.AssetID()], stored.ID)
	for _, in := range stored.Inputs {
		if in.Fulfills != nil {
			l.spent[*in.Fulfills] = stored.ID
		}
	}
	l.blocks = append(l.blocks, raw)
	return stored.ID, nil
}

func (l *Ledger) Retrieve(_ context.Context, id string) (*ledger.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tx, ok := l.txs[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return clone(tx), nil
}

func (l *Ledger) Chain(_ context.Context, assetID string) ([]*ledger.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := l.chains[assetID]
	out := make([]*ledger.Transaction, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(l.txs[id]))
	}
	return out, nil
}

func (l *Ledger) Ping(context.Context) error {
	return nil
}

// Height returns the number of committed blocks.
func (l *Ledger) Height(context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.blocks)), nil
}

// Block returns the block at height, starting from 1.
func (l *Ledger) Block(_ context.Context, height int64) (*ledger.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if height < 1 || height > int64(len(l.blocks)) {
		return nil, fmt.Errorf("block %d: %w", height, ledger.ErrNotFound)
	}
	raw := l.blocks[height-1]
	return &ledger.Block{Height: height, Transactions: [][]byte{append([]byte(nil), raw...)}}, nil
}

// clone keeps callers from mutating committed state.
func clone(tx *ledger.Transaction) *ledger.Transaction {
	c := *tx
	c.Inputs = make([]ledger.Input, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if in.Fulfills != nil {
			f := *in.Fulfills
			in.Fulfills = &f
		}
		in.OwnersBefore = append([]string(nil), in.OwnersBefore...)
		c.Inputs[i] = in
	}
	c.Outputs = make([]ledger.Output, len(tx.Outputs))
	for i, out := range tx.Outputs {
		out.PublicKeys = append([]string(nil), out.PublicKeys...)
		c.Outputs[i] = out
	}
	c.Metadata = append([]byte(nil), tx.Metadata...)
	c.Asset.Data = append([]byte(nil), tx.Asset.Data...)
	return &c
}

// snapshot reads committed state. Caller holds mu.
type snapshot struct{ l *Ledger }

func (s snapshot) Transaction(id string) (*ledger.Transaction, error) {
	tx, ok := s.l.txs[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return tx, nil
}

func (s snapshot) SpentBy(ref ledger.OutputRef) (string, bool, error) {
	id, ok := s.l.spent[ref]
	return id, ok, nil
}

var (
	_ ledger.Client      = (*Ledger)(nil)
	_ ledger.BlockSource = (*Ledger)(nil)
)
