// Package badger is an embedded, durable ledger substrate on BadgerDB.
//
// Each commit runs in one optimistic badger transaction that validates the
// new ledger transaction against the committed state, marks the outputs it
// spends, appends it to the asset chain and records it as a new block. Two
// transfers racing for one output conflict on the spent-output key; the
// loser is replayed, sees the output spent and fails with ErrDoubleSpend.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"

	"certledger/internal/ledger"
)

const defaultMaxRetries = 16

var (
	prefixTx    = []byte("tx/")
	prefixChain = []byte("chain/")
	prefixSpent = []byte("spent/")
	prefixBlock = []byte("block/")
	keyHeight   = []byte("meta/height")
)

// Ledger stores the substrate in badger.
type Ledger struct {
	db         *badger.DB
	logger     *slog.Logger
	dataDir    string
	maxRetries int
}

// New opens the store. The caller must Close it.
func New(opts ...Option) (*Ledger, error) {
	l := &Ledger{maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var badgerOpts badger.Options
	if l.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(l.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		badgerOpts = badger.DefaultOptions(l.dataDir)
	}
	badgerOpts = badgerOpts.
		WithLogger(newBadgerLogger(l.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	l.db = db
	return l, nil
}

// Close releases the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Commit validates and appends tx, retrying on write conflicts.
func (l *Ledger) Commit(ctx context.Context, tx *ledger.Transaction) (string, error) {
	raw, err := ledger.Encode(tx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrInvalid, err)
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
		}
		err := l.db.Update(func(txn *badger.Txn) error {
			return l.apply(txn, tx, raw)
		})
		if err == nil {
			return tx.ID, nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return "", err
		}
		if attempt >= l.maxRetries {
			return "", fmt.Errorf("%w: commit conflicted %d times", ledger.ErrUnavailable, attempt)
		}
		l.logger.DebugContext(ctx, "badger commit conflict, replaying",
			"transaction_id", tx.ID,
			"attempt", attempt,
		)
	}
}

func (l *Ledger) apply(txn *badger.Txn, tx *ledger.Transaction, raw []byte) error {
	if err := ledger.Validate(tx, snapshot{txn}); err != nil {
		return err
	}

	height, err := readHeight(txn)
	if err != nil {
		return err
	}
	height++

	if err := txn.Set(txKey(tx.ID), raw); err != nil {
		return err
	}
	for _, in := range tx.Inputs {
		if in.Fulfills == nil {
			continue
		}
		if err := txn.Set(spentKey(*in.Fulfills), []byte(tx.ID)); err != nil {
			return err
		}
	}
	if err := txn.Set(chainKey(tx.AssetID(), height), []byte(tx.ID)); err != nil {
		return err
	}
	if err := txn.Set(blockKey(height), raw); err != nil {
		return err
	}
	return txn.Set(keyHeight, encodeHeight(height))
}

func (l *Ledger) Retrieve(_ context.Context, id string) (*ledger.Transaction, error) {
	var tx *ledger.Transaction
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		tx, err = getTx(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (l *Ledger) Chain(_ context.Context, assetID string) ([]*ledger.Transaction, error) {
	var chain []*ledger.Transaction
	err := l.db.View(func(txn *badger.Txn) error {
		prefix := chainPrefix(assetID)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			tx, err := getTx(txn, string(id))
			if err != nil {
				return fmt.Errorf("chain %s: %w", assetID, err)
			}
			chain = append(chain, tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if chain == nil {
		chain = []*ledger.Transaction{}
	}
	return chain, nil
}

// Ping reports whether the database is open.
func (l *Ledger) Ping(context.Context) error {
	if l.db.IsClosed() {
		return fmt.Errorf("%w: badger closed", ledger.ErrUnavailable)
	}
	return nil
}

func (l *Ledger) Height(context.Context) (int64, error) {
	var height int64
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		height, err = readHeight(txn)
		return err
	})
	return height, err
}

func (l *Ledger) Block(_ context.Context, height int64) (*ledger.Block, error) {
	var raw []byte
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(height))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("block %d: %w", height, ledger.ErrNotFound)
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ledger.Block{Height: height, Transactions: [][]byte{raw}}, nil
}

type snapshot struct{ txn *badger.Txn }

func (s snapshot) Transaction(id string) (*ledger.Transaction, error) {
	return getTx(s.txn, id)
}

func (s snapshot) SpentBy(ref ledger.OutputRef) (string, bool, error) {
	item, err := s.txn.Get(spentKey(ref))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	id, err := item.ValueCopy(nil)
	if err != nil {
		return "", false, err
	}
	return string(id), true, nil
}

func getTx(txn *badger.Txn, id string) (*ledger.Transaction, error) {
	item, err := txn.Get(txKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return ledger.Decode(raw)
}

func readHeight(txn *badger.Txn) (int64, error) {
	item, err := txn.Get(keyHeight)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupt height record (%d bytes)", len(raw))
	}
	return int64(binary.BigEndian.Uint64(raw)), nil //nolint:gosec // written by encodeHeight
}

func encodeHeight(h int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(h)) //nolint:gosec // heights are positive
}

func txKey(id string) []byte {
	return append(append([]byte{}, prefixTx...), id...)
}

func spentKey(ref ledger.OutputRef) []byte {
	return append(append([]byte{}, prefixSpent...), ref.TransactionID+"/"+strconv.Itoa(ref.OutputIndex)...)
}

func chainPrefix(assetID string) []byte {
	return append(append(append([]byte{}, prefixChain...), assetID...), '/')
}

func chainKey(assetID string, height int64) []byte {
	return append(chainPrefix(assetID), encodeHeight(height)...)
}

func blockKey(height int64) []byte {
	return append(append([]byte{}, prefixBlock...), encodeHeight(height)...)
}

var (
	_ ledger.Client      = (*Ledger)(nil)
	_ ledger.BlockSource = (*Ledger)(nil)
)
