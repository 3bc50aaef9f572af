// Package ledgertest holds fixtures shared by the ledger driver tests.
package ledgertest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/ledger"
)

// Signer owns a keypair and builds signed transactions.
type Signer struct {
	Priv  ed25519.PrivateKey
	Owner string
}

func NewSigner(t testing.TB) *Signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &Signer{Priv: priv, Owner: ledger.EncodePublicKey(pub)}
}

// Create builds a signed CREATE whose asset data is unique per seq.
func (s *Signer) Create(t testing.TB, seq int) *ledger.Transaction {
	t.Helper()
	tx := ledger.NewCreate(s.Owner,
		json.RawMessage(fmt.Sprintf(`{"certificate_id":"cert-%d","type":"micro_certificate"}`, seq)),
		json.RawMessage(`{"status":"valid"}`))
	require.NoError(t, ledger.Sign(tx, s.Priv))
	return tx
}

// Transfer builds a signed self-transfer spending prev's first output.
func (s *Signer) Transfer(t testing.TB, prev *ledger.Transaction, status string) *ledger.Transaction {
	t.Helper()
	tx := ledger.NewTransfer(prev.AssetID(), ledger.OutputRef{TransactionID: prev.ID},
		prev.Outputs[0].PublicKeys, s.Owner,
		json.RawMessage(fmt.Sprintf(`{"status":%q,"previous_tx":%q}`, status, prev.ID)))
	require.NoError(t, ledger.Sign(tx, s.Priv))
	return tx
}

// RunClientContract exercises the behaviour every ledger.Client must share.
func RunClientContract(t *testing.T, newClient func(t *testing.T) ledger.Client) {
	t.Run("commit then retrieve and chain", func(t *testing.T) {
		c := newClient(t)
		s := NewSigner(t)
		ctx := context.Background()

		create := s.Create(t, 1)
		id, err := c.Commit(ctx, create)
		require.NoError(t, err)
		assert.Equal(t, create.ID, id)

		transfer := s.Transfer(t, create, "revoked")
		_, err = c.Commit(ctx, transfer)
		require.NoError(t, err)

		got, err := c.Retrieve(ctx, transfer.ID)
		require.NoError(t, err)
		assert.Equal(t, create.ID, got.AssetID())

		chain, err := c.Chain(ctx, create.ID)
		require.NoError(t, err)
		require.Len(t, chain, 2)
		assert.Equal(t, create.ID, chain[0].ID)
		assert.Equal(t, transfer.ID, chain[1].ID)
	})

	t.Run("unknown asset has empty chain", func(t *testing.T) {
		c := newClient(t)
		chain, err := c.Chain(context.Background(), "absent")
		require.NoError(t, err)
		assert.Empty(t, chain)

		_, err = c.Retrieve(context.Background(), "absent")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("duplicate commit is rejected", func(t *testing.T) {
		c := newClient(t)
		s := NewSigner(t)
		create := s.Create(t, 1)
		_, err := c.Commit(context.Background(), create)
		require.NoError(t, err)
		_, err = c.Commit(context.Background(), create)
		assert.ErrorIs(t, err, ledger.ErrDuplicate)
	})

	t.Run("concurrent spends of one output", func(t *testing.T) {
		c := newClient(t)
		s := NewSigner(t)
		ctx := context.Background()
		create := s.Create(t, 1)
		_, err := c.Commit(ctx, create)
		require.NoError(t, err)

		const racers = 8
		txs := make([]*ledger.Transaction, racers)
		for i := range racers {
			txs[i] = s.Transfer(t, create, fmt.Sprintf("status-%d", i))
		}

		errs := make([]error, racers)
		var wg sync.WaitGroup
		for i := range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = c.Commit(ctx, txs[i])
			}()
		}
		wg.Wait()

		committed := 0
		for _, err := range errs {
			if err == nil {
				committed++
				continue
			}
			assert.ErrorIs(t, err, ledger.ErrDoubleSpend)
		}
		assert.Equal(t, 1, committed)

		chain, err := c.Chain(ctx, create.ID)
		require.NoError(t, err)
		assert.Len(t, chain, 2)
	})
}
