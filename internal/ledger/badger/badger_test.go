package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/ledger"
	"certledger/internal/ledger/ledgertest"
)

func newInMemory(t *testing.T) *Ledger {
	t.Helper()
	l, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestClientContract(t *testing.T) {
	ledgertest.RunClientContract(t, func(t *testing.T) ledger.Client { return newInMemory(t) })
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s := ledgertest.NewSigner(t)
	ctx := context.Background()
	create := s.Create(t, 1)

	l, err := New(WithDataDir(dir))
	require.NoError(t, err)
	_, err = l.Commit(ctx, create)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	reopened, err := New(WithDataDir(dir))
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Retrieve(ctx, create.ID)
	require.NoError(t, err)
	assert.Equal(t, create.ID, got.ID)

	height, err := reopened.Height(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, height)
}

func TestBlocksFollowCommitOrder(t *testing.T) {
	l := newInMemory(t)
	s := ledgertest.NewSigner(t)
	ctx := context.Background()

	a := s.Create(t, 1)
	b := s.Create(t, 2)
	for _, tx := range []*ledger.Transaction{a, b, s.Transfer(t, a, "revoked")} {
		_, err := l.Commit(ctx, tx)
		require.NoError(t, err)
	}

	height, err := l.Height(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, height)

	block, err := l.Block(ctx, 2)
	require.NoError(t, err)
	decoded, err := ledger.Decode(block.Transactions[0])
	require.NoError(t, err)
	assert.Equal(t, b.ID, decoded.ID)

	_, err = l.Block(ctx, 4)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	chain, err := l.Chain(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, chain, 2)
}

func TestPingAfterClose(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	require.NoError(t, l.Ping(context.Background()))
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Ping(context.Background()), ledger.ErrUnavailable)
}
