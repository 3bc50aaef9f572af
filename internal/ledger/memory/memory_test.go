package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"certledger/internal/ledger"
	"certledger/internal/ledger/ledgertest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestClientContract(t *testing.T) {
	ledgertest.RunClientContract(t, func(*testing.T) ledger.Client { return New() })
}

func TestBlocks(t *testing.T) {
	l := New()
	s := ledgertest.NewSigner(t)
	ctx := context.Background()

	first := s.Create(t, 1)
	_, err := l.Commit(ctx, first)
	require.NoError(t, err)
	_, err = l.Commit(ctx, s.Transfer(t, first, "revoked"))
	require.NoError(t, err)

	height, err := l.Height(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, height)

	block, err := l.Block(ctx, 1)
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)
	decoded, err := ledger.Decode(block.Transactions[0])
	require.NoError(t, err)
	assert.Equal(t, first.ID, decoded.ID)

	_, err = l.Block(ctx, 3)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRetrieveReturnsCopies(t *testing.T) {
	l := New()
	s := ledgertest.NewSigner(t)
	create := s.Create(t, 1)
	_, err := l.Commit(context.Background(), create)
	require.NoError(t, err)

	got, err := l.Retrieve(context.Background(), create.ID)
	require.NoError(t, err)
	got.Outputs[0].PublicKeys[0] = "tampered"

	again, err := l.Retrieve(context.Background(), create.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Owner, again.Outputs[0].PublicKeys[0])
}

func TestCommitHonoursCancelledContext(t *testing.T) {
	l := New()
	s := ledgertest.NewSigner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Commit(ctx, s.Create(t, 1))
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
}
