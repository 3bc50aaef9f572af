package bigchain

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/ledger"
	"certledger/internal/ledger/ledgertest"
	"certledger/internal/ledger/memory"
	"certledger/pkg/platform/circuit"
)

// fakeNode serves the transactions API on top of the in-memory substrate.
type fakeNode struct {
	mu      sync.Mutex
	ledger  *memory.Ledger
	failing bool
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	failing := n.failing
	n.mu.Unlock()
	if failing {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/":
		writeJSON(w, http.StatusOK, map[string]string{"docs": "ok"})
	case r.Method == http.MethodPost && r.URL.Path == transactionsPath:
		raw, _ := io.ReadAll(r.Body)
		tx, err := ledger.Decode(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, nodeError{Message: "Invalid transaction schema", Status: 400})
			return
		}
		if _, err := n.ledger.Commit(ctx, tx); err != nil {
			msg := "Invalid transaction (ValidationError): " + err.Error()
			switch {
			case errors.Is(err, ledger.ErrDoubleSpend):
				msg = "Invalid transaction (DoubleSpend): input already spent"
			case errors.Is(err, ledger.ErrDuplicate):
				msg = "Invalid transaction (DuplicateTransaction): transaction already exists"
			}
			writeJSON(w, http.StatusBadRequest, nodeError{Message: msg, Status: 400})
			return
		}
		writeJSON(w, http.StatusAccepted, tx)
	case r.Method == http.MethodGet && r.URL.Path == transactionsPath:
		chain, _ := n.ledger.Chain(ctx, r.URL.Query().Get("asset_id"))
		writeJSON(w, http.StatusOK, chain)
	case r.Method == http.MethodGet:
		id := r.URL.Path[len(transactionsPath)+1:]
		tx, err := n.ledger.Retrieve(ctx, id)
		if err != nil {
			writeJSON(w, http.StatusNotFound, nodeError{Message: "Not found", Status: 404})
			return
		}
		writeJSON(w, http.StatusOK, tx)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (n *fakeNode) setFailing(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failing = v
}

func newNode(t *testing.T) (*fakeNode, *httptest.Server) {
	t.Helper()
	node := &fakeNode{ledger: memory.New()}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	return node, srv
}

func TestClientContract(t *testing.T) {
	ledgertest.RunClientContract(t, func(t *testing.T) ledger.Client {
		_, srv := newNode(t)
		return New(Config{BaseURL: srv.URL})
	})
}

func TestClassify(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusNotFound, `{"message":"Not found"}`, ledger.ErrNotFound},
		{http.StatusBadRequest, `{"message":"Invalid transaction (DoubleSpend): input spent"}`, ledger.ErrDoubleSpend},
		{http.StatusBadRequest, `{"message":"Invalid transaction (DoubleSpend): input ` + "`abc`" + ` was already spent"}`, ledger.ErrDoubleSpend},
		{http.StatusBadRequest, `{"message":"double spend detected"}`, ledger.ErrDoubleSpend},
		{http.StatusBadRequest, `{"message":"transaction already exists"}`, ledger.ErrDuplicate},
		{http.StatusBadRequest, `{"message":"Invalid transaction schema"}`, ledger.ErrInvalid},
		{http.StatusGatewayTimeout, ``, ledger.ErrTimeout},
		{http.StatusBadGateway, `upstream down`, ledger.ErrUnavailable},
	}
	for _, tc := range cases {
		assert.ErrorIs(t, classify(tc.status, []byte(tc.body)), tc.want, "status %d", tc.status)
	}
	assert.NoError(t, classify(http.StatusAccepted, nil))
}

func TestTimeoutIsReported(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	s := ledgertest.NewSigner(t)

	_, err := c.Commit(context.Background(), s.Create(t, 1))
	assert.ErrorIs(t, err, ledger.ErrTimeout)
}

func TestBreakerOpensOnOutage(t *testing.T) {
	node, srv := newNode(t)
	node.setFailing(true)
	c := New(Config{BaseURL: srv.URL, Breaker: circuit.New("bigchain", circuit.WithFailureThreshold(2))})
	ctx := context.Background()

	for range 2 {
		_, err := c.Retrieve(ctx, "any")
		require.ErrorIs(t, err, ledger.ErrUnavailable)
	}
	assert.True(t, c.Breaker().IsOpen())

	err := c.Ping(ctx)
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
	assert.ErrorIs(t, err, circuit.ErrOpen)
}

func TestRejectionsDoNotTripBreaker(t *testing.T) {
	_, srv := newNode(t)
	c := New(Config{BaseURL: srv.URL, Breaker: circuit.New("bigchain", circuit.WithFailureThreshold(1))})
	s := ledgertest.NewSigner(t)
	ctx := context.Background()

	create := s.Create(t, 1)
	_, err := c.Commit(ctx, create)
	require.NoError(t, err)
	_, err = c.Commit(ctx, create)
	require.ErrorIs(t, err, ledger.ErrDuplicate)

	assert.False(t, c.Breaker().IsOpen())
	_, err = c.Retrieve(ctx, "absent")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.False(t, c.Breaker().IsOpen())
}

func TestCommitSendsNodeWireFormat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	s := ledgertest.NewSigner(t)
	tx := s.Create(t, 1)
	id, err := New(Config{BaseURL: srv.URL}).Commit(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, id)

	input := body["inputs"].([]any)[0].(map[string]any)
	assert.Regexp(t, `^pGSAI`, input["fulfillment"])
	assert.Nil(t, input["fulfills"])

	condition := body["outputs"].([]any)[0].(map[string]any)["condition"].(map[string]any)
	assert.Regexp(t, `^ni:///sha-256;[A-Za-z0-9_-]+\?fpt=ed25519-sha-256&cost=131072$`, condition["uri"])
	assert.Equal(t, "2.0", body["version"])
}
