// Package bigchain talks to a BigchainDB-compatible node over its HTTP API
// (/api/v1/transactions).
package bigchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"certledger/internal/ledger"
	"certledger/pkg/platform/circuit"
)

const transactionsPath = "/api/v1/transactions"

// maxResponseBytes bounds how much of a node response is read.
const maxResponseBytes = 8 << 20

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	Breaker    *circuit.Breaker
	Logger     *slog.Logger
}

// Client implements ledger.Client against a node.
type Client struct {
	baseURL string
	client  HTTPDoer
	timeout time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.HTTPClient,
		timeout: cfg.Timeout,
		breaker: cfg.Breaker,
		logger:  cfg.Logger,
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: cfg.Timeout}
	}
	if c.breaker == nil {
		c.breaker = circuit.New("bigchain")
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return c
}

// Breaker exposes the circuit state for readiness checks.
func (c *Client) Breaker() *circuit.Breaker {
	return c.breaker
}

// Commit posts tx with mode=commit, waiting until the node has committed it.
func (c *Client) Commit(ctx context.Context, tx *ledger.Transaction) (string, error) {
	body, err := ledger.Encode(tx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrInvalid, err)
	}

	var committed ledger.Transaction
	err = c.do(ctx, http.MethodPost, transactionsPath+"?mode=commit", body, &committed)
	if err != nil {
		return "", err
	}
	if committed.ID == "" {
		committed.ID = tx.ID
	}
	return committed.ID, nil
}

func (c *Client) Retrieve(ctx context.Context, id string) (*ledger.Transaction, error) {
	var tx ledger.Transaction
	if err := c.do(ctx, http.MethodGet, transactionsPath+"/"+url.PathEscape(id), nil, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Chain lists the asset's transactions; the node returns them in commit order.
func (c *Client) Chain(ctx context.Context, assetID string) ([]*ledger.Transaction, error) {
	var txs []*ledger.Transaction
	err := c.do(ctx, http.MethodGet, transactionsPath+"?asset_id="+url.QueryEscape(assetID), nil, &txs)
	if errors.Is(err, ledger.ErrNotFound) {
		return []*ledger.Transaction{}, nil
	}
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*ledger.Transaction{}
	}
	return txs, nil
}

// Ping hits the API root.
func (c *Client) Ping(ctx context.Context) error {
	if c.breaker.IsOpen() {
		return fmt.Errorf("%w: %w", ledger.ErrUnavailable, circuit.ErrOpen)
	}
	return c.do(ctx, http.MethodGet, "/api/v1/", nil, nil)
}

// do runs one request through the breaker. Only availability failures count
// against the circuit; a rejected transaction says nothing about node health.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, method, path, body, out)
	}, ledger.IsInfrastructure)
	if errors.Is(err, circuit.ErrOpen) {
		return fmt.Errorf("%w: %w", ledger.ErrUnavailable, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ledger.ErrInvalid, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			c.logger.WarnContext(ctx, "ledger request timed out", "method", method, "path", path)
			return fmt.Errorf("%w: %v", ledger.ErrTimeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ledger.ErrUnavailable, err)
	}

	if err := classify(resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ledger.ErrUnavailable, err)
	}
	return nil
}

type nodeError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// classify maps node responses onto ledger sentinels.
func classify(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	var ne nodeError
	_ = json.Unmarshal(body, &ne)
	msg := ne.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	lower := strings.ToLower(msg)
	compact := strings.ReplaceAll(lower, " ", "")

	switch {
	case status == http.StatusNotFound:
		return ledger.ErrNotFound
	case status == http.StatusBadRequest && strings.Contains(compact, "doublespend"):
		return fmt.Errorf("%w: %s", ledger.ErrDoubleSpend, msg)
	case status == http.StatusBadRequest && strings.Contains(lower, "already exists"):
		return fmt.Errorf("%w: %s", ledger.ErrDuplicate, msg)
	case status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: node returned %d", ledger.ErrTimeout, status)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: %d %s", ledger.ErrInvalid, status, msg)
	default:
		return fmt.Errorf("%w: node returned %d", ledger.ErrUnavailable, status)
	}
}

var _ ledger.Client = (*Client)(nil)
