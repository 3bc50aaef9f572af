// Package tendermint reads committed blocks from a Tendermint RPC endpoint
// (/status and /block?height=N).
package tendermint

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"certledger/internal/ledger"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source implements ledger.BlockSource.
type Source struct {
	baseURL string
	client  HTTPDoer
}

// Option configures a Source.
type Option func(*Source)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(s *Source) {
		if c != nil {
			s.client = c
		}
	}
}

func New(baseURL string, opts ...Option) *Source {
	s := &Source{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type statusResponse struct {
	Result struct {
		SyncInfo struct {
			LatestBlockHeight string `json:"latest_block_height"`
		} `json:"sync_info"`
	} `json:"result"`
}

type blockResponse struct {
	Result struct {
		Block struct {
			Data struct {
				Txs []string `json:"txs"`
			} `json:"data"`
		} `json:"block"`
	} `json:"result"`
}

// Height returns the latest committed block height.
func (s *Source) Height(ctx context.Context) (int64, error) {
	var status statusResponse
	if err := s.get(ctx, "/status", &status); err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(status.Result.SyncInfo.LatestBlockHeight, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad latest_block_height %q", ledger.ErrUnavailable, status.Result.SyncInfo.LatestBlockHeight)
	}
	return height, nil
}

// Block fetches one block. Transactions that are not valid base64 fail the
// whole block so the caller can log and skip it.
func (s *Source) Block(ctx context.Context, height int64) (*ledger.Block, error) {
	var resp blockResponse
	if err := s.get(ctx, "/block?height="+strconv.FormatInt(height, 10), &resp); err != nil {
		return nil, fmt.Errorf("block %d: %w", height, err)
	}
	block := &ledger.Block{Height: height}
	for i, encoded := range resp.Result.Block.Data.Txs {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("block %d tx %d: %w", height, i, err)
		}
		block.Transactions = append(block.Transactions, raw)
	}
	return block, nil
}

func (s *Source) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ledger.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ledger.ErrUnavailable, path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ledger.ErrUnavailable, path, err)
	}
	return nil
}

var _ ledger.BlockSource = (*Source)(nil)
