// Package scanner exports every certificate CREATE found on the ledger by
// walking committed blocks. It is a reporting path: undecodable blocks and
// transactions are logged and skipped.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
	"certledger/internal/platform/tracer"
)

const defaultConcurrency = 4

type Scanner struct {
	source      ledger.BlockSource
	logger      *slog.Logger
	tracer      tracer.Tracer
	concurrency int
}

type Option func(*Scanner)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Scanner) {
		s.tracer = t
	}
}

// WithConcurrency bounds the number of blocks fetched at once.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func New(source ledger.BlockSource, opts ...Option) *Scanner {
	s := &Scanner{
		source:      source,
		logger:      slog.Default(),
		tracer:      tracer.NewNoop(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type blockResult struct {
	entries []models.LedgerEntry
	failed  bool
}

// Scan reads blocks 1..height and returns certificate CREATEs in block
// order. Only a failure to read the height or a cancelled context is an
// error.
func (s *Scanner) Scan(ctx context.Context) (report *models.ScanReport, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanLedgerScan)
	defer func() { span.End(err) }()

	height, err := s.source.Height(ctx)
	if err != nil {
		return nil, err
	}
	if height < 0 {
		return nil, fmt.Errorf("%w: node reported block height %d", ledger.ErrUnavailable, height)
	}
	span.SetAttributes(tracer.Int64(tracer.AttrBlockHeight, height))

	start := time.Now()
	results := make([]blockResult, height)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for h := int64(1); h <= height; h++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[h-1] = s.scanBlock(gctx, h)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report = &models.ScanReport{Transactions: []models.LedgerEntry{}, Height: height}
	for i, r := range results {
		if r.failed {
			report.SkippedBlocks = append(report.SkippedBlocks, int64(i)+1)
		}
		report.Transactions = append(report.Transactions, r.entries...)
	}
	report.Count = len(report.Transactions)

	s.logger.InfoContext(ctx, "ledger scan finished",
		"height", height,
		"certificates", report.Count,
		"skipped_blocks", len(report.SkippedBlocks),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

func (s *Scanner) scanBlock(ctx context.Context, height int64) blockResult {
	block, err := s.source.Block(ctx, height)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.WarnContext(ctx, "skipping unreadable block", "block_height", height, "error", err)
		}
		return blockResult{failed: true}
	}

	var out blockResult
	for i, raw := range block.Transactions {
		tx, err := ledger.Decode(raw)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable transaction",
				"block_height", height,
				"index", i,
				"error", err,
			)
			continue
		}
		entry, ok := s.certificateEntry(ctx, height, tx)
		if ok {
			out.entries = append(out.entries, entry)
		}
	}
	return out
}

func (s *Scanner) certificateEntry(ctx context.Context, height int64, tx *ledger.Transaction) (models.LedgerEntry, bool) {
	if tx.Operation != ledger.OperationCreate {
		return models.LedgerEntry{}, false
	}
	var asset models.CertificateAsset
	if err := json.Unmarshal(tx.Asset.Data, &asset); err != nil || asset.Type != models.AssetType {
		return models.LedgerEntry{}, false
	}
	entry := models.LedgerEntry{
		BlockHeight:   height,
		TransactionID: tx.ID,
		Operation:     tx.Operation,
		Asset:         asset,
	}
	if len(tx.Metadata) > 0 {
		if err := json.Unmarshal(tx.Metadata, &entry.Metadata); err != nil {
			s.logger.WarnContext(ctx, "skipping certificate with undecodable metadata",
				"block_height", height,
				"transaction_id", tx.ID,
				"error", err,
			)
			return models.LedgerEntry{}, false
		}
	}
	return entry, true
}
