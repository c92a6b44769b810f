// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/candirank/ai"
	"github.com/poiesic/candirank/core"
	"github.com/poiesic/candirank/storage"
)

// Defaults used by NewIngester.
const (
	DefaultBatchSize      = 100
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = time.Second
	DefaultConcurrency    = 2
	DefaultReportInterval = 100
)

// Summary describes a completed ingestion.
type Summary struct {
	Collection string
	Rows       int // Rows written by this run
	Size       int // Collection size after the run
	Dim        int
	Elapsed    time.Duration
}

// Ingester embeds rows and appends them to a stored collection.
type Ingester struct {
	repo           storage.EntryRepository
	embedder       ai.Embedder
	batchSize      int
	maxRetries     int
	retryDelay     time.Duration
	concurrency    int
	reportInterval int
	normalize      bool
	progress       io.Writer
	logger         *slog.Logger
}

// Option configures an Ingester.
type Option func(*Ingester) error

// WithBatchSize sets how many texts are sent to the embedder per call.
func WithBatchSize(n int) Option {
	return func(in *Ingester) error {
		if n <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		in.batchSize = n
		return nil
	}
}

// WithMaxRetries sets the number of embedding attempts per batch.
func WithMaxRetries(n int) Option {
	return func(in *Ingester) error {
		if n <= 0 {
			return ErrInvalidMaxAttempts
		}
		in.maxRetries = n
		return nil
	}
}

// WithRetryDelay sets the base delay of the exponential backoff.
func WithRetryDelay(d time.Duration) Option {
	return func(in *Ingester) error {
		if d < 0 {
			return fmt.Errorf("retry delay must not be negative, got %v", d)
		}
		in.retryDelay = d
		return nil
	}
}

// WithConcurrency sets how many batches are embedded at the same time.
// Values below 1 are treated as 1.
func WithConcurrency(n int) Option {
	return func(in *Ingester) error {
		in.concurrency = max(n, 1)
		return nil
	}
}

// WithProgress reports progress to w every reportInterval rows.
// A nil writer disables progress output.
func WithProgress(w io.Writer, reportInterval int) Option {
	return func(in *Ingester) error {
		in.progress = w
		if reportInterval > 0 {
			in.reportInterval = reportInterval
		}
		return nil
	}
}

// WithNormalize scales every vector to unit length before storing it.
func WithNormalize(normalize bool) Option {
	return func(in *Ingester) error {
		in.normalize = normalize
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(in *Ingester) error {
		if logger == nil {
			logger = slog.Default()
		}
		in.logger = logger
		return nil
	}
}

// NewIngester creates an Ingester writing into repo.
func NewIngester(repo storage.EntryRepository, embedder ai.Embedder, opts ...Option) (*Ingester, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	in := &Ingester{
		repo:           repo,
		embedder:       embedder,
		batchSize:      DefaultBatchSize,
		maxRetries:     DefaultMaxRetries,
		retryDelay:     DefaultRetryDelay,
		concurrency:    DefaultConcurrency,
		reportInterval: DefaultReportInterval,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(in); err != nil {
			return nil, err
		}
	}
	in.logger = in.logger.With("component", "ingest")
	return in, nil
}

// IngestReader parses r with ReadRows and ingests the result.
func (in *Ingester) IngestReader(ctx context.Context, collection string, r io.Reader) (*Summary, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return nil, err
	}
	return in.Ingest(ctx, collection, rows)
}

// Ingest embeds rows and appends them to collection in input order.
// Rows without an id get the next sequential row number of the collection.
// Nothing is written unless every batch was embedded.
func (in *Ingester) Ingest(ctx context.Context, collection string, rows []Row) (*Summary, error) {
	offset := 0
	info, err := in.repo.Collection(ctx, collection)
	switch {
	case err == nil:
		offset = info.Size
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to read collection %q: %w", collection, err)
	}

	summary := &Summary{Collection: collection, Size: offset}
	if info != nil {
		summary.Dim = info.Dim
	}
	if len(rows) == 0 {
		return summary, nil
	}

	entries := make([]core.Entry, len(rows))
	for i, row := range rows {
		entries[i].Item = row.Item
		entries[i].ID = core.ID(offset + i)
		if row.HasID {
			entries[i].ID = row.ID
		}
	}

	if in.progress != nil {
		fmt.Fprintf(in.progress, "Embedding %d rows into %q (batch size: %d)\n", len(rows), collection, in.batchSize)
	}
	tracker := NewProgressTracker(in.progress, "Embedding", len(rows), in.reportInterval)
	tracker.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for start := 0; start < len(entries); start += in.batchSize {
		batch := entries[start:min(start+in.batchSize, len(entries))]
		g.Go(func() error {
			if err := in.embedBatch(gctx, batch); err != nil {
				return fmt.Errorf("rows %d-%d: %w", start, start+len(batch)-1, err)
			}
			tracker.Increment(len(batch))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	tracker.Finish()

	for start := 0; start < len(entries); start += in.batchSize {
		batch := entries[start:min(start+in.batchSize, len(entries))]
		if err := in.repo.PutEntries(ctx, collection, batch...); err != nil {
			return nil, fmt.Errorf("failed to store rows %d-%d: %w", start, start+len(batch)-1, err)
		}
	}

	summary.Rows = len(entries)
	summary.Size = offset + len(entries)
	summary.Dim = len(entries[0].Vector)
	summary.Elapsed = tracker.Elapsed()
	in.logger.Info("ingested rows",
		"collection", collection,
		"rows", summary.Rows,
		"size", summary.Size,
		"dim", summary.Dim,
		"elapsed", summary.Elapsed)
	return summary, nil
}

func (in *Ingester) embedBatch(ctx context.Context, batch []core.Entry) error {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].Item.Text
	}

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = in.embedder.EmbedTexts(ctx, texts)
		return err
	}, in.maxRetries, in.retryDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", in.maxRetries, err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(vectors))
	}

	for i, v := range vectors {
		if in.normalize {
			v = NormalizeVector(v)
		}
		batch[i].Vector = core.Vector(v)
	}
	in.logger.Debug("embedded batch", "rows", len(batch))
	return nil
}
