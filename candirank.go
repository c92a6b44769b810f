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

// Package candirank ranks candidate strings for query strings by vector
// similarity with an expanding nearest-neighbor search.
//
// Database ties the pieces together: a badger store holding embedded
// collections and result tables, an AI provider for embeddings and
// optional confidence scoring, and ranking sessions built over stored
// candidate collections.
package candirank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/candirank/ai"
	"github.com/poiesic/candirank/ai/openai"
	"github.com/poiesic/candirank/core"
	"github.com/poiesic/candirank/ingest"
	"github.com/poiesic/candirank/ranking"
	"github.com/poiesic/candirank/storage"
	"github.com/poiesic/candirank/storage/badger"
)

// ErrNoQueries is returned when a ranking request carries no query text.
var ErrNoQueries = errors.New("no queries given")

// Database is an open candirank store with its AI services.
type Database struct {
	backend  *badger.Backend
	entries  storage.EntryRepository
	results  storage.ResultRepository
	provider ai.Provider
	aiConfig *ai.Config
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	provider ai.Provider
	inMemory bool
	logger   *slog.Logger
}

// WithAIConfig sets the configuration of the OpenAI-compatible provider.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = config
	}
}

// WithProvider uses provider instead of building one from the AI config.
func WithProvider(provider ai.Provider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithInMemory keeps all data in memory. The path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens (or creates) the store at filePath.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	entries, results, err := badger.NewRepositories(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	return &Database{
		backend:  backend,
		entries:  entries,
		results:  results,
		provider: provider,
		aiConfig: options.aiConfig,
		logger:   options.logger.With("component", "database"),
	}, nil
}

// Close releases the provider and the store.
func (db *Database) Close() error {
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}
	if err := db.results.Close(); err != nil {
		db.logger.Error("error closing result repository", "err", err)
		return err
	}
	if err := db.entries.Close(); err != nil {
		db.logger.Error("error closing entry repository", "err", err)
		return err
	}
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// EntryRepository returns the store of embedded collections.
func (db *Database) EntryRepository() storage.EntryRepository {
	return db.entries
}

// ResultRepository returns the store of ranking results.
func (db *Database) ResultRepository() storage.ResultRepository {
	return db.results
}

// Provider returns the AI provider.
func (db *Database) Provider() ai.Provider {
	return db.provider
}

// NewIngester returns an Ingester writing into this database.
func (db *Database) NewIngester(opts ...ingest.Option) (*ingest.Ingester, error) {
	opts = append([]ingest.Option{ingest.WithLogger(db.logger)}, opts...)
	return ingest.NewIngester(db.entries, db.provider.Embedder(), opts...)
}

// NewSession builds a ranking session over the stored candidate collection.
// The provider's scorer, if any, is installed before opts are applied.
// Call Release on the session when done.
func (db *Database) NewSession(ctx context.Context, candidates string, cfg ranking.Config, opts ...ranking.Option) (*ranking.Session, error) {
	pool, err := db.entries.LoadPool(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates %q: %w", candidates, err)
	}

	base := []ranking.Option{ranking.WithLogger(db.logger)}
	if scorer := db.provider.Scorer(); scorer != nil {
		base = append(base, ranking.WithScorer(scorer))
		if db.aiConfig != nil && db.aiConfig.ScoringEnabled() {
			base = append(base, ranking.WithScorerBatchSize(db.aiConfig.ScorerBatchSize))
		}
	}
	return ranking.NewSession(pool, cfg, append(base, opts...)...)
}

// EmbedQueries embeds ad-hoc query strings into a pool.
// IDs are the positions of the texts.
func (db *Database) EmbedQueries(ctx context.Context, texts []string) (*core.Pool, error) {
	if len(texts) == 0 {
		return nil, ErrNoQueries
	}
	vectors, err := db.provider.Embedder().EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed queries: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(vectors))
	}

	entries := make([]core.Entry, len(texts))
	for i, text := range texts {
		entries[i] = core.Entry{
			ID:     core.ID(i),
			Item:   core.Item{Text: text, Original: text},
			Vector: vectors[i],
		}
	}
	return core.NewPool(entries)
}

// Rank ranks every query of the stored queries collection against the stored
// candidates collection.
func (db *Database) Rank(ctx context.Context, candidates, queries string, cfg ranking.Config, opts ...ranking.Option) (*core.ResultTable, error) {
	pool, err := db.entries.LoadPool(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("failed to load queries %q: %w", queries, err)
	}
	return db.rankPool(ctx, candidates, pool, cfg, opts...)
}

// RankTexts embeds texts and ranks them against the stored candidates collection.
func (db *Database) RankTexts(ctx context.Context, candidates string, texts []string, cfg ranking.Config, opts ...ranking.Option) (*core.ResultTable, error) {
	pool, err := db.EmbedQueries(ctx, texts)
	if err != nil {
		return nil, err
	}
	return db.rankPool(ctx, candidates, pool, cfg, opts...)
}

func (db *Database) rankPool(ctx context.Context, candidates string, queries *core.Pool, cfg ranking.Config, opts ...ranking.Option) (*core.ResultTable, error) {
	session, err := db.NewSession(ctx, candidates, cfg, opts...)
	if err != nil {
		return nil, err
	}
	defer session.Release()

	table, err := session.Run(ctx, queries)
	if err != nil {
		return nil, err
	}
	db.logger.Info("ranked queries", "candidates", candidates, "queries", queries.Len(), "results", table.Len())
	return table, nil
}
