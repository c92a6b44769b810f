package candirank

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/candirank/ai"
	"github.com/poiesic/candirank/ai/mock"
	"github.com/poiesic/candirank/core"
	"github.com/poiesic/candirank/ingest"
	"github.com/poiesic/candirank/ranking"
	"github.com/poiesic/candirank/storage"
)

const candidateTSV = "london\tLondon\nlondon uk\tLondon, UK\nparis\tParis\nberlin\tBerlin\nlondres\tLondres\nrome\tRome\n"

func openTestDatabase(t *testing.T, provider ai.Provider) *Database {
	t.Helper()
	db, err := NewDatabase("", WithInMemory(), WithProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func ingestCandidates(t *testing.T, db *Database) {
	t.Helper()
	in, err := db.NewIngester(ingest.WithBatchSize(2))
	require.NoError(t, err)
	_, err = in.IngestReader(context.Background(), "places", strings.NewReader(candidateTSV))
	require.NoError(t, err)
}

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "test_db")
		db, err := NewDatabase(dir, WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		defer db.Close()

		assert.NotNil(t, db.EntryRepository())
		assert.NotNil(t, db.ResultRepository())
		assert.NotNil(t, db.Provider())
	})

	t.Run("default provider", func(t *testing.T) {
		db, err := NewDatabase("", WithInMemory())
		require.NoError(t, err)
		defer db.Close()
		assert.Nil(t, db.Provider().Scorer())
	})

	t.Run("invalid ai config", func(t *testing.T) {
		cfg := ai.NewConfig(ai.WithEmbeddingModel(""))
		db, err := NewDatabase("", WithInMemory(), WithAIConfig(cfg))
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))

		db, err := NewDatabase(tmpFile, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}

func TestDatabase_Close(t *testing.T) {
	provider := mock.NewMockProvider()
	db, err := NewDatabase("", WithInMemory(), WithProvider(provider))
	require.NoError(t, err)

	require.NoError(t, db.Close())
	assert.True(t, provider.(*mock.MockProvider).Closed())
}

func TestDatabase_IngestAndRankTexts(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t, mock.NewMockProvider())
	ingestCandidates(t, db)

	info, err := db.EntryRepository().Collection(ctx, "places")
	require.NoError(t, err)
	assert.Equal(t, 6, info.Size)

	cfg := ranking.DefaultConfig()
	cfg.NumCandidates = 1
	cfg.Threshold = 0.01
	cfg.Workers = 1

	table, err := db.RankTexts(ctx, "places", []string{"paris", "rome"}, cfg)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	// The mock embedder is deterministic, so identical texts are at distance 0.
	assert.Equal(t, "paris", table.Results[0].Query)
	assert.Equal(t, []string{"Paris"}, table.Results[0].Candidates())
	assert.Equal(t, core.ID(2), table.Results[0].Matches[0].CandidateID)
	assert.Equal(t, []string{"Rome"}, table.Results[1].Candidates())
}

func TestDatabase_RankStoredQueries(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t, mock.NewMockProvider())
	ingestCandidates(t, db)

	in, err := db.NewIngester()
	require.NoError(t, err)
	_, err = in.IngestReader(ctx, "queries", strings.NewReader("berlin\tBERLIN\t77\n"))
	require.NoError(t, err)

	cfg := ranking.DefaultConfig()
	cfg.Threshold = 0.01
	table, err := db.Rank(ctx, "places", "queries", cfg)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, core.ID(77), table.Results[0].QueryID)
	assert.Equal(t, "BERLIN", table.Results[0].Query)
	assert.Equal(t, []string{"Berlin"}, table.Results[0].Candidates())

	require.NoError(t, db.ResultRepository().SaveResults(ctx, "run1", table))
	loaded, err := db.ResultRepository().LoadResults(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, table.Fingerprint(), loaded.Fingerprint())
}

func TestDatabase_ConfidenceScoring(t *testing.T) {
	ctx := context.Background()
	scorer := &mock.MockScorer{}
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), scorer)
	db := openTestDatabase(t, provider)
	ingestCandidates(t, db)

	cfg := ranking.DefaultConfig()
	cfg.Metric = ranking.MetricConfidence
	cfg.Threshold = 0.5
	cfg.NumCandidates = 3
	cfg.SearchSize = 2

	table, err := db.RankTexts(ctx, "places", []string{"london"}, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Positive(t, scorer.CallCount())

	for _, m := range table.Results[0].Matches {
		require.NotNil(t, m.Confidence)
		assert.GreaterOrEqual(t, *m.Confidence, 0.5)
	}
	assert.Contains(t, table.Results[0].Candidates(), "London")
}

func TestDatabase_ConfidenceWithoutScorer(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t, mock.NewMockProviderWithServices(mock.NewMockEmbedder(), nil))
	ingestCandidates(t, db)

	cfg := ranking.DefaultConfig()
	cfg.Metric = ranking.MetricConfidence
	cfg.Threshold = 0.5
	_, err := db.RankTexts(ctx, "places", []string{"london"}, cfg)
	assert.ErrorIs(t, err, ranking.ErrMetricUnavailable)
}

func TestDatabase_Errors(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t, mock.NewMockProvider())

	_, err := db.RankTexts(ctx, "missing", []string{"x"}, ranking.DefaultConfig())
	assert.ErrorIs(t, err, storage.ErrEmptyCollection)

	ingestCandidates(t, db)
	_, err = db.Rank(ctx, "places", "missing", ranking.DefaultConfig())
	assert.ErrorIs(t, err, storage.ErrEmptyCollection)

	_, err = db.RankTexts(ctx, "places", nil, ranking.DefaultConfig())
	assert.ErrorIs(t, err, ErrNoQueries)

	embedder := mock.NewMockEmbedder()
	boom := errors.New("embedding service down")
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, boom
	}
	failing := openTestDatabase(t, mock.NewMockProviderWithServices(embedder, nil))
	_, err = failing.EmbedQueries(ctx, []string{"x"})
	assert.ErrorIs(t, err, boom)
}
