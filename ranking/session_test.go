package ranking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/poiesic/candirank/ai"
	"github.com/poiesic/candirank/ai/mock"
	"github.com/poiesic/candirank/core"
	"github.com/poiesic/candirank/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// confidenceByText scores a pair by a fixed function of the candidate row
// encoded in its text, independent of index order.
func confidenceByText(_ context.Context, pairs []ai.Pair, _ int) ([]float64, error) {
	scores := make([]float64, len(pairs))
	for i, p := range pairs {
		var row int
		if _, err := fmt.Sscanf(p.Candidate, "c%d", &row); err != nil {
			return nil, err
		}
		scores[i] = float64((row*37)%100) / 100
	}
	return scores, nil
}

func newTestSession(t *testing.T, pool *core.Pool, cfg Config, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(pool, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Release)
	return s
}

func TestNewSession_Errors(t *testing.T) {
	pool := makePool(1, 20, 4, "c", false)

	t.Run("empty pool", func(t *testing.T) {
		_, err := NewSession(&core.Pool{}, testConfig(MetricFaiss, 2))
		assert.ErrorIs(t, err, core.ErrEmptyIndex)
	})

	t.Run("nil pool", func(t *testing.T) {
		_, err := NewSession(nil, testConfig(MetricFaiss, 2))
		assert.ErrorIs(t, err, ErrIndexRequired)
	})

	t.Run("confidence without scorer", func(t *testing.T) {
		_, err := NewSession(pool, testConfig(MetricConfidence, 0.5))
		assert.ErrorIs(t, err, ErrMetricUnavailable)
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("configuration checked before index", func(t *testing.T) {
		_, err := NewSession(&core.Pool{}, testConfig(MetricCosine, 3))
		assert.ErrorIs(t, err, ErrThresholdOutOfRange)
	})

	t.Run("ragged pool", func(t *testing.T) {
		bad := &core.Pool{Entries: []core.Entry{
			{Vector: core.Vector{1, 2}},
			{Vector: core.Vector{1, 2, 3}},
		}}
		_, err := NewSession(bad, testConfig(MetricFaiss, 2))
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	})

	t.Run("index size mismatch", func(t *testing.T) {
		idx, err := index.NewFlat(pool.Vectors()[:5])
		require.NoError(t, err)
		_, err = NewSession(pool, testConfig(MetricFaiss, 2), WithIndex(idx))
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("negative scorer batch", func(t *testing.T) {
		_, err := NewSession(pool, testConfig(MetricFaiss, 2), WithScorerBatchSize(-1))
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestRun_FaissExample(t *testing.T) {
	pool := makePool(11, 100, 4, "c", false)
	queries := makePool(12, 1, 4, "q", false)

	s := newTestSession(t, pool, testConfig(MetricFaiss, 2.0))
	table, err := s.Run(context.Background(), queries)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	r := table.Results[0]
	assert.Equal(t, queries.Entries[0].ID, r.QueryID)
	assert.Equal(t, queries.Entries[0].Item.Original, r.Query)
	assert.LessOrEqual(t, len(r.Matches), 5)
	assert.NotEmpty(t, r.Matches)
	for i, m := range r.Matches {
		assert.LessOrEqual(t, m.FaissDistance, 2.0*1.01)
		assert.Nil(t, m.Confidence)
		if i > 0 {
			assert.LessOrEqual(t, r.Matches[i-1].FaissDistance, m.FaissDistance)
		}
	}
	assert.Positive(t, r.NumSearched)
	assert.Zero(t, r.NumSearched%4)
}

func TestRun_MatchesAreNearestNeighbors(t *testing.T) {
	pool := makePool(3, 60, 4, "c", false)
	queries := makePool(4, 3, 4, "q", false)

	cfg := testConfig(MetricFaiss, 100)
	cfg.NumCandidates = 6
	s := newTestSession(t, pool, cfg)
	table, err := s.Run(context.Background(), queries)
	require.NoError(t, err)

	idx, err := index.NewFlatFromPool(pool)
	require.NoError(t, err)
	for i, r := range table.Results {
		want, err := idx.Search(queries.Entries[i].Vector, 6)
		require.NoError(t, err)
		require.Len(t, r.Matches, 6)
		for j, n := range want {
			assert.Equal(t, pool.Entries[n.Row].ID, r.Matches[j].CandidateID)
			assert.Equal(t, pool.Entries[n.Row].Item.Original, r.Matches[j].Candidate)
			assert.Equal(t, core.Round4(float64(n.Distance)), r.Matches[j].FaissDistance)
		}
		// The target is met after two windows of four.
		assert.Equal(t, 8, r.NumSearched)
	}
}

func TestRun_ThresholdAndCountBound(t *testing.T) {
	pool := makePool(21, 150, 6, "c", true)
	queries := makePool(22, 12, 6, "q", true)
	scorer := mock.NewMockScorer()
	scorer.ScoreFunc = confidenceByText

	cases := []struct {
		metric     Metric
		thresholds []float64
	}{
		{MetricFaiss, []float64{0.2, 0.8, 1.5, 4}},
		{MetricCosine, []float64{0.3, 0.6, 0.9}},
		{MetricConfidence, []float64{0.2, 0.5, 0.95}},
	}

	for _, tc := range cases {
		for _, thr := range tc.thresholds {
			for _, searchSize := range []int{1, 3, 7, 200} {
				for _, num := range []int{1, 4, 10} {
					name := fmt.Sprintf("%s/thr=%v/search=%d/num=%d", tc.metric, thr, searchSize, num)
					t.Run(name, func(t *testing.T) {
						cfg := testConfig(tc.metric, thr)
						cfg.SearchSize = searchSize
						cfg.NumCandidates = num
						s := newTestSession(t, pool, cfg, WithScorer(scorer))

						table, err := s.Run(context.Background(), queries)
						require.NoError(t, err)
						require.Equal(t, queries.Len(), table.Len())

						for _, r := range table.Results {
							assert.LessOrEqual(t, len(r.Matches), num)
							assert.LessOrEqual(t, r.NumSearched, pool.Len())
							for i, m := range r.Matches {
								require.NotNil(t, m.Confidence)
								switch tc.metric {
								case MetricFaiss:
									assert.LessOrEqual(t, m.FaissDistance, core.Round4(thr))
									if i > 0 {
										assert.LessOrEqual(t, r.Matches[i-1].FaissDistance, m.FaissDistance)
									}
								case MetricCosine:
									assert.GreaterOrEqual(t, m.CosineSimilarity, core.Round4(thr))
									if i > 0 {
										assert.GreaterOrEqual(t, r.Matches[i-1].CosineSimilarity, m.CosineSimilarity)
									}
								case MetricConfidence:
									assert.GreaterOrEqual(t, *m.Confidence, thr)
									if i > 0 {
										assert.GreaterOrEqual(t, *r.Matches[i-1].Confidence, *m.Confidence)
									}
								}
							}
						}
					})
				}
			}
		}
	}
}

func TestRun_EarlyStopEquivalence(t *testing.T) {
	pool := makePool(31, 200, 8, "c", true)
	queries := makePool(32, 10, 8, "q", true)

	cases := []struct {
		metric     Metric
		thresholds []float64
	}{
		{MetricFaiss, []float64{0.3, 0.9, 1.4, 2.5}},
		{MetricCosine, []float64{0.3, 0.55, 0.85}},
	}

	for _, tc := range cases {
		for _, thr := range tc.thresholds {
			for _, searchSize := range []int{1, 5, 16, 64} {
				t.Run(fmt.Sprintf("%s/%v/%d", tc.metric, thr, searchSize), func(t *testing.T) {
					cfg := testConfig(tc.metric, thr)
					cfg.SearchSize = searchSize
					cfg.NumCandidates = 8

					withStop, err := newTestSession(t, pool, cfg).Run(context.Background(), queries)
					require.NoError(t, err)

					cfg.EarlyStop = false
					fullScan, err := newTestSession(t, pool, cfg).Run(context.Background(), queries)
					require.NoError(t, err)

					for i := range withStop.Results {
						assert.Equal(t, fullScan.Results[i].Matches, withStop.Results[i].Matches)
						assert.LessOrEqual(t, withStop.Results[i].NumSearched, fullScan.Results[i].NumSearched)
					}
				})
			}
		}
	}
}

func TestRun_Monotonicity(t *testing.T) {
	pool := makePool(41, 80, 5, "c", true)
	queries := makePool(42, 4, 5, "q", true)

	cfg := testConfig(MetricFaiss, 0)
	cfg.EarlyStop = false
	cfg.SearchSize = 6
	monitor := newRecordingMonitor()
	s := newTestSession(t, pool, cfg, WithMonitor(monitor))

	_, err := s.Run(context.Background(), queries)
	require.NoError(t, err)

	idx, err := index.NewFlatFromPool(pool)
	require.NoError(t, err)

	for _, q := range queries.Entries {
		var windows []windowEvent
		for _, w := range monitor.windows {
			if w.query == q.ID {
				windows = append(windows, w)
			}
		}
		require.NotEmpty(t, windows)

		prevMaxDist := float32(-1)
		prevMinCos := float32(2)
		for i, w := range windows {
			if i > 0 {
				assert.Equal(t, windows[i-1].end, w.start, "windows are contiguous")
			}
			hits, err := idx.Search(q.Vector, w.end)
			require.NoError(t, err)

			var maxDist float32
			minCos := float32(2)
			for _, h := range hits {
				maxDist = max(maxDist, h.Distance)
				cos := float32(0)
				for d := range q.Vector {
					cos += q.Vector[d] * pool.Entries[h.Row].Vector[d]
				}
				minCos = min(minCos, cos)
			}
			assert.GreaterOrEqual(t, maxDist, prevMaxDist)
			assert.LessOrEqual(t, minCos, prevMinCos)
			prevMaxDist, prevMinCos = maxDist, minCos
		}
	}
}

func TestRun_OrderInvariant(t *testing.T) {
	pool := makePool(51, 300, 8, "c", false)
	queries := makePool(52, 40, 8, "q", false)
	cfg := testConfig(MetricFaiss, 1.2)

	sequential, err := newTestSession(t, pool, cfg).Run(context.Background(), queries)
	require.NoError(t, err)

	for _, workers := range []int{2, 4, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			parallel, err := newTestSession(t, pool, cfg, WithWorkers(workers)).Run(context.Background(), queries)
			require.NoError(t, err)
			require.Equal(t, queries.Len(), parallel.Len())
			for i := range parallel.Results {
				assert.Equal(t, queries.Entries[i].ID, parallel.Results[i].QueryID)
			}
			assert.Equal(t, sequential, parallel)
		})
	}
}

func TestRun_Idempotent(t *testing.T) {
	pool := makePool(61, 120, 6, "c", true)
	queries := makePool(62, 15, 6, "q", true)
	scorer := mock.NewMockScorer()
	scorer.ScoreFunc = confidenceByText

	for _, metric := range []Metric{MetricFaiss, MetricCosine, MetricConfidence} {
		t.Run(metric.String(), func(t *testing.T) {
			cfg := testConfig(metric, 0.6)
			cfg.Workers = 3
			s := newTestSession(t, pool, cfg, WithScorer(scorer))

			first, err := s.Run(context.Background(), queries)
			require.NoError(t, err)
			second, err := s.Run(context.Background(), queries)
			require.NoError(t, err)
			assert.Equal(t, first.Fingerprint(), second.Fingerprint())
			assert.Equal(t, first, second)
		})
	}
}

func TestRun_ZeroMatches(t *testing.T) {
	pool := makePool(71, 30, 4, "c", false)
	far := &core.Pool{Entries: []core.Entry{{
		ID:     7,
		Item:   core.Item{Text: "far", Original: "Far Away"},
		Vector: core.Vector{100, 100, 100, 100},
	}}}

	t.Run("full scan", func(t *testing.T) {
		cfg := testConfig(MetricFaiss, 0.5)
		cfg.EarlyStop = false
		table, err := newTestSession(t, pool, cfg).Run(context.Background(), far)
		require.NoError(t, err)

		r := table.Results[0]
		assert.Empty(t, r.Matches)
		assert.Equal(t, core.ID(7), r.QueryID)
		assert.Equal(t, "Far Away", r.Query)
		assert.Equal(t, pool.Len(), r.NumSearched)
	})

	t.Run("early stop", func(t *testing.T) {
		monitor := newRecordingMonitor()
		table, err := newTestSession(t, pool, testConfig(MetricFaiss, 0.5), WithMonitor(monitor)).
			Run(context.Background(), far)
		require.NoError(t, err)

		r := table.Results[0]
		assert.Empty(t, r.Matches)
		assert.Equal(t, 4, r.NumSearched)
		assert.Equal(t, 4, monitor.earlyStops[7])
	})

	t.Run("confidence scans whole pool", func(t *testing.T) {
		scorer := mock.NewMockScorer()
		scorer.ScoreFunc = func(_ context.Context, pairs []ai.Pair, _ int) ([]float64, error) {
			return make([]float64, len(pairs)), nil
		}
		table, err := newTestSession(t, pool, testConfig(MetricConfidence, 0.5), WithScorer(scorer)).
			Run(context.Background(), far)
		require.NoError(t, err)
		assert.Empty(t, table.Results[0].Matches)
		assert.Equal(t, pool.Len(), table.Results[0].NumSearched)
	})
}

func TestRun_RepeatedOriginalsFillTarget(t *testing.T) {
	base := makePool(131, 12, 4, "c", false)
	pool := &core.Pool{}
	for i, e := range base.Entries {
		for k := range 3 {
			pool.Entries = append(pool.Entries, core.Entry{
				ID:     core.ID(i*10 + k + 1),
				Item:   core.Item{Text: fmt.Sprintf("%s-%d", e.Item.Text, k), Original: e.Item.Original},
				Vector: slices.Clone(e.Vector),
			})
		}
	}
	queries := makePool(132, 4, 4, "q", false)

	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			table, err := newTestSession(t, pool, testConfig(MetricFaiss, 1e6), WithWorkers(workers)).
				Run(context.Background(), queries)
			require.NoError(t, err)

			for _, r := range table.Results {
				require.Len(t, r.Matches, 5)
				originals := make(map[string]struct{})
				for _, m := range r.Matches {
					originals[m.Candidate] = struct{}{}
				}
				assert.Len(t, originals, 5)
				assert.GreaterOrEqual(t, r.NumSearched, 15)
			}
		})
	}
}

func TestRun_PoolSmallerThanTarget(t *testing.T) {
	pool := makePool(81, 7, 3, "c", false)
	queries := makePool(82, 2, 3, "q", false)

	cfg := testConfig(MetricFaiss, 10)
	cfg.NumCandidates = 20
	cfg.SearchSize = 3
	table, err := newTestSession(t, pool, cfg).Run(context.Background(), queries)
	require.NoError(t, err)
	for _, r := range table.Results {
		assert.Len(t, r.Matches, 7)
		assert.Equal(t, 7, r.NumSearched)
	}
}

func TestRun_ConfidenceScoring(t *testing.T) {
	pool := makePool(91, 40, 4, "c", false)
	queries := makePool(92, 3, 4, "q", false)

	var batches []int
	scorer := mock.NewMockScorer()
	scorer.ScoreFunc = func(ctx context.Context, pairs []ai.Pair, batchSize int) ([]float64, error) {
		batches = append(batches, batchSize)
		for _, p := range pairs {
			if !slices.Contains([]string{"q0", "q1", "q2"}, p.Query) {
				return nil, fmt.Errorf("unexpected query text %q", p.Query)
			}
		}
		return confidenceByText(ctx, pairs, batchSize)
	}

	cfg := testConfig(MetricConfidence, 0.7)
	cfg.SearchSize = 5
	table, err := newTestSession(t, pool, cfg, WithScorer(scorer)).Run(context.Background(), queries)
	require.NoError(t, err)

	for _, b := range batches {
		assert.Equal(t, 5, b, "batch size follows the window")
	}
	for _, r := range table.Results {
		for _, m := range r.Matches {
			require.NotNil(t, m.Confidence)
			assert.GreaterOrEqual(t, *m.Confidence, 0.7)
		}
	}

	t.Run("fixed batch size", func(t *testing.T) {
		batches = nil
		_, err := newTestSession(t, pool, cfg, WithScorer(scorer), WithScorerBatchSize(2)).
			Run(context.Background(), queries)
		require.NoError(t, err)
		for _, b := range batches {
			assert.Equal(t, 2, b)
		}
	})

	t.Run("faiss metric still reports confidence", func(t *testing.T) {
		table, err := newTestSession(t, pool, testConfig(MetricFaiss, 1), WithScorer(scorer)).
			Run(context.Background(), queries)
		require.NoError(t, err)
		for _, r := range table.Results {
			for _, m := range r.Matches {
				assert.NotNil(t, m.Confidence)
			}
		}
	})
}

func TestRun_ScorerFailures(t *testing.T) {
	pool := makePool(101, 20, 4, "c", false)
	queries := makePool(102, 5, 4, "q", false)

	t.Run("wrong count", func(t *testing.T) {
		scorer := mock.NewMockScorer()
		scorer.ScoreFunc = func(context.Context, []ai.Pair, int) ([]float64, error) {
			return []float64{0.5}, nil
		}
		_, err := newTestSession(t, pool, testConfig(MetricConfidence, 0.5), WithScorer(scorer)).
			Run(context.Background(), queries)
		assert.ErrorIs(t, err, ErrScoreCountMismatch)
	})

	t.Run("scorer error aborts parallel run", func(t *testing.T) {
		boom := errors.New("model offline")
		scorer := mock.NewMockScorer()
		scorer.ScoreFunc = func(context.Context, []ai.Pair, int) ([]float64, error) {
			return nil, boom
		}
		table, err := newTestSession(t, pool, testConfig(MetricConfidence, 0.5), WithScorer(scorer), WithWorkers(4)).
			Run(context.Background(), queries)
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, table)
	})

	t.Run("scores are clamped", func(t *testing.T) {
		scorer := mock.NewMockScorer()
		scorer.ScoreFunc = func(_ context.Context, pairs []ai.Pair, _ int) ([]float64, error) {
			out := make([]float64, len(pairs))
			for i := range out {
				out[i] = 3
			}
			return out, nil
		}
		table, err := newTestSession(t, pool, testConfig(MetricConfidence, 1), WithScorer(scorer)).
			Run(context.Background(), queries)
		require.NoError(t, err)
		for _, r := range table.Results {
			require.NotEmpty(t, r.Matches)
			assert.Equal(t, 1.0, *r.Matches[0].Confidence)
		}
	})
}

func TestRun_StructuralChecks(t *testing.T) {
	pool := makePool(111, 20, 4, "c", false)

	t.Run("dimension mismatch before any query", func(t *testing.T) {
		monitor := newRecordingMonitor()
		s := newTestSession(t, pool, testConfig(MetricFaiss, 1), WithMonitor(monitor))
		_, err := s.Run(context.Background(), makePool(112, 3, 5, "q", false))
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
		assert.Empty(t, monitor.started)
	})

	t.Run("no queries", func(t *testing.T) {
		s := newTestSession(t, pool, testConfig(MetricFaiss, 1))
		table, err := s.Run(context.Background(), &core.Pool{})
		assert.NoError(t, err)
		assert.Nil(t, table)

		table, err = s.Run(context.Background(), nil)
		assert.NoError(t, err)
		assert.Nil(t, table)
	})

	t.Run("max queries", func(t *testing.T) {
		cfg := testConfig(MetricFaiss, 1)
		cfg.MaxQueries = 3
		queries := makePool(113, 10, 4, "q", false)
		table, err := newTestSession(t, pool, cfg).Run(context.Background(), queries)
		require.NoError(t, err)
		require.Equal(t, 3, table.Len())
		assert.Equal(t, queries.Entries[2].ID, table.Results[2].QueryID)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		for _, workers := range []int{1, 4} {
			_, err := newTestSession(t, pool, testConfig(MetricFaiss, 1), WithWorkers(workers)).
				Run(ctx, makePool(114, 5, 4, "q", false))
			assert.ErrorIs(t, err, context.Canceled)
		}
	})
}

func TestRun_MonitorHooks(t *testing.T) {
	pool := makePool(121, 50, 4, "c", false)
	queries := makePool(122, 6, 4, "q", false)
	monitor := newRecordingMonitor()

	_, err := newTestSession(t, pool, testConfig(MetricFaiss, 1), WithMonitor(monitor), WithWorkers(3)).
		Run(context.Background(), queries)
	require.NoError(t, err)

	assert.Len(t, monitor.started, 6)
	assert.Len(t, monitor.finished, 6)
	assert.ElementsMatch(t, monitor.started, monitor.finished)
	assert.NotEmpty(t, monitor.windows)
}

func TestRun_MonitorFailHook(t *testing.T) {
	pool := makePool(123, 20, 4, "c", false)
	boom := errors.New("model offline")
	scorer := mock.NewMockScorer()
	scorer.ScoreFunc = func(context.Context, []ai.Pair, int) ([]float64, error) {
		return nil, boom
	}

	t.Run("sequential", func(t *testing.T) {
		monitor := newRecordingMonitor()
		_, err := newTestSession(t, pool, testConfig(MetricConfidence, 0.5),
			WithScorer(scorer), WithMonitor(monitor)).
			Run(context.Background(), makePool(124, 3, 4, "q", false))
		require.ErrorIs(t, err, boom)
		require.Len(t, monitor.started, 1)
		assert.Empty(t, monitor.finished)
		assert.ErrorIs(t, monitor.failed[monitor.started[0]], boom)
	})

	t.Run("every started query ends", func(t *testing.T) {
		monitor := newRecordingMonitor()
		_, err := newTestSession(t, pool, testConfig(MetricConfidence, 0.5),
			WithScorer(scorer), WithMonitor(monitor), WithWorkers(4)).
			Run(context.Background(), makePool(125, 8, 4, "q", false))
		require.Error(t, err)
		assert.Equal(t, len(monitor.started), len(monitor.finished)+len(monitor.failed))
		assert.NotEmpty(t, monitor.failed)
	})

	t.Run("rank one", func(t *testing.T) {
		monitor := newRecordingMonitor()
		query := makePool(126, 1, 4, "q", false).Entries[0]
		_, err := newTestSession(t, pool, testConfig(MetricConfidence, 0.5),
			WithScorer(scorer), WithMonitor(monitor)).
			RankOne(context.Background(), query)
		require.ErrorIs(t, err, boom)
		assert.ErrorIs(t, monitor.failed[query.ID], boom)
	})
}

func TestRankOne(t *testing.T) {
	pool := makePool(131, 40, 4, "c", false)
	queries := makePool(132, 1, 4, "q", false)
	s := newTestSession(t, pool, testConfig(MetricFaiss, 1))

	table, err := s.Run(context.Background(), queries)
	require.NoError(t, err)

	one, err := s.RankOne(context.Background(), queries.Entries[0])
	require.NoError(t, err)
	assert.Equal(t, table.Results[0], *one)

	_, err = s.RankOne(context.Background(), core.Entry{Vector: core.Vector{1}})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, err = s.RankOne(context.Background(), core.Entry{})
	assert.ErrorIs(t, err, core.ErrInvalidEntry)
}

func TestSessionAccessors(t *testing.T) {
	pool := makePool(141, 10, 6, "c", false)
	cfg := testConfig(MetricCosine, 0.5)
	s := newTestSession(t, pool, cfg)
	assert.Equal(t, 6, s.Dim())
	assert.Equal(t, cfg, s.Config())
}
