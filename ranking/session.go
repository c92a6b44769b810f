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


package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/candirank/ai"
	"github.com/poiesic/candirank/core"
	"github.com/poiesic/candirank/index"
)

// VectorIndex is the nearest-neighbor index a Session searches.
// Search must return min(k, Len()) neighbors ordered by ascending squared
// distance, and must give identical orderings for growing k.
type VectorIndex interface {
	Dim() int
	Len() int
	Search(query core.Vector, k int) ([]index.Neighbor, error)
}

// Session ranks queries against one candidate pool.
type Session struct {
	pool       *core.Pool
	index      VectorIndex
	cfg        Config
	strat      *strategy
	scorer     ai.ConfidenceScorer
	batchSize  int
	monitor    Monitor
	logger     *slog.Logger
	workers    int
	workerPool *ants.Pool
}

// Option configures a Session.
type Option func(*Session) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMonitor installs a Monitor. A nil monitor disables monitoring.
func WithMonitor(monitor Monitor) Option {
	return func(s *Session) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		s.monitor = monitor
		return nil
	}
}

// WithScorer sets the confidence scorer. Without one, confidences stay nil
// and the confidence metric is unavailable.
func WithScorer(scorer ai.ConfidenceScorer) Option {
	return func(s *Session) error {
		s.scorer = scorer
		return nil
	}
}

// WithScorerBatchSize sets the batch size passed to the scorer.
// Default is the size of the band being scored.
func WithScorerBatchSize(n int) Option {
	return func(s *Session) error {
		if n < 0 {
			return fmt.Errorf("%w: scorer batch size must not be negative", ErrConfiguration)
		}
		s.batchSize = n
		return nil
	}
}

// WithWorkers sets how many queries are searched concurrently, overriding
// Config.Workers. Values below 1 are treated as 1.
func WithWorkers(n int) Option {
	return func(s *Session) error {
		s.workers = max(n, 1)
		return nil
	}
}

// WithIndex replaces the default exact index built from the pool.
func WithIndex(idx VectorIndex) Option {
	return func(s *Session) error {
		if idx == nil {
			return ErrIndexRequired
		}
		s.index = idx
		return nil
	}
}

// NewSession validates cfg, builds the candidate index and returns a session
// ready to rank queries. Configuration errors are reported before the index
// is built. Call Release when done.
func NewSession(pool *core.Pool, cfg Config, opts ...Option) (*Session, error) {
	if pool == nil {
		return nil, ErrIndexRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strat, _ := cfg.Metric.strategy()

	s := &Session{
		pool:    pool,
		cfg:     cfg,
		strat:   strat,
		monitor: &noopMonitor{},
		logger:  slog.Default(),
		workers: max(cfg.Workers, 1),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if strat.needsScorer && s.scorer == nil {
		return nil, fmt.Errorf("%w: metric %s requires a confidence scorer", ErrMetricUnavailable, strat.name)
	}

	if s.index == nil {
		if err := core.ValidatePool(pool); err != nil {
			return nil, err
		}
		idx, err := index.NewFlatFromPool(pool)
		if err != nil {
			return nil, err
		}
		s.index = idx
	}
	if s.index.Len() != pool.Len() {
		return nil, fmt.Errorf("%w: index holds %d entries, pool %d", ErrConfiguration, s.index.Len(), pool.Len())
	}
	if s.index.Len() == 0 {
		return nil, core.ErrEmptyIndex
	}

	if s.workers > 1 {
		wp, err := ants.NewPool(s.workers)
		if err != nil {
			return nil, err
		}
		s.workerPool = wp
	}

	s.logger = s.logger.With("component", "ranking", "metric", strat.name)
	return s, nil
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Dim returns the dimensionality of the candidate vectors.
func (s *Session) Dim() int {
	return s.index.Dim()
}

// Release frees the worker pool. The session must not be used afterwards.
func (s *Session) Release() {
	if s.workerPool != nil {
		s.workerPool.Release()
	}
}

func (s *Session) controller() *controller {
	return &controller{
		index:     s.index,
		pool:      s.pool,
		cfg:       s.cfg,
		strat:     s.strat,
		scorer:    s.scorer,
		batchSize: s.batchSize,
		monitor:   s.monitor,
		logger:    s.logger,
	}
}

// Run ranks every query, up to Config.MaxQueries, and returns one result per
// query in input order. It returns a nil table and nil error when there are
// no queries. Structural errors are checked before any query is searched; a
// query that fails aborts the run and no partial table is returned.
func (s *Session) Run(ctx context.Context, queries *core.Pool) (*core.ResultTable, error) {
	queries = queries.Head(s.cfg.MaxQueries)
	if queries.Len() == 0 {
		return nil, nil
	}
	if err := core.ValidatePool(queries); err != nil {
		return nil, err
	}
	if err := core.CheckDim(queries.Dim(), s.index.Dim()); err != nil {
		return nil, fmt.Errorf("queries do not match candidates: %w", err)
	}

	s.logger.Info("ranking queries", "queries", queries.Len(), "candidates", s.index.Len(), "workers", s.workers)

	results := make([]core.QueryResult, queries.Len())
	ctrl := s.controller()

	var err error
	if s.workerPool == nil {
		err = s.runSequential(ctx, ctrl, queries, results)
	} else {
		err = s.runParallel(ctx, ctrl, queries, results)
	}
	if err != nil {
		return nil, err
	}
	return &core.ResultTable{Results: results}, nil
}

// RankOne ranks a single query.
func (s *Session) RankOne(ctx context.Context, query core.Entry) (*core.QueryResult, error) {
	if err := core.ValidateEntry(&query); err != nil {
		return nil, err
	}
	if err := core.CheckDim(len(query.Vector), s.index.Dim()); err != nil {
		return nil, err
	}
	result, err := s.rank(ctx, s.controller(), &query)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Session) rank(ctx context.Context, ctrl *controller, query *core.Entry) (core.QueryResult, error) {
	s.monitor.Start(query)
	rows, searched, err := ctrl.search(ctx, query)
	if err != nil {
		s.monitor.Fail(query, err)
		return core.QueryResult{}, err
	}
	result := aggregate(query, rows, searched, s.strat, s.cfg.NumCandidates)
	s.monitor.Finish(query, &result)
	return result, nil
}

func (s *Session) runSequential(ctx context.Context, ctrl *controller, queries *core.Pool, results []core.QueryResult) error {
	for i := range queries.Entries {
		r, err := s.rank(ctx, ctrl, &queries.Entries[i])
		if err != nil {
			return err
		}
		results[i] = r
	}
	return nil
}

// runParallel fans queries out over the worker pool. Each worker writes into
// its own slot of results, so no locking is needed for the table itself.
func (s *Session) runParallel(ctx context.Context, ctrl *controller, queries *core.Pool, results []core.QueryResult) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := range queries.Entries {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := s.workerPool.Submit(func() {
			defer wg.Done()
			r, err := s.rank(ctx, ctrl, &queries.Entries[i])
			if err != nil {
				fail(err)
				return
			}
			results[i] = r
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
