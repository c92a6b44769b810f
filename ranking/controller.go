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
	"math"

	"github.com/poiesic/candirank/ai"
	"github.com/poiesic/candirank/core"
	"github.com/poiesic/candirank/index"
	"github.com/poiesic/candirank/similarity"
)

// controller runs the widening-window search for single queries.
// It holds no per-query state and is shared by all workers.
type controller struct {
	index     VectorIndex
	pool      *core.Pool
	cfg       Config
	strat     *strategy
	scorer    ai.ConfidenceScorer
	batchSize int
	monitor   Monitor
	logger    *slog.Logger
}

// search returns the rows of query that passed the selection filter, in
// index order, and the window end at which the search stopped. The count
// that ends the search is over distinct original texts, matching the
// deduplication done by aggregate.
func (c *controller) search(ctx context.Context, query *core.Entry) ([]core.CandidateRow, int, error) {
	total := c.index.Len()
	start, end := 0, c.cfg.SearchSize
	distinct := make(map[string]struct{})
	var passed []core.CandidateRow

	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		end = min(end, total)
		if start == end {
			break
		}

		neighbors, err := c.index.Search(query.Vector, end)
		if err != nil {
			return nil, 0, err
		}
		if len(neighbors) < end {
			return nil, 0, fmt.Errorf("index returned %d neighbors, want %d", len(neighbors), end)
		}

		band, err := c.buildRows(ctx, query, neighbors[start:end], start)
		if err != nil {
			return nil, 0, err
		}

		kept := 0
		for i := range band {
			if c.strat.passes(&band[i], c.cfg.Threshold) {
				passed = append(passed, band[i])
				distinct[band[i].CandidateOrig] = struct{}{}
				kept++
			}
		}
		found := len(distinct)
		c.monitor.AfterWindow(query, start, end, kept)
		c.logger.Debug("searched window", "query", query.ID, "found", found, "searched", end)

		if c.cfg.EarlyStop && c.strat.beyond != nil && c.strat.beyond(band, c.cfg.Threshold, c.cfg.Tolerance) {
			c.monitor.EarlyStop(query, end)
			break
		}
		if found >= c.cfg.NumCandidates {
			break
		}
		start, end = end, end+c.cfg.SearchSize
	}

	return passed, end, nil
}

// buildRows creates the candidate rows of one band. offset is the index rank
// of the band's first neighbor.
func (c *controller) buildRows(ctx context.Context, query *core.Entry, band []index.Neighbor, offset int) ([]core.CandidateRow, error) {
	vectors := make([]core.Vector, len(band))
	for i, n := range band {
		vectors[i] = c.pool.Entries[n.Row].Vector
	}
	cosines, err := similarity.Cosine(query.Vector, vectors)
	if err != nil {
		return nil, err
	}

	rows := make([]core.CandidateRow, len(band))
	for i, n := range band {
		candidate := &c.pool.Entries[n.Row]
		rows[i] = core.CandidateRow{
			QueryID:          query.ID,
			Rank:             offset + i,
			PoolRow:          n.Row,
			CandidateID:      candidate.ID,
			CandidateText:    candidate.Item.Text,
			CandidateOrig:    candidate.Item.Original,
			FaissDistance:    n.Distance,
			CosineSimilarity: cosines[i],
		}
	}

	if c.scorer != nil {
		if err := c.score(ctx, query, rows); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// score fills in the confidence of every row with one scorer call.
func (c *controller) score(ctx context.Context, query *core.Entry, rows []core.CandidateRow) error {
	pairs := make([]ai.Pair, len(rows))
	for i := range rows {
		pairs[i] = ai.Pair{Query: query.Item.Text, Candidate: rows[i].CandidateText}
	}

	batchSize := c.batchSize
	if batchSize <= 0 {
		batchSize = len(rows)
	}
	scores, err := c.scorer.Score(ctx, pairs, batchSize)
	if err != nil {
		return fmt.Errorf("scoring query %d: %w", query.ID, err)
	}
	if len(scores) != len(rows) {
		return fmt.Errorf("%w: got %d for %d pairs", ErrScoreCountMismatch, len(scores), len(rows))
	}

	for i, s := range scores {
		if math.IsNaN(s) {
			s = 0
		}
		s = min(max(s, 0), 1)
		rows[i].Confidence = &s
	}
	return nil
}
