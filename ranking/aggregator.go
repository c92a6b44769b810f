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
	"slices"

	"github.com/poiesic/candirank/core"
)

// aggregate builds the QueryResult of one query from its passing rows.
//
// Rows are sorted best-first with a stable sort, so rows with equal metric
// values keep their index order. When several rows share a candidate's
// original text only the best ranked one is kept. Scores are rounded to four
// decimals; confidence stays nil when no scorer was used.
func aggregate(query *core.Entry, rows []core.CandidateRow, numSearched int, strat *strategy, numCandidates int) core.QueryResult {
	result := core.QueryResult{
		QueryID:     query.ID,
		Query:       query.Item.Original,
		NumSearched: numSearched,
	}
	if len(rows) == 0 {
		return result
	}

	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, strat.compare)

	seen := make(map[string]struct{}, min(len(sorted), numCandidates))
	result.Matches = make([]core.Match, 0, min(len(sorted), numCandidates))
	for i := range sorted {
		if len(result.Matches) == numCandidates {
			break
		}
		r := &sorted[i]
		if _, dup := seen[r.CandidateOrig]; dup {
			continue
		}
		seen[r.CandidateOrig] = struct{}{}
		result.Matches = append(result.Matches, toMatch(r))
	}
	return result
}

func toMatch(r *core.CandidateRow) core.Match {
	m := core.Match{
		Candidate:        r.CandidateOrig,
		FaissDistance:    core.Round4(float64(r.FaissDistance)),
		CosineSimilarity: core.Round4(float64(r.CosineSimilarity)),
		CandidateID:      r.CandidateID,
	}
	if r.Confidence != nil {
		c := core.Round4(*r.Confidence)
		m.Confidence = &c
	}
	return m
}
