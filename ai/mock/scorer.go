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


package mock

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/poiesic/candirank/ai"
)

// MockScorer is a test double for ai.ConfidenceScorer.
type MockScorer struct {
	// ScoreFunc is called by Score if set.
	ScoreFunc func(ctx context.Context, pairs []ai.Pair, batchSize int) ([]float64, error)

	callCount atomic.Int64
	pairCount atomic.Int64
}

// NewMockScorer creates a mock scorer with deterministic default behavior.
func NewMockScorer() *MockScorer {
	return &MockScorer{}
}

// Score returns ScoreFunc's result if set. Otherwise each pair gets
// PrefixConfidence of its two texts.
func (m *MockScorer) Score(ctx context.Context, pairs []ai.Pair, batchSize int) ([]float64, error) {
	m.callCount.Add(1)
	m.pairCount.Add(int64(len(pairs)))

	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, pairs, batchSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores := make([]float64, len(pairs))
	for i, p := range pairs {
		scores[i] = PrefixConfidence(p.Query, p.Candidate)
	}
	return scores, nil
}

// CallCount returns the number of Score calls.
func (m *MockScorer) CallCount() int {
	return int(m.callCount.Load())
}

// PairCount returns the total number of pairs scored.
func (m *MockScorer) PairCount() int {
	return int(m.pairCount.Load())
}

// Reset clears counters and injected behavior.
func (m *MockScorer) Reset() {
	m.callCount.Store(0)
	m.pairCount.Store(0)
	m.ScoreFunc = nil
}

// PrefixConfidence is the case-insensitive shared prefix length of a and b
// divided by the longer length. Identical texts score 1.
func PrefixConfidence(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	n := 0
	for n < len(ra) && n < len(rb) && ra[n] == rb[n] {
		n++
	}
	return float64(n) / float64(longest)
}
