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
	"cmp"
	"fmt"
	"math"
	"strings"

	"github.com/poiesic/candirank/core"
)

// Metric selects how candidates are filtered, ordered and when the search stops.
type Metric int

const (
	// MetricFaiss ranks by squared L2 distance reported by the index.
	MetricFaiss Metric = iota
	// MetricCosine ranks by cosine similarity.
	MetricCosine
	// MetricConfidence ranks by the confidence scorer's output.
	MetricConfidence
)

// ParseMetric resolves a metric name. Matching is case-insensitive and
// "conf" is accepted for confidence.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "faiss":
		return MetricFaiss, nil
	case "cosine":
		return MetricCosine, nil
	case "confidence", "conf":
		return MetricConfidence, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedMetric, name)
}

func (m Metric) String() string {
	if s, ok := m.strategy(); ok {
		return s.name
	}
	return fmt.Sprintf("Metric(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	if _, ok := m.strategy(); !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMetric, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// strategy bundles everything that differs between metrics.
type strategy struct {
	name string

	// value extracts the metric value from a row.
	value func(r *core.CandidateRow) float64

	// ascending is true when lower values are better.
	ascending bool

	// validThreshold reports whether t is a usable selection threshold.
	validThreshold func(t float64) bool

	needsScorer bool

	// beyond reports whether a band proves that no later band can pass.
	// Nil when the metric is not monotone in index order.
	beyond func(band []core.CandidateRow, threshold, tolerance float64) bool
}

var strategies = [...]strategy{
	MetricFaiss: {
		name:      "faiss",
		value:     func(r *core.CandidateRow) float64 { return float64(r.FaissDistance) },
		ascending: true,
		validThreshold: func(t float64) bool {
			return t >= 0 && !math.IsInf(t, 1)
		},
		beyond: func(band []core.CandidateRow, threshold, tolerance float64) bool {
			var worst float64
			for i := range band {
				worst = max(worst, float64(band[i].FaissDistance))
			}
			return worst > threshold*(1+tolerance)
		},
	},
	MetricCosine: {
		name:           "cosine",
		value:          func(r *core.CandidateRow) float64 { return float64(r.CosineSimilarity) },
		validThreshold: unitInterval,
		beyond: func(band []core.CandidateRow, threshold, tolerance float64) bool {
			worst := math.Inf(1)
			for i := range band {
				worst = min(worst, float64(band[i].CosineSimilarity))
			}
			return worst < threshold*(1-tolerance)
		},
	},
	MetricConfidence: {
		name: "confidence",
		value: func(r *core.CandidateRow) float64 {
			if r.Confidence == nil {
				return math.Inf(-1)
			}
			return *r.Confidence
		},
		validThreshold: unitInterval,
		needsScorer:    true,
	},
}

func unitInterval(t float64) bool {
	return t >= 0 && t <= 1
}

func (m Metric) strategy() (*strategy, bool) {
	if m < 0 || int(m) >= len(strategies) {
		return nil, false
	}
	return &strategies[m], true
}

// passes applies the selection filter.
func (s *strategy) passes(r *core.CandidateRow, threshold float64) bool {
	v := s.value(r)
	if s.ascending {
		return v <= threshold
	}
	return v >= threshold
}

// compare orders rows best-first.
func (s *strategy) compare(a, b core.CandidateRow) int {
	if s.ascending {
		return cmp.Compare(s.value(&a), s.value(&b))
	}
	return cmp.Compare(s.value(&b), s.value(&a))
}
