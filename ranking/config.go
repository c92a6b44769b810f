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
	"fmt"
	"math"
	"runtime"
)

// DefaultTolerance is the relative margin applied to the threshold by the
// early-stop rule.
const DefaultTolerance = 0.01

// Config holds the parameters of a ranking session.
type Config struct {
	// Metric is the active ranking metric.
	Metric Metric

	// Threshold is a distance ceiling for faiss and a floor for cosine and confidence.
	Threshold float64

	// NumCandidates is the target number of matches per query.
	NumCandidates int

	// SearchSize is the number of index entries added to the window per step.
	SearchSize int

	// MaxQueries caps the number of queries processed. Zero means all.
	MaxQueries int

	// Tolerance is the early-stop margin, relative to Threshold.
	Tolerance float64

	// EarlyStop enables the monotonicity shortcut for faiss and cosine.
	EarlyStop bool

	// Workers is the number of queries searched concurrently.
	Workers int
}

// DefaultConfig returns the default session parameters.
func DefaultConfig() Config {
	return Config{
		Metric:        MetricFaiss,
		Threshold:     0.8,
		NumCandidates: 10,
		SearchSize:    4,
		Tolerance:     DefaultTolerance,
		EarlyStop:     true,
		Workers:       max(runtime.NumCPU()/2, 1),
	}
}

// Validate checks the configuration without regard to available collaborators.
func (c Config) Validate() error {
	s, ok := c.Metric.strategy()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedMetric, int(c.Metric))
	}
	if math.IsNaN(c.Threshold) || !s.validThreshold(c.Threshold) {
		return fmt.Errorf("%w: %v for metric %s", ErrThresholdOutOfRange, c.Threshold, s.name)
	}
	if c.NumCandidates <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCandidateCount, c.NumCandidates)
	}
	if c.SearchSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSearchSize, c.SearchSize)
	}
	if c.MaxQueries < 0 {
		return fmt.Errorf("%w: max queries must not be negative", ErrConfiguration)
	}
	if math.IsNaN(c.Tolerance) || c.Tolerance < 0 || c.Tolerance >= 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidTolerance, c.Tolerance)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrConfiguration)
	}
	return nil
}
