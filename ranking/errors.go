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
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is the root of all session configuration errors.
	ErrConfiguration = errors.New("invalid ranking configuration")

	// ErrUnsupportedMetric is returned for an unknown ranking metric name.
	ErrUnsupportedMetric = fmt.Errorf("%w: unsupported ranking metric", ErrConfiguration)

	// ErrThresholdOutOfRange is returned when the selection threshold is invalid for the metric.
	ErrThresholdOutOfRange = fmt.Errorf("%w: selection threshold out of range", ErrConfiguration)

	// ErrInvalidCandidateCount is returned when NumCandidates is not positive.
	ErrInvalidCandidateCount = fmt.Errorf("%w: num candidates must be positive", ErrConfiguration)

	// ErrInvalidSearchSize is returned when SearchSize is not positive.
	ErrInvalidSearchSize = fmt.Errorf("%w: search size must be positive", ErrConfiguration)

	// ErrInvalidTolerance is returned when Tolerance is outside [0, 1).
	ErrInvalidTolerance = fmt.Errorf("%w: tolerance must be in [0, 1)", ErrConfiguration)

	// ErrMetricUnavailable is returned when the metric needs a collaborator that is missing.
	ErrMetricUnavailable = fmt.Errorf("%w: ranking metric unavailable", ErrConfiguration)

	// ErrIndexRequired is returned when a session is built without a candidate pool or index.
	ErrIndexRequired = errors.New("candidate index required")

	// ErrScoreCountMismatch is returned when a scorer returns the wrong number of scores.
	ErrScoreCountMismatch = errors.New("confidence scorer returned wrong number of scores")
)
