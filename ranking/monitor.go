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

import "github.com/poiesic/candirank/core"

// Monitor observes the search of each query.
// Implementations must be safe for concurrent use when the session runs
// with more than one worker.
type Monitor interface {
	// Start is called before the first window of a query.
	Start(query *core.Entry)

	// AfterWindow is called after each band [windowStart, windowEnd) was filtered.
	AfterWindow(query *core.Entry, windowStart, windowEnd, passed int)

	// EarlyStop is called when the early-stop rule ends a query's search.
	EarlyStop(query *core.Entry, windowEnd int)

	// Finish is called with the aggregated result of a query.
	Finish(query *core.Entry, result *core.QueryResult)

	// Fail is called instead of Finish when a started query ends in error.
	Fail(query *core.Entry, err error)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ *core.Entry)                       {}
func (n *noopMonitor) AfterWindow(_ *core.Entry, _, _, _ int)    {}
func (n *noopMonitor) EarlyStop(_ *core.Entry, _ int)            {}
func (n *noopMonitor) Finish(_ *core.Entry, _ *core.QueryResult) {}
func (n *noopMonitor) Fail(_ *core.Entry, _ error)               {}
