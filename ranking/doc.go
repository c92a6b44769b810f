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


// Package ranking implements the candidate search-and-ranking controller.
//
// A Session owns a read-only candidate pool and its exact nearest-neighbor
// index. For every query it widens a window over the index ordering
// SearchSize entries at a time, scores each newly examined band with cosine
// similarity and, when a ConfidenceScorer is configured, a confidence model,
// and keeps the rows that pass the active metric's selection threshold. The
// window stops growing once NumCandidates rows have passed, the pool is
// exhausted, or the early-stop rule shows no further row can pass.
//
// The passing rows are then sorted best-first by the active metric, reduced
// to NumCandidates distinct candidates and rounded to four decimals.
//
// # Metrics
//
//   - faiss: squared L2 distance, lower is better, passes when <= threshold
//   - cosine: cosine similarity, higher is better, passes when >= threshold
//   - confidence: scorer output, higher is better, passes when >= threshold
//
// Only faiss and cosine are monotone in index order, so only they have an
// early-stop rule. Tolerance widens the stop boundary to absorb rounding.
//
// # Concurrency
//
// Queries are independent. With more than one worker the session fans out
// over an ants pool and writes each result into its input slot, so the
// ResultTable order always matches the query order.
package ranking
