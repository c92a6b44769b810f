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


package core

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/go-crypt/x/blake2b"
)

// ID is the external sequential identifier attached to a query or candidate row.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Vector is a dense embedding. All vectors of a session share one dimensionality.
type Vector []float32

// Item pairs the processed text fed to the encoder with the original text shown to users.
type Item struct {
	Text     string // Processed (normalized) text
	Original string // Text as it appeared in the source data
}

// Entry is one row of a Pool: an item, its vector and its external identifier.
type Entry struct {
	ID     ID
	Item   Item
	Vector Vector
}

// Pool is an ordered, read-only collection of entries. It models both the
// candidate pool and the query set. A Pool is never mutated once a ranking
// session has started, so it may be shared by concurrent searches.
type Pool struct {
	Entries []Entry
}

// NewPool wraps entries in a Pool after validating them.
func NewPool(entries []Entry) (*Pool, error) {
	p := &Pool{Entries: entries}
	if err := ValidatePool(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Len returns the number of entries.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Entries)
}

// Dim returns the dimensionality of the pool, or 0 for an empty pool.
func (p *Pool) Dim() int {
	if p.Len() == 0 {
		return 0
	}
	return len(p.Entries[0].Vector)
}

// Vectors returns the vectors in row order. The slices alias the entries.
func (p *Pool) Vectors() []Vector {
	out := make([]Vector, p.Len())
	for i := range out {
		out[i] = p.Entries[i].Vector
	}
	return out
}

// Head returns a pool restricted to the first n entries.
// n <= 0 or n >= Len returns p itself.
func (p *Pool) Head(n int) *Pool {
	if n <= 0 || n >= p.Len() {
		return p
	}
	return &Pool{Entries: p.Entries[:n]}
}

// CandidateRow is a transient record produced while searching one query.
// Rows that fail the selection filter are discarded after each window.
type CandidateRow struct {
	QueryID          ID
	Rank             int // Position in the index ordering, 0 = nearest
	PoolRow          int // Row of the candidate in the pool
	CandidateID      ID
	CandidateText    string
	CandidateOrig    string
	FaissDistance    float32 // Squared L2 distance reported by the index
	CosineSimilarity float32
	Confidence       *float64 // Nil when no confidence scorer is configured
	Label            bool     // Placeholder, always false during ranking
}

// Match is one ranked candidate of a QueryResult.
// Scores are rounded to four decimals.
type Match struct {
	Candidate        string   // Original text of the matched candidate
	Confidence       *float64 // Nil when no confidence scorer is configured
	FaissDistance    float64
	CosineSimilarity float64
	CandidateID      ID
}

// QueryResult is the final per-query record.
// Matches are ordered best-first by the active ranking metric.
type QueryResult struct {
	QueryID     ID
	Query       string // Original text of the query
	Matches     []Match
	NumSearched int // Number of index entries examined before the search stopped
}

// Candidates returns the original texts of the matches in rank order.
func (r *QueryResult) Candidates() []string {
	out := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.Candidate
	}
	return out
}

// ResultTable is the ordered output of a ranking session, one row per query in
// input order.
type ResultTable struct {
	Results []QueryResult
}

// Len returns the number of rows.
func (t *ResultTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Results)
}

// Get returns the result for a query ID.
func (t *ResultTable) Get(id ID) (*QueryResult, bool) {
	if t == nil {
		return nil, false
	}
	for i := range t.Results {
		if t.Results[i].QueryID == id {
			return &t.Results[i], true
		}
	}
	return nil, false
}

// All returns the rows, or nil for a nil table.
func (t *ResultTable) All() []QueryResult {
	if t == nil {
		return nil
	}
	return t.Results
}

// Fingerprint hashes the full content of the table. Two tables have the same
// fingerprint only if every row, match and score is bit-identical.
func (t *ResultTable) Fingerprint() string {
	h, _ := blake2b.New(32, nil)
	var buf [8]byte
	writeUint := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeString := func(s string) {
		writeUint(uint64(len(s)))
		h.Write([]byte(s))
	}
	for _, r := range t.All() {
		writeUint(uint64(r.QueryID))
		writeString(r.Query)
		writeUint(uint64(r.NumSearched))
		writeUint(uint64(len(r.Matches)))
		for _, m := range r.Matches {
			writeString(m.Candidate)
			writeUint(uint64(m.CandidateID))
			writeUint(math.Float64bits(m.FaissDistance))
			writeUint(math.Float64bits(m.CosineSimilarity))
			if m.Confidence == nil {
				writeUint(0)
			} else {
				writeUint(1)
				writeUint(math.Float64bits(*m.Confidence))
			}
		}
	}
	return strconv.FormatUint(binary.LittleEndian.Uint64(h.Sum(nil)), 16)
}

// Round4 rounds v to four decimal places, half away from zero.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
