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


package storage

import (
	"fmt"
	"math"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/candirank/core"
)

// Serializers for the stored row types. Each is composed field by field
// from mus-go primitives.
var (
	EntryMUS          = entryMUS{}
	QueryResultMUS    = queryResultMUS{}
	CollectionInfoMUS = collectionInfoMUS{}
)

var (
	_ mus.Serializer[core.Entry]       = EntryMUS
	_ mus.Serializer[core.QueryResult] = QueryResultMUS
	_ mus.Serializer[CollectionInfo]   = CollectionInfoMUS
)

// reader walks a byte slice and records the first decoding error.
type reader struct {
	bs  []byte
	n   int
	err error
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) string() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) float32() float32 {
	if r.err != nil {
		return 0
	}
	v, n, err := raw.Float32.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) float64() float64 {
	if r.err != nil {
		return 0
	}
	v, n, err := raw.Float64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) bool() bool {
	if r.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

// length reads a count and checks that at least count*minSize bytes remain.
func (r *reader) length(minSize int) int {
	l := r.uint64()
	if r.err != nil {
		return 0
	}
	if l > uint64(len(r.bs)-r.n)/uint64(minSize) || l > math.MaxInt32 {
		r.err = fmt.Errorf("%w: length %d exceeds remaining %d bytes", ErrTruncatedData, l, len(r.bs)-r.n)
		return 0
	}
	return int(l)
}

type entryMUS struct{}

func (entryMUS) Marshal(e core.Entry, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(e.ID), bs)
	n += ord.String.Marshal(e.Item.Text, bs[n:])
	n += ord.String.Marshal(e.Item.Original, bs[n:])
	n += varint.Uint64.Marshal(uint64(len(e.Vector)), bs[n:])
	for _, f := range e.Vector {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (entryMUS) Unmarshal(bs []byte) (e core.Entry, n int, err error) {
	r := &reader{bs: bs}
	e.ID = core.ID(r.uint64())
	e.Item.Text = r.string()
	e.Item.Original = r.string()
	if dim := r.length(4); r.err == nil {
		e.Vector = make(core.Vector, dim)
		for i := range e.Vector {
			e.Vector[i] = r.float32()
		}
	}
	return e, r.n, r.err
}

func (entryMUS) Size(e core.Entry) (size int) {
	size = varint.Uint64.Size(uint64(e.ID))
	size += ord.String.Size(e.Item.Text)
	size += ord.String.Size(e.Item.Original)
	size += varint.Uint64.Size(uint64(len(e.Vector)))
	return size + 4*len(e.Vector)
}

func (s entryMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

type queryResultMUS struct{}

func (queryResultMUS) Marshal(q core.QueryResult, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(q.QueryID), bs)
	n += ord.String.Marshal(q.Query, bs[n:])
	n += varint.Uint64.Marshal(uint64(q.NumSearched), bs[n:])
	n += varint.Uint64.Marshal(uint64(len(q.Matches)), bs[n:])
	for _, m := range q.Matches {
		n += ord.String.Marshal(m.Candidate, bs[n:])
		n += varint.Uint64.Marshal(uint64(m.CandidateID), bs[n:])
		n += raw.Float64.Marshal(m.FaissDistance, bs[n:])
		n += raw.Float64.Marshal(m.CosineSimilarity, bs[n:])
		n += ord.Bool.Marshal(m.Confidence != nil, bs[n:])
		if m.Confidence != nil {
			n += raw.Float64.Marshal(*m.Confidence, bs[n:])
		}
	}
	return n
}

func (queryResultMUS) Unmarshal(bs []byte) (q core.QueryResult, n int, err error) {
	r := &reader{bs: bs}
	q.QueryID = core.ID(r.uint64())
	q.Query = r.string()
	q.NumSearched = int(r.uint64())
	// A match takes at least 19 bytes: empty string, id, two floats, flag.
	count := r.length(19)
	if r.err == nil && count > 0 {
		q.Matches = make([]core.Match, count)
		for i := range q.Matches {
			m := &q.Matches[i]
			m.Candidate = r.string()
			m.CandidateID = core.ID(r.uint64())
			m.FaissDistance = r.float64()
			m.CosineSimilarity = r.float64()
			if r.bool() {
				c := r.float64()
				m.Confidence = &c
			}
		}
	}
	return q, r.n, r.err
}

func (queryResultMUS) Size(q core.QueryResult) (size int) {
	size = varint.Uint64.Size(uint64(q.QueryID))
	size += ord.String.Size(q.Query)
	size += varint.Uint64.Size(uint64(q.NumSearched))
	size += varint.Uint64.Size(uint64(len(q.Matches)))
	for _, m := range q.Matches {
		size += ord.String.Size(m.Candidate)
		size += varint.Uint64.Size(uint64(m.CandidateID))
		size += 16 + ord.Bool.Size(m.Confidence != nil)
		if m.Confidence != nil {
			size += 8
		}
	}
	return size
}

func (s queryResultMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

type collectionInfoMUS struct{}

func (collectionInfoMUS) Marshal(c CollectionInfo, bs []byte) (n int) {
	n = ord.String.Marshal(c.Name, bs)
	n += varint.Uint64.Marshal(uint64(c.Size), bs[n:])
	n += varint.Uint64.Marshal(uint64(c.Dim), bs[n:])
	return n
}

func (collectionInfoMUS) Unmarshal(bs []byte) (c CollectionInfo, n int, err error) {
	r := &reader{bs: bs}
	c.Name = r.string()
	c.Size = int(r.uint64())
	c.Dim = int(r.uint64())
	return c, r.n, r.err
}

func (collectionInfoMUS) Size(c CollectionInfo) (size int) {
	size = ord.String.Size(c.Name)
	size += varint.Uint64.Size(uint64(c.Size))
	return size + varint.Uint64.Size(uint64(c.Dim))
}

func (s collectionInfoMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

// MarshalEntry serializes an Entry to bytes.
func MarshalEntry(entry *core.Entry) []byte {
	buf := make([]byte, EntryMUS.Size(*entry))
	EntryMUS.Marshal(*entry, buf)
	return buf
}

// UnmarshalEntry deserializes an Entry from bytes.
func UnmarshalEntry(data []byte) (*core.Entry, error) {
	entry, _, err := EntryMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: entry: %w", ErrSerializationFailed, err)
	}
	return &entry, nil
}

// MarshalQueryResult serializes a QueryResult to bytes.
func MarshalQueryResult(result *core.QueryResult) []byte {
	buf := make([]byte, QueryResultMUS.Size(*result))
	QueryResultMUS.Marshal(*result, buf)
	return buf
}

// UnmarshalQueryResult deserializes a QueryResult from bytes.
func UnmarshalQueryResult(data []byte) (*core.QueryResult, error) {
	result, _, err := QueryResultMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: query result: %w", ErrSerializationFailed, err)
	}
	return &result, nil
}

// MarshalCollectionInfo serializes a CollectionInfo to bytes.
func MarshalCollectionInfo(info *CollectionInfo) []byte {
	buf := make([]byte, CollectionInfoMUS.Size(*info))
	CollectionInfoMUS.Marshal(*info, buf)
	return buf
}

// UnmarshalCollectionInfo deserializes a CollectionInfo from bytes.
func UnmarshalCollectionInfo(data []byte) (*CollectionInfo, error) {
	info, _, err := CollectionInfoMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: collection info: %w", ErrSerializationFailed, err)
	}
	return &info, nil
}
