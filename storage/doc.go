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


// Package storage provides persistence for candidate collections and ranking
// results.
//
// A collection is a named, ordered list of core.Entry rows: the candidate
// pool or a query set, as produced by ingestion. A result set is a named
// core.ResultTable. Both are stored row by row so insertion order survives a
// round trip.
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return interfaces:
//
//	entries, results, backend, err := badger.NewMemoryRepositories()
//
// # Encoding
//
// Rows are encoded with mus-go primitives (see serialization.go). The format
// is compact, little-endian for floats and varint for integers, and has no
// schema header.
package storage
