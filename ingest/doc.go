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

// Package ingest turns text files into stored, embedded collections.
//
// Input is tab-separated, one row per line:
//
//	processed<TAB>original[<TAB>id]
//
// A single column is used as both the processed and the original text.
// Rows without an id column are numbered sequentially after the rows
// already stored in the target collection.
//
// Texts are embedded in batches through an ai.Embedder, retried with
// exponential backoff, and written to a storage.EntryRepository in input
// order. Batches are embedded concurrently up to a configurable limit.
package ingest
