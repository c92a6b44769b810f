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

package ingest

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrMalformedLine is returned when an input line cannot be parsed
	ErrMalformedLine = errors.New("malformed input line")

	// ErrEmbedderRequired is returned when an Ingester is built without an embedder
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrRepositoryRequired is returned when an Ingester is built without a repository
	ErrRepositoryRequired = errors.New("entry repository is required")
)
