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


package ai

import "context"

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple texts in one call.
	// The result holds one embedding per input, in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Pair is a (query, candidate) text pair submitted for confidence scoring.
type Pair struct {
	Query     string
	Candidate string
}

// ConfidenceScorer judges how likely each candidate text is a true match
// for its query text. Implementations must be thread-safe for concurrent use.
type ConfidenceScorer interface {
	// Score returns exactly one confidence in [0, 1] per pair, in input
	// order. batchSize bounds how many pairs are sent to the backing model
	// at once; values <= 0 mean a single batch.
	Score(ctx context.Context, pairs []Pair, batchSize int) ([]float64, error)
}

// Provider aggregates AI services for initialization and lifecycle management.
type Provider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Scorer returns the confidence scorer, or nil when none is configured.
	Scorer() ConfidenceScorer

	// Close releases resources held by the provider and its services.
	Close() error
}
