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


package mock

import "github.com/poiesic/candirank/ai"

// MockProvider is a test double for ai.Provider.
type MockProvider struct {
	embedder *MockEmbedder
	scorer   *MockScorer
	closed   bool
}

// NewMockProvider creates a provider with a default mock embedder and scorer.
//
// Use GetMockEmbedder()/GetMockScorer() to reach the concrete types.
func NewMockProvider() ai.Provider {
	return &MockProvider{
		embedder: NewMockEmbedder(),
		scorer:   NewMockScorer(),
	}
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
// A nil scorer makes Scorer() return nil, as a provider without a scorer model would.
func NewMockProviderWithServices(embedder *MockEmbedder, scorer *MockScorer) ai.Provider {
	return &MockProvider{
		embedder: embedder,
		scorer:   scorer,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Scorer returns the mock scorer, or nil if none was supplied.
func (p *MockProvider) Scorer() ai.ConfidenceScorer {
	if p.scorer == nil {
		return nil
	}
	return p.scorer
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockScorer returns the underlying mock scorer for test assertions.
func (p *MockProvider) GetMockScorer() *MockScorer {
	return p.scorer
}
