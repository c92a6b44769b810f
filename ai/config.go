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

import (
	"errors"
	"strings"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// ScorerHost is the base URL for the chat model used for confidence scoring.
	ScorerHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// ScorerModel is the chat model used to score (query, candidate) pairs.
	// Empty disables confidence scoring.
	ScorerModel string

	// ScorerBatchSize is the number of pairs sent per scoring request.
	// Default: 16
	ScorerBatchSize int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithScorerHost sets the scorer service host URL.
func WithScorerHost(host string) ConfigOption {
	return func(c *Config) {
		c.ScorerHost = host
	}
}

// WithHost sets both embedding and scorer hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.ScorerHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithScorerModel sets the scorer model identifier.
func WithScorerModel(model string) ConfigOption {
	return func(c *Config) {
		c.ScorerModel = model
	}
}

// WithScorerBatchSize sets how many pairs go into one scoring request.
func WithScorerBatchSize(n int) ConfigOption {
	return func(c *Config) {
		c.ScorerBatchSize = n
	}
}

// DefaultConfig returns a Config for a local OpenAI-compatible service.
// Confidence scoring is disabled until a scorer model is set.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:   defaultHost,
		ScorerHost:      defaultHost,
		EmbeddingModel:  "embeddinggemma",
		ScorerBatchSize: 16,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// ScoringEnabled reports whether a scorer model is configured.
func (c *Config) ScoringEnabled() bool {
	return c.ScorerModel != ""
}

// Normalize ensures the configuration is in a canonical form.
// OpenAI-compatible servers (Ollama, LocalAI, vLLM) expect a /v1 suffix.
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.ScorerHost = normalizeHost(c.ScorerHost)
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.ScoringEnabled() {
		if c.ScorerHost == "" {
			return errors.New("ai config: ScorerHost is required when ScorerModel is set")
		}
		if c.ScorerBatchSize < 1 {
			return errors.New("ai config: ScorerBatchSize must be positive")
		}
	}
	return nil
}
