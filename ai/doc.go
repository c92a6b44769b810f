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


// Package ai provides abstractions for the AI services used by candirank.
//
// Two services are modelled:
//
//   - Embedder: turns candidate and query texts into vectors at ingest time
//   - ConfidenceScorer: assigns a confidence in [0, 1] to (query, candidate)
//     text pairs during ranking
//
// A Provider aggregates both so callers can configure them together and
// release them with a single Close.
//
// # Implementation Packages
//
//   - ai/openai: implementation backed by OpenAI-compatible HTTP APIs
//   - ai/mock: deterministic test doubles
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can inject behavior and inspect call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithScorerModel("qwen2.5:3b"),
//	)
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, []string{"paris", "lyon"})
//	scores, err := provider.Scorer().Score(ctx, []ai.Pair{{Query: "paris", Candidate: "parys"}}, 8)
package ai
