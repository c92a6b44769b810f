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


// Package openai implements the ai interfaces against OpenAI-compatible APIs.
//
// Embeddings go through langchaingo's embeddings wrapper. Confidence scoring
// sends batches of (query, candidate) pairs to a chat model in JSON mode and
// reads back one confidence per pair.
//
// Any server that speaks the OpenAI HTTP protocol works: Ollama, LocalAI,
// vLLM or OpenAI itself.
package openai
