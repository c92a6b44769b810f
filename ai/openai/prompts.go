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


package openai

const scorerSystemPrompt = `You judge whether two short texts refer to the same real-world entity.

You receive JSON of the form:
{"pairs": [{"index": 0, "query": "...", "candidate": "..."}, ...]}

Each query is a name as written in a source document. Each candidate is a
name from a reference list. They may differ in spelling, transliteration,
abbreviation, word order or historical form.

For every pair, estimate the probability that the candidate names the same
entity as the query. Use 1.0 for certain matches and 0.0 for certain
mismatches.

Respond with JSON only, one entry per input pair, using the same indexes:
{"scores": [{"index": 0, "confidence": 0.97}, ...]}`
