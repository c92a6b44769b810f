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

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/candirank/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrMalformedScores is returned when the model's reply cannot be mapped
// back onto the submitted pairs.
var ErrMalformedScores = errors.New("malformed scorer response")

const maxScoreAttempts = 3

// Scorer implements ai.ConfidenceScorer with a chat model in JSON mode.
type Scorer struct {
	client    llms.Model
	batchSize int
	logger    *slog.Logger
}

type scoreRequest struct {
	Pairs []scoreRequestPair `json:"pairs"`
}

type scoreRequestPair struct {
	Index     int    `json:"index"`
	Query     string `json:"query"`
	Candidate string `json:"candidate"`
}

type scoreResponse struct {
	Scores []struct {
		Index      int      `json:"index"`
		Confidence *float64 `json:"confidence"`
	} `json:"scores"`
}

func newScorer(config *ai.Config) (*Scorer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !config.ScoringEnabled() {
		return nil, errors.New("ai config: ScorerModel is required for scoring")
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ScorerHost),
		openai.WithToken("none"),
		openai.WithModel(config.ScorerModel),
	)
	if err != nil {
		return nil, err
	}
	return newScorerWithModel(client, config.ScorerBatchSize), nil
}

func newScorerWithModel(client llms.Model, batchSize int) *Scorer {
	return &Scorer{
		client:    client,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "openai-scorer"),
	}
}

// NewScorer creates a confidence scorer using the provided configuration.
func NewScorer(config *ai.Config) (ai.ConfidenceScorer, error) {
	return newScorer(config)
}

// Score sends pairs to the model in batches and returns one confidence per
// pair in input order. A batchSize <= 0 falls back to the configured size.
func (s *Scorer) Score(ctx context.Context, pairs []ai.Pair, batchSize int) ([]float64, error) {
	if batchSize <= 0 {
		batchSize = s.batchSize
	}
	if batchSize <= 0 {
		batchSize = len(pairs)
	}

	scores := make([]float64, 0, len(pairs))
	for start := 0; start < len(pairs); start += batchSize {
		end := min(start+batchSize, len(pairs))
		batch, err := s.scoreBatch(ctx, pairs[start:end])
		if err != nil {
			return nil, fmt.Errorf("scoring pairs %d-%d: %w", start, end-1, err)
		}
		scores = append(scores, batch...)
	}
	return scores, nil
}

func (s *Scorer) scoreBatch(ctx context.Context, pairs []ai.Pair) ([]float64, error) {
	req := scoreRequest{Pairs: make([]scoreRequestPair, len(pairs))}
	for i, p := range pairs {
		req.Pairs[i] = scoreRequestPair{Index: i, Query: p.Query, Candidate: p.Candidate}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(scorerSystemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(string(payload))},
		},
	}

	var lastErr error
	for attempt := 0; attempt < maxScoreAttempts; attempt++ {
		response, err := s.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			s.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, err
		}
		if len(response.Choices) < 1 {
			lastErr = fmt.Errorf("%w: no choices returned", ErrMalformedScores)
			continue
		}

		scores, err := parseScores(response.Choices[0].Content, len(pairs))
		if err != nil {
			lastErr = err
			s.logger.Warn("error parsing scorer response", "attempt", attempt+1, "err", err)
			continue
		}
		return scores, nil
	}

	s.logger.Error("failed to parse scorer response after retries", "err", lastErr)
	return nil, lastErr
}

// parseScores extracts want confidences from a model reply, tolerating
// markdown fences and prose around the JSON object.
func parseScores(reply string, want int) ([]float64, error) {
	text := strings.TrimSpace(reply)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	if open, closing := strings.Index(text, "{"), strings.LastIndex(text, "}"); open >= 0 && closing > open {
		text = text[open : closing+1]
	}

	var resp scoreResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedScores, err)
	}

	scores := make([]float64, want)
	seen := make([]bool, want)
	for _, sc := range resp.Scores {
		if sc.Index < 0 || sc.Index >= want {
			return nil, fmt.Errorf("%w: index %d out of range", ErrMalformedScores, sc.Index)
		}
		if sc.Confidence == nil {
			return nil, fmt.Errorf("%w: index %d has no confidence", ErrMalformedScores, sc.Index)
		}
		scores[sc.Index] = min(max(*sc.Confidence, 0), 1)
		seen[sc.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: missing score for index %d", ErrMalformedScores, i)
		}
	}
	return scores, nil
}
