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

// Package config loads candirank settings from a YAML file with
// environment-variable overrides, and converts them into the option
// structs of the ranking, ai and ingest packages.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/candirank/ai"
	"github.com/poiesic/candirank/ingest"
	"github.com/poiesic/candirank/ranking"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CANDIRANK_"

// Config is the top-level configuration.
type Config struct {
	Ranking RankingConfig `yaml:"ranking"`
	AI      AIConfig      `yaml:"ai"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Ingest  IngestConfig  `yaml:"ingest"`
}

// RankingConfig mirrors ranking.Config with a textual metric.
type RankingConfig struct {
	Metric        string  `yaml:"metric"`
	Threshold     float64 `yaml:"threshold"`
	NumCandidates int     `yaml:"numCandidates"`
	SearchSize    int     `yaml:"searchSize"`
	MaxQueries    int     `yaml:"maxQueries"`
	Tolerance     float64 `yaml:"tolerance"`
	EarlyStop     bool    `yaml:"earlyStop"`
	Workers       int     `yaml:"workers"`
}

// AIConfig holds the embedding and scoring services.
type AIConfig struct {
	EmbeddingHost   string `yaml:"embeddingHost"`
	EmbeddingModel  string `yaml:"embeddingModel"`
	ScorerHost      string `yaml:"scorerHost"`
	ScorerModel     string `yaml:"scorerModel"`
	ScorerBatchSize int    `yaml:"scorerBatchSize"`
}

// StorageConfig locates the database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls the level and format of the default logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// IngestConfig controls embedding of input files.
type IngestConfig struct {
	BatchSize      int           `yaml:"batchSize"`
	MaxRetries     int           `yaml:"maxRetries"`
	RetryDelay     time.Duration `yaml:"retryDelay"`
	ReportInterval int           `yaml:"reportInterval"`
	Concurrency    int           `yaml:"concurrency"`
	Normalize      bool          `yaml:"normalize"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	rc := ranking.DefaultConfig()
	ac := ai.DefaultConfig()
	return &Config{
		Ranking: RankingConfig{
			Metric:        rc.Metric.String(),
			Threshold:     rc.Threshold,
			NumCandidates: rc.NumCandidates,
			SearchSize:    rc.SearchSize,
			MaxQueries:    rc.MaxQueries,
			Tolerance:     rc.Tolerance,
			EarlyStop:     rc.EarlyStop,
			Workers:       rc.Workers,
		},
		AI: AIConfig{
			EmbeddingHost:   ac.EmbeddingHost,
			EmbeddingModel:  ac.EmbeddingModel,
			ScorerHost:      ac.ScorerHost,
			ScorerModel:     ac.ScorerModel,
			ScorerBatchSize: ac.ScorerBatchSize,
		},
		Storage: StorageConfig{
			Path: "candirank.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Ingest: IngestConfig{
			BatchSize:      100,
			MaxRetries:     3,
			RetryDelay:     time.Second,
			ReportInterval: 100,
			Concurrency:    2,
		},
	}
}

// Load reads a YAML file (if path is not empty) over the defaults and then
// applies CANDIRANK_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if _, err := c.Ranking.ToRanking(); err != nil {
		return err
	}
	if err := c.AI.ToAI().Validate(); err != nil {
		return err
	}
	if c.Storage.Path == "" {
		return errors.New("storage config: path is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging config: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging config: unknown format %q", c.Logging.Format)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics config: addr is required when enabled")
	}
	if c.Ingest.BatchSize <= 0 || c.Ingest.MaxRetries <= 0 {
		return errors.New("ingest config: batchSize and maxRetries must be positive")
	}
	return nil
}

// ToRanking converts to a validated ranking.Config.
func (r RankingConfig) ToRanking() (ranking.Config, error) {
	metric, err := ranking.ParseMetric(r.Metric)
	if err != nil {
		return ranking.Config{}, err
	}
	cfg := ranking.Config{
		Metric:        metric,
		Threshold:     r.Threshold,
		NumCandidates: r.NumCandidates,
		SearchSize:    r.SearchSize,
		MaxQueries:    r.MaxQueries,
		Tolerance:     r.Tolerance,
		EarlyStop:     r.EarlyStop,
		Workers:       r.Workers,
	}
	if err := cfg.Validate(); err != nil {
		return ranking.Config{}, err
	}
	return cfg, nil
}

// ToAI converts to an ai.Config.
func (a AIConfig) ToAI() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(a.EmbeddingHost),
		ai.WithEmbeddingModel(a.EmbeddingModel),
		ai.WithScorerHost(a.ScorerHost),
		ai.WithScorerModel(a.ScorerModel),
		ai.WithScorerBatchSize(a.ScorerBatchSize),
	)
}

// Options converts to ingest options.
func (i IngestConfig) Options() []ingest.Option {
	return []ingest.Option{
		ingest.WithBatchSize(i.BatchSize),
		ingest.WithMaxRetries(i.MaxRetries),
		ingest.WithRetryDelay(i.RetryDelay),
		ingest.WithConcurrency(i.Concurrency),
		ingest.WithNormalize(i.Normalize),
	}
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"RANKING_METRIC":  &cfg.Ranking.Metric,
		"EMBEDDING_HOST":  &cfg.AI.EmbeddingHost,
		"EMBEDDING_MODEL": &cfg.AI.EmbeddingModel,
		"SCORER_HOST":     &cfg.AI.ScorerHost,
		"SCORER_MODEL":    &cfg.AI.ScorerModel,
		"DB":              &cfg.Storage.Path,
		"LOG_LEVEL":       &cfg.Logging.Level,
		"LOG_FORMAT":      &cfg.Logging.Format,
		"METRICS_ADDR":    &cfg.Metrics.Addr,
	}
	for name, dst := range strs {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"RANKING_NUM_CANDIDATES": &cfg.Ranking.NumCandidates,
		"RANKING_SEARCH_SIZE":    &cfg.Ranking.SearchSize,
		"RANKING_MAX_QUERIES":    &cfg.Ranking.MaxQueries,
		"RANKING_WORKERS":        &cfg.Ranking.Workers,
		"SCORER_BATCH_SIZE":      &cfg.AI.ScorerBatchSize,
		"INGEST_BATCH_SIZE":      &cfg.Ingest.BatchSize,
		"INGEST_MAX_RETRIES":     &cfg.Ingest.MaxRetries,
		"INGEST_CONCURRENCY":     &cfg.Ingest.Concurrency,
	}
	for name, dst := range ints {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"RANKING_THRESHOLD": &cfg.Ranking.Threshold,
		"RANKING_TOLERANCE": &cfg.Ranking.Tolerance,
	}
	for name, dst := range floats {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = f
		}
	}

	bools := map[string]*bool{
		"RANKING_EARLY_STOP": &cfg.Ranking.EarlyStop,
		"METRICS_ENABLED":    &cfg.Metrics.Enabled,
		"INGEST_NORMALIZE":   &cfg.Ingest.Normalize,
	}
	for name, dst := range bools {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}

	if v := os.Getenv(EnvPrefix + "INGEST_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sINGEST_RETRY_DELAY: %w", EnvPrefix, err)
		}
		cfg.Ingest.RetryDelay = d
	}
	return nil
}
