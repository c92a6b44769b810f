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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/candirank"
	"github.com/poiesic/candirank/ai"
	"github.com/poiesic/candirank/ai/openai"
	"github.com/poiesic/candirank/config"
	"github.com/poiesic/candirank/core"
	"github.com/poiesic/candirank/export"
	"github.com/poiesic/candirank/ingest"
	"github.com/poiesic/candirank/metrics"
	"github.com/poiesic/candirank/ranking"
)

const configKey = "config"

// newProvider builds the AI provider for a command. Tests replace it.
var newProvider = openai.NewProvider

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "candirank",
		Usage: "Rank candidate strings for query strings by embedding similarity",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Set logging format (text, json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"CANDIRANK_CONFIG"},
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			ingestCommand(),
			rankCommand(),
			collectionsCommand(),
			dropCommand(),
			exportCommand(),
		},
	}
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "db",
		Aliases: []string{"d"},
		Usage:   "Path to BadgerDB database directory",
	}
}

func embeddingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
		},
	}
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:   "ingest",
		Usage:  "Embed a tab-separated file into a collection",
		Action: ingestAction,
		Flags: append([]cli.Flag{
			dbFlag(),
			&cli.StringFlag{
				Name:     "collection",
				Usage:    "Name of the target collection",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Input file (processed<TAB>original[<TAB>id] per line), - for stdin",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of texts per embedding request",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Number of embedding requests in flight",
			},
			&cli.IntFlag{
				Name:  "report-interval",
				Usage: "Report progress every N rows",
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum attempts per embedding request",
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
			},
			&cli.BoolFlag{
				Name:  "normalize",
				Usage: "Scale vectors to unit length before storing",
			},
		}, embeddingFlags()...),
	}
}

func rankCommand() *cli.Command {
	return &cli.Command{
		Name:   "rank",
		Usage:  "Rank candidates for each query",
		Action: rankAction,
		Flags: append([]cli.Flag{
			dbFlag(),
			&cli.StringFlag{
				Name:     "candidates",
				Usage:    "Name of the candidate collection",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "queries",
				Usage: "Name of the query collection",
			},
			&cli.StringSliceFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Ad-hoc query text (repeatable)",
			},
			&cli.StringFlag{
				Name:    "metric",
				Aliases: []string{"m"},
				Usage:   "Ranking metric (faiss, cosine, confidence)",
			},
			&cli.Float64Flag{
				Name:    "threshold",
				Aliases: []string{"t"},
				Usage:   "Selection threshold",
			},
			&cli.IntFlag{
				Name:    "num-candidates",
				Aliases: []string{"n"},
				Usage:   "Target number of matches per query",
			},
			&cli.IntFlag{
				Name:  "search-size",
				Usage: "Window growth per search step",
			},
			&cli.IntFlag{
				Name:  "max-queries",
				Usage: "Only rank the first N queries",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of queries ranked concurrently",
			},
			&cli.Float64Flag{
				Name:  "tolerance",
				Usage: "Early-stop margin relative to the threshold",
			},
			&cli.BoolFlag{
				Name:  "no-early-stop",
				Usage: "Scan until the target count or the end of the index",
			},
			&cli.StringFlag{
				Name:  "scorer-host",
				Usage: "Confidence scorer host URL",
			},
			&cli.StringFlag{
				Name:  "scorer-model",
				Usage: "Confidence scorer model name (enables confidence scoring)",
			},
			&cli.IntFlag{
				Name:  "scorer-batch-size",
				Usage: "Number of pairs per scoring request",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write results to a file instead of stdout",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (yaml, csv)",
				Value:   "yaml",
			},
			&cli.StringFlag{
				Name:  "save-as",
				Usage: "Store the result table in the database under this name",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address while ranking",
			},
		}, embeddingFlags()...),
	}
}

func collectionsCommand() *cli.Command {
	return &cli.Command{
		Name:   "collections",
		Usage:  "List stored collections",
		Action: collectionsAction,
		Flags:  []cli.Flag{dbFlag()},
	}
}

func dropCommand() *cli.Command {
	return &cli.Command{
		Name:      "drop",
		Usage:     "Delete a stored collection",
		ArgsUsage: "<collection>",
		Action:    dropAction,
		Flags:     []cli.Flag{dbFlag()},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write a stored result table",
		ArgsUsage: "<name>",
		Action:    exportAction,
		Flags: []cli.Flag{
			dbFlag(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write results to a file instead of stdout",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (yaml, csv)",
				Value:   "yaml",
			},
		},
	}
}

// setup loads the configuration and installs the default logger.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = strings.ToLower(c.String("log-level"))
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = strings.ToLower(c.String("log-format"))
	}

	logger, err := newLogger(c.App.ErrWriter, cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func newLogger(w io.Writer, lc config.LoggingConfig) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", lc.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch lc.Format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q: must be one of text, json", lc.Format)
}

func loadedConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// aiConfig merges AI flags over the loaded configuration.
func aiConfig(c *cli.Context, cfg *config.Config) (*ai.Config, error) {
	ac := cfg.AI.ToAI()
	overrides := map[string]*string{
		"embedding-host":  &ac.EmbeddingHost,
		"embedding-model": &ac.EmbeddingModel,
		"scorer-host":     &ac.ScorerHost,
		"scorer-model":    &ac.ScorerModel,
	}
	for name, dst := range overrides {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	if c.IsSet("scorer-batch-size") {
		ac.ScorerBatchSize = c.Int("scorer-batch-size")
	}
	if err := ac.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	return ac, nil
}

// rankingConfig merges ranking flags over the loaded configuration.
func rankingConfig(c *cli.Context, cfg *config.Config) (ranking.Config, error) {
	rc := cfg.Ranking
	if c.IsSet("metric") {
		rc.Metric = c.String("metric")
	}
	if c.IsSet("threshold") {
		rc.Threshold = c.Float64("threshold")
	}
	if c.IsSet("tolerance") {
		rc.Tolerance = c.Float64("tolerance")
	}
	ints := map[string]*int{
		"num-candidates": &rc.NumCandidates,
		"search-size":    &rc.SearchSize,
		"max-queries":    &rc.MaxQueries,
		"workers":        &rc.Workers,
	}
	for name, dst := range ints {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}
	if c.Bool("no-early-stop") {
		rc.EarlyStop = false
	}
	return rc.ToRanking()
}

func dbPath(c *cli.Context, cfg *config.Config) (string, error) {
	path := cfg.Storage.Path
	if c.IsSet("db") {
		path = c.String("db")
	}
	if path == "" {
		return "", errors.New("database path is required")
	}
	return path, nil
}

// openDatabase opens the store with a provider built from ac.
func openDatabase(c *cli.Context, cfg *config.Config, ac *ai.Config) (*candirank.Database, error) {
	path, err := dbPath(c, cfg)
	if err != nil {
		return nil, err
	}
	provider, err := newProvider(ac)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}
	db, err := candirank.NewDatabase(path, candirank.WithAIConfig(ac), candirank.WithProvider(provider))
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func ingestAction(c *cli.Context) error {
	cfg := loadedConfig(c)
	ac, err := aiConfig(c, cfg)
	if err != nil {
		return err
	}

	ic := cfg.Ingest
	if c.IsSet("batch-size") {
		ic.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("concurrency") {
		ic.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("report-interval") {
		ic.ReportInterval = c.Int("report-interval")
	}
	if c.IsSet("max-retries") {
		ic.MaxRetries = c.Int("max-retries")
	}
	if c.IsSet("retry-delay") {
		ic.RetryDelay = c.Duration("retry-delay")
	}
	if c.IsSet("normalize") {
		ic.Normalize = c.Bool("normalize")
	}

	var input io.Reader = os.Stdin
	if name := c.String("input"); name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		input = f
	}

	db, err := openDatabase(c, cfg, ac)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := append(ic.Options(), ingest.WithProgress(c.App.ErrWriter, ic.ReportInterval))
	in, err := db.NewIngester(opts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", ac.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", ac.EmbeddingModel)

	summary, err := in.IngestReader(c.Context, c.String("collection"), input)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	fmt.Fprintf(c.App.ErrWriter, "Stored %d rows in %q (%d total, %d dimensions) in %v\n",
		summary.Rows, summary.Collection, summary.Size, summary.Dim, summary.Elapsed.Round(time.Millisecond))
	return nil
}

func rankAction(c *cli.Context) error {
	cfg := loadedConfig(c)

	queries := c.String("queries")
	texts := c.StringSlice("query")
	if (queries == "") == (len(texts) == 0) {
		return errors.New("exactly one of --queries or --query is required")
	}

	format, err := export.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}
	rc, err := rankingConfig(c, cfg)
	if err != nil {
		return err
	}
	ac, err := aiConfig(c, cfg)
	if err != nil {
		return err
	}

	db, err := openDatabase(c, cfg, ac)
	if err != nil {
		return err
	}
	defer db.Close()

	var opts []ranking.Option
	addr := cfg.Metrics.Addr
	if c.IsSet("metrics-addr") {
		addr = c.String("metrics-addr")
	}
	if c.IsSet("metrics-addr") || cfg.Metrics.Enabled {
		monitor, err := metrics.New(nil)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		shutdown := serveMetrics(addr)
		defer shutdown()
		opts = append(opts, ranking.WithMonitor(monitor))
	}

	var table *core.ResultTable
	if queries != "" {
		table, err = db.Rank(c.Context, c.String("candidates"), queries, rc, opts...)
	} else {
		table, err = db.RankTexts(c.Context, c.String("candidates"), texts, rc, opts...)
	}
	if err != nil {
		return fmt.Errorf("ranking failed: %w", err)
	}

	if name := c.String("save-as"); name != "" && table != nil {
		if err := db.ResultRepository().SaveResults(c.Context, name, table); err != nil {
			return fmt.Errorf("failed to save results: %w", err)
		}
		slog.Info("saved results", "name", name, "rows", table.Len())
	}
	return writeTable(c, format, table)
}

func collectionsAction(c *cli.Context) error {
	db, err := openStore(c)
	if err != nil {
		return err
	}
	defer db.Close()

	infos, err := db.EntryRepository().Collections(c.Context)
	if err != nil {
		return err
	}
	for _, info := range infos {
		fmt.Fprintf(c.App.Writer, "%s\t%d rows\t%d dimensions\n", info.Name, info.Size, info.Dim)
	}
	return nil
}

func dropAction(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return errors.New("collection name is required")
	}
	db, err := openStore(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EntryRepository().DeleteCollection(c.Context, name); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted %q\n", name)
	return nil
}

func exportAction(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return errors.New("result name is required")
	}
	format, err := export.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}
	db, err := openStore(c)
	if err != nil {
		return err
	}
	defer db.Close()

	table, err := db.ResultRepository().LoadResults(c.Context, name)
	if err != nil {
		return err
	}
	return writeTable(c, format, table)
}

// openStore opens the database for commands that never call the AI services.
func openStore(c *cli.Context) (*candirank.Database, error) {
	cfg := loadedConfig(c)
	return openDatabase(c, cfg, cfg.AI.ToAI())
}

func writeTable(c *cli.Context, format export.Format, table *core.ResultTable) error {
	out := c.App.Writer
	if path := c.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	return export.Write(out, format, table)
}

// serveMetrics starts the Prometheus endpoint and returns its shutdown function.
func serveMetrics(addr string) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
