// arcx unpacks archives found in evidence files into a case, recursing into
// nested archives, and prints a summary of what was extracted.
//
// Usage:
//
//	arcx [--config path] [--workers n] [--case-dir dir] [--metrics] evidence...
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	internal "github.com/ZanzyTHEbar/arcx/arcx"
	"github.com/ZanzyTHEbar/arcx/arcx/config"
	"github.com/ZanzyTHEbar/arcx/arcx/content"
	"github.com/ZanzyTHEbar/arcx/arcx/db"
	"github.com/ZanzyTHEbar/arcx/arcx/extractor"
	"github.com/ZanzyTHEbar/arcx/arcx/metrics"
	"github.com/ZanzyTHEbar/arcx/arcx/pipeline"
	"github.com/ZanzyTHEbar/arcx/arcx/report"
)

var errUsage = errors.New("no evidence files given")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath   string
		caseDir      string
		workers      int
		printMetrics bool
	)
	flagSet := pflag.NewFlagSet(internal.DefaultAppName, pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a config file (default: search ., .., etc/arcx, ~/.config/arcx)")
	flagSet.StringVar(&caseDir, "case-dir", "", "case directory extracted content is written under")
	flagSet.IntVar(&workers, "workers", 0, "items processed concurrently (default: CPU-derived)")
	flagSet.BoolVar(&printMetrics, "metrics", false, "print extractor metrics in the Prometheus text format when done")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] evidence...\n\nFlags:\n%s", internal.DefaultAppName, flagSet.FlagUsages())
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	evidence := flagSet.Args()
	if len(evidence) == 0 {
		flagSet.Usage()
		return errUsage
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if caseDir != "" {
		cfg.Case.Dir = caseDir
	}
	if workers > 0 {
		cfg.Pipeline.Workers = workers
	}
	if cfg.Case.Dir, err = filepath.Abs(cfg.Case.Dir); err != nil {
		return fmt.Errorf("failed to resolve case directory: %w", err)
	}

	zlog := internal.GetLogger().Level(internal.ParseLevel(cfg.Log.Level))
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Case.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create case directory: %w", err)
	}
	store, err := db.NewContentDB(db.ResolveDSN(cfg.Case.Database.DSN, cfg.Case.Dir), cfg.Case.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	roots := make([]content.Item, 0, len(evidence))
	for _, p := range evidence {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		item, err := store.AddLocalFile(ctx, abs)
		if err != nil {
			return err
		}
		zlog.Info().Int64("item_id", item.ID()).Str("path", abs).Msg("added evidence file")
		roots = append(roots, item)
	}

	m := metrics.New()
	recorder := report.NewRecordingSink()
	orch := extractor.New(store, report.MultiSink{report.NewLogSink(zlog), recorder},
		extractor.WithLimits(cfg.Limits()),
		extractor.WithLogger(logger),
		extractor.WithMetrics(m),
		extractor.WithOutputDirs(cfg.ModuleOutputAbs(), cfg.Case.ModuleOutputDir),
	)

	summary, err := pipeline.NewRunner(orch,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithLogger(logger),
	).Run(ctx, roots)
	if summary != nil {
		zlog.Info().
			Str("job", summary.JobID.String()).
			Int("levels", summary.Levels).
			Int("processed", summary.Processed).
			Int("extracted", summary.Extracted).
			Int("skipped", summary.Skipped).
			Int("errors", summary.Errors).
			Int("outputs", summary.Outputs).
			Int("warnings", len(recorder.MessagesAt(report.LevelWarning))).
			Int("error_messages", len(recorder.MessagesAt(report.LevelError))).
			Dur("duration", summary.Duration).
			Msg("extraction summary")
	}
	if printMetrics {
		if werr := m.WriteText(os.Stdout); werr != nil {
			zlog.Error().Err(werr).Msg("failed to write metrics")
		}
	}
	return err
}
