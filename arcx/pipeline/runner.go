// Package pipeline is a minimal ingest pipeline around the extractor: it
// feeds evidence roots to the orchestrator and resubmits every derived item
// until nothing new turns up.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/ZanzyTHEbar/arcx/arcx/content"
	"github.com/ZanzyTHEbar/arcx/arcx/extractor"
)

// Summary tallies one Run
type Summary struct {
	JobID     uuid.UUID
	Levels    int
	Processed int
	Extracted int
	Skipped   int
	Errors    int
	Outputs   int
	Duration  time.Duration
}

func (s *Summary) record(res extractor.Result) {
	s.Processed++
	switch {
	case res.Status == extractor.StatusError:
		s.Errors++
	case res.Outcome == extractor.OutcomeExtracted:
		s.Extracted++
	default:
		s.Skipped++
	}
	s.Outputs += len(res.Outputs)
}

// Runner drives an Orchestrator over a tree of content
type Runner struct {
	orch    *extractor.Orchestrator
	workers int
	logger  *slog.Logger
}

type RunnerOption func(*Runner)

// WithWorkers bounds how many items are processed at once; n <= 0 keeps
// the CPU-derived default
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// DefaultWorkers is CPU cores * 2 for I/O bound work, clamped to [4, 32]
func DefaultWorkers() int {
	return min(max(runtime.NumCPU()*2, 4), 32)
}

func NewRunner(orch *extractor.Orchestrator, opts ...RunnerOption) *Runner {
	r := &Runner{
		orch:    orch,
		workers: DefaultWorkers(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes roots as a single job. Items are handled level by level:
// the outputs of one level become the next, and an item id is only ever
// scheduled once. Per-item failures are counted, not returned; the error is
// non-nil only when the job could not start or ctx was cancelled.
func (r *Runner) Run(ctx context.Context, roots []content.Item) (*Summary, error) {
	jobID := uuid.New()
	if err := r.orch.StartJob(jobID); err != nil {
		return nil, fmt.Errorf("failed to start job %s: %w", jobID, err)
	}
	defer r.orch.EndJob(jobID)

	start := time.Now()
	summary := &Summary{JobID: jobID}
	scheduled := roaring64.New()

	var mu sync.Mutex
	// workers call this with mu held
	schedule := func(items []content.Item) []content.Item {
		var out []content.Item
		for _, item := range items {
			if scheduled.CheckedAdd(uint64(item.ID())) {
				out = append(out, item)
			}
		}
		return out
	}

	level := schedule(roots)
	for len(level) > 0 {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
		summary.Levels++
		r.logger.Debug("Processing level", "job", jobID, "level", summary.Levels, "items", len(level))

		var next []content.Item
		levelPool := pool.New().WithMaxGoroutines(r.workers).WithContext(ctx)
		for _, item := range level {
			levelPool.Go(func(ctx context.Context) error {
				if ctx.Err() != nil {
					return nil
				}
				res := r.orch.Process(ctx, jobID, item)
				if res.Err != nil && res.Outcome != extractor.OutcomeCancelled {
					r.logger.Warn("Error processing item", "item", item.UniquePath(), "outcome", res.Outcome, "error", res.Err)
				}

				mu.Lock()
				defer mu.Unlock()
				summary.record(res)
				next = append(next, schedule(res.Outputs)...)
				return nil
			})
		}
		if err := levelPool.Wait(); err != nil {
			r.logger.Error("Level finished with errors", "job", jobID, "error", err)
		}
		level = next
	}

	summary.Duration = time.Since(start)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	r.logger.Info("Job finished", "job", jobID, "processed", summary.Processed,
		"extracted", summary.Extracted, "errors", summary.Errors, "outputs", summary.Outputs)
	return summary, nil
}
