package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	internal "github.com/ZanzyTHEbar/arcx/arcx"
	"github.com/ZanzyTHEbar/arcx/arcx/container"
	"github.com/ZanzyTHEbar/arcx/arcx/content"
	"github.com/ZanzyTHEbar/arcx/arcx/db"
	"github.com/ZanzyTHEbar/arcx/arcx/filesystem"
	"github.com/ZanzyTHEbar/arcx/arcx/metrics"
	"github.com/ZanzyTHEbar/arcx/arcx/report"
	"github.com/ZanzyTHEbar/arcx/arcx/trees"
)

// Status is the pipeline-facing result of processing one item
type Status int

const (
	StatusOK Status = iota
	StatusError
)

func (s Status) String() string {
	if s == StatusError {
		return "error"
	}
	return "ok"
}

// Outcome says which branch of the extraction state machine finished an item
type Outcome string

const (
	OutcomeNotArchive       Outcome = "not_archive"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeDepthLimit       Outcome = "depth_limit"
	OutcomeOpenFailed       Outcome = "open_failed"
	OutcomeWorkDirFailed    Outcome = "workdir_failed"
	OutcomeCommitFailed     Outcome = "commit_failed"
	OutcomeExtracted        Outcome = "extracted"
	OutcomeCancelled        Outcome = "cancelled"
)

// Result is returned for every processed item. Outputs are the newly
// registered items the pipeline should schedule next.
type Result struct {
	Status     Status
	Outcome    Outcome
	Outputs    []content.Item
	Encryption EncryptionLevel
	Err        error
}

// jobState is shared by every Process call of one ingest job
type jobState struct {
	refs     atomic.Int64
	ancestry *AncestryTracker
}

// Orchestrator unpacks archives into the case. It is safe for concurrent
// use by many workers; each Process call handles one item sequentially.
type Orchestrator struct {
	store      db.ContentStore
	sink       report.Sink
	limits     Limits
	logger     *slog.Logger
	metrics    *metrics.ExtractorMetrics
	freeSpace  filesystem.FreeSpaceFunc
	open       container.Opener
	outputAbs  string
	outputRel  string
	module     string
	classifier *Classifier
	bomb       BombHeuristic

	jobsMu sync.Mutex
	jobs   sync.Map // uuid.UUID -> *jobState
}

type Option func(*Orchestrator)

func WithLimits(l Limits) Option {
	return func(o *Orchestrator) {
		o.limits = l.withDefaults()
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.ExtractorMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithFreeSpaceFunc replaces the OS free-space lookup
func WithFreeSpaceFunc(fn filesystem.FreeSpaceFunc) Option {
	return func(o *Orchestrator) {
		o.freeSpace = fn
	}
}

// WithOpener replaces container.Open
func WithOpener(open container.Opener) Option {
	return func(o *Orchestrator) {
		o.open = open
	}
}

// WithOutputDirs sets the module output directory, absolute and relative to
// the case directory; relative paths are what gets stored with derived items
func WithOutputDirs(abs, rel string) Option {
	return func(o *Orchestrator) {
		o.outputAbs = abs
		o.outputRel = rel
	}
}

func WithModuleName(name string) Option {
	return func(o *Orchestrator) {
		o.module = name
	}
}

func New(store db.ContentStore, sink report.Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		sink:      sink,
		limits:    DefaultLimits(),
		logger:    slog.Default(),
		freeSpace: filesystem.FreeSpace,
		open:      container.Open,
		outputAbs: internal.DefaultModuleOutputDir,
		outputRel: internal.DefaultModuleOutputDir,
		module:    internal.ModuleName,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.classifier = NewClassifier(store, o.outputAbs, o.limits.ExtraExtensions, o.logger)
	o.bomb = NewBombHeuristic(o.limits)
	return o
}

// StartJob takes a reference on a job's shared state. The first reference
// creates the module output directory and an empty ancestry table.
func (o *Orchestrator) StartJob(jobID uuid.UUID) error {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()

	if v, ok := o.jobs.Load(jobID); ok {
		v.(*jobState).refs.Add(1)
		return nil
	}
	if err := os.MkdirAll(o.outputAbs, 0o755); err != nil {
		return fmt.Errorf("failed to create module output directory %s: %w", o.outputAbs, err)
	}
	js := &jobState{ancestry: NewAncestryTracker()}
	js.refs.Add(1)
	o.jobs.Store(jobID, js)
	o.logger.Debug("Started extraction job", "job", jobID)
	return nil
}

// EndJob drops a reference; the last one discards the job's ancestry table
func (o *Orchestrator) EndJob(jobID uuid.UUID) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()

	v, ok := o.jobs.Load(jobID)
	if !ok {
		return
	}
	if v.(*jobState).refs.Add(-1) <= 0 {
		o.jobs.Delete(jobID)
		o.logger.Debug("Ended extraction job", "job", jobID)
	}
}

// Ancestry returns the ancestry table of a running job
func (o *Orchestrator) Ancestry(jobID uuid.UUID) (*AncestryTracker, bool) {
	v, ok := o.jobs.Load(jobID)
	if !ok {
		return nil, false
	}
	return v.(*jobState).ancestry, true
}

// Process runs the extraction state machine for one item. Entry-level
// problems are reported and skipped; only open and commit failures turn the
// item's status into an error, and nothing here aborts the job.
func (o *Orchestrator) Process(ctx context.Context, jobID uuid.UUID, item content.Item) Result {
	ancestry, ok := o.Ancestry(jobID)
	if !ok {
		return Result{Status: StatusError, Err: fmt.Errorf("%w: %s", ErrUnknownJob, jobID)}
	}
	if err := ctx.Err(); err != nil {
		return Result{Status: StatusError, Outcome: OutcomeCancelled, Err: err}
	}

	switch o.classifier.Classify(ctx, item) {
	case ClassNotArchive:
		return Result{Status: StatusOK, Outcome: OutcomeNotArchive}
	case ClassAlreadyProcessed:
		return Result{Status: StatusOK, Outcome: OutcomeAlreadyProcessed}
	}

	start := time.Now()
	res := o.unpack(ctx, ancestry, item)
	o.metrics.IncArchive(string(res.Outcome))
	o.metrics.ObserveArchiveDuration(time.Since(start).Seconds())
	return res
}

func (o *Orchestrator) unpack(ctx context.Context, ancestry *AncestryTracker, item content.Item) Result {
	node, found := ancestry.Find(item.ID())
	if !found {
		node = ancestry.Add(nil, item.ID())
	}
	if node.Depth >= o.limits.MaxDepth {
		o.logger.Warn("Archive nested too deeply, not unpacking", "item", item.UniquePath(), "depth", node.Depth)
		o.sink.Post(report.Warning(o.module,
			fmt.Sprintf("Possible ZIP bomb detected: %s", item.Name()),
			fmt.Sprintf("The archive is %d levels deep, skipping processing of %s", node.Depth, item.UniquePath())))
		return Result{Status: StatusOK, Outcome: OutcomeDepthLimit}
	}

	src, err := item.Open()
	if err != nil {
		return o.openFailed(item, err)
	}
	defer src.Close()

	archive, err := o.open(src, item.Size(), item.Name())
	if err != nil {
		return o.openFailed(item, err)
	}
	defer func() {
		if err := archive.Close(); err != nil {
			o.logger.Error("Error closing archive", "item", item.UniquePath(), "error", err)
		}
	}()

	wd, err := newWorkDir(o.outputAbs, o.outputRel, UniqueName(item))
	if err != nil {
		o.logger.Error("Error creating extraction directory", "item", item.UniquePath(), "error", err)
		return Result{Status: StatusError, Outcome: OutcomeWorkDirFailed, Err: err}
	}

	u := &unpacking{
		o:       o,
		item:    item,
		archive: archive,
		wd:      wd,
		budget:  NewDiskBudget(o.freeSpace(o.outputAbs), o.limits.MinFreeDiskSpace),
		enc:     NewEncryptionAggregator(),
		tree:    trees.NewUnpackedTree(wd.rel, item, trees.WithLogger(o.logger), trees.WithModule(o.module)),
	}
	u.iterate()

	if err := u.tree.Commit(ctx, o.store); err != nil {
		o.logger.Error("Error populating complete derived file hierarchy from the unpacked dir structure", "item", item.UniquePath(), "error", err)
		o.sink.Post(report.Error(o.module,
			fmt.Sprintf("Error adding extracted files from %s", item.Name()),
			fmt.Sprintf("Error adding derived files extracted from %s to the case: %v", item.UniquePath(), err)))
		return Result{Status: StatusError, Outcome: OutcomeCommitFailed, Err: fmt.Errorf("%w: %w", ErrCommitFailure, err)}
	}

	outputs := u.tree.AllItems()
	for _, out := range outputs {
		if o.classifier.IsArchive(ctx, out) {
			ancestry.Add(node, out.ID())
		}
	}

	level := u.enc.Finalize()
	o.reportEncryption(ctx, item, level)

	if len(outputs) > 0 {
		o.sink.ContentChanged(report.ContentEvent{Module: o.module, ItemID: item.ID(), NewItems: len(outputs)})
		o.sink.Post(report.Info(o.module,
			fmt.Sprintf("Extracted %d items from %s", len(outputs), item.Name()),
			fmt.Sprintf("Contents of %s were added under %s", item.UniquePath(), wd.rel)))
	}
	return Result{Status: StatusOK, Outcome: OutcomeExtracted, Outputs: outputs, Encryption: level}
}

func (o *Orchestrator) openFailed(item content.Item, err error) Result {
	o.logger.Warn("Error unpacking file", "item", item.UniquePath(), "error", err)
	// unallocated files are often partially overwritten, so only log them
	if item.Allocated() {
		o.sink.Post(report.Error(o.module,
			fmt.Sprintf("Error unpacking %s", item.Name()),
			fmt.Sprintf("Error unpacking (%s), %v", item.UniquePath(), err)))
	}
	return Result{Status: StatusError, Outcome: OutcomeOpenFailed, Err: fmt.Errorf("%w: %w", ErrOpenFailure, err)}
}

func (o *Orchestrator) reportEncryption(ctx context.Context, item content.Item, level EncryptionLevel) {
	if level == EncryptionNone {
		return
	}
	err := o.store.AddArtifact(ctx, report.Artifact{
		ItemID: item.ID(),
		Type:   report.ArtifactEncryptionDetected,
		Module: o.module,
		Value:  level.ArtifactValue(),
	})
	if err != nil {
		o.logger.Error("Error creating artifact for encryption detected", "item", item.UniquePath(), "error", err)
	} else {
		o.sink.DataChanged(report.DataEvent{Module: o.module, ArtifactType: report.ArtifactEncryptionDetected})
	}

	o.sink.Post(report.Warning(o.module,
		"Encrypted files in archive detected",
		fmt.Sprintf("Some files in archive: %s are encrypted. %s extractor was unable to extract all files from this archive.", item.Name(), o.module)))
}

// unpacking is the state of one Process call. It is never shared between
// goroutines, so nothing in it is synchronized.
type unpacking struct {
	o       *Orchestrator
	item    content.Item
	archive container.Archive
	wd      workDir
	budget  *DiskBudget
	enc     *EncryptionAggregator
	tree    *trees.UnpackedTree
}

// iterate walks every entry once. A broken entry stream ends the walk but
// keeps whatever was extracted before it.
func (u *unpacking) iterate() {
	for index := 0; ; index++ {
		entry, err := u.archive.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			u.o.logger.Warn("Error reading archive entries", "item", u.item.UniquePath(), "entry", index, "error", err)
			u.o.sink.Post(report.Warning(u.o.module,
				fmt.Sprintf("Error unpacking %s", u.item.Name()),
				fmt.Sprintf("Stopped reading %s after %d entries: %v", u.item.UniquePath(), index, err)))
			return
		}
		u.enc.Observe(u.entry(index, entry))
	}
}

// entry handles one entry and reports whether it turned out to be encrypted
func (u *unpacking) entry(index int, entry *container.Entry) bool {
	o := u.o
	entryPath := entry.Path
	if len(trees.SplitEntryPath(entryPath)) == 0 {
		entryPath = trees.SyntheticEntryPath(u.item.Name(), index)
		o.logger.Warn("Unknown item path in archive, using synthesized name",
			"archive", u.item.UniquePath(), "path", entryPath)
	}

	if entry.IsEncrypted {
		o.logger.Info("Skipping encrypted entry", "archive", u.item.UniquePath(), "entry", entryPath)
		o.metrics.IncEntrySkipped(metrics.SkipEncrypted)
		return true
	}

	if check := o.bomb.Check(entry.Size, entry.PackedSize); check.Verdict == BombSuspect {
		u.reportBomb(entryPath, check.Ratio)
		return false
	} else if !check.Computable && entry.Size >= o.limits.MinCompressionRatioSize {
		o.logger.Info("Unable to compute compression ratio, unpacking anyway", "archive", u.item.UniquePath(), "entry", entryPath)
	}

	if u.budget.BeforeExtract(entry.Size) == BudgetInsufficient {
		u.reportNoSpace(entryPath)
		return false
	}

	// change time is not carried by any container format
	var ctime int64
	crtime, atime, mtime := unixOrZero(entry.CreationTime), unixOrZero(entry.AccessTime), unixOrZero(entry.ModTime)
	dst, rel := u.wd.entryLocation(index, entryPath)

	if entry.IsDir {
		if err := os.MkdirAll(dst, 0o755); err != nil {
			u.entryFailed(entryPath, err)
			return false
		}
		node := u.tree.Find(entryPath)
		node.LocalRelPath = rel
		u.tree.AddDerivedInfo(node, 0, false, ctime, crtime, atime, mtime)
		return false
	}

	m, err := materializeFile(dst, entry, u.budget, o.bomb)
	switch {
	case errors.Is(err, container.ErrEncryptedEntry):
		o.logger.Info("Entry could not be decrypted, skipping", "archive", u.item.UniquePath(), "entry", entryPath)
		o.metrics.IncEntrySkipped(metrics.SkipEncrypted)
		return true
	case errors.Is(err, ErrOutOfSpace):
		u.reportNoSpace(entryPath)
		return false
	case errors.Is(err, ErrBombSuspect):
		u.reportBomb(entryPath, o.bomb.Check(m.written, entry.PackedSize).Ratio)
		return false
	case err != nil:
		u.entryFailed(entryPath, err)
		return false
	}

	node := u.tree.Find(entryPath)
	node.LocalRelPath = rel
	u.tree.AddDerivedInfo(node, m.written, true, ctime, crtime, atime, mtime)
	u.tree.SetDigest(node, m.digest)
	o.metrics.IncEntryExtracted(m.written)
	return false
}

func (u *unpacking) reportBomb(entryPath string, ratio int64) {
	o := u.o
	o.logger.Warn("Possible ZIP bomb detected", "archive", u.item.UniquePath(), "entry", entryPath, "ratio", ratio)
	o.sink.Post(report.Warning(o.module,
		fmt.Sprintf("Possible ZIP bomb detected in archive: %s, item: %s", u.item.Name(), entryPath),
		fmt.Sprintf("The archive item compression ratio is %d, skipping processing of this archive item.", ratio)))
	o.metrics.IncEntrySkipped(metrics.SkipBomb)
}

func (u *unpacking) reportNoSpace(entryPath string) {
	o := u.o
	o.logger.Error("Not enough disk space to unpack archive item", "archive", u.item.UniquePath(), "entry", entryPath, "remaining", u.budget.Remaining())
	o.sink.Post(report.Error(o.module,
		fmt.Sprintf("Not enough disk space to unpack archive item: %s, %s", u.item.Name(), entryPath),
		"The archive item is too large to unpack, skipping unpacking this item."))
	o.metrics.IncEntrySkipped(metrics.SkipDisk)
}

func (u *unpacking) entryFailed(entryPath string, err error) {
	o := u.o
	o.logger.Warn("Error unpacking archive item", "archive", u.item.UniquePath(), "entry", entryPath, "error", err)
	o.sink.Post(report.Warning(o.module,
		fmt.Sprintf("Error unpacking %s from %s", entryPath, u.item.Name()),
		err.Error()))
	o.metrics.IncEntrySkipped(metrics.SkipIO)
}
