package extractor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/arcx/arcx/container"
	"github.com/ZanzyTHEbar/arcx/arcx/content"
	"github.com/ZanzyTHEbar/arcx/arcx/db"
)

// ZipMimeType is the content-type attribute value that marks an item as zip
const ZipMimeType = "application/zip"

// SupportedExtensions are the archive extensions accepted without sniffing
var SupportedExtensions = []string{"zip", "rar", "arj", "7z", "7zip", "gzip", "gz", "bzip2", "tar", "tgz"}

// Classification is why an item was or was not accepted
type Classification int

const (
	ClassNotArchive Classification = iota
	ClassAlreadyProcessed
	ClassArchive
)

func (c Classification) String() string {
	switch c {
	case ClassAlreadyProcessed:
		return "already_processed"
	case ClassArchive:
		return "archive"
	default:
		return "not_archive"
	}
}

// Classifier decides whether a content item is a processable archive
type Classifier struct {
	store      db.ContentStore
	outputAbs  string
	extensions map[string]struct{}
	logger     *slog.Logger
}

// NewClassifier builds a classifier; outputAbs is the module output
// directory holding per-archive working directories
func NewClassifier(store db.ContentStore, outputAbs string, extra []string, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	exts := make(map[string]struct{}, len(SupportedExtensions)+len(extra))
	for _, e := range SupportedExtensions {
		exts[e] = struct{}{}
	}
	for _, e := range extra {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			exts[e] = struct{}{}
		}
	}
	return &Classifier{store: store, outputAbs: outputAbs, extensions: exts, logger: logger}
}

// IsSupportedArchive reports whether item should be unpacked now
func (c *Classifier) IsSupportedArchive(ctx context.Context, item content.Item) bool {
	return c.Classify(ctx, item) == ClassArchive
}

// IsArchive is IsSupportedArchive without the already-processed check
func (c *Classifier) IsArchive(ctx context.Context, item content.Item) bool {
	return c.eligible(item) && c.looksLikeArchive(ctx, item)
}

// Classify runs the checks in order: eligibility, already processed,
// extension, recorded content type, zip signature
func (c *Classifier) Classify(ctx context.Context, item content.Item) Classification {
	if !c.eligible(item) {
		return ClassNotArchive
	}
	if c.alreadyProcessed(ctx, item) {
		return ClassAlreadyProcessed
	}
	if c.looksLikeArchive(ctx, item) {
		return ClassArchive
	}
	return ClassNotArchive
}

func (c *Classifier) eligible(item content.Item) bool {
	if item.Type() == content.FileTypeUnallocBlocks {
		return false
	}
	if k := item.Known(); k == content.KnownGood || k == content.KnownBad {
		return false
	}
	return item.IsFile()
}

// alreadyProcessed: an item with extracted children and an existing working
// directory was unpacked by an earlier run
func (c *Classifier) alreadyProcessed(ctx context.Context, item content.Item) bool {
	hasChildren, err := c.store.HasChildren(ctx, item.ID())
	if err != nil {
		c.logger.Warn("Error checking if file already has been processed, skipping", "item", item.UniquePath(), "error", err)
		return true
	}
	if !hasChildren {
		return false
	}
	if _, err := os.Stat(filepath.Join(c.outputAbs, UniqueName(item))); err == nil {
		c.logger.Info("File already has been processed as it has children and local unpacked file, skipping", "item", item.UniquePath())
		return true
	}
	return false
}

func (c *Classifier) looksLikeArchive(ctx context.Context, item content.Item) bool {
	if _, ok := c.extensions[content.Extension(item.Name())]; ok {
		return true
	}

	mime, found, err := c.store.FileTypeSignature(ctx, item.ID())
	if err != nil {
		c.logger.Warn("Error reading file type attribute", "item", item.UniquePath(), "error", err)
	} else if found {
		return mime == ZipMimeType
	}

	return c.hasZipSignature(item)
}

func (c *Classifier) hasZipSignature(item content.Item) bool {
	magic := container.ZipMagic()
	if item.Size() < int64(len(magic)) {
		return false
	}
	src, err := item.Open()
	if err != nil {
		c.logger.Warn("Error opening file to check signature", "item", item.UniquePath(), "error", err)
		return false
	}
	defer src.Close()

	header := make([]byte, len(magic))
	if _, err := src.ReadAt(header, 0); err != nil && !errors.Is(err, io.EOF) {
		c.logger.Warn("Error reading file signature", "item", item.UniquePath(), "error", err)
		return false
	}
	return bytes.Equal(header, magic)
}

// UniqueName is the per-archive working directory name, unique within a case
func UniqueName(item content.Item) string {
	return item.Name() + "_" + strconv.FormatInt(item.ID(), 10)
}
