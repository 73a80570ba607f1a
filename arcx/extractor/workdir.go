package extractor

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/ZanzyTHEbar/arcx/arcx/container"
	"github.com/ZanzyTHEbar/arcx/arcx/filesystem"
	"github.com/ZanzyTHEbar/arcx/arcx/trees"
)

// unknownSizeShare is the fraction of the free-space estimate a single write
// of an unknown-size entry may use
const unknownSizeShare = 0.8

// workDir is the local directory one archive is materialized into
type workDir struct {
	abs string
	rel string
}

func newWorkDir(outputAbs, outputRel, uniqueName string) (workDir, error) {
	wd := workDir{
		abs: filepath.Join(outputAbs, uniqueName),
		rel: path.Join(filepath.ToSlash(outputRel), uniqueName),
	}
	if err := os.MkdirAll(wd.abs, 0o755); err != nil {
		return wd, fmt.Errorf("%w: %s: %w", ErrWorkDir, wd.abs, err)
	}
	return wd, nil
}

// entryLocation returns where entry number index is written, absolute and
// relative to the case. Entries are laid out flat as
// <bucket>/<index>_<base name>, so archive paths can never collide with each
// other or point outside the working directory.
func (w workDir) entryLocation(index int, entryPath string) (abs, rel string) {
	base := "entry"
	if segments := trees.SplitEntryPath(entryPath); len(segments) > 0 {
		base = escapeFileName(segments[len(segments)-1])
	}
	bucket := strconv.Itoa(index / 1000)
	name := strconv.Itoa(index) + "_" + base
	return filepath.Join(w.abs, bucket, name), path.Join(w.rel, bucket, name)
}

var fileNameEscaper = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
)

// escapeFileName replaces characters that are not valid in file names on
// common filesystems
func escapeFileName(name string) string {
	return fileNameEscaper.Replace(name)
}

// materialized is what writing one file entry produced. written is set even
// when the write failed.
type materialized struct {
	written int64
	digest  string
}

// materializeFile streams entry into dst through a writeGuard and hashes it
// on the way. A failed write removes the partial file.
func materializeFile(dst string, entry *container.Entry, budget *DiskBudget, bomb BombHeuristic) (materialized, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return materialized{}, fmt.Errorf("failed to create parent directory: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return materialized{}, fmt.Errorf("failed to create %s: %w", dst, err)
	}

	hasher := blake3.New()
	guard := newWriteGuard(io.MultiWriter(f, hasher), entry, budget, bomb)

	written, err := entry.ExtractTo(guard)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close %s: %w", dst, closeErr)
	}
	if err != nil {
		if rmErr := os.Remove(dst); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
		return materialized{written: written}, err
	}

	if entry.Size <= 0 {
		budget.Consume(written)
	}
	return materialized{written: written, digest: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// writeGuard enforces limits on the bytes actually produced by an entry.
// A declared size caps the output. Without one, every chunk must stay
// comfortably below the free-space estimate left after what was already
// written, must not cut into the safety margin, and the running compression
// ratio against the packed size is rechecked after each write.
type writeGuard struct {
	w        io.Writer
	declared int64
	packed   int64
	free     int64
	minFree  int64
	bomb     BombHeuristic
	written  int64
}

func newWriteGuard(w io.Writer, entry *container.Entry, budget *DiskBudget, bomb BombHeuristic) *writeGuard {
	return &writeGuard{
		w:        w,
		declared: entry.Size,
		packed:   entry.PackedSize,
		free:     budget.Remaining(),
		minFree:  budget.minFree,
		bomb:     bomb,
	}
}

func (g *writeGuard) Write(p []byte) (int, error) {
	size := int64(len(p))
	if g.declared > 0 {
		if g.written+size > g.declared {
			return 0, fmt.Errorf("%w: declared %d bytes", ErrEntryOversize, g.declared)
		}
	} else if g.free != filesystem.DiskFreeSpaceUnknown {
		avail := g.free - g.written
		if float64(size) >= unknownSizeShare*float64(avail) || avail-size < g.minFree {
			return 0, ErrOutOfSpace
		}
	}

	n, err := g.w.Write(p)
	g.written += int64(n)
	if err != nil {
		return n, err
	}
	if g.declared <= 0 && g.bomb.Check(g.written, g.packed).Verdict == BombSuspect {
		return n, ErrBombSuspect
	}
	return n, nil
}

// unixOrZero converts to unix seconds, 0 for unset times
func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
