package filesystem

import (
	"log/slog"
	"os"
	"path/filepath"
)

// DiskFreeSpaceUnknown is returned when free space cannot be determined;
// callers treat it as "do not track"
const DiskFreeSpaceUnknown int64 = -1

// FreeSpaceFunc reports bytes available to unprivileged writers at path
type FreeSpaceFunc func(path string) int64

// FreeSpace returns the bytes available on the volume holding path. A path
// that does not exist yet is measured at its nearest existing ancestor.
func FreeSpace(path string) int64 {
	dir, err := filepath.Abs(path)
	if err != nil {
		slog.Warn("Unable to resolve path for free space check", "path", path, "error", err)
		return DiskFreeSpaceUnknown
	}
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return DiskFreeSpaceUnknown
		}
		dir = parent
	}

	free, err := volumeFreeSpace(dir)
	if err != nil {
		slog.Warn("Unable to determine free disk space", "path", dir, "error", err)
		return DiskFreeSpaceUnknown
	}
	return free
}
