package filesystem

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFreeSpace(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("free space query is unix only")
	}
	dir := t.TempDir()

	free := FreeSpace(dir)
	assert.Greater(t, free, int64(0))

	// missing directories resolve to their nearest existing ancestor
	assert.Equal(t, free > 0, FreeSpace(filepath.Join(dir, "not", "yet", "created")) > 0)
}
