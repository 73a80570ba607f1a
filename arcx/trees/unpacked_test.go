package trees

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/ZanzyTHEbar/arcx/arcx/content"
	"github.com/ZanzyTHEbar/arcx/arcx/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArchiveItem() *db.File {
	return db.NewFile(db.FileOptions{
		ID:         1,
		Name:       "a.zip",
		Size:       10,
		Type:       content.FileTypeLocal,
		IsFile:     true,
		Allocated:  true,
		UniquePath: "/a.zip",
	})
}

func TestUnpackedTreeFind(t *testing.T) {
	tree := NewUnpackedTree("ModuleOutput/ArchiveExtractor/a.zip_1", newArchiveItem())

	c := tree.Find("/a/b/c")
	assert.Same(t, c, tree.Find("/a/b/c"), "repeat lookups return the identical node")
	assert.Same(t, c, tree.Find(`a\b\c`), "both separators resolve to the same node")

	d := tree.Find("/a/b/d")
	require.NotSame(t, c, d)
	assert.Same(t, c.Parent(), d.Parent(), "d is a sibling of c")
	assert.Equal(t, "b", d.Parent().Name)
	assert.Len(t, d.Parent().Children(), 2)

	assert.Equal(t, "/a/b/d", d.Path())
	assert.Equal(t, "ModuleOutput/ArchiveExtractor/a.zip_1/a/b/d", d.LocalRelPath)
	assert.Same(t, tree.Root(), tree.Find(""))
	assert.Same(t, tree.Root(), tree.Find("//"))
	assert.Equal(t, 4, tree.Len())

	// intermediate nodes default to directories
	assert.True(t, tree.Find("/a").IsDirectory())
	assert.False(t, tree.Find("/a").Committed())
}

func TestUnpackedTreeCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("parents are registered before children", func(t *testing.T) {
		store := db.NewMockContentStore(t.TempDir())
		archive := store.AddRoot("a.zip", "/evidence/a.zip", 100)
		tree := NewUnpackedTree("out/a.zip_1", archive, WithModule("Archive Extractor"))

		// child seen before its directory, as a forward-only reader may report
		file := tree.Find("/dirA/fileA.txt")
		tree.AddDerivedInfo(file, 5, true, 0, 10, 20, 30)
		tree.SetDigest(file, "deadbeef")
		tree.AddDerivedInfo(tree.Find("/dirA"), 0, false, 0, 0, 0, 0)

		require.NoError(t, tree.Commit(ctx, store))

		calls := store.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, "dirA", calls[0].Name)
		assert.Equal(t, archive.ID(), calls[0].ParentID)
		assert.Equal(t, "fileA.txt", calls[1].Name)
		assert.Equal(t, "Archive Extractor", calls[1].Module)
		assert.Equal(t, "deadbeef", calls[1].Digest)
		assert.Equal(t, int64(10), calls[1].Crtime)

		dir := tree.Find("/dirA")
		assert.Equal(t, dir.Item().ID(), file.Item().ParentID())
		assert.Equal(t, "/a.zip/dirA/fileA.txt", file.Item().UniquePath())

		items := tree.AllItems()
		require.Len(t, items, 2)
		assert.Equal(t, "dirA", items[0].Name())
		assert.Equal(t, "fileA.txt", items[1].Name())
	})

	t.Run("a failed node skips only its subtree", func(t *testing.T) {
		store := db.NewMockContentStore(t.TempDir())
		archive := store.AddRoot("a.zip", "/evidence/a.zip", 100)
		boom := errors.New("disk full")
		store.FailOn("bad", boom)

		tree := NewUnpackedTree("out/a.zip_1", archive)
		tree.Find("/bad/inner.txt")
		tree.Find("/good/ok.txt")
		tree.Find("/top.txt")

		err := tree.Commit(ctx, store)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCommitFailed)
		assert.ErrorIs(t, err, boom)

		assert.False(t, tree.Find("/bad").Committed())
		assert.False(t, tree.Find("/bad/inner.txt").Committed())
		assert.True(t, tree.Find("/good/ok.txt").Committed())
		assert.True(t, tree.Find("/top.txt").Committed())

		for _, c := range store.Calls() {
			assert.NotEqual(t, "inner.txt", c.Name, "children of a failed node are never attempted")
		}
		assert.Len(t, tree.AllItems(), 3)
	})

	t.Run("index drift is logged and does not block commit", func(t *testing.T) {
		store := db.NewMockContentStore(t.TempDir())
		archive := store.AddRoot("a.zip", "/evidence/a.zip", 100)
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
		tree := NewUnpackedTree("out/a.zip_1", archive, WithLogger(logger))
		node := tree.Find("/a/b")
		require.NoError(t, tree.index.Insert("/elsewhere", node))

		require.NoError(t, tree.Commit(ctx, store))
		assert.True(t, node.Committed())
		assert.Contains(t, logs.String(), "Path index out of sync with the extraction tree")
		assert.Contains(t, logs.String(), "index key /elsewhere points to node at /a/b")
		assert.Contains(t, logs.String(), "Committing extraction tree")
	})

	t.Run("commit registers each node at most once", func(t *testing.T) {
		store := db.NewMockContentStore(t.TempDir())
		archive := store.AddRoot("a.zip", "/evidence/a.zip", 100)
		tree := NewUnpackedTree("out/a.zip_1", archive)
		tree.Find("/x/y")

		require.NoError(t, tree.Commit(ctx, store))
		require.NoError(t, tree.Commit(ctx, store))
		assert.Len(t, store.Calls(), 2)
	})

	t.Run("cancelled context stops registration", func(t *testing.T) {
		store := db.NewMockContentStore(t.TempDir())
		archive := store.AddRoot("a.zip", "/evidence/a.zip", 100)
		tree := NewUnpackedTree("out/a.zip_1", archive)
		tree.Find("/x")

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := tree.Commit(cctx, store)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, store.Calls())
	})

	t.Run("empty tree commits nothing", func(t *testing.T) {
		store := db.NewMockContentStore(t.TempDir())
		archive := store.AddRoot("a.zip", "/evidence/a.zip", 100)
		tree := NewUnpackedTree("out/a.zip_1", archive)

		require.NoError(t, tree.Commit(ctx, store))
		assert.Empty(t, tree.AllItems())
		assert.Zero(t, tree.Len())
	})
}

func TestSyntheticEntryPath(t *testing.T) {
	tests := []struct {
		name    string
		archive string
		index   int
		want    string
	}{
		{"gzip tarball", "logs.tar.gz", 0, "/logs.tar"},
		{"tgz", "x.tgz", 0, "/x.tar"},
		{"bzip2", "dump.sql.bz2", 0, "/dump.sql"},
		{"upper case", "DATA.GZ", 0, "/DATA"},
		{"alternate data stream", "a.gz:Zone", 0, "/a"},
		{"zstd", "trace.zst", 0, "/trace"},
		{"zip falls back to index", "evidence.zip", 3, "/evidence.zip/3"},
		{"no extension", "blob", 7, "/blob/7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SyntheticEntryPath(tt.archive, tt.index))
		})
	}
}

func TestSplitEntryPath(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitEntryPath("/a//b/"))
	assert.Equal(t, []string{"a", "b"}, SplitEntryPath(`a\b`))
	assert.Equal(t, []string{"etc", "passwd"}, SplitEntryPath("../../etc/passwd"))
	assert.Empty(t, SplitEntryPath("/"))
}
