package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/arcx/arcx/content"
	"github.com/ZanzyTHEbar/arcx/arcx/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEvidence(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestClassifier(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	outputAbs := filepath.Join(dir, "out")
	store := db.NewMockContentStore(dir)
	c := NewClassifier(store, outputAbs, []string{".ZST"}, nil)

	zipBytes := []byte("PK\x03\x04rest-of-header")
	plain := []byte("just some text")

	addFile := func(name string, data []byte, mutate func(*db.FileOptions)) *db.File {
		o := db.FileOptions{
			Name:       name,
			Size:       int64(len(data)),
			Type:       content.FileTypeLocal,
			IsFile:     true,
			Allocated:  true,
			UniquePath: "/" + name,
			LocalPath:  writeEvidence(t, dir, name, data),
		}
		if mutate != nil {
			mutate(&o)
		}
		return store.AddItem(o)
	}

	t.Run("extensions", func(t *testing.T) {
		for _, name := range []string{"a.zip", "b.RAR", "c.arj", "d.7z", "e.7zip", "f.gzip", "g.gz", "h.bzip2", "i.tar", "j.tgz", "k.zst"} {
			item := addFile(name, plain, nil)
			assert.True(t, c.IsSupportedArchive(ctx, item), name)
		}
		assert.False(t, c.IsSupportedArchive(ctx, addFile("notes.txt", plain, nil)))
	})

	t.Run("ineligible items", func(t *testing.T) {
		unalloc := addFile("u.zip", zipBytes, func(o *db.FileOptions) { o.Type = content.FileTypeUnallocBlocks })
		good := addFile("kg.zip", zipBytes, func(o *db.FileOptions) { o.Known = content.KnownGood })
		bad := addFile("kb.zip", zipBytes, func(o *db.FileOptions) { o.Known = content.KnownBad })
		dirItem := addFile("folder.zip", zipBytes, func(o *db.FileOptions) { o.IsFile = false })

		for _, item := range []*db.File{unalloc, good, bad, dirItem} {
			assert.Equal(t, ClassNotArchive, c.Classify(ctx, item), item.Name())
		}
	})

	t.Run("content type attribute", func(t *testing.T) {
		zipTyped := addFile("blob1", plain, nil)
		store.SetFileTypeSignature(zipTyped.ID(), ZipMimeType)
		assert.True(t, c.IsSupportedArchive(ctx, zipTyped))

		// a recorded non-zip type wins over the magic number
		otherTyped := addFile("blob2", zipBytes, nil)
		store.SetFileTypeSignature(otherTyped.ID(), "application/octet-stream")
		assert.False(t, c.IsSupportedArchive(ctx, otherTyped))
	})

	t.Run("zip signature sniff", func(t *testing.T) {
		assert.True(t, c.IsSupportedArchive(ctx, addFile("blob3", zipBytes, nil)))
		assert.False(t, c.IsSupportedArchive(ctx, addFile("blob4", plain, nil)))
		assert.False(t, c.IsSupportedArchive(ctx, addFile("tiny", []byte("PK"), nil)))
		// gzip magic is never sniffed
		assert.False(t, c.IsSupportedArchive(ctx, addFile("blob5", []byte{0x1f, 0x8b, 8, 0, 0}, nil)))
	})

	t.Run("already processed", func(t *testing.T) {
		item := addFile("done.zip", zipBytes, nil)
		_, err := store.AddDerivedContent(ctx, db.DerivedContent{Name: "child", ParentID: item.ID()})
		require.NoError(t, err)

		// children alone are not enough
		assert.Equal(t, ClassArchive, c.Classify(ctx, item))

		require.NoError(t, os.MkdirAll(filepath.Join(outputAbs, UniqueName(item)), 0o755))
		assert.Equal(t, ClassAlreadyProcessed, c.Classify(ctx, item))
		assert.False(t, c.IsSupportedArchive(ctx, item))
		assert.True(t, c.IsArchive(ctx, item))
	})
}

func TestUniqueName(t *testing.T) {
	item := db.NewFile(db.FileOptions{ID: 42, Name: "evidence.7z"})
	assert.Equal(t, "evidence.7z_42", UniqueName(item))
}
