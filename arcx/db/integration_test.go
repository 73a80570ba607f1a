package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/arcx/arcx/content"
	"github.com/ZanzyTHEbar/arcx/arcx/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestContentDBIntegration exercises the libsql-backed store end to end
func TestContentDBIntegration(t *testing.T) {
	ctx := context.Background()
	caseDir := t.TempDir()

	store, err := NewContentDB(filepath.Join(caseDir, "case.db"), caseDir)
	require.NoError(t, err)
	defer store.Close()

	evidence := filepath.Join(caseDir, "evidence.zip")
	require.NoError(t, os.WriteFile(evidence, []byte("PK\x03\x04rest"), 0o644))

	root, err := store.AddLocalFile(ctx, evidence)
	require.NoError(t, err)
	assert.Equal(t, "evidence.zip", root.Name())
	assert.Equal(t, content.FileTypeLocal, root.Type())
	assert.Equal(t, int64(8), root.Size())

	t.Run("AddDerivedContent", func(t *testing.T) {
		dir, err := store.AddDerivedContent(ctx, DerivedContent{
			Name:         "dirA",
			LocalRelPath: "ModuleOutput/x/dirA",
			ParentID:     root.ID(),
			Module:       "test",
		})
		require.NoError(t, err)

		file, err := store.AddDerivedContent(ctx, DerivedContent{
			Name:         "fileA.txt",
			LocalRelPath: "ModuleOutput/x/dirA/fileA.txt",
			Size:         5,
			Mtime:        1700000000,
			IsFile:       true,
			ParentID:     dir.ID(),
			Digest:       "abc",
		})
		require.NoError(t, err)
		assert.Equal(t, dir.ID(), file.ParentID())
		assert.Equal(t, "/evidence.zip/dirA/fileA.txt", file.UniquePath())

		files, err := store.Children(ctx, dir.ID())
		require.NoError(t, err)
		require.Len(t, files, 1)
		fetched := files[0]
		assert.Equal(t, file.ID(), fetched.ID())
		assert.Equal(t, "fileA.txt", fetched.Name())
		assert.True(t, fetched.IsFile())
		assert.Equal(t, filepath.Join(caseDir, "ModuleOutput/x/dirA/fileA.txt"), fetched.LocalPath())
		assert.Equal(t, "abc", fetched.Digest)

		children, err := store.Children(ctx, root.ID())
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, "dirA", children[0].Name())
	})

	t.Run("AddDerivedContent rejects a missing parent", func(t *testing.T) {
		_, err := store.AddDerivedContent(ctx, DerivedContent{Name: "orphan", ParentID: 424242})
		assert.ErrorIs(t, err, ErrInvalidParent)
	})

	t.Run("HasChildren", func(t *testing.T) {
		has, err := store.HasChildren(ctx, root.ID())
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("FileTypeSignature", func(t *testing.T) {
		_, found, err := store.FileTypeSignature(ctx, root.ID())
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, store.SetFileTypeSignature(ctx, root.ID(), "application/octet-stream"))
		require.NoError(t, store.SetFileTypeSignature(ctx, root.ID(), "application/zip"))
		mime, found, err := store.FileTypeSignature(ctx, root.ID())
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "application/zip", mime)
	})

	t.Run("Artifacts", func(t *testing.T) {
		require.NoError(t, store.AddArtifact(ctx, report.Artifact{
			ItemID: root.ID(),
			Type:   report.ArtifactEncryptionDetected,
			Module: "test",
			Value:  report.EncryptionFull,
		}))
		artifacts, err := store.Artifacts(ctx, root.ID())
		require.NoError(t, err)
		require.Len(t, artifacts, 1)
		assert.Equal(t, report.EncryptionFull, artifacts[0].Value)
	})

	t.Run("AddLocalFile returns the existing root", func(t *testing.T) {
		again, err := store.AddLocalFile(ctx, evidence)
		require.NoError(t, err)
		assert.Equal(t, root.ID(), again.ID())
		assert.Equal(t, evidence, again.(*File).LocalPath())

		roots, err := store.Children(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, roots, 1)
	})

	t.Run("Children of an unknown item", func(t *testing.T) {
		children, err := store.Children(ctx, 999999)
		require.NoError(t, err)
		assert.Empty(t, children)
	})
}

func TestResolveDSN(t *testing.T) {
	caseDir := filepath.Join(string(filepath.Separator), "cases", "c1")
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"relative path", "case.db", filepath.Join(caseDir, "case.db")},
		{"relative file uri", "file:db/case.db", "file:" + filepath.Join(caseDir, "db", "case.db")},
		{"absolute path", "/var/lib/case.db", "/var/lib/case.db"},
		{"absolute file uri", "file:/var/lib/case.db", "file:/var/lib/case.db"},
		{"in memory", ":memory:", ":memory:"},
		{"remote", "libsql://case.example.org", "libsql://case.example.org"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveDSN(tt.dsn, caseDir))
		})
	}

	assert.Equal(t, "case.db", ResolveDSN("case.db", ""), "no case directory leaves the dsn alone")
}
