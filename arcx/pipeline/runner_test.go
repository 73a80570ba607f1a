package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/ZanzyTHEbar/arcx/arcx/content"
	"github.com/ZanzyTHEbar/arcx/arcx/db"
	"github.com/ZanzyTHEbar/arcx/arcx/extractor"
	"github.com/ZanzyTHEbar/arcx/arcx/filesystem"
	"github.com/ZanzyTHEbar/arcx/arcx/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipOf(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type fixture struct {
	caseDir string
	store   *db.MockContentStore
	orch    *extractor.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	caseDir := t.TempDir()
	store := db.NewMockContentStore(caseDir)
	orch := extractor.New(store, report.NewRecordingSink(),
		extractor.WithOutputDirs(filepath.Join(caseDir, "ModuleOutput", "ArchiveExtractor"), "ModuleOutput/ArchiveExtractor"),
		extractor.WithFreeSpaceFunc(func(string) int64 { return filesystem.DiskFreeSpaceUnknown }),
	)
	return &fixture{caseDir: caseDir, store: store, orch: orch}
}

func (f *fixture) evidence(t *testing.T, name string, data []byte) content.Item {
	p := filepath.Join(f.caseDir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return f.store.AddRoot(name, p, int64(len(data)))
}

func TestRunnerRecursesIntoNestedArchives(t *testing.T) {
	tests := []struct {
		name       string
		workers    int
		duplicated bool
	}{
		{name: "single worker", workers: 1},
		{name: "duplicate roots are scheduled once", workers: 4, duplicated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			inner := zipOf(t, map[string][]byte{"b.txt": []byte("bravo")})
			root := f.evidence(t, "a.zip", zipOf(t, map[string][]byte{
				"inner.zip": inner,
				"c.txt":     []byte("charlie"),
			}))
			roots := []content.Item{root}
			if tt.duplicated {
				roots = append(roots, root)
			}

			summary, err := NewRunner(f.orch, WithWorkers(tt.workers)).Run(context.Background(), roots)
			require.NoError(t, err)

			assert.Equal(t, 3, summary.Levels)
			assert.Equal(t, 4, summary.Processed)
			assert.Equal(t, 2, summary.Extracted)
			assert.Equal(t, 2, summary.Skipped)
			assert.Zero(t, summary.Errors)
			assert.Equal(t, 3, summary.Outputs)

			_, running := f.orch.Ancestry(summary.JobID)
			assert.False(t, running)
		})
	}
}

func TestRunnerCountsErrors(t *testing.T) {
	f := newFixture(t)
	broken := f.evidence(t, "broken.zip", []byte("definitely not a zip"))
	plain := f.evidence(t, "notes.txt", []byte("notes"))

	summary, err := NewRunner(f.orch).Run(context.Background(), []content.Item{broken, plain})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Outputs)
}

func TestRunnerCancelled(t *testing.T) {
	f := newFixture(t)
	root := f.evidence(t, "a.zip", zipOf(t, map[string][]byte{"x.txt": []byte("x")}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := NewRunner(f.orch).Run(ctx, []content.Item{root})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Zero(t, summary.Processed)
	assert.Empty(t, f.store.Calls())
}

func TestDefaultWorkers(t *testing.T) {
	n := DefaultWorkers()
	assert.GreaterOrEqual(t, n, 4)
	assert.LessOrEqual(t, n, 32)
}
