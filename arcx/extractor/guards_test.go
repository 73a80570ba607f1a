package extractor

import (
	"sync"
	"testing"

	"github.com/ZanzyTHEbar/arcx/arcx/filesystem"
	"github.com/ZanzyTHEbar/arcx/arcx/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBombHeuristic(t *testing.T) {
	b := NewBombHeuristic(DefaultLimits())

	tests := []struct {
		name         string
		uncompressed int64
		packed       int64
		want         BombVerdict
		ratio        int64
		computable   bool
	}{
		{"small entry with zero packed size", 1024, 0, BombOK, 0, false},
		{"small entry with extreme ratio", 499_999_999, 1, BombOK, 0, false},
		{"large entry unknown packed size", 2_000_000_000, 0, BombOK, 0, false},
		{"large entry negative packed size", 2_000_000_000, -1, BombOK, 0, false},
		{"large entry below threshold", 500_000_000, 1_000_000, BombOK, 500, true},
		{"ratio just under threshold", 599_999_999, 1_000_000, BombOK, 599, true},
		{"ratio at threshold", 600_000_000, 1_000_000, BombSuspect, 600, true},
		{"disk image ratio 2000", 2_000_000_000, 1_000_000, BombSuspect, 2000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Check(tt.uncompressed, tt.packed)
			assert.Equal(t, tt.want, got.Verdict)
			assert.Equal(t, tt.ratio, got.Ratio)
			assert.Equal(t, tt.computable, got.Computable)
		})
	}

	t.Run("custom limits", func(t *testing.T) {
		b := NewBombHeuristic(Limits{MaxCompressionRatio: 10, MinCompressionRatioSize: 100})
		assert.Equal(t, BombSuspect, b.Check(1000, 100).Verdict)
		assert.Equal(t, BombOK, b.Check(99, 1).Verdict)
	})
}

func TestDiskBudget(t *testing.T) {
	const gb = 1_000_000_000

	t.Run("unknown free space disables tracking", func(t *testing.T) {
		d := NewDiskBudget(filesystem.DiskFreeSpaceUnknown, gb)
		assert.False(t, d.Tracking())
		assert.Equal(t, BudgetOK, d.BeforeExtract(100*gb))
		assert.Equal(t, filesystem.DiskFreeSpaceUnknown, d.Remaining())
	})

	t.Run("reservations decrement the estimate", func(t *testing.T) {
		d := NewDiskBudget(gb+300, gb)
		assert.Equal(t, BudgetOK, d.BeforeExtract(100))
		assert.Equal(t, int64(gb+200), d.Remaining())
		assert.Equal(t, BudgetOK, d.BeforeExtract(200))
		assert.Equal(t, int64(gb), d.Remaining())
	})

	t.Run("refusal leaves the estimate untouched", func(t *testing.T) {
		d := NewDiskBudget(gb+100, gb)
		assert.Equal(t, BudgetInsufficient, d.BeforeExtract(101))
		assert.Equal(t, int64(gb+100), d.Remaining())
	})

	t.Run("unknown entry sizes always pass", func(t *testing.T) {
		d := NewDiskBudget(10, gb)
		assert.Equal(t, BudgetOK, d.BeforeExtract(0))
		assert.Equal(t, BudgetOK, d.BeforeExtract(-1))
		assert.Equal(t, int64(10), d.Remaining())
	})

	t.Run("consume never goes negative", func(t *testing.T) {
		d := NewDiskBudget(50, 0)
		d.Consume(20)
		assert.Equal(t, int64(30), d.Remaining())
		d.Consume(100)
		assert.Equal(t, int64(0), d.Remaining())
	})
}

func TestEncryptionAggregator(t *testing.T) {
	tests := []struct {
		name     string
		observed []bool
		want     EncryptionLevel
		artifact string
	}{
		{"no entries", nil, EncryptionNone, ""},
		{"none encrypted", []bool{false, false, false}, EncryptionNone, ""},
		{"one of three encrypted", []bool{false, true, false}, EncryptionPartial, report.EncryptionFileLevel},
		{"all encrypted", []bool{true, true}, EncryptionFull, report.EncryptionFull},
		{"encrypted after clear", []bool{true, false}, EncryptionPartial, report.EncryptionFileLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewEncryptionAggregator()
			for _, enc := range tt.observed {
				a.Observe(enc)
			}
			assert.Equal(t, tt.want, a.Finalize())
			assert.Equal(t, tt.artifact, a.Finalize().ArtifactValue())
		})
	}
}

func TestAncestryTracker(t *testing.T) {
	t.Run("depth grows by one per level", func(t *testing.T) {
		tr := NewAncestryTracker()
		root := tr.Add(nil, 1)
		assert.Equal(t, 0, root.Depth)

		child := tr.Add(root, 2)
		grandchild := tr.Add(child, 3)
		assert.Equal(t, 1, child.Depth)
		assert.Equal(t, 2, grandchild.Depth)
		assert.Same(t, child, grandchild.Parent)

		found, ok := tr.Find(3)
		require.True(t, ok)
		assert.Same(t, grandchild, found)

		_, ok = tr.Find(99)
		assert.False(t, ok)
		assert.Equal(t, 3, tr.Len())
	})

	t.Run("first registration wins", func(t *testing.T) {
		tr := NewAncestryTracker()
		root := tr.Add(nil, 1)
		child := tr.Add(root, 2)

		again := tr.Add(nil, 2)
		assert.Same(t, child, again)
		assert.Equal(t, 1, again.Depth)
	})

	t.Run("concurrent adds", func(t *testing.T) {
		tr := NewAncestryTracker()
		root := tr.Add(nil, 0)

		var wg sync.WaitGroup
		for i := int64(1); i <= 100; i++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				n := tr.Add(root, id)
				assert.Equal(t, 1, n.Depth)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 101, tr.Len())
	})
}
