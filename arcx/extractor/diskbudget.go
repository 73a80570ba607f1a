package extractor

import "github.com/ZanzyTHEbar/arcx/arcx/filesystem"

// BudgetVerdict is the outcome of a disk budget reservation
type BudgetVerdict int

const (
	BudgetOK BudgetVerdict = iota
	BudgetInsufficient
)

func (v BudgetVerdict) String() string {
	if v == BudgetInsufficient {
		return "insufficient"
	}
	return "ok"
}

// DiskBudget is a running estimate of free space for one archive. It is
// read once from the OS and then only decremented locally, so it is not
// synchronized with other extractions writing to the same volume.
type DiskBudget struct {
	remaining int64
	minFree   int64
	tracking  bool
}

// NewDiskBudget starts from free bytes; filesystem.DiskFreeSpaceUnknown
// disables tracking
func NewDiskBudget(free, minFree int64) *DiskBudget {
	if free == filesystem.DiskFreeSpaceUnknown || free < 0 {
		return &DiskBudget{minFree: minFree}
	}
	return &DiskBudget{remaining: free, minFree: minFree, tracking: true}
}

func (d *DiskBudget) Tracking() bool { return d.tracking }

// Remaining returns the estimate, or filesystem.DiskFreeSpaceUnknown
func (d *DiskBudget) Remaining() int64 {
	if !d.tracking {
		return filesystem.DiskFreeSpaceUnknown
	}
	return d.remaining
}

// BeforeExtract reserves size bytes. The reservation is refused, and the
// estimate left untouched, when it would cut into the safety margin.
// Unknown sizes (<= 0) always pass.
func (d *DiskBudget) BeforeExtract(size int64) BudgetVerdict {
	if !d.tracking || size <= 0 {
		return BudgetOK
	}
	projected := d.remaining - size
	if projected < d.minFree {
		return BudgetInsufficient
	}
	d.remaining = projected
	return BudgetOK
}

// Consume charges bytes written for an entry whose size was not known up front
func (d *DiskBudget) Consume(n int64) {
	if !d.tracking || n <= 0 {
		return
	}
	d.remaining -= n
	if d.remaining < 0 {
		d.remaining = 0
	}
}
