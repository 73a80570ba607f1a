package extractor

import "sync"

// AncestryNode records how deeply an archive is nested inside other
// archives processed by the same job. Nodes are never mutated once stored.
type AncestryNode struct {
	ItemID int64
	Parent *AncestryNode
	Depth  int
}

// AncestryTracker is a per-job table of AncestryNodes keyed by item id.
// Lookups and inserts for different items do not contend on a shared lock.
type AncestryTracker struct {
	nodes sync.Map // int64 -> *AncestryNode
}

func NewAncestryTracker() *AncestryTracker {
	return &AncestryTracker{}
}

// Find returns the node recorded for an item
func (t *AncestryTracker) Find(itemID int64) (*AncestryNode, bool) {
	v, ok := t.nodes.Load(itemID)
	if !ok {
		return nil, false
	}
	return v.(*AncestryNode), true
}

// Add records itemID as a child of parent (nil for a root archive). When the
// item is already recorded the existing node wins and is returned.
func (t *AncestryTracker) Add(parent *AncestryNode, itemID int64) *AncestryNode {
	node := &AncestryNode{ItemID: itemID, Parent: parent}
	if parent != nil {
		node.Depth = parent.Depth + 1
	}
	actual, _ := t.nodes.LoadOrStore(itemID, node)
	return actual.(*AncestryNode)
}

// Len returns the number of recorded archives
func (t *AncestryTracker) Len() int {
	n := 0
	t.nodes.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
