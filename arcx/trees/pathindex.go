package trees

import (
	"fmt"
	"strings"
	"sync"

	"github.com/armon/go-radix"
)

// PathIndexStats tracks lookup counters for the path index
type PathIndexStats struct {
	TotalNodes int64
	Lookups    int64
	Hits       int64
	Insertions int64
}

// PathIndex provides O(k) lookups of extraction nodes by their normalized
// in-archive path using a compressed trie (patricia tree)
type PathIndex struct {
	tree  *radix.Tree
	mu    sync.RWMutex
	stats PathIndexStats
}

// NewPathIndex creates an empty path index
func NewPathIndex() *PathIndex {
	return &PathIndex{tree: radix.New()}
}

// Insert maps the node's path to the node; an existing mapping is replaced
func (idx *PathIndex) Insert(path string, node *ExtractionNode) error {
	if node == nil {
		return fmt.Errorf("invalid input: node cannot be nil")
	}
	key := normalizeKey(path)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, updated := idx.tree.Insert(key, node)
	if !updated {
		idx.stats.TotalNodes++
	}
	idx.stats.Insertions++
	return nil
}

// Lookup finds a node by exact path
func (idx *PathIndex) Lookup(path string) (*ExtractionNode, bool) {
	key := normalizeKey(path)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.stats.Lookups++
	value, found := idx.tree.Get(key)
	if !found {
		return nil, false
	}
	idx.stats.Hits++
	return value.(*ExtractionNode), true
}

// Size returns the number of indexed paths
func (idx *PathIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

// GetStats returns a copy of the index counters
func (idx *PathIndex) GetStats() PathIndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.stats
}

// Validate checks that every indexed key matches the path of its node
func (idx *PathIndex) Validate() []error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var errs []error
	idx.tree.Walk(func(k string, v interface{}) bool {
		node, ok := v.(*ExtractionNode)
		if !ok || node == nil {
			errs = append(errs, fmt.Errorf("index key %s holds a nil node", k))
			return false
		}
		if got := normalizeKey(node.Path()); got != k {
			errs = append(errs, fmt.Errorf("index key %s points to node at %s", k, got))
		}
		return false
	})
	return errs
}

// normalizeKey turns an in-archive path into "/seg1/seg2" form
func normalizeKey(p string) string {
	segments := SplitEntryPath(p)
	if len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}
