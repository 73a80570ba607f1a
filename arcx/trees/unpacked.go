package trees

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/arcx/arcx/content"
	"github.com/ZanzyTHEbar/arcx/arcx/db"
)

var (
	ErrParentNotCommitted = errors.New("parent node has not been committed")
	ErrCommitFailed       = errors.New("failed to commit extracted content")
)

// Registrar persists one extracted node; db.ContentStore satisfies it
type Registrar interface {
	AddDerivedContent(ctx context.Context, d db.DerivedContent) (content.Item, error)
}

// ExtractionNode mirrors one path segment inside an archive. The root node
// stands for the archive itself and is never registered.
type ExtractionNode struct {
	Name         string
	LocalRelPath string
	Size         int64
	IsFile       bool
	Ctime        int64
	Crtime       int64
	Atime        int64
	Mtime        int64
	Digest       string

	parent   *ExtractionNode
	children []*ExtractionNode
	item     content.Item
}

// Parent returns the owning node, nil for the root
func (n *ExtractionNode) Parent() *ExtractionNode { return n.parent }

// Children returns the child nodes in creation order
func (n *ExtractionNode) Children() []*ExtractionNode { return n.children }

// Item returns the persisted handle, nil until committed
func (n *ExtractionNode) Item() content.Item { return n.item }

// Committed reports whether the node has been registered
func (n *ExtractionNode) Committed() bool { return n.item != nil }

// IsDirectory reports whether the node represents a directory
func (n *ExtractionNode) IsDirectory() bool { return !n.IsFile }

// Path returns the node's in-archive path, "/" for the root
func (n *ExtractionNode) Path() string {
	if n.parent == nil {
		return "/"
	}
	var segments []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		segments = append(segments, cur.Name)
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return "/" + strings.Join(segments, "/")
}

func (n *ExtractionNode) child(name string) *ExtractionNode {
	for _, c := range n.children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// UnpackedTree tracks the extracted hierarchy of one archive so extracted
// items can be registered parent-first regardless of entry order.
type UnpackedTree struct {
	root   *ExtractionNode
	index  *PathIndex
	module string
	logger *slog.Logger
}

// TreeOption customizes an UnpackedTree
type TreeOption func(*UnpackedTree)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) TreeOption {
	return func(t *UnpackedTree) {
		t.logger = logger
	}
}

// WithModule sets the module name recorded on registered content
func WithModule(module string) TreeOption {
	return func(t *UnpackedTree) {
		t.module = module
	}
}

// NewUnpackedTree creates a tree rooted at the archive. rootRelPath is the
// archive's working directory relative to the case directory.
func NewUnpackedTree(rootRelPath string, archive content.Item, opts ...TreeOption) *UnpackedTree {
	t := &UnpackedTree{
		root: &ExtractionNode{
			Name:         archive.Name(),
			LocalRelPath: rootRelPath,
			item:         archive,
		},
		index:  NewPathIndex(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Root returns the synthetic root node
func (t *UnpackedTree) Root() *ExtractionNode { return t.root }

// Find returns the node for an in-archive path, creating it and any missing
// intermediate nodes. An empty path resolves to the root.
func (t *UnpackedTree) Find(p string) *ExtractionNode {
	if node, ok := t.index.Lookup(p); ok {
		return node
	}

	cur := t.root
	for _, segment := range SplitEntryPath(p) {
		next := cur.child(segment)
		if next == nil {
			next = &ExtractionNode{
				Name:         segment,
				LocalRelPath: cur.LocalRelPath + "/" + segment,
				parent:       cur,
			}
			cur.children = append(cur.children, next)
			if err := t.index.Insert(next.Path(), next); err != nil {
				t.logger.Error("Failed to index extraction node", "path", next.Path(), "error", err)
			}
		}
		cur = next
	}
	return cur
}

// AddDerivedInfo attaches metadata gathered during physical extraction
func (t *UnpackedTree) AddDerivedInfo(node *ExtractionNode, size int64, isFile bool, ctime, crtime, atime, mtime int64) {
	node.Size = size
	node.IsFile = isFile
	node.Ctime = ctime
	node.Crtime = crtime
	node.Atime = atime
	node.Mtime = mtime
}

// SetDigest records the hex digest of the node's materialized bytes
func (t *UnpackedTree) SetDigest(node *ExtractionNode, digest string) {
	node.Digest = digest
}

// Commit registers every node top-down. Each registration carries the
// persisted id of its already-committed parent. A failed node is logged and
// its subtree skipped; siblings still commit. Nodes committed earlier are
// skipped, so calling Commit again only retries what failed.
func (t *UnpackedTree) Commit(ctx context.Context, registrar Registrar) error {
	for _, err := range t.index.Validate() {
		t.logger.Warn("Path index out of sync with the extraction tree", "root", t.root.LocalRelPath, "error", err)
	}
	stats := t.index.GetStats()
	t.logger.Debug("Committing extraction tree", "root", t.root.LocalRelPath,
		"nodes", stats.TotalNodes, "lookups", stats.Lookups, "hits", stats.Hits)

	var errs []error
	for _, child := range t.root.children {
		errs = append(errs, t.commitNode(ctx, registrar, child)...)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrCommitFailed, errors.Join(errs...))
	}
	return nil
}

func (t *UnpackedTree) commitNode(ctx context.Context, registrar Registrar, node *ExtractionNode) []error {
	if !node.Committed() {
		if err := ctx.Err(); err != nil {
			return []error{err}
		}
		parentItem := node.parent.item
		if parentItem == nil {
			return []error{fmt.Errorf("%w: %s", ErrParentNotCommitted, node.Path())}
		}

		item, err := registrar.AddDerivedContent(ctx, db.DerivedContent{
			Name:         node.Name,
			LocalRelPath: node.LocalRelPath,
			Size:         node.Size,
			Ctime:        node.Ctime,
			Crtime:       node.Crtime,
			Atime:        node.Atime,
			Mtime:        node.Mtime,
			IsFile:       node.IsFile,
			ParentID:     parentItem.ID(),
			Module:       t.module,
			Digest:       node.Digest,
		})
		if err != nil {
			t.logger.Error("Error adding a derived file to the case", "name", node.Name, "path", node.Path(), "error", err)
			return []error{fmt.Errorf("failed to register %s: %w", node.Path(), err)}
		}
		node.item = item
	}

	var errs []error
	for _, child := range node.children {
		errs = append(errs, t.commitNode(ctx, registrar, child)...)
	}
	return errs
}

// AllItems returns the persisted handles of every committed node, pre-order
func (t *UnpackedTree) AllItems() []content.Item {
	var items []content.Item
	var walk func(n *ExtractionNode)
	walk = func(n *ExtractionNode) {
		if n.item != nil {
			items = append(items, n.item)
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	for _, c := range t.root.children {
		walk(c)
	}
	return items
}

// Len returns the number of nodes below the root
func (t *UnpackedTree) Len() int {
	return t.index.Size()
}

// SplitEntryPath tokenizes an in-archive path on both separators. Empty, "."
// and ".." segments are dropped so nothing can resolve outside the root.
func SplitEntryPath(p string) []string {
	fields := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
	out := fields[:0]
	for _, f := range fields {
		if f == "." || f == ".." {
			continue
		}
		out = append(out, f)
	}
	return out
}

// SyntheticEntryPath names an entry that reported no path. Single-stream
// compressors get the archive name without the compression suffix; anything
// else falls back to a positional name under the archive's name.
func SyntheticEntryPath(archiveName string, index int) string {
	ext := path.Ext(archiveName)
	base := strings.TrimSuffix(archiveName, ext)
	// alternate data stream suffix, e.g. "a.gz:Zone"
	if colon := strings.LastIndex(ext, ":"); colon != -1 {
		ext = ext[:colon]
	}

	var useName string
	switch strings.ToLower(ext) {
	case ".gz", ".bz2", ".zst", ".lz4":
		useName = base
	case ".tgz":
		useName = base + ".tar"
	}
	if useName == "" || ext == "" {
		return "/" + archiveName + "/" + strconv.Itoa(index)
	}
	return "/" + useName
}
