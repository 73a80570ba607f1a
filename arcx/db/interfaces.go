package db

import (
	"context"
	"errors"

	"github.com/ZanzyTHEbar/arcx/arcx/content"
	"github.com/ZanzyTHEbar/arcx/arcx/report"
)

var (
	ErrNotFound      = errors.New("content item not found")
	ErrInvalidParent = errors.New("parent content item does not exist")
	ErrEmptyName     = errors.New("content name cannot be empty")
)

// DerivedContent describes one extracted file or directory to register under
// an already-persisted parent.
type DerivedContent struct {
	Name         string
	LocalRelPath string
	Size         int64
	Ctime        int64
	Crtime       int64
	Atime        int64
	Mtime        int64
	IsFile       bool
	ParentID     int64
	Module       string
	Digest       string
}

// ContentStore is the case content store the extractor persists into
type ContentStore interface {
	AddDerivedContent(ctx context.Context, d DerivedContent) (content.Item, error)
	HasChildren(ctx context.Context, id int64) (bool, error)
	// FileTypeSignature returns the recorded content-type attribute, if any
	FileTypeSignature(ctx context.Context, id int64) (string, bool, error)
	AddArtifact(ctx context.Context, a report.Artifact) error
}
