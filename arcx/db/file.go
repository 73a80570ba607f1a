package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/arcx/arcx/content"
)

// File is the content.Item handed out by both store implementations. Bytes
// live on the local filesystem: LocalPath is absolute for evidence roots and
// relative to the case directory for derived content.
type File struct {
	id         int64
	name       string
	parentID   int64
	size       int64
	fileType   content.FileType
	known      content.KnownStatus
	isFile     bool
	allocated  bool
	uniquePath string
	localPath  string
	caseDir    string
	Digest     string
}

// FileOptions holds the fields needed to build a File outside a store
type FileOptions struct {
	ID         int64
	Name       string
	ParentID   int64
	Size       int64
	Type       content.FileType
	Known      content.KnownStatus
	IsFile     bool
	Allocated  bool
	UniquePath string
	LocalPath  string
	CaseDir    string
}

// NewFile builds a File handle
func NewFile(o FileOptions) *File {
	return &File{
		id:         o.ID,
		name:       o.Name,
		parentID:   o.ParentID,
		size:       o.Size,
		fileType:   o.Type,
		known:      o.Known,
		isFile:     o.IsFile,
		allocated:  o.Allocated,
		uniquePath: o.UniquePath,
		localPath:  o.LocalPath,
		caseDir:    o.CaseDir,
	}
}

func (f *File) ID() int64                  { return f.id }
func (f *File) Name() string               { return f.name }
func (f *File) ParentID() int64            { return f.parentID }
func (f *File) Size() int64                { return f.size }
func (f *File) Type() content.FileType     { return f.fileType }
func (f *File) Known() content.KnownStatus { return f.known }
func (f *File) IsFile() bool               { return f.isFile }
func (f *File) Allocated() bool            { return f.allocated }
func (f *File) UniquePath() string         { return f.uniquePath }

// LocalPath returns the absolute location of the item's bytes
func (f *File) LocalPath() string {
	if filepath.IsAbs(f.localPath) || f.caseDir == "" {
		return f.localPath
	}
	return filepath.Join(f.caseDir, f.localPath)
}

// Open opens the backing file for random access
func (f *File) Open() (content.Source, error) {
	if !f.isFile {
		return nil, fmt.Errorf("cannot open %s: not a file", f.name)
	}
	fh, err := os.Open(f.LocalPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open content %d (%s): %w", f.id, f.name, err)
	}
	return fh, nil
}
