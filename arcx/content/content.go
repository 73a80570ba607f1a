// Package content defines the read-only handle the extractor receives for
// every ingestible file in a case.
package content

import (
	"io"
	"path"
	"strings"
)

// FileType mirrors how an item entered the case
type FileType int

const (
	FileTypeFS FileType = iota
	FileTypeDerived
	FileTypeLocal
	FileTypeUnallocBlocks
)

func (t FileType) String() string {
	switch t {
	case FileTypeFS:
		return "fs"
	case FileTypeDerived:
		return "derived"
	case FileTypeLocal:
		return "local"
	case FileTypeUnallocBlocks:
		return "unalloc_blocks"
	default:
		return "unknown"
	}
}

// KnownStatus is the hash-set verdict recorded for an item
type KnownStatus int

const (
	KnownUnknown KnownStatus = iota
	KnownGood
	KnownBad
)

func (k KnownStatus) String() string {
	switch k {
	case KnownGood:
		return "known"
	case KnownBad:
		return "known_bad"
	default:
		return "unknown"
	}
}

// Source gives random access to an item's bytes. Container readers that need
// to seek (zip, 7z) read through ReaderAt; streaming formats wrap it in an
// io.SectionReader.
type Source interface {
	io.ReaderAt
	io.Closer
}

// Item is an opaque handle to an ingestible file owned by the pipeline.
type Item interface {
	ID() int64
	Name() string
	ParentID() int64
	Size() int64
	Type() FileType
	Known() KnownStatus
	IsFile() bool
	Allocated() bool
	// UniquePath is the human-readable location of the item inside the case
	UniquePath() string
	Open() (Source, error)
}

// Extension returns the lower-cased extension of name without the dot
func Extension(name string) string {
	ext := path.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}
