// Package container reads entries out of archive and compressed-stream
// formats behind one forward-only iterator.
package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Format identifies a container byte format
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatGzip
	FormatBzip2
	FormatTar
	Format7z
	FormatRar
	FormatZstd
	FormatLz4
	FormatArj
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatGzip:
		return "gzip"
	case FormatBzip2:
		return "bzip2"
	case FormatTar:
		return "tar"
	case Format7z:
		return "7z"
	case FormatRar:
		return "rar"
	case FormatZstd:
		return "zstd"
	case FormatLz4:
		return "lz4"
	case FormatArj:
		return "arj"
	default:
		return "unknown"
	}
}

// Entry is one logical file or directory record inside a container. Size
// and PackedSize are zero when the format does not record them.
type Entry struct {
	Path         string
	Size         int64
	PackedSize   int64
	IsDir        bool
	IsEncrypted  bool
	CreationTime time.Time
	ModTime      time.Time
	AccessTime   time.Time
	Method       string

	open func() (io.ReadCloser, error)
}

// NewEntry builds an entry for readers outside this package. open is called
// by ExtractTo; nil means the entry has no data.
func NewEntry(meta Entry, open func() (io.ReadCloser, error)) *Entry {
	e := meta
	e.open = open
	return &e
}

// ExtractTo streams the entry's bytes into w. For streaming formats it is
// only valid until the next call to Archive.Next.
func (e *Entry) ExtractTo(w io.Writer) (int64, error) {
	if e.IsDir {
		return 0, nil
	}
	if e.IsEncrypted {
		return 0, ErrEncryptedEntry
	}
	if e.open == nil {
		return 0, ErrNoEntryData
	}

	rc, err := e.open()
	if err != nil {
		return 0, fmt.Errorf("failed to open entry %q: %w", e.Path, err)
	}
	n, err := io.Copy(w, rc)
	if closeErr := rc.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("failed to extract entry %q: %w", e.Path, err)
	}
	return n, nil
}

// Archive is an open container. Next returns io.EOF after the last entry.
type Archive interface {
	Format() Format
	Next() (*Entry, error)
	Close() error
}

// Opener opens a container over a random-access byte source
type Opener func(src io.ReaderAt, size int64, name string) (Archive, error)

var _ Opener = Open

// sniffLen covers the tar "ustar" magic at offset 257
const sniffLen = 512

var (
	magicZip      = []byte("PK\x03\x04")
	magicZipEmpty = []byte("PK\x05\x06")
	magicGzip     = []byte{0x1f, 0x8b}
	magicBzip2    = []byte("BZh")
	magic7z       = []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}
	magicRar      = []byte("Rar!\x1a\x07")
	magicZstd     = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLz4      = []byte{0x04, 0x22, 0x4d, 0x18}
	magicArj      = []byte{0x60, 0xea}
	magicTar      = []byte("ustar")
)

// ZipMagic is the zip local file header signature
func ZipMagic() []byte {
	return append([]byte(nil), magicZip...)
}

// Detect identifies the format from leading bytes, falling back to the
// file name's extension when no signature matches.
func Detect(header []byte, name string) Format {
	switch {
	case bytes.HasPrefix(header, magicZip), bytes.HasPrefix(header, magicZipEmpty):
		return FormatZip
	case bytes.HasPrefix(header, magic7z):
		return Format7z
	case bytes.HasPrefix(header, magicRar):
		return FormatRar
	case bytes.HasPrefix(header, magicGzip):
		return FormatGzip
	case bytes.HasPrefix(header, magicBzip2):
		return FormatBzip2
	case bytes.HasPrefix(header, magicZstd):
		return FormatZstd
	case bytes.HasPrefix(header, magicLz4):
		return FormatLz4
	case len(header) >= 262 && bytes.Equal(header[257:262], magicTar):
		return FormatTar
	case bytes.HasPrefix(header, magicArj):
		return FormatArj
	}

	switch strings.ToLower(strings.TrimPrefix(path.Ext(name), ".")) {
	case "tar":
		return FormatTar
	case "arj":
		return FormatArj
	}
	return FormatUnknown
}

// Open sniffs src and returns a reader for the detected format
func Open(src io.ReaderAt, size int64, name string) (Archive, error) {
	header := make([]byte, sniffLen)
	n, err := src.ReadAt(header, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read container header: %w", err)
	}
	header = header[:n]

	format := Detect(header, name)
	switch format {
	case FormatZip:
		return openZip(src, size)
	case Format7z:
		return open7z(src, size)
	case FormatRar:
		return openRar(src, size)
	case FormatTar:
		return openTar(src, size)
	case FormatGzip, FormatBzip2, FormatZstd, FormatLz4:
		return openStream(format, src, size)
	default:
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, name, format)
	}
}

// timeOrZero drops pre-epoch sentinel values some formats store for unset times
func timeOrZero(t time.Time) time.Time {
	if t.IsZero() || t.Unix() <= 0 {
		return time.Time{}
	}
	return t
}
