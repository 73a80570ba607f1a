package container

import (
	"compress/bzip2"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

const (
	zipFlagEncrypted = 0x1

	zipMethodBzip2 = 12

	zipExtraNTFS      = 0x000a
	zipExtraTimestamp = 0x5455
)

var zipMethodNames = map[uint16]string{
	zip.Store:            "Store",
	zip.Deflate:          "Deflate",
	zipMethodBzip2:       "BZip2",
	14:                   "LZMA",
	zstd.ZipMethodWinZip: "ZSTD",
	99:                   "AES",
}

type zipArchive struct {
	r    *zip.Reader
	next int
}

func openZip(src io.ReaderAt, size int64) (*zipArchive, error) {
	r, err := zip.NewReader(src, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	r.RegisterDecompressor(zipMethodBzip2, func(r io.Reader) io.ReadCloser {
		return io.NopCloser(bzip2.NewReader(r))
	})
	r.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
	return &zipArchive{r: r}, nil
}

func (z *zipArchive) Format() Format { return FormatZip }

func (z *zipArchive) Next() (*Entry, error) {
	if z.r == nil {
		return nil, ErrClosed
	}
	if z.next >= len(z.r.File) {
		return nil, io.EOF
	}
	f := z.r.File[z.next]
	z.next++

	method, ok := zipMethodNames[f.Method]
	if !ok {
		method = fmt.Sprintf("method-%d", f.Method)
	}
	e := &Entry{
		Path:        f.Name,
		Size:        int64(f.UncompressedSize64),
		PackedSize:  int64(f.CompressedSize64),
		IsDir:       f.FileInfo().IsDir(),
		IsEncrypted: f.Flags&zipFlagEncrypted != 0,
		ModTime:     timeOrZero(f.Modified),
		Method:      method,
		open:        f.Open,
	}
	applyZipExtraTimes(e, f.Extra)
	return e, nil
}

func (z *zipArchive) Close() error {
	z.r = nil
	return nil
}

// applyZipExtraTimes fills access and creation times from the NTFS and
// extended-timestamp extra fields when present
func applyZipExtraTimes(e *Entry, extra []byte) {
	for len(extra) >= 4 {
		tag := binary.LittleEndian.Uint16(extra[0:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		extra = extra[4:]
		if size > len(extra) {
			return
		}
		field := extra[:size]
		extra = extra[size:]

		switch tag {
		case zipExtraNTFS:
			parseNTFSTimes(e, field)
		case zipExtraTimestamp:
			parseUnixTimes(e, field)
		}
	}
}

func parseNTFSTimes(e *Entry, field []byte) {
	if len(field) < 4 {
		return
	}
	field = field[4:] // reserved
	for len(field) >= 4 {
		attr := binary.LittleEndian.Uint16(field[0:2])
		size := int(binary.LittleEndian.Uint16(field[2:4]))
		field = field[4:]
		if size > len(field) {
			return
		}
		if attr == 1 && size >= 24 {
			e.ModTime = filetime(binary.LittleEndian.Uint64(field[0:8]))
			e.AccessTime = filetime(binary.LittleEndian.Uint64(field[8:16]))
			e.CreationTime = filetime(binary.LittleEndian.Uint64(field[16:24]))
		}
		field = field[size:]
	}
}

// parseUnixTimes reads the 0x5455 field; the central directory copy usually
// carries only the modification time
func parseUnixTimes(e *Entry, field []byte) {
	if len(field) < 1 {
		return
	}
	flags := field[0]
	field = field[1:]
	for bit, dst := range []*time.Time{&e.ModTime, &e.AccessTime, &e.CreationTime} {
		if flags&(1<<bit) == 0 {
			continue
		}
		if len(field) < 4 {
			return
		}
		*dst = timeOrZero(time.Unix(int64(int32(binary.LittleEndian.Uint32(field[:4]))), 0))
		field = field[4:]
	}
}

// filetime converts a Windows FILETIME (100ns ticks since 1601) to time.Time
func filetime(ticks uint64) time.Time {
	const epochDelta = 116444736000000000
	if ticks <= epochDelta {
		return time.Time{}
	}
	d := ticks - epochDelta
	return time.Unix(int64(d/1e7), int64(d%1e7)*100)
}
