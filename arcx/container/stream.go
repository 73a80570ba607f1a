package container

import (
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// streamArchive presents a single compressed stream as a one-entry
// container. The entry path is whatever name the format records, usually
// none, so callers synthesize one. Size is always reported unknown.
type streamArchive struct {
	format Format
	src    io.ReaderAt
	size   int64
	done   bool
}

func openStream(format Format, src io.ReaderAt, size int64) (*streamArchive, error) {
	s := &streamArchive{format: format, src: src, size: size}
	// fail at open time on a corrupt header, like the indexed formats do
	rc, err := s.reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s stream: %w", format, err)
	}
	_ = rc.Close()
	return s, nil
}

func (s *streamArchive) Format() Format { return s.format }

func (s *streamArchive) reader() (io.ReadCloser, error) {
	sr := io.NewSectionReader(s.src, 0, s.size)
	switch s.format {
	case FormatGzip:
		zr, err := gzip.NewReader(sr)
		if err != nil {
			return nil, err
		}
		return zr, nil
	case FormatBzip2:
		return io.NopCloser(bzip2.NewReader(sr)), nil
	case FormatZstd:
		d, err := zstd.NewReader(sr, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case FormatLz4:
		return io.NopCloser(lz4.NewReader(sr)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, s.format)
	}
}

func (s *streamArchive) Next() (*Entry, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true

	e := &Entry{
		PackedSize: s.size,
		Method:     s.format.String(),
		open:       s.reader,
	}
	if s.format == FormatGzip {
		if err := s.gzipHeader(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// gzipHeader reads the member name and mtime. The ISIZE trailer is not used
// as the entry size: it holds only the last member's length modulo 2^32, so
// the size stays unknown and extraction is guarded by bytes written.
func (s *streamArchive) gzipHeader(e *Entry) error {
	zr, err := gzip.NewReader(io.NewSectionReader(s.src, 0, s.size))
	if err != nil {
		return fmt.Errorf("failed to read gzip header: %w", err)
	}
	defer zr.Close()

	e.Path = zr.Header.Name
	e.ModTime = timeOrZero(zr.Header.ModTime)
	return nil
}

func (s *streamArchive) Close() error {
	s.done = true
	return nil
}
