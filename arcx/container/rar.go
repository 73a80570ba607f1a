package container

import (
	"fmt"
	"io"

	"github.com/nwaples/rardecode"
)

// rarArchive reads without a password. The decoder does not flag encrypted
// files, so their data surfaces as a checksum error on extraction.
type rarArchive struct {
	r *rardecode.Reader
}

func openRar(src io.ReaderAt, size int64) (*rarArchive, error) {
	r, err := rardecode.NewReader(io.NewSectionReader(src, 0, size), "")
	if err != nil {
		return nil, fmt.Errorf("failed to open rar: %w", err)
	}
	return &rarArchive{r: r}, nil
}

func (r *rarArchive) Format() Format { return FormatRar }

func (r *rarArchive) Next() (*Entry, error) {
	if r.r == nil {
		return nil, ErrClosed
	}
	hdr, err := r.r.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rar header: %w", err)
	}

	e := &Entry{
		Path:         hdr.Name,
		Size:         hdr.UnPackedSize,
		PackedSize:   hdr.PackedSize,
		IsDir:        hdr.IsDir,
		CreationTime: timeOrZero(hdr.CreationTime),
		ModTime:      timeOrZero(hdr.ModificationTime),
		AccessTime:   timeOrZero(hdr.AccessTime),
		Method:       "rar",
	}
	if hdr.UnKnownSize {
		e.Size = 0
	}
	if !hdr.IsDir {
		rr := r.r
		e.open = func() (io.ReadCloser, error) {
			return io.NopCloser(rr), nil
		}
	}
	return e, nil
}

func (r *rarArchive) Close() error {
	r.r = nil
	return nil
}
