package container

import (
	"archive/tar"
	"fmt"
	"io"
)

type tarArchive struct {
	tr *tar.Reader
}

func openTar(src io.ReaderAt, size int64) (*tarArchive, error) {
	return &tarArchive{tr: tar.NewReader(io.NewSectionReader(src, 0, size))}, nil
}

func (t *tarArchive) Format() Format { return FormatTar }

// Next skips links, devices and other records that carry no file data
func (t *tarArchive) Next() (*Entry, error) {
	if t.tr == nil {
		return nil, ErrClosed
	}
	for {
		hdr, err := t.tr.Next()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar header: %w", err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			return &Entry{
				Path:       hdr.Name,
				IsDir:      true,
				ModTime:    timeOrZero(hdr.ModTime),
				AccessTime: timeOrZero(hdr.AccessTime),
				Method:     "tar",
			}, nil
		case tar.TypeReg:
			tr := t.tr
			return &Entry{
				Path:       hdr.Name,
				Size:       hdr.Size,
				PackedSize: hdr.Size,
				ModTime:    timeOrZero(hdr.ModTime),
				AccessTime: timeOrZero(hdr.AccessTime),
				Method:     "tar",
				open: func() (io.ReadCloser, error) {
					return io.NopCloser(tr), nil
				},
			}, nil
		}
	}
}

func (t *tarArchive) Close() error {
	t.tr = nil
	return nil
}
