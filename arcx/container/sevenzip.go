package container

import (
	"errors"
	"fmt"
	"io"

	"github.com/bodgit/sevenzip"
)

type sevenZipArchive struct {
	r    *sevenzip.Reader
	size int64
	next int
}

func open7z(src io.ReaderAt, size int64) (*sevenZipArchive, error) {
	r, err := sevenzip.NewReader(src, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open 7z: %w", err)
	}
	return &sevenZipArchive{r: r, size: size}, nil
}

func (s *sevenZipArchive) Format() Format { return Format7z }

// Next reports the whole archive size as each entry's packed size. 7z
// compresses folders of files as one stream, so per-file packed sizes do
// not exist and the archive size bounds the compression ratio from below.
func (s *sevenZipArchive) Next() (*Entry, error) {
	if s.r == nil {
		return nil, ErrClosed
	}
	if s.next >= len(s.r.File) {
		return nil, io.EOF
	}
	f := s.r.File[s.next]
	s.next++

	return &Entry{
		Path:         f.Name,
		Size:         int64(f.UncompressedSize),
		IsDir:        f.FileInfo().IsDir(),
		CreationTime: timeOrZero(f.Created),
		ModTime:      timeOrZero(f.Modified),
		AccessTime:   timeOrZero(f.Accessed),
		PackedSize:   s.size,
		Method:       "7z",
		open: func() (io.ReadCloser, error) {
			rc, err := f.Open()
			if err != nil {
				return nil, encryptedReadError(err)
			}
			return &sevenZipFile{rc: rc}, nil
		},
	}, nil
}

func (s *sevenZipArchive) Close() error {
	s.r = nil
	return nil
}

// sevenZipFile maps decryption failures onto ErrEncryptedEntry
type sevenZipFile struct {
	rc io.ReadCloser
}

func (f *sevenZipFile) Read(p []byte) (int, error) {
	n, err := f.rc.Read(p)
	if err != nil && err != io.EOF {
		err = encryptedReadError(err)
	}
	return n, err
}

func (f *sevenZipFile) Close() error { return f.rc.Close() }

func encryptedReadError(err error) error {
	var readErr *sevenzip.ReadError
	if errors.As(err, &readErr) && readErr.Encrypted {
		return fmt.Errorf("%w: %w", ErrEncryptedEntry, err)
	}
	return err
}
