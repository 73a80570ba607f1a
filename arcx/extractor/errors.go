package extractor

import "errors"

var (
	ErrOpenFailure   = errors.New("failed to open archive")
	ErrCommitFailure = errors.New("failed to commit extracted content")
	ErrWorkDir       = errors.New("failed to prepare working directory")
	ErrUnknownJob    = errors.New("job has not been started")
	ErrOutOfSpace    = errors.New("not enough disk space to write entry")
	ErrBombSuspect   = errors.New("entry output exceeds the compression ratio limit")
	ErrEntryOversize = errors.New("entry produced more data than its declared size")
)
