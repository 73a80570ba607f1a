package container

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported container format")
	ErrEncryptedEntry    = errors.New("entry is encrypted")
	ErrNoEntryData       = errors.New("entry has no readable data")
	ErrClosed            = errors.New("container is closed")
)
