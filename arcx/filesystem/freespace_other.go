//go:build !unix

package filesystem

import "errors"

func volumeFreeSpace(dir string) (int64, error) {
	return 0, errors.New("free space query not supported on this platform")
}
