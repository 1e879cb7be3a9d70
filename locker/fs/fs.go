// Package fs is the on-disk collaborator: typed paths for tracks queued for
// upload.
package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TrackFile is a local audio file queued for upload.
type TrackFile string

func TrackFileFrom(path string) TrackFile {
	return TrackFile(path)
}

func (f TrackFile) Name() string {
	return filepath.Base(f.path())
}

func (f TrackFile) Exists() (bool, error) {
	if _, err := os.Stat(f.path()); nil != err {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to stat track file: %v", err)
	}

	return true, nil
}

func (f TrackFile) Size() (int64, error) {
	info, err := os.Stat(f.path())
	if nil != err {
		return 0, fmt.Errorf("failed to stat track file: %v", err)
	}

	return info.Size(), nil
}

// Open returns the file's byte stream together with its size. The caller
// owns closing the stream.
func (f TrackFile) Open() (io.ReadSeekCloser, int64, error) {
	file, err := os.OpenFile(f.path(), os.O_RDONLY, 0o600)
	if nil != err {
		return nil, 0, fmt.Errorf("failed to open track file: %v", err)
	}

	info, err := file.Stat()
	if nil != err {
		closeErr := file.Close()
		return nil, 0, errors.Join(fmt.Errorf("failed to stat track file: %v", err), closeErr)
	}

	return file, info.Size(), nil
}

func (f TrackFile) path() string {
	return string(f)
}
