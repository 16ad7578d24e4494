// Package fsstore holds the file primitives behind the local record
// store: atomic JSON and text snapshots, an append-only JSONL writer for
// the message transcript, and an advisory file lock serializing mutations.
package fsstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath       = errors.New("fsstore: invalid path")
	ErrLockTimeout       = errors.New("fsstore: lock timeout")
	ErrLockUnavailable   = errors.New("fsstore: lock unavailable")
	ErrEncodeFailed      = errors.New("fsstore: encode failed")
	ErrDecodeFailed      = errors.New("fsstore: decode failed")
	ErrAtomicWriteFailed = errors.New("fsstore: atomic write failed")
)

const (
	defaultDirPerm        = 0o700
	defaultFilePerm       = 0o600
	defaultRotateMaxBytes = 100 * 1024 * 1024
)

// FileOptions controls permissions for snapshot files. Zero values mean
// owner-only defaults.
type FileOptions struct {
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

// JSONLOptions controls the transcript writer. RotateMaxBytes caps the
// live file before it is renamed aside; FlushEachWrite trades throughput
// for records surviving a crash.
type JSONLOptions struct {
	DirPerm        os.FileMode
	FilePerm       os.FileMode
	RotateMaxBytes int64
	FlushEachWrite bool
}

func normalizeFileOptions(opts FileOptions) FileOptions {
	if opts.DirPerm == 0 {
		opts.DirPerm = defaultDirPerm
	}
	if opts.FilePerm == 0 {
		opts.FilePerm = defaultFilePerm
	}
	return opts
}

func normalizeJSONLOptions(opts JSONLOptions) JSONLOptions {
	if opts.DirPerm == 0 {
		opts.DirPerm = defaultDirPerm
	}
	if opts.FilePerm == 0 {
		opts.FilePerm = defaultFilePerm
	}
	if opts.RotateMaxBytes <= 0 {
		opts.RotateMaxBytes = defaultRotateMaxBytes
	}
	return opts
}

func normalizePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return filepath.Clean(path), nil
}
