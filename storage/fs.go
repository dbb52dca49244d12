package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
)

// Filesystem is the local side of a transfer. Downloads land in a temporary
// file next to the final path and are renamed into place on completion, so a
// failed transfer never leaves a truncated file behind.
type Filesystem struct{}

// NewLocalClient creates a local filesystem client.
func NewLocalClient() *Filesystem {
	return &Filesystem{}
}

// CreateTemp creates a hidden temporary file in the directory of path,
// creating parent directories as needed.
func (f *Filesystem) CreateTemp(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}

	base := filepath.Base(path)
	return os.CreateTemp(dir, "."+base+".tmp*")
}

// Rename moves the temporary file to its final path. Both live in the same
// directory, so the rename is atomic on POSIX filesystems.
func (f *Filesystem) Rename(file *os.File, path string) error {
	return os.Rename(file.Name(), path)
}

// Remove deletes the file at path.
func (f *Filesystem) Remove(path string) error {
	return os.Remove(path)
}

// Open opens the file at path for reading.
func (f *Filesystem) Open(path string) (*os.File, error) {
	return os.Open(path)
}

// Stat returns file information for path.
func (f *Filesystem) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Walk visits every regular file under root and calls fn with its path.
// Directories, symlinks and in-progress temporary downloads are skipped.
func (f *Filesystem) Walk(root string, fn func(path string) error) error {
	return godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(pathname string, dirent *godirwalk.Dirent) error {
			if dirent.IsDir() || dirent.IsSymlink() {
				return nil
			}
			if isTempFile(filepath.Base(pathname)) {
				return nil
			}
			return fn(pathname)
		},
		// worker pools own ordering; sorted walks buy nothing here
		Unsorted: true,
	})
}

func isTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp")
}
