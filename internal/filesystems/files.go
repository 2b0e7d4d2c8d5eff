package filesystems

import (
	"errors"
	"io/fs"
)

// Exists reports whether name exists in the filesystem. Errors other than
// "not exist" are returned to the caller.
func Exists(filesystem FileSystem, name string) (bool, error) {
	_, err := filesystem.Stat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// IsDir reports whether name exists and is a directory.
func IsDir(filesystem FileSystem, name string) bool {
	info, err := filesystem.Stat(name)
	return err == nil && info.IsDir()
}
