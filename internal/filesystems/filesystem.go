package filesystems

import (
	"io/fs"
	"iter"
	"time"
)

// FileSystem is the read-only view of a build context. Paths are slash or
// OS separated depending on the backend; callers should use Join/Dir/Base
// from the same FileSystem rather than the path packages directly.
type FileSystem interface {
	// ReadFile reads the named file and returns its contents
	ReadFile(name string) ([]byte, error)

	// ReadDir iterates over the entries of the named directory in name order
	ReadDir(name string) iter.Seq2[DirEntry, error]

	// Stat returns file information for the named path
	Stat(name string) (FileInfo, error)

	// Walk walks the file tree rooted at root, calling fn for each file or directory
	Walk(root string, fn WalkFunc) error

	Join(elem ...string) string
	Base(path string) string
	Dir(path string) string
	Rel(basepath, targpath string) (string, error)
}

// DirEntry provides information about a directory entry
type DirEntry interface {
	Name() string
	IsDir() bool
	Type() fs.FileMode
	Info() (FileInfo, error)
}

// FileInfo provides information about a file
type FileInfo interface {
	Name() string
	Size() int64
	Mode() fs.FileMode
	ModTime() time.Time
	IsDir() bool
	Sys() any
}

// WalkFunc is the type of function called by Walk
type WalkFunc func(path string, info FileInfo, err error) error

// SkipDir is used as a return value from WalkFunc to indicate that
// the directory named in the call is to be skipped
var SkipDir = fs.SkipDir

// Cleaner is implemented by filesystems that hold temporary resources,
// such as a cloned repository.
type Cleaner interface {
	Cleanup() error
}
