package filesystems

import (
	"fmt"
	"io/fs"
	"iter"
	"path"
	"sort"
	"strings"
	"time"
)

// MemoryFS is an in-memory build context. It is used by tests and by
// callers that assemble a context programmatically.
type MemoryFS struct {
	files map[string][]byte
	dirs  map[string]bool
}

// NewMemoryFS creates a new MemoryFS instance
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
}

// AddFile adds a file, creating its parent directories.
func (mfs *MemoryFS) AddFile(name string, content []byte) {
	clean := path.Clean(name)
	mfs.files[clean] = content
	mfs.addParents(clean)
}

// AddDir adds an empty directory, creating its parents.
func (mfs *MemoryFS) AddDir(name string) {
	clean := path.Clean(name)
	mfs.dirs[clean] = true
	mfs.addParents(clean)
}

// RemoveFile deletes a file. Parent directories are kept.
func (mfs *MemoryFS) RemoveFile(name string) {
	delete(mfs.files, path.Clean(name))
}

func (mfs *MemoryFS) addParents(name string) {
	dir := path.Dir(name)
	for dir != "." && dir != "/" {
		mfs.dirs[dir] = true
		dir = path.Dir(dir)
	}
}

func (mfs *MemoryFS) ReadFile(name string) ([]byte, error) {
	content, exists := mfs.files[path.Clean(name)]
	if !exists {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return content, nil
}

func (mfs *MemoryFS) Stat(name string) (FileInfo, error) {
	clean := path.Clean(name)
	if clean == "." || mfs.dirs[clean] {
		return &memoryFileInfo{name: path.Base(clean), mode: fs.ModeDir | 0o755, isDir: true}, nil
	}
	if content, ok := mfs.files[clean]; ok {
		return &memoryFileInfo{name: path.Base(clean), size: int64(len(content)), mode: 0o644}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

func (mfs *MemoryFS) ReadDir(name string) iter.Seq2[DirEntry, error] {
	return func(yield func(DirEntry, error) bool) {
		cleanName := path.Clean(name)

		if cleanName != "." && !mfs.dirs[cleanName] {
			yield(nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist})
			return
		}

		prefix := ""
		if cleanName != "." {
			prefix = cleanName + "/"
		}

		seen := make(map[string]bool)
		var entries []string
		collect := func(p string) {
			if !strings.HasPrefix(p, prefix) {
				return
			}
			remainder := strings.TrimPrefix(p, prefix)
			if remainder == "" {
				return
			}
			child, _, _ := strings.Cut(remainder, "/")
			if !seen[child] {
				seen[child] = true
				entries = append(entries, child)
			}
		}
		for p := range mfs.files {
			collect(p)
		}
		for p := range mfs.dirs {
			collect(p)
		}

		sort.Strings(entries)

		for _, entry := range entries {
			fullPath := path.Join(cleanName, entry)
			_, isFile := mfs.files[fullPath]
			dirEntry := &memoryDirEntry{
				name:     entry,
				isDir:    !isFile,
				mfs:      mfs,
				fullPath: fullPath,
			}
			if !yield(dirEntry, nil) {
				return
			}
		}
	}
}

// Walk visits root and its descendants in lexical order, like filepath.Walk.
func (mfs *MemoryFS) Walk(root string, fn WalkFunc) error {
	var walkPath func(string) error
	walkPath = func(p string) error {
		info, err := mfs.Stat(p)
		if err != nil {
			return fn(p, nil, err)
		}

		if err := fn(p, info, nil); err != nil {
			if err == SkipDir && info.IsDir() {
				return nil
			}
			return err
		}

		if !info.IsDir() {
			return nil
		}

		for entry, err := range mfs.ReadDir(p) {
			if err != nil {
				return fn(p, info, err)
			}
			if err := walkPath(path.Join(p, entry.Name())); err != nil {
				if err == SkipDir {
					return nil
				}
				return err
			}
		}
		return nil
	}

	return walkPath(path.Clean(root))
}

func (mfs *MemoryFS) Join(elem ...string) string {
	return path.Join(elem...)
}

func (mfs *MemoryFS) Base(p string) string {
	return path.Base(p)
}

func (mfs *MemoryFS) Dir(p string) string {
	return path.Dir(p)
}

func (mfs *MemoryFS) Rel(basepath, targpath string) (string, error) {
	base := path.Clean(basepath)
	target := path.Clean(targpath)

	if base == target {
		return ".", nil
	}
	if base == "." {
		return target, nil
	}
	if strings.HasPrefix(target, base+"/") {
		return strings.TrimPrefix(target, base+"/"), nil
	}

	return "", fmt.Errorf("%s is not under %s", targpath, basepath)
}

type memoryDirEntry struct {
	name     string
	isDir    bool
	mfs      *MemoryFS
	fullPath string
}

func (e *memoryDirEntry) Name() string {
	return e.name
}

func (e *memoryDirEntry) IsDir() bool {
	return e.isDir
}

func (e *memoryDirEntry) Type() fs.FileMode {
	if e.isDir {
		return fs.ModeDir
	}
	return 0
}

func (e *memoryDirEntry) Info() (FileInfo, error) {
	return e.mfs.Stat(e.fullPath)
}

// memoryFileInfo reports a zero ModTime so that content digests of a
// MemoryFS never depend on wall-clock time.
type memoryFileInfo struct {
	name  string
	size  int64
	mode  fs.FileMode
	isDir bool
}

func (fi *memoryFileInfo) Name() string {
	return fi.name
}

func (fi *memoryFileInfo) Size() int64 {
	return fi.size
}

func (fi *memoryFileInfo) Mode() fs.FileMode {
	return fi.mode
}

func (fi *memoryFileInfo) ModTime() time.Time {
	return time.Time{}
}

func (fi *memoryFileInfo) IsDir() bool {
	return fi.isDir
}

func (fi *memoryFileInfo) Sys() any {
	return nil
}
