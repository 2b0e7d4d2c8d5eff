package filesystems

import (
	"context"
	"fmt"
	"iter"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// GitFS is a build context backed by a shallow clone of a git repository.
// All paths are relative to the repository root.
type GitFS struct {
	repoURL   string
	ref       string
	localPath string
	localFS   *LocalFS
	mu        sync.RWMutex // protects clone operations
	cloned    bool
}

// NewGitFS clones repoURL at ref into a temporary directory.
func NewGitFS(ctx context.Context, repoURL, ref string) (*GitFS, error) {
	if ref == "" {
		ref = "main"
	}

	tempDir, err := os.MkdirTemp("", "stevedore-git-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	gfs := &GitFS{
		repoURL:   repoURL,
		ref:       ref,
		localPath: tempDir,
		localFS:   NewLocalFS(),
	}

	if err := gfs.clone(ctx); err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}

	return gfs, nil
}

func (gfs *GitFS) clone(ctx context.Context) error {
	gfs.mu.Lock()
	defer gfs.mu.Unlock()

	if gfs.cloned {
		return nil
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--branch", gfs.ref, gfs.repoURL, gfs.localPath)
	if err := cmd.Run(); err != nil {
		// The ref may be a commit or tag that --branch can't resolve
		cmd = exec.CommandContext(ctx, "git", "clone", gfs.repoURL, gfs.localPath)
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("failed to clone repository %s: %w", gfs.repoURL, err)
		}

		cmd = exec.CommandContext(ctx, "git", "checkout", gfs.ref)
		cmd.Dir = gfs.localPath
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("failed to checkout %s in %s: %w", gfs.ref, gfs.repoURL, err)
		}
	}

	gfs.cloned = true
	return nil
}

// LocalPath returns the directory holding the clone.
func (gfs *GitFS) LocalPath() string {
	return gfs.localPath
}

// Cleanup removes the temporary clone
func (gfs *GitFS) Cleanup() error {
	if gfs.localPath != "" {
		return os.RemoveAll(gfs.localPath)
	}
	return nil
}

func (gfs *GitFS) ReadFile(name string) ([]byte, error) {
	if err := gfs.ensureCloned(); err != nil {
		return nil, err
	}
	return gfs.localFS.ReadFile(gfs.resolve(name))
}

func (gfs *GitFS) ReadDir(name string) iter.Seq2[DirEntry, error] {
	return func(yield func(DirEntry, error) bool) {
		if err := gfs.ensureCloned(); err != nil {
			yield(nil, err)
			return
		}

		for entry, err := range gfs.localFS.ReadDir(gfs.resolve(name)) {
			if !yield(entry, err) {
				return
			}
		}
	}
}

func (gfs *GitFS) Stat(name string) (FileInfo, error) {
	if err := gfs.ensureCloned(); err != nil {
		return nil, err
	}
	return gfs.localFS.Stat(gfs.resolve(name))
}

func (gfs *GitFS) Walk(root string, fn WalkFunc) error {
	if err := gfs.ensureCloned(); err != nil {
		return err
	}

	// Report paths relative to the repository root
	wrappedFn := func(path string, info FileInfo, err error) error {
		if strings.HasPrefix(path, gfs.localPath) {
			relPath := strings.TrimPrefix(path, gfs.localPath)
			relPath = strings.TrimPrefix(relPath, string(filepath.Separator))
			if relPath == "" {
				relPath = "."
			}
			return fn(relPath, info, err)
		}
		return fn(path, info, err)
	}

	return gfs.localFS.Walk(gfs.resolve(root), wrappedFn)
}

func (gfs *GitFS) Join(elem ...string) string {
	return gfs.localFS.Join(elem...)
}

func (gfs *GitFS) Base(path string) string {
	return gfs.localFS.Base(path)
}

func (gfs *GitFS) Dir(path string) string {
	return gfs.localFS.Dir(path)
}

func (gfs *GitFS) Rel(basepath, targpath string) (string, error) {
	return gfs.localFS.Rel(basepath, targpath)
}

func (gfs *GitFS) resolve(name string) string {
	return gfs.localFS.Join(gfs.localPath, name)
}

func (gfs *GitFS) ensureCloned() error {
	gfs.mu.RLock()
	cloned := gfs.cloned
	gfs.mu.RUnlock()

	if !cloned {
		return gfs.clone(context.Background())
	}
	return nil
}
