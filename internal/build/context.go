package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/railwayapp/stevedore/internal/export"
	"github.com/railwayapp/stevedore/internal/filesystems"
)

// DockerignoreFile is read from the context root when present.
const DockerignoreFile = ".dockerignore"

// IgnoreMatcher decides which context paths stay out of the image.
type IgnoreMatcher struct {
	matcher *ignore.GitIgnore
}

// LoadIgnore reads the context's .dockerignore, falling back to the
// default ignore list when there is none.
func LoadIgnore(fsys filesystems.FileSystem, root string) (*IgnoreMatcher, error) {
	content, err := fsys.ReadFile(fsys.Join(root, DockerignoreFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NewIgnore(export.DefaultIgnores()), nil
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", DockerignoreFile, err)
	}

	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return NewIgnore(patterns), nil
}

func NewIgnore(patterns []string) *IgnoreMatcher {
	return &IgnoreMatcher{matcher: ignore.CompileIgnoreLines(patterns...)}
}

// Ignored reports whether a slash-separated path relative to the context
// root is excluded.
func (m *IgnoreMatcher) Ignored(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	return m.matcher.MatchesPath(rel)
}

// ContextFiles lists the files of the build context that are copied into
// the image, as slash-separated paths relative to root in sorted order.
func ContextFiles(ctx context.Context, fsys filesystems.FileSystem, root string, ign *IgnoreMatcher) ([]string, error) {
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingSource, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrMissingSource, root)
	}

	var files []string
	err = fsys.Walk(root, func(path string, info filesystems.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := fsys.Rel(root, path)
		if err != nil {
			return err
		}
		rel = strings.ReplaceAll(rel, "\\", "/")
		if ign.Ignored(rel) {
			if info.IsDir() {
				return filesystems.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// TreeDigest hashes the context files with at most concurrency reads in
// flight. The result depends only on paths and contents.
func TreeDigest(ctx context.Context, fsys filesystems.FileSystem, root string, ign *IgnoreMatcher, concurrency int) (digest.Digest, []string, error) {
	files, err := ContextFiles(ctx, fsys, root, ign)
	if err != nil {
		return "", nil, err
	}

	sums := make([]digest.Digest, len(files))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := fsys.ReadFile(fsys.Join(root, rel))
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", rel, err)
			}
			sums[i] = digest.FromBytes(content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	for i, rel := range files {
		fmt.Fprintf(&sb, "%s\x00%s\n", rel, sums[i])
	}
	return digest.FromString(sb.String()), files, nil
}
