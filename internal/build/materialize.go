package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/railwayapp/stevedore/internal/export"
	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/railwayapp/stevedore/internal/schema"
)

// Materialize writes a self-contained docker build context for the recipe
// into dir: the rendered Dockerfile, a .dockerignore, and every context
// file the ignore rules keep. dir must be empty or not exist.
func Materialize(ctx context.Context, recipe *schema.Recipe, fsys filesystems.FileSystem, root, dir string) error {
	ign, err := LoadIgnore(fsys, root)
	if err != nil {
		return err
	}
	files, err := ContextFiles(ctx, fsys, root, ign)
	if err != nil {
		return stepError(schema.StepCopySource, KindCopy, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("%s is not empty", dir)
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := fsys.ReadFile(fsys.Join(root, rel))
		if err != nil {
			return stepError(schema.StepCopySource, KindCopy, fmt.Errorf("failed to read %s: %w", rel, err))
		}
		if err := writeFile(filepath.Join(dir, filepath.FromSlash(rel)), content); err != nil {
			return err
		}
	}

	// the manifest must be present even if an ignore rule excludes it
	manifestPath := filepath.Join(dir, filepath.FromSlash(recipe.Manifest))
	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		content, err := fsys.ReadFile(fsys.Join(root, recipe.Manifest))
		if err != nil {
			return stepError(schema.StepCopyManifest, KindCopy, fmt.Errorf("%w: %s", ErrMissingManifest, recipe.Manifest))
		}
		if err := writeFile(manifestPath, content); err != nil {
			return err
		}
	}

	for _, name := range []string{"dockerfile", "dockerignore"} {
		exporter, err := export.Lookup(name)
		if err != nil {
			return err
		}
		out, err := exporter.Export(recipe)
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", name, err)
		}
		target := filepath.Join(dir, "Dockerfile")
		if name == "dockerignore" {
			target = filepath.Join(dir, DockerignoreFile)
			if existing, err := fsys.ReadFile(fsys.Join(root, DockerignoreFile)); err == nil {
				out = existing
			}
		}
		if err := writeFile(target, out); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
