// Package environment finds the variables a build context bakes into its
// image and the ones its code expects to receive at launch.
package environment

import (
	"context"
	"fmt"
	"sort"

	"github.com/railwayapp/stevedore/internal/environment/extractors"
	"github.com/railwayapp/stevedore/internal/environment/types"
	"github.com/railwayapp/stevedore/internal/filesystems"
)

// directories never worth scanning for variables
var skipDirs = map[string]bool{
	".git":          true,
	".venv":         true,
	"venv":          true,
	"__pycache__":   true,
	"node_modules":  true,
	".pytest_cache": true,
	".mypy_cache":   true,
	".tox":          true,
}

type Extractor struct {
	filesystem filesystems.FileSystem
	extractors []extractors.ContentExtractor
}

func NewExtractor(filesystem filesystems.FileSystem) *Extractor {
	return &Extractor{
		filesystem: filesystem,
		extractors: []extractors.ContentExtractor{
			extractors.NewDockerComposeExtractor(),
			extractors.NewDockerfileExtractor(),
			extractors.NewDotEnvExtractor(),
			extractors.NewPythonSourceExtractor(),
		},
	}
}

// Extract environment variables from file content
func (e *Extractor) Extract(ctx context.Context, filename string, content []byte) <-chan types.EnvResult {
	results := make(chan types.EnvResult, 32)

	go func() {
		defer close(results)

		for _, extractor := range e.extractors {
			if !extractor.CanHandle(filename) {
				continue
			}
			envResults, err := extractor.Extract(ctx, filename, content)
			if err != nil {
				continue
			}

			for _, result := range envResults {
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return results
}

// Scan walks the context rooted at root and extracts from every file an
// extractor can handle. Results are ordered by variable name, then source.
func (e *Extractor) Scan(ctx context.Context, root string) ([]types.EnvResult, error) {
	var all []types.EnvResult

	err := e.filesystem.Walk(root, func(path string, info filesystems.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			if path != root && skipDirs[info.Name()] {
				return filesystems.SkipDir
			}
			return nil
		}
		if !e.handles(path) {
			return nil
		}

		content, err := e.filesystem.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		for result := range e.Extract(ctx, path, content) {
			all = append(all, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].VarName != all[j].VarName {
			return all[i].VarName < all[j].VarName
		}
		return all[i].Source < all[j].Source
	})
	return all, nil
}

func (e *Extractor) handles(filename string) bool {
	for _, extractor := range e.extractors {
		if extractor.CanHandle(filename) {
			return true
		}
	}
	return false
}

// Summary groups scan results by variable.
type Summary struct {
	Baked    map[string]string // value assigned in the image definition
	Declared map[string]string // value given by an env or compose file
	Required []string          // read or passed through, never baked, sorted
	Results  []types.EnvResult
}

// Summarize folds results into a Summary. A variable is required when
// something reads or passes it through and the image does not bake it.
func Summarize(results []types.EnvResult) Summary {
	s := Summary{
		Baked:    make(map[string]string),
		Declared: make(map[string]string),
		Results:  results,
	}
	wanted := make(map[string]bool)

	for _, r := range results {
		switch r.Origin {
		case types.OriginBaked:
			s.Baked[r.VarName] = r.Value
		case types.OriginDeclared:
			s.Declared[r.VarName] = r.Value
		case types.OriginRequired:
			wanted[r.VarName] = true
		}
	}

	for name := range wanted {
		if _, baked := s.Baked[name]; !baked {
			s.Required = append(s.Required, name)
		}
	}
	sort.Strings(s.Required)
	return s
}
