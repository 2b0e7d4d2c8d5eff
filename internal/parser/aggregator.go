package parser

import (
	"context"
	"fmt"
	"slices"

	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/railwayapp/stevedore/internal/schema"
)

// DockerfileParser adapts ParseDockerfile to the Parser interface.
type DockerfileParser struct{}

func NewDockerfileParser() *DockerfileParser {
	return &DockerfileParser{}
}

func (p *DockerfileParser) CanParse(filename string) bool {
	return filename == "Dockerfile" || filename == "Containerfile"
}

func (p *DockerfileParser) Parse(ctx context.Context, filename string, content []byte) (Fragment, error) {
	df, err := ParseDockerfile(filename, content)
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{Recipe: df.Recipe(""), Source: filename}, nil
}

type DefaultAggregator struct{}

// Aggregate merges fragments in order. The first fragment with steps
// supplies the build; later fragments add ports, environment and
// secrets. A variable baked by one fragment and declared as a secret by
// another is an error, since secrets are never baked.
func (a *DefaultAggregator) Aggregate(name string, fragments []Fragment) (*schema.Recipe, error) {
	if len(fragments) == 0 {
		return nil, fmt.Errorf("no recipe fragments to aggregate")
	}

	out := schema.NewRecipe(name)
	for _, f := range fragments {
		r := f.Recipe
		if len(out.Steps) == 0 && len(r.Steps) > 0 {
			env, ports, secrets := out.Env, out.Ports, out.Secrets
			*out = *r
			out.Name = name
			out.Env = append(env, r.Env...)
			out.Ports = append(ports, r.Ports...)
			out.Secrets = append(secrets, r.Secrets...)
			continue
		}

		for _, e := range r.Env {
			if i := slices.IndexFunc(out.Env, func(x schema.EnvVar) bool { return x.Name == e.Name }); i >= 0 {
				if out.Env[i].Value != e.Value {
					return nil, fmt.Errorf("%s sets %s=%q, already %q", f.Source, e.Name, e.Value, out.Env[i].Value)
				}
				continue
			}
			out.Env = append(out.Env, e)
		}
		for _, p := range r.Ports {
			if !slices.Contains(out.Ports, p) {
				out.Ports = append(out.Ports, p)
			}
		}
		for _, s := range r.Secrets {
			if !slices.Contains(out.Secrets, s) {
				out.Secrets = append(out.Secrets, s)
			}
		}
	}

	for _, s := range out.Secrets {
		if slices.ContainsFunc(out.Env, func(e schema.EnvVar) bool { return e.Name == s }) {
			return nil, fmt.Errorf("secret %s is also baked into the image environment", s)
		}
	}
	return out, nil
}

// NewAggregator creates a new default aggregator
func NewAggregator() Aggregator {
	return &DefaultAggregator{}
}

// DefaultParsers returns the parsers consulted by ParseContext, Dockerfile
// first.
func DefaultParsers() []Parser {
	return []Parser{NewDockerfileParser(), NewComposeParser()}
}

// ParseContext reads the build files at the root of a context and merges
// them into one recipe. Files are visited in directory order; the
// Dockerfile fragment always comes first.
func ParseContext(ctx context.Context, fsys filesystems.FileSystem, root, name string) (*schema.Recipe, error) {
	parsers := DefaultParsers()
	buckets := make([][]Fragment, len(parsers))

	for entry, err := range fsys.ReadDir(root) {
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", root, err)
		}
		if entry.IsDir() {
			continue
		}
		for i, p := range parsers {
			if !p.CanParse(entry.Name()) {
				continue
			}
			filename := fsys.Join(root, entry.Name())
			content, err := fsys.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", filename, err)
			}
			frag, err := p.Parse(ctx, filename, content)
			if err != nil {
				return nil, err
			}
			buckets[i] = append(buckets[i], frag)
			break
		}
	}

	var fragments []Fragment
	for _, b := range buckets {
		fragments = append(fragments, b...)
	}
	if len(fragments) == 0 {
		return nil, fmt.Errorf("no Dockerfile or compose file in %s", root)
	}
	return NewAggregator().Aggregate(name, fragments)
}
