package baseimage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/railwayapp/stevedore/internal/container"
)

// ErrUnavailable is wrapped by every error reporting that a base image
// cannot be fetched.
var ErrUnavailable = errors.New("base image unavailable")

// Resolved is a base image pinned to content.
type Resolved struct {
	Ref    Ref           `json:"ref"`
	Digest digest.Digest `json:"digest"`
}

// Registry resolves image references to content digests.
type Registry interface {
	Resolve(ctx context.Context, ref Ref) (Resolved, error)
}

// Catalog is an offline registry of official python image tags. It
// resolves known tags to a stable digest derived from the reference, which
// makes builds reproducible without network access.
type Catalog struct {
	repository string
	versions   map[string]bool
	variants   map[string]bool
}

// DefaultCatalog lists the maintained python release lines.
func DefaultCatalog() *Catalog {
	return NewCatalog("python",
		[]string{"3.8", "3.9", "3.10", "3.11", "3.12", "3.13"},
		[]string{"", "slim", "alpine", "bookworm", "slim-bookworm", "bullseye", "slim-bullseye", "alpine3.20"},
	)
}

// NewCatalog builds a catalog. A release line "3.11" also accepts any
// patch tag "3.11.N".
func NewCatalog(repository string, versions, variants []string) *Catalog {
	c := &Catalog{
		repository: repository,
		versions:   make(map[string]bool),
		variants:   make(map[string]bool),
	}
	for _, v := range versions {
		c.versions[v] = true
	}
	for _, v := range variants {
		c.variants[v] = true
	}
	return c
}

func (c *Catalog) Resolve(ctx context.Context, ref Ref) (Resolved, error) {
	if err := ctx.Err(); err != nil {
		return Resolved{}, err
	}

	if ref.Repository() != c.repository {
		return Resolved{}, fmt.Errorf("%w: %s is not in the %s catalog", ErrUnavailable, ref, c.repository)
	}

	if ref.Digest != "" {
		d, err := digest.Parse(ref.Digest)
		if err != nil {
			return Resolved{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Resolved{Ref: ref, Digest: d}, nil
	}

	line := ref.RuntimeVersion
	if strings.Count(line, ".") == 2 {
		line = line[:strings.LastIndex(line, ".")]
	}
	if !c.versions[line] || !c.variants[ref.Variant()] {
		return Resolved{}, fmt.Errorf("%w: unknown tag %s", ErrUnavailable, ref)
	}

	return Resolved{Ref: ref, Digest: digest.FromString(ref.Canonical())}, nil
}

// EngineRegistry resolves images by pulling them through a local container
// engine and reading back their content digest.
type EngineRegistry struct {
	engine container.Engine
	pull   bool
}

// NewEngineRegistry creates a registry backed by engine. When pull is false
// only locally present images resolve.
func NewEngineRegistry(engine container.Engine, pull bool) *EngineRegistry {
	return &EngineRegistry{engine: engine, pull: pull}
}

func (r *EngineRegistry) Resolve(ctx context.Context, ref Ref) (Resolved, error) {
	image := ref.String()

	exists, err := r.engine.ImageExists(ctx, image)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !exists {
		if !r.pull {
			return Resolved{}, fmt.Errorf("%w: %s is not present locally", ErrUnavailable, image)
		}
		if err := r.engine.Pull(ctx, image); err != nil {
			return Resolved{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	info, err := r.engine.Inspect(ctx, image)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	d, err := contentDigest(ref, info)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Resolved{Ref: ref, Digest: d}, nil
}

// contentDigest prefers the registry manifest digest and falls back to the
// local image ID.
func contentDigest(ref Ref, info *container.ImageInfo) (digest.Digest, error) {
	for _, rd := range info.RepoDigests {
		if name, dgst, ok := strings.Cut(rd, "@"); ok {
			parsed, err := Parse(name + "@" + dgst)
			if err == nil && parsed.Name == ref.Name {
				return digest.Parse(dgst)
			}
		}
	}
	if info.ID == "" {
		return "", fmt.Errorf("image %s has no digest", ref)
	}
	return digest.Parse(info.ID)
}
