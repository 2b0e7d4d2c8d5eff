// Package build runs a recipe as a sequential, memoized pipeline and
// publishes the resulting artifact.
//
// Every step produces a layer whose key is the digest of its parent key
// and the step's own input. A layer found in the cache is reused as is and
// its step does not run. The dependency layer's input is the canonical
// manifest and install command, so it survives any change to the
// application source. It also names the resolver, so pins from one
// resolver are never reused by another.
package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/railwayapp/stevedore/internal/artifact"
	"github.com/railwayapp/stevedore/internal/baseimage"
	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/railwayapp/stevedore/internal/manifest"
	"github.com/railwayapp/stevedore/internal/resolver"
	"github.com/railwayapp/stevedore/internal/schema"
)

// DefaultHashConcurrency bounds parallel file reads while hashing the
// source tree.
const DefaultHashConcurrency = 8

// Request is one build: a planned recipe and the context it copies from.
type Request struct {
	Recipe  *schema.Recipe
	Context filesystems.FileSystem
	Root    string
}

// Builder executes recipes. It is safe for concurrent use; identical
// concurrent requests share one execution.
type Builder struct {
	logger          *log.Logger
	cache           LayerCache
	resolver        resolver.Resolver
	registry        baseimage.Registry
	store           artifact.Store
	hashConcurrency int

	group   singleflight.Group
	mu      sync.Mutex
	flights map[string]*flight
}

// Option configures a Builder.
type Option func(*Builder)

func WithLogger(logger *log.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithCache(cache LayerCache) Option {
	return func(b *Builder) { b.cache = cache }
}

func WithResolver(r resolver.Resolver) Option {
	return func(b *Builder) { b.resolver = r }
}

func WithRegistry(r baseimage.Registry) Option {
	return func(b *Builder) { b.registry = r }
}

func WithStore(s artifact.Store) Option {
	return func(b *Builder) { b.store = s }
}

// WithHashConcurrency bounds parallel reads while hashing the source tree.
// Values below one keep the default.
func WithHashConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.hashConcurrency = n
		}
	}
}

// NewBuilder returns a builder that works offline by default: an in-memory
// cache and store, the syntax-only resolver and the built-in image catalog.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		logger:          log.New(io.Discard),
		cache:           NewMemoryCache(),
		resolver:        resolver.NewOffline(),
		registry:        baseimage.DefaultCatalog(),
		store:           artifact.NewMemoryStore(),
		hashConcurrency: DefaultHashConcurrency,
		flights:         make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Store returns the store artifacts are published to.
func (b *Builder) Store() artifact.Store {
	return b.store
}

// Build runs every step of the recipe in order and publishes the artifact
// once all of them succeed. A caller that joins an identical build in
// progress waits on its own context; the shared run stops only when no
// caller is left. Failures are *StepError values; on failure
// nothing is published and the previously published artifact stays
// current.
func (b *Builder) Build(ctx context.Context, req Request) (*artifact.Artifact, error) {
	if req.Recipe == nil || req.Context == nil {
		return nil, stepError(schema.StepBase, KindInvalid, errors.New("recipe and build context are required"))
	}

	key, err := requestKey(req)
	if err != nil {
		return nil, stepError(schema.StepBase, KindInvalid, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, stepError(schema.StepBase, KindCanceled, err)
		}

		f := b.join(ctx, key)
		ch := b.group.DoChan(key, func() (any, error) {
			return b.build(f.ctx, req)
		})

		select {
		case res := <-ch:
			b.leave(key, f)
			if res.Shared {
				b.logger.Debug("joined identical build in progress", "recipe", req.Recipe.Name)
			}
			if res.Err != nil {
				// the shared run was abandoned by the callers that started it
				if kind, _ := KindOf(res.Err); kind == KindCanceled && ctx.Err() == nil {
					continue
				}
				return nil, res.Err
			}
			return res.Val.(*artifact.Artifact), nil
		case <-ctx.Done():
			b.leave(key, f)
			return nil, stepError(schema.StepBase, KindCanceled, ctx.Err())
		}
	}
}

// flight is the context an identical in-progress build runs under. It is
// canceled once every caller waiting on it has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (b *Builder) join(ctx context.Context, key string) *flight {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		b.flights[key] = f
	}
	f.waiters++
	return f
}

func (b *Builder) leave(key string, f *flight) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if b.flights[key] == f {
		delete(b.flights, key)
	}
}

func requestKey(req Request) (string, error) {
	data, err := json.Marshal(req.Recipe)
	if err != nil {
		return "", fmt.Errorf("failed to encode recipe: %w", err)
	}
	return fmt.Sprintf("%p\x00%s\x00%s", req.Context, req.Root, digest.FromBytes(data)), nil
}

// state carries what earlier steps established to the later ones.
type state struct {
	req      Request
	base     baseimage.Resolved
	manifest *manifest.Manifest
	parent   digest.Digest
	deps     []string
}

func (b *Builder) build(ctx context.Context, req Request) (*artifact.Artifact, error) {
	r := req.Recipe
	logger := b.logger.With("recipe", r.Name)

	if err := validateRecipe(r); err != nil {
		return nil, stepError(schema.StepBase, KindInvalid, err)
	}

	st := &state{req: req}

	// the base image is fetched before any layer executes
	ref, err := baseimage.Parse(r.BaseImage)
	if err != nil {
		return nil, stepError(schema.StepBase, KindBaseImage, err)
	}
	st.base, err = b.registry.Resolve(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return nil, stepError(schema.StepBase, KindCanceled, ctx.Err())
		}
		return nil, stepError(schema.StepBase, KindBaseImage, err)
	}

	// the manifest is parsed up front so a malformed one fails before
	// anything is copied, whatever the cache holds
	st.manifest, err = b.loadManifest(req)
	if err != nil {
		return nil, err
	}
	if err := baseimage.CheckCompatible(ref, st.manifest.RequiresPython); err != nil {
		return nil, stepError(schema.StepBase, KindRuntimeMismatch, err)
	}

	layers := make([]artifact.Layer, 0, len(r.Steps))
	for i, step := range r.Steps {
		if err := ctx.Err(); err != nil {
			logger.Warn("build canceled", "step", step.Kind)
			return nil, stepError(step.Kind, KindCanceled, err)
		}

		layer, err := b.runStep(ctx, st, step)
		if err != nil {
			logger.Error("step failed", "step", i+1, "kind", step.Kind, "err", err)
			return nil, err
		}
		logger.Info("step", "n", fmt.Sprintf("%d/%d", i+1, len(r.Steps)), "kind", step.Kind, "cached", layer.CacheHit)

		st.parent = layer.Key
		layers = append(layers, layer)
	}

	a := &artifact.Artifact{
		Name:         r.Name,
		BaseImage:    st.base.Ref.String(),
		BaseDigest:   st.base.Digest,
		Layers:       layers,
		Secrets:      append([]string(nil), r.Secrets...),
		Dependencies: st.deps,
		Config: artifact.Config{
			WorkDir: r.WorkDir,
			Env:     append([]schema.EnvVar(nil), r.Env...),
			Cmd:     append([]string(nil), r.Entry...),
		},
	}
	for _, p := range r.Ports {
		a.Config.ExposedPorts = append(a.Config.ExposedPorts, p.String())
	}
	a.ID = artifact.ComputeID(layers, a.Config)

	if err := ctx.Err(); err != nil {
		return nil, stepError(schema.StepCmd, KindCanceled, err)
	}
	if err := b.store.Publish(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to publish artifact: %w", err)
	}
	logger.Info("published", "artifact", a.ShortID())
	return a, nil
}

func validateRecipe(r *schema.Recipe) error {
	if r.Name == "" {
		return errors.New("recipe has no name")
	}
	if len(r.Steps) == 0 {
		return errors.New("recipe has no steps")
	}
	if r.Manifest == "" {
		return errors.New("recipe names no dependency manifest")
	}
	if len(r.Entry) == 0 {
		return errors.New("recipe has no entry command")
	}
	if _, err := r.Descriptor(); err != nil {
		return fmt.Errorf("image environment: %w", err)
	}
	return nil
}

func (b *Builder) loadManifest(req Request) (*manifest.Manifest, error) {
	name := req.Context.Join(req.Root, req.Recipe.Manifest)
	m, err := manifest.Load(req.Context, name)
	if err != nil {
		return nil, ManifestError(req.Recipe.Manifest, err)
	}
	return m, nil
}

// runStep returns the step's layer, from the cache when possible.
func (b *Builder) runStep(ctx context.Context, st *state, step schema.Step) (artifact.Layer, error) {
	input, err := b.stepInput(ctx, st, step)
	if err != nil {
		return artifact.Layer{}, err
	}

	key := layerKey(st.parent, step, input)
	cached, hit, err := b.cache.Get(ctx, key)
	if err != nil {
		b.logger.Warn("layer cache read failed", "key", key, "err", err)
	}
	if hit {
		b.logger.Debug("cache hit", "kind", step.Kind, "key", key.Encoded()[:12])
		cached.Kind = step.Kind
		cached.Instruction = step.Instruction
		cached.Args = step.Args
		cached.CacheHit = true
		if step.Kind == schema.StepInstall {
			st.deps = cached.Outputs
		}
		return cached, nil
	}
	b.logger.Debug("cache miss", "kind", step.Kind, "key", key.Encoded()[:12])

	layer := artifact.Layer{
		Kind:        step.Kind,
		Instruction: step.Instruction,
		Args:        step.Args,
		Key:         key,
	}
	if err := b.execute(ctx, st, step, input, &layer); err != nil {
		return artifact.Layer{}, err
	}

	if err := b.cache.Put(ctx, layer); err != nil {
		b.logger.Warn("layer cache write failed", "key", key, "err", err)
	}
	return layer, nil
}

// stepInput is everything besides the parent key that determines a
// step's result.
func (b *Builder) stepInput(ctx context.Context, st *state, step schema.Step) (string, error) {
	switch step.Kind {
	case schema.StepBase:
		return st.base.Ref.Canonical() + "@" + st.base.Digest.String(), nil
	case schema.StepCopyManifest:
		return st.manifest.Canonical(), nil
	case schema.StepCopySource:
		ign, err := LoadIgnore(st.req.Context, st.req.Root)
		if err != nil {
			return "", stepError(step.Kind, KindCopy, err)
		}
		tree, _, err := TreeDigest(ctx, st.req.Context, st.req.Root, ign, b.hashConcurrency)
		if err != nil {
			if ctx.Err() != nil {
				return "", stepError(step.Kind, KindCanceled, ctx.Err())
			}
			return "", stepError(step.Kind, KindCopy, err)
		}
		return tree.String(), nil
	case schema.StepInstall:
		return "resolver " + b.resolver.Name(), nil
	}
	return "", nil
}

func layerKey(parent digest.Digest, step schema.Step, input string) digest.Digest {
	var sb strings.Builder
	fmt.Fprintf(&sb, "parent %s\n", parent)
	fmt.Fprintf(&sb, "%s %s\n", step.Kind, step.Instruction)
	for _, a := range step.Args {
		fmt.Fprintf(&sb, "arg %q\n", a)
	}
	fmt.Fprintf(&sb, "input %s\n", input)
	return digest.FromString(sb.String())
}

// execute performs a step on a cache miss and records what it produced.
func (b *Builder) execute(ctx context.Context, st *state, step schema.Step, input string, layer *artifact.Layer) error {
	switch step.Kind {
	case schema.StepBase:
		layer.Digest = st.base.Digest

	case schema.StepInstall:
		if step.NoOp() {
			b.logger.Info("nothing to install")
			st.deps = nil
			layer.Digest = digest.FromString("")
			return nil
		}
		pinned, err := b.resolver.Resolve(ctx, st.manifest.Requirements)
		if err != nil {
			if ctx.Err() != nil {
				return stepError(step.Kind, KindCanceled, ctx.Err())
			}
			return stepError(step.Kind, KindResolution, err)
		}
		outputs := make([]string, 0, len(pinned))
		for _, p := range pinned {
			outputs = append(outputs, p.String())
		}
		st.deps = outputs
		layer.Outputs = outputs
		layer.Digest = digest.FromString(strings.Join(outputs, "\n"))

	default:
		layer.Digest = digest.FromString(layer.Key.String() + "\n" + input)
	}
	return nil
}
