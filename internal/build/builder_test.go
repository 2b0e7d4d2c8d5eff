package build_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/railwayapp/stevedore/internal/artifact"
	"github.com/railwayapp/stevedore/internal/baseimage"
	"github.com/railwayapp/stevedore/internal/build"
	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/railwayapp/stevedore/internal/manifest"
	"github.com/railwayapp/stevedore/internal/recipe"
	"github.com/railwayapp/stevedore/internal/resolver"
	"github.com/railwayapp/stevedore/internal/runtimeenv"
	"github.com/railwayapp/stevedore/internal/schema"
)

// countingResolver records how often resolution runs.
type countingResolver struct {
	calls atomic.Int32
	next  resolver.Resolver
}

func (c *countingResolver) Name() string {
	return c.next.Name()
}

func (c *countingResolver) Resolve(ctx context.Context, reqs []manifest.Requirement) ([]resolver.Pinned, error) {
	c.calls.Add(1)
	return c.next.Resolve(ctx, reqs)
}

type failingResolver struct{}

func (failingResolver) Name() string {
	return "index:http://index.invalid"
}

func (failingResolver) Resolve(ctx context.Context, reqs []manifest.Requirement) ([]resolver.Pinned, error) {
	return nil, &resolver.ResolutionError{Name: reqs[0].Name, Reason: "not found on index"}
}

// blockingResolver holds resolution until released.
type blockingResolver struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingResolver) Name() string {
	return "offline"
}

func (r *blockingResolver) Resolve(ctx context.Context, reqs []manifest.Requirement) ([]resolver.Pinned, error) {
	select {
	case r.started <- struct{}{}:
	default:
	}
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return resolver.NewOffline().Resolve(ctx, reqs)
}

type unavailableRegistry struct{}

func (unavailableRegistry) Resolve(ctx context.Context, ref baseimage.Ref) (baseimage.Resolved, error) {
	return baseimage.Resolved{}, baseimage.ErrUnavailable
}

func botContext(requirements string) *filesystems.MemoryFS {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("requirements.txt", []byte(requirements))
	mfs.AddFile("main.py", []byte("import os\nprint(os.getenv('BOT_TOKEN'))\n"))
	mfs.AddFile("roles/roles.py", []byte("WRITER_IDS = set()\n"))
	mfs.AddFile("__pycache__/main.cpython-311.pyc", []byte{0x00, 0x01})
	return mfs
}

func plan(t *testing.T, mfs *filesystems.MemoryFS, opts recipe.Options) *schema.Recipe {
	t.Helper()
	m, err := manifest.Load(mfs, "requirements.txt")
	if err != nil {
		t.Fatalf("manifest.Load: %v", err)
	}
	if opts.Name == "" {
		opts.Name = "bot"
	}
	opts.ManifestPath = "requirements.txt"
	opts.Manifest = m
	if opts.Env == (runtimeenv.Descriptor{}) {
		opts.Env = runtimeenv.Default()
	}
	r, err := recipe.Plan(opts)
	if err != nil {
		t.Fatalf("recipe.Plan: %v", err)
	}
	return r
}

func layer(t *testing.T, a *artifact.Artifact, kind schema.StepKind) artifact.Layer {
	t.Helper()
	l, ok := a.Layer(kind)
	if !ok {
		t.Fatalf("artifact has no %s layer", kind)
	}
	return l
}

func TestBuild_Requests(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	b := build.NewBuilder()

	a, err := b.Build(context.Background(), build.Request{Recipe: plan(t, mfs, recipe.Options{}), Context: mfs, Root: "."})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := strings.Join(a.Config.Cmd, " "); got != "python main.py" {
		t.Errorf("expected entry python main.py, got %q", got)
	}
	if a.EnvMap()[runtimeenv.UnbufferedVar] != "1" {
		t.Errorf("expected %s=1 to be baked, got %v", runtimeenv.UnbufferedVar, a.Config.Env)
	}
	if len(a.Config.ExposedPorts) != 0 {
		t.Errorf("expected no ports, got %v", a.Config.ExposedPorts)
	}
	if len(a.Dependencies) != 1 || a.Dependencies[0] != "requests==2.31.0" {
		t.Errorf("unexpected dependencies %v", a.Dependencies)
	}

	latest, err := b.Store().Latest(context.Background(), "bot")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != a.ID {
		t.Errorf("expected published artifact %s, got %s", a.ID, latest.ID)
	}
}

func TestBuild_EmptyManifest(t *testing.T) {
	mfs := botContext("# nothing yet\n")
	counter := &countingResolver{next: resolver.NewOffline()}
	b := build.NewBuilder(build.WithResolver(counter))

	a, err := b.Build(context.Background(), build.Request{Recipe: plan(t, mfs, recipe.Options{}), Context: mfs, Root: "."})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if counter.calls.Load() != 0 {
		t.Errorf("expected no resolution for an empty manifest, got %d calls", counter.calls.Load())
	}
	if len(a.Dependencies) != 0 {
		t.Errorf("expected no dependencies, got %v", a.Dependencies)
	}
	if len(a.Config.Cmd) == 0 {
		t.Error("artifact should be runnable")
	}
}

func TestBuild_UnchangedInputsHitCache(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	counter := &countingResolver{next: resolver.NewOffline()}
	b := build.NewBuilder(build.WithResolver(counter))
	req := build.Request{Recipe: plan(t, mfs, recipe.Options{}), Context: mfs, Root: "."}

	cold, err := b.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("cold build: %v", err)
	}
	warm, err := b.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("warm build: %v", err)
	}

	if cold.ID != warm.ID {
		t.Errorf("cold and warm builds differ: %s vs %s", cold.ID, warm.ID)
	}
	for i, l := range warm.Layers {
		if !l.CacheHit {
			t.Errorf("layer %d (%s) should be a cache hit", i, l.Kind)
		}
		if l.Key != cold.Layers[i].Key {
			t.Errorf("layer %d key changed", i)
		}
	}
	if counter.calls.Load() != 1 {
		t.Errorf("expected one resolution, got %d", counter.calls.Load())
	}
	if strings.Join(warm.Dependencies, ",") != strings.Join(cold.Dependencies, ",") {
		t.Errorf("dependencies differ: %v vs %v", cold.Dependencies, warm.Dependencies)
	}
}

func TestBuild_SourceChangeKeepsDependencyLayer(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	counter := &countingResolver{next: resolver.NewOffline()}
	b := build.NewBuilder(build.WithResolver(counter))
	r := plan(t, mfs, recipe.Options{})

	first, err := b.Build(context.Background(), build.Request{Recipe: r, Context: mfs, Root: "."})
	if err != nil {
		t.Fatalf("first build: %v", err)
	}

	mfs.AddFile("main.py", []byte("print('changed')\n"))
	mfs.AddFile("handlers/new.py", []byte("pass\n"))

	second, err := b.Build(context.Background(), build.Request{Recipe: r, Context: mfs, Root: "."})
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	install := layer(t, second, schema.StepInstall)
	if !install.CacheHit || install.Key != layer(t, first, schema.StepInstall).Key {
		t.Error("dependency layer should be reused after a source-only change")
	}
	if layer(t, second, schema.StepCopySource).CacheHit {
		t.Error("source layer should be rebuilt")
	}
	if counter.calls.Load() != 1 {
		t.Errorf("expected no reinstallation, got %d resolutions", counter.calls.Load())
	}
	if first.ID == second.ID {
		t.Error("artifact should change with the source")
	}
}

func TestBuild_IgnoredFilesDoNotInvalidateSource(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	b := build.NewBuilder()
	r := plan(t, mfs, recipe.Options{})

	first, err := b.Build(context.Background(), build.Request{Recipe: r, Context: mfs, Root: "."})
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	mfs.AddFile("__pycache__/roles.cpython-311.pyc", []byte{0x02})
	mfs.AddFile(".env", []byte("BOT_TOKEN=secret\n"))

	second, err := b.Build(context.Background(), build.Request{Recipe: r, Context: mfs, Root: "."})
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if first.ID != second.ID {
		t.Error("ignored files should not change the artifact")
	}
}

func TestBuild_ManifestChangeReinstalls(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	counter := &countingResolver{next: resolver.NewOffline()}
	b := build.NewBuilder(build.WithResolver(counter))

	if _, err := b.Build(context.Background(), build.Request{Recipe: plan(t, mfs, recipe.Options{}), Context: mfs, Root: "."}); err != nil {
		t.Fatalf("first build: %v", err)
	}

	mfs.AddFile("requirements.txt", []byte("requests==2.32.0\n"))
	a, err := b.Build(context.Background(), build.Request{Recipe: plan(t, mfs, recipe.Options{}), Context: mfs, Root: "."})
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if layer(t, a, schema.StepInstall).CacheHit {
		t.Error("install should rerun when the manifest changes")
	}
	if counter.calls.Load() != 2 {
		t.Errorf("expected two resolutions, got %d", counter.calls.Load())
	}
}

func TestBuild_CommentOnlyManifestChangeKeepsDependencyLayer(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	counter := &countingResolver{next: resolver.NewOffline()}
	b := build.NewBuilder(build.WithResolver(counter))

	if _, err := b.Build(context.Background(), build.Request{Recipe: plan(t, mfs, recipe.Options{}), Context: mfs, Root: "."}); err != nil {
		t.Fatalf("first build: %v", err)
	}

	mfs.AddFile("requirements.txt", []byte("# pinned for the bot\nrequests==2.31.0   \n"))
	a, err := b.Build(context.Background(), build.Request{Recipe: plan(t, mfs, recipe.Options{}), Context: mfs, Root: "."})
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if !layer(t, a, schema.StepInstall).CacheHit {
		t.Error("formatting changes to the manifest should not reinstall")
	}
}

func TestBuild_InstallModeChangesDependencyKey(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	b := build.NewBuilder()

	system, err := b.Build(context.Background(), build.Request{Recipe: plan(t, mfs, recipe.Options{}), Context: mfs, Root: "."})
	if err != nil {
		t.Fatalf("system build: %v", err)
	}
	venv, err := b.Build(context.Background(), build.Request{Recipe: plan(t, mfs, recipe.Options{Install: schema.InstallVenv}), Context: mfs, Root: "."})
	if err != nil {
		t.Fatalf("venv build: %v", err)
	}

	if layer(t, system, schema.StepInstall).Key == layer(t, venv, schema.StepInstall).Key {
		t.Error("install mode should be part of the dependency layer key")
	}
	if _, ok := venv.Layer(schema.StepCreateVenv); !ok {
		t.Error("venv build should create the environment")
	}
}

func TestBuild_ResolverChangeReinstalls(t *testing.T) {
	mfs := botContext("doesnotexist-pkg\n")
	r := plan(t, mfs, recipe.Options{})
	cache := build.NewMemoryCache()

	warm, err := build.NewBuilder(build.WithCache(cache)).Build(context.Background(), build.Request{Recipe: r, Context: mfs, Root: "."})
	if err != nil {
		t.Fatalf("offline build: %v", err)
	}
	if len(warm.Dependencies) != 1 {
		t.Fatalf("unexpected dependencies %v", warm.Dependencies)
	}

	_, err = build.NewBuilder(build.WithCache(cache), build.WithResolver(failingResolver{})).
		Build(context.Background(), build.Request{Recipe: r, Context: mfs, Root: "."})
	var se *build.StepError
	if !errors.As(err, &se) {
		t.Fatalf("expected a StepError, got %v", err)
	}
	if se.Kind != build.KindResolution || se.Step != schema.StepInstall {
		t.Errorf("expected resolution at install, got %s at %s", se.Kind, se.Step)
	}
}

func TestBuild_MalformedManifestFailsBeforeCopy(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	r := plan(t, mfs, recipe.Options{})
	mfs.AddFile("requirements.txt", []byte("requests===\n"))

	cache := build.NewMemoryCache()
	counter := &countingResolver{next: resolver.NewOffline()}
	store := artifact.NewMemoryStore()
	b := build.NewBuilder(build.WithCache(cache), build.WithResolver(counter), build.WithStore(store))

	_, err := b.Build(context.Background(), build.Request{Recipe: r, Context: mfs, Root: "."})
	var se *build.StepError
	if !errors.As(err, &se) {
		t.Fatalf("expected a StepError, got %v", err)
	}
	if se.Kind != build.KindResolution {
		t.Errorf("expected a resolution failure, got %s", se.Kind)
	}
	var pe *manifest.ParseError
	if !errors.As(err, &pe) || pe.Line != 1 {
		t.Errorf("expected a manifest parse error on line 1, got %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("no layer should have run, %d cached", cache.Len())
	}
	if counter.calls.Load() != 0 {
		t.Error("resolver should not run")
	}
	if _, err := store.Latest(context.Background(), "bot"); !errors.Is(err, artifact.ErrNotFound) {
		t.Error("nothing should be published")
	}
}

func TestBuild_Failures(t *testing.T) {
	tests := []struct {
		name     string
		opts     []build.Option
		mutate   func(*filesystems.MemoryFS)
		baseOpts recipe.Options
		kind     build.Kind
		step     schema.StepKind
		is       error
	}{
		{
			name: "base image unavailable",
			opts: []build.Option{build.WithRegistry(unavailableRegistry{})},
			kind: build.KindBaseImage,
			step: schema.StepBase,
			is:   baseimage.ErrUnavailable,
		},
		{
			name:     "unknown base tag",
			baseOpts: recipe.Options{BaseImage: "python:2.7-slim"},
			kind:     build.KindBaseImage,
			step:     schema.StepBase,
			is:       baseimage.ErrUnavailable,
		},
		{
			name: "missing manifest",
			mutate: func(mfs *filesystems.MemoryFS) {
				mfs.RemoveFile("requirements.txt")
			},
			kind: build.KindCopy,
			step: schema.StepCopyManifest,
			is:   build.ErrMissingManifest,
		},
		{
			name: "runtime mismatch",
			mutate: func(mfs *filesystems.MemoryFS) {
				mfs.AddFile("runtime.txt", []byte("python-3.12.1\n"))
			},
			kind: build.KindRuntimeMismatch,
			step: schema.StepBase,
		},
		{
			name: "unresolvable dependency",
			opts: []build.Option{build.WithResolver(failingResolver{})},
			kind: build.KindResolution,
			step: schema.StepInstall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mfs := botContext("requests==2.31.0\n")
			r := plan(t, mfs, tt.baseOpts)
			if tt.mutate != nil {
				tt.mutate(mfs)
			}

			store := artifact.NewMemoryStore()
			b := build.NewBuilder(append(tt.opts, build.WithStore(store))...)
			_, err := b.Build(context.Background(), build.Request{Recipe: r, Context: mfs, Root: "."})

			var se *build.StepError
			if !errors.As(err, &se) {
				t.Fatalf("expected a StepError, got %v", err)
			}
			if se.Kind != tt.kind || se.Step != tt.step {
				t.Errorf("expected %s at %s, got %s at %s", tt.kind, tt.step, se.Kind, se.Step)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("expected errors.Is(%v), got %v", tt.is, err)
			}
			if _, err := store.Latest(context.Background(), "bot"); !errors.Is(err, artifact.ErrNotFound) {
				t.Error("a failed build must not publish")
			}
		})
	}
}

func TestBuild_FailureKeepsPreviousArtifact(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	store := artifact.NewMemoryStore()
	r := plan(t, mfs, recipe.Options{})

	good, err := build.NewBuilder(build.WithStore(store)).Build(context.Background(), build.Request{Recipe: r, Context: mfs, Root: "."})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	mfs.AddFile("main.py", []byte("print('v2')\n"))
	_, err = build.NewBuilder(build.WithStore(store), build.WithResolver(failingResolver{})).
		Build(context.Background(), build.Request{Recipe: r, Context: mfs, Root: "."})
	if err == nil {
		t.Fatal("expected the second build to fail")
	}

	latest, err := store.Latest(context.Background(), "bot")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != good.ID {
		t.Error("the previous artifact should remain current")
	}
}

func TestBuild_Canceled(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := artifact.NewMemoryStore()
	_, err := build.NewBuilder(build.WithStore(store)).Build(ctx, build.Request{Recipe: plan(t, mfs, recipe.Options{}), Context: mfs, Root: "."})
	if kind, ok := build.KindOf(err); !ok || kind != build.KindCanceled {
		t.Fatalf("expected a canceled build, got %v", err)
	}
	if _, err := store.Latest(context.Background(), "bot"); !errors.Is(err, artifact.ErrNotFound) {
		t.Error("a canceled build must not publish")
	}
}

func TestBuild_ConcurrentIdenticalRequests(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	b := build.NewBuilder()
	req := build.Request{Recipe: plan(t, mfs, recipe.Options{}), Context: mfs, Root: "."}

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := b.Build(context.Background(), req)
			errs[i] = err
			if a != nil {
				ids[i] = a.ID.String()
			}
		}()
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("build %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("build %d produced %s, want %s", i, ids[i], ids[0])
		}
	}
}

func TestBuild_JoinedCallerOutlivesCanceledFirst(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	br := &blockingResolver{started: make(chan struct{}, 1), release: make(chan struct{})}
	store := artifact.NewMemoryStore()
	b := build.NewBuilder(build.WithResolver(br), build.WithStore(store))
	req := build.Request{Recipe: plan(t, mfs, recipe.Options{}), Context: mfs, Root: "."}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := b.Build(ctx, req)
		firstErr <- err
	}()
	<-br.started

	type result struct {
		a   *artifact.Artifact
		err error
	}
	second := make(chan result, 1)
	go func() {
		a, err := b.Build(context.Background(), req)
		second <- result{a, err}
	}()

	cancel()
	if kind, ok := build.KindOf(<-firstErr); !ok || kind != build.KindCanceled {
		t.Fatal("the canceled caller should see a canceled build")
	}
	close(br.release)

	res := <-second
	if res.err != nil {
		t.Fatalf("the live caller should finish, got %v", res.err)
	}
	latest, err := store.Latest(context.Background(), "bot")
	if err != nil || latest.ID != res.a.ID {
		t.Errorf("expected %s to be published, got %v", res.a.ID, err)
	}
}

func TestBuild_HashConcurrencyDoesNotChangeResult(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	req := build.Request{Recipe: plan(t, mfs, recipe.Options{}), Context: mfs, Root: "."}

	serial, err := build.NewBuilder(build.WithHashConcurrency(1)).Build(context.Background(), req)
	if err != nil {
		t.Fatalf("serial build: %v", err)
	}
	parallel, err := build.NewBuilder(build.WithHashConcurrency(0)).Build(context.Background(), req)
	if err != nil {
		t.Fatalf("default build: %v", err)
	}
	if serial.ID != parallel.ID {
		t.Errorf("hashing concurrency changed the artifact: %s vs %s", serial.ID, parallel.ID)
	}
}

func TestBuild_DiskCacheAcrossBuilders(t *testing.T) {
	dir := t.TempDir()
	mfs := botContext("requests==2.31.0\n")
	r := plan(t, mfs, recipe.Options{})

	if _, err := build.NewBuilder(build.WithCache(build.NewDiskCache(dir))).Build(context.Background(), build.Request{Recipe: r, Context: mfs, Root: "."}); err != nil {
		t.Fatalf("first build: %v", err)
	}

	counter := &countingResolver{next: resolver.NewOffline()}
	a, err := build.NewBuilder(build.WithCache(build.NewDiskCache(dir)), build.WithResolver(counter)).
		Build(context.Background(), build.Request{Recipe: r, Context: mfs, Root: "."})
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if counter.calls.Load() != 0 {
		t.Error("a fresh builder should reuse layers from the disk cache")
	}
	if len(a.Dependencies) != 1 {
		t.Errorf("dependencies should come from the cached layer, got %v", a.Dependencies)
	}
}

func TestMaterialize(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	r := plan(t, mfs, recipe.Options{})
	dir := filepath.Join(t.TempDir(), "ctx")

	if err := build.Materialize(context.Background(), r, mfs, ".", dir); err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	for _, name := range []string{"Dockerfile", ".dockerignore", "requirements.txt", "main.py", "roles/roles.py"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "__pycache__")); !os.IsNotExist(err) {
		t.Error("ignored directories should not be copied")
	}

	dockerfile, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(dockerfile), `CMD ["python", "main.py"]`) {
		t.Errorf("unexpected Dockerfile:\n%s", dockerfile)
	}

	if err := build.Materialize(context.Background(), r, mfs, ".", dir); err == nil {
		t.Error("expected an error for a non-empty directory")
	}
}

func TestTreeDigest_Deterministic(t *testing.T) {
	mfs := botContext("requests==2.31.0\n")
	ign := build.NewIgnore([]string{"**/__pycache__"})

	first, files, err := build.TreeDigest(context.Background(), mfs, ".", ign, 1)
	if err != nil {
		t.Fatalf("TreeDigest: %v", err)
	}
	second, _, err := build.TreeDigest(context.Background(), mfs, ".", ign, 8)
	if err != nil {
		t.Fatalf("TreeDigest: %v", err)
	}
	if first != second {
		t.Error("digest should not depend on concurrency")
	}
	want := []string{"main.py", "requirements.txt", "roles/roles.py"}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Errorf("expected files %v, got %v", want, files)
	}
}

func TestTreeDigest_MissingRoot(t *testing.T) {
	_, _, err := build.TreeDigest(context.Background(), filesystems.NewMemoryFS(), "nope", build.NewIgnore(nil), 1)
	if !errors.Is(err, build.ErrMissingSource) {
		t.Errorf("expected ErrMissingSource, got %v", err)
	}
}
