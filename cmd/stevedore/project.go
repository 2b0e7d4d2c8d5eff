package stevedore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/railwayapp/stevedore/internal/baseimage"
	"github.com/railwayapp/stevedore/internal/build"
	"github.com/railwayapp/stevedore/internal/config"
	"github.com/railwayapp/stevedore/internal/discovery"
	"github.com/railwayapp/stevedore/internal/environment"
	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/railwayapp/stevedore/internal/manifest"
	"github.com/railwayapp/stevedore/internal/recipe"
	"github.com/railwayapp/stevedore/internal/runtimeenv"
	"github.com/railwayapp/stevedore/internal/schema"
)

// buildContext is an opened source tree. Remote contexts are clones that
// must be released with close.
type buildContext struct {
	fs   filesystems.FileSystem
	root string
}

func openContext(ctx context.Context, sourcePath string) (*buildContext, error) {
	// If the user provided a file path, use the parent directory
	if stat, err := os.Stat(sourcePath); err == nil && !stat.IsDir() {
		sourcePath = filepath.Dir(sourcePath)
	}

	filesystem, err := filesystems.NewFileSystem(ctx, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem: %w", err)
	}
	return &buildContext{fs: filesystem, root: filesystems.GetBasePath(sourcePath)}, nil
}

func (bc *buildContext) close() {
	if c, ok := bc.fs.(filesystems.Cleaner); ok {
		_ = c.Cleanup()
	}
}

func sourceArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// projectFlags are the command-line overrides of stevedore.toml.
type projectFlags struct {
	name             string
	baseImage        string
	workDir          string
	manifest         string
	entry            string
	interpreter      string
	install          string
	venvPath         string
	quiet            bool
	noBytecode       bool
	unbuffered       bool
	suppressWarnings string
	port             int
	secrets          []string
}

func (f *projectFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.name, "name", "", "image name (default: project name or context directory)")
	flags.StringVar(&f.baseImage, "base-image", "", "base runtime image (default: "+baseimage.Default+")")
	flags.StringVar(&f.workDir, "workdir", "", "working directory inside the image (default: "+recipe.DefaultWorkDir+")")
	flags.StringVar(&f.manifest, "manifest", "", "dependency manifest path relative to the context (default: detected)")
	flags.StringVar(&f.entry, "entry", "", "entry program relative to the working directory (default: discovered or "+recipe.DefaultEntry+")")
	flags.StringVar(&f.interpreter, "interpreter", "", "interpreter for the entry program (default: "+recipe.DefaultInterpreter+")")
	flags.StringVar(&f.install, "install", "", "install mode: system or venv")
	flags.StringVar(&f.venvPath, "venv-path", "", "virtual environment path for venv installs (default: "+recipe.DefaultVenvPath+")")
	flags.BoolVar(&f.quiet, "quiet", false, "pass --quiet to the package installer")
	flags.BoolVar(&f.noBytecode, "no-bytecode", true, "bake "+runtimeenv.NoBytecodeVar)
	flags.BoolVar(&f.unbuffered, "unbuffered", true, "bake "+runtimeenv.UnbufferedVar)
	flags.StringVar(&f.suppressWarnings, "suppress-warnings", "", "warning class to ignore at runtime, e.g. DeprecationWarning")
	flags.IntVar(&f.port, "port", 0, "declare a listening port (default: none)")
	flags.StringSliceVar(&f.secrets, "require-secret", nil, "secret the launcher must supply (default: inferred from the source)")
}

// overrides returns only the flags the user actually set.
func (f *projectFlags) overrides(cmd *cobra.Command) config.Project {
	flags := cmd.Flags()
	p := config.Project{
		Name:        f.name,
		BaseImage:   f.baseImage,
		WorkDir:     f.workDir,
		Manifest:    f.manifest,
		Entry:       f.entry,
		Interpreter: f.interpreter,
		Install:     f.install,
		VenvPath:    f.venvPath,
		Port:        f.port,
		Secrets:     f.secrets,
	}
	if flags.Changed("quiet") {
		p.Quiet = &f.quiet
	}
	if flags.Changed("no-bytecode") || flags.Changed("unbuffered") || f.suppressWarnings != "" {
		p.Env = &config.Env{SuppressWarnings: f.suppressWarnings}
		if flags.Changed("no-bytecode") {
			p.Env.NoBytecode = &f.noBytecode
		}
		if flags.Changed("unbuffered") {
			p.Env.Unbuffered = &f.unbuffered
		}
	}
	return p
}

// planRecipe merges stevedore.toml with the flag overrides, fills the
// entry from declared processes and the required secrets from the source
// when neither is configured, and plans the recipe.
func planRecipe(ctx context.Context, bc *buildContext, over config.Project, logger *log.Logger) (*schema.Recipe, error) {
	file, err := config.Load(bc.fs, bc.root)
	if err != nil {
		return nil, err
	}
	project := file.Merge(over)

	if project.Entry == "" {
		processes, err := discovery.NewProcessDiscovery(bc.fs).Discover(ctx, bc.root)
		if err != nil {
			logger.Warn("process discovery failed", "err", err)
		}
		entry, err := discovery.EntryOf(processes)
		switch {
		case err == nil:
			project.Entry = entry.Program
			if project.Interpreter == "" {
				project.Interpreter = entry.Interpreter
			}
			logger.Info("entry discovered", "program", entry.Program, "source", entry.Source.Path)
		case errors.Is(err, discovery.ErrNoEntry):
		default:
			logger.Warn("ignoring declared process", "err", err)
		}
	}

	if len(project.Secrets) == 0 {
		results, err := environment.NewExtractor(bc.fs).Scan(ctx, bc.root)
		if err != nil {
			return nil, fmt.Errorf("failed to scan for required variables: %w", err)
		}
		for _, name := range environment.Summarize(results).Required {
			if !runtimeenv.IsDescriptorVar(name) {
				project.Secrets = append(project.Secrets, name)
			}
		}
		if len(project.Secrets) > 0 {
			logger.Info("secrets inferred", "names", project.Secrets)
		}
	}

	opts, err := project.Options(bc.fs, bc.root)
	if err != nil {
		if isManifestError(err) {
			return nil, build.ManifestError(project.Manifest, err)
		}
		return nil, err
	}
	return recipe.Plan(opts)
}

func isManifestError(err error) bool {
	var pe *manifest.ParseError
	return errors.Is(err, manifest.ErrNotFound) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, manifest.ErrUnknownFormat) ||
		errors.As(err, &pe)
}
