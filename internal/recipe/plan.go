// Package recipe plans the ordered build steps for a Python service image.
package recipe

import (
	"fmt"
	"path"
	"strings"

	"github.com/railwayapp/stevedore/internal/baseimage"
	"github.com/railwayapp/stevedore/internal/manifest"
	"github.com/railwayapp/stevedore/internal/runtimeenv"
	"github.com/railwayapp/stevedore/internal/schema"
)

const (
	DefaultWorkDir     = "/app"
	DefaultVenvPath    = "/opt/venv"
	DefaultInterpreter = "python"
	DefaultEntry       = "main.py"
)

// Options are the explicit build-time choices for a recipe.
type Options struct {
	Name      string
	BaseImage string
	WorkDir   string

	// ManifestPath is the manifest location relative to the context root.
	ManifestPath string
	Manifest     *manifest.Manifest

	Install  schema.InstallMode
	VenvPath string
	// Quiet passes --quiet to pip.
	Quiet bool

	Env  runtimeenv.Descriptor
	Port int

	Interpreter string
	// Entry is the program path relative to the working directory.
	Entry   string
	Secrets []string
}

func (o *Options) applyDefaults() {
	if o.Name == "" {
		o.Name = "app"
	}
	if o.BaseImage == "" {
		o.BaseImage = baseimage.Default
	}
	if o.WorkDir == "" {
		o.WorkDir = DefaultWorkDir
	}
	if o.Install == "" {
		o.Install = schema.InstallSystem
	}
	if o.VenvPath == "" {
		o.VenvPath = DefaultVenvPath
	}
	if o.Interpreter == "" {
		o.Interpreter = DefaultInterpreter
	}
	if o.Entry == "" {
		o.Entry = DefaultEntry
	}
}

func (o Options) validate() error {
	if o.Manifest == nil {
		return fmt.Errorf("a parsed manifest is required")
	}
	if o.ManifestPath == "" || path.IsAbs(o.ManifestPath) || strings.HasPrefix(path.Clean(o.ManifestPath), "..") {
		return fmt.Errorf("manifest path %q must be relative to the build context", o.ManifestPath)
	}
	if _, err := baseimage.Parse(o.BaseImage); err != nil {
		return err
	}
	if !path.IsAbs(o.WorkDir) {
		return fmt.Errorf("working directory %q must be absolute", o.WorkDir)
	}
	if _, err := schema.ParseInstallMode(string(o.Install)); err != nil {
		return err
	}
	if o.Install == schema.InstallVenv && !path.IsAbs(o.VenvPath) {
		return fmt.Errorf("virtual environment path %q must be absolute", o.VenvPath)
	}
	if path.IsAbs(o.Entry) || strings.HasPrefix(path.Clean(o.Entry), "..") {
		return fmt.Errorf("entry %q must be relative to the working directory", o.Entry)
	}
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("invalid port %d", o.Port)
	}
	for _, name := range o.Secrets {
		if runtimeenv.IsDescriptorVar(name) {
			return fmt.Errorf("secret %s collides with a baked runtime variable", name)
		}
	}
	return o.Env.Validate()
}

// Plan produces the recipe. Steps always follow the same order: base,
// workdir, manifest copy, optional venv creation, install, source copy,
// env, optional expose, cmd.
func Plan(opts Options) (*schema.Recipe, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid build options: %w", err)
	}

	manifestPath := path.Clean(opts.ManifestPath)

	r := schema.NewRecipe(opts.Name)
	r.BaseImage = opts.BaseImage
	r.WorkDir = opts.WorkDir
	r.Manifest = manifestPath
	r.InstallMode = opts.Install
	r.Quiet = opts.Quiet
	r.Secrets = append([]string(nil), opts.Secrets...)
	r.Dependencies = opts.Manifest.Specs()

	interpreter := opts.Interpreter
	pip := []string{"pip"}
	if opts.Install == schema.InstallVenv {
		r.VenvPath = opts.VenvPath
		interpreter = path.Join(opts.VenvPath, "bin", "python")
		pip = []string{path.Join(opts.VenvPath, "bin", "pip")}
	}

	r.AddStep(schema.NewStep(schema.StepBase, "FROM", opts.BaseImage))
	r.AddStep(schema.NewStep(schema.StepWorkDir, "WORKDIR", opts.WorkDir))
	r.AddStep(schema.NewStep(schema.StepCopyManifest, "COPY", manifestPath, copyDest(manifestPath)))

	if opts.Install == schema.InstallVenv {
		r.AddStep(schema.NewStep(schema.StepCreateVenv, "RUN", opts.Interpreter, "-m", "venv", opts.VenvPath))
	}
	r.AddStep(schema.NewStep(schema.StepInstall, "RUN", installArgs(pip, manifestPath, opts)...))

	r.AddStep(schema.NewStep(schema.StepCopySource, "COPY", ".", "."))

	for _, v := range opts.Env.Variables() {
		r.Env = append(r.Env, schema.NewEnvVar(v.Name, v.Value))
	}
	if len(r.Env) > 0 {
		r.AddStep(schema.NewStep(schema.StepEnv, "ENV", opts.Env.Environ()...))
	}

	if opts.Port > 0 {
		port := schema.NewPort(opts.Port)
		r.Ports = append(r.Ports, port)
		r.AddStep(schema.NewStep(schema.StepExpose, "EXPOSE", port.String()))
	}

	r.Entry = []string{interpreter, path.Clean(opts.Entry)}
	r.AddStep(schema.NewStep(schema.StepCmd, "CMD", r.Entry...))

	return r, nil
}

func copyDest(manifestPath string) string {
	dir := path.Dir(manifestPath)
	if dir == "." {
		return "./"
	}
	return "./" + dir + "/"
}

// installArgs returns nil when there is nothing to install.
func installArgs(pip []string, manifestPath string, opts Options) []string {
	args := append([]string(nil), pip...)
	args = append(args, "install", "--no-cache-dir")
	if opts.Quiet {
		args = append(args, "--quiet")
	}

	if opts.Manifest.Format == manifest.FormatRequirements {
		if opts.Manifest.Empty() && len(opts.Manifest.Options) == 0 {
			return nil
		}
		return append(args, "-r", manifestPath)
	}

	if opts.Manifest.Empty() {
		return nil
	}
	return append(args, opts.Manifest.Specs()...)
}
