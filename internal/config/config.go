// Package config reads the project file that sits at the root of a build
// context and turns it into planner options.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/railwayapp/stevedore/internal/manifest"
	"github.com/railwayapp/stevedore/internal/recipe"
	"github.com/railwayapp/stevedore/internal/runtimeenv"
	"github.com/railwayapp/stevedore/internal/schema"
)

// FileName is the project file looked up at the context root.
const FileName = "stevedore.toml"

// Project mirrors stevedore.toml. Unset fields fall back to the planner
// defaults.
type Project struct {
	Name        string   `toml:"name,omitempty"`
	BaseImage   string   `toml:"base_image,omitempty"`
	WorkDir     string   `toml:"workdir,omitempty"`
	Manifest    string   `toml:"manifest,omitempty"`
	Entry       string   `toml:"entry,omitempty"`
	Interpreter string   `toml:"interpreter,omitempty"`
	Install     string   `toml:"install,omitempty"`
	VenvPath    string   `toml:"venv_path,omitempty"`
	Quiet       *bool    `toml:"quiet,omitempty"`
	Env         *Env     `toml:"env,omitempty"`
	Port        int      `toml:"port,omitempty"`
	Secrets     []string `toml:"secrets,omitempty"`
}

// Env is the [env] table.
type Env struct {
	NoBytecode       *bool  `toml:"no_bytecode,omitempty"`
	Unbuffered       *bool  `toml:"unbuffered,omitempty"`
	SuppressWarnings string `toml:"suppress_warnings,omitempty"`
}

// Decode parses a stevedore.toml body. Unknown keys are rejected so that
// typos do not silently fall back to defaults.
func Decode(content []byte) (*Project, error) {
	var p Project
	md, err := toml.Decode(string(content), &p)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", FileName, strings.Join(keys, ", "))
	}
	return &p, nil
}

// Load reads stevedore.toml from root. A missing file yields an empty
// project.
func Load(fsys filesystems.FileSystem, root string) (*Project, error) {
	content, err := fsys.ReadFile(fsys.Join(root, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return &Project{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}
	return Decode(content)
}

// Merge returns p with every set field of over applied on top.
func (p Project) Merge(over Project) Project {
	setString(&p.Name, over.Name)
	setString(&p.BaseImage, over.BaseImage)
	setString(&p.WorkDir, over.WorkDir)
	setString(&p.Manifest, over.Manifest)
	setString(&p.Entry, over.Entry)
	setString(&p.Interpreter, over.Interpreter)
	setString(&p.Install, over.Install)
	setString(&p.VenvPath, over.VenvPath)
	if over.Quiet != nil {
		p.Quiet = over.Quiet
	}
	if over.Port != 0 {
		p.Port = over.Port
	}
	if len(over.Secrets) > 0 {
		p.Secrets = append([]string(nil), over.Secrets...)
	}
	if over.Env != nil {
		env := Env{}
		if p.Env != nil {
			env = *p.Env
		}
		if over.Env.NoBytecode != nil {
			env.NoBytecode = over.Env.NoBytecode
		}
		if over.Env.Unbuffered != nil {
			env.Unbuffered = over.Env.Unbuffered
		}
		setString(&env.SuppressWarnings, over.Env.SuppressWarnings)
		p.Env = &env
	}
	return p
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Descriptor builds the runtime environment descriptor. Without an [env]
// table the default descriptor applies.
func (p Project) Descriptor() runtimeenv.Descriptor {
	d := runtimeenv.Default()
	if p.Env == nil {
		return d
	}
	var opts []runtimeenv.Option
	if p.Env.NoBytecode != nil {
		opts = append(opts, runtimeenv.WithNoBytecode(*p.Env.NoBytecode))
	}
	if p.Env.Unbuffered != nil {
		opts = append(opts, runtimeenv.WithUnbuffered(*p.Env.Unbuffered))
	}
	if p.Env.SuppressWarnings != "" {
		opts = append(opts, runtimeenv.WithSuppressedWarnings(p.Env.SuppressWarnings))
	}
	return d.With(opts...)
}

// Options resolves the project against the build context: the manifest is
// located (unless named) and parsed, and the name defaults to the
// context directory.
func (p Project) Options(fsys filesystems.FileSystem, root string) (recipe.Options, error) {
	manifestPath := p.Manifest
	if manifestPath == "" {
		found, err := manifest.Detect(fsys, root)
		if err != nil {
			return recipe.Options{}, err
		}
		manifestPath, err = fsys.Rel(root, found)
		if err != nil {
			return recipe.Options{}, err
		}
	}
	manifestPath = strings.ReplaceAll(manifestPath, "\\", "/")

	m, err := manifest.Load(fsys, fsys.Join(root, manifestPath))
	if err != nil {
		return recipe.Options{}, err
	}

	name := p.Name
	if name == "" {
		name = SanitizeName(fsys.Base(root))
	}

	opts := recipe.Options{
		Name:         name,
		BaseImage:    p.BaseImage,
		WorkDir:      p.WorkDir,
		ManifestPath: manifestPath,
		Manifest:     m,
		VenvPath:     p.VenvPath,
		Env:          p.Descriptor(),
		Port:         p.Port,
		Interpreter:  p.Interpreter,
		Entry:        p.Entry,
		Secrets:      append([]string(nil), p.Secrets...),
	}
	if p.Quiet != nil {
		opts.Quiet = *p.Quiet
	}
	if p.Install != "" {
		mode, err := schema.ParseInstallMode(p.Install)
		if err != nil {
			return recipe.Options{}, err
		}
		opts.Install = mode
	}
	return opts, nil
}

// SanitizeName lowercases a directory name into a valid image name,
// replacing anything outside [a-z0-9._-].
func SanitizeName(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteRune('-')
		}
	}
	name := strings.Trim(sb.String(), ".-_")
	if name == "" {
		return "app"
	}
	return name
}
