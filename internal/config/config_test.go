package config_test

import (
	"strings"
	"testing"

	"github.com/railwayapp/stevedore/internal/config"
	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/railwayapp/stevedore/internal/recipe"
	"github.com/railwayapp/stevedore/internal/schema"
)

const botProject = `
name = "rolebot"
base_image = "python:3.11-slim"
entry = "main.py"
install = "venv"
quiet = true
secrets = ["BOT_TOKEN"]

[env]
unbuffered = true
no_bytecode = true
suppress_warnings = "DeprecationWarning"
`

func TestDecode(t *testing.T) {
	p, err := config.Decode([]byte(botProject))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Name != "rolebot" || p.Install != "venv" || p.Quiet == nil || !*p.Quiet {
		t.Errorf("unexpected project %+v", p)
	}
	if len(p.Secrets) != 1 || p.Secrets[0] != "BOT_TOKEN" {
		t.Errorf("unexpected secrets %v", p.Secrets)
	}

	env := p.Descriptor().Map()
	if env["PYTHONWARNINGS"] != "ignore::DeprecationWarning" || env["PYTHONUNBUFFERED"] != "1" {
		t.Errorf("unexpected descriptor %v", env)
	}
}

func TestDecode_UnknownKey(t *testing.T) {
	_, err := config.Decode([]byte("name = \"bot\"\nentrypoint = \"main.py\"\n"))
	if err == nil || !strings.Contains(err.Error(), "entrypoint") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestDescriptor_Default(t *testing.T) {
	env := config.Project{}.Descriptor().Map()
	if len(env) != 2 || env["PYTHONDONTWRITEBYTECODE"] != "1" || env["PYTHONUNBUFFERED"] != "1" {
		t.Errorf("unexpected default descriptor %v", env)
	}

	off := false
	env = config.Project{Env: &config.Env{NoBytecode: &off}}.Descriptor().Map()
	if _, ok := env["PYTHONDONTWRITEBYTECODE"]; ok {
		t.Errorf("no_bytecode = false should drop the variable, got %v", env)
	}
}

func TestMerge(t *testing.T) {
	base, err := config.Decode([]byte(botProject))
	if err != nil {
		t.Fatal(err)
	}
	loud := false
	merged := base.Merge(config.Project{Install: "system", Quiet: &loud, Env: &config.Env{SuppressWarnings: "UserWarning"}})

	if merged.Install != "system" || *merged.Quiet {
		t.Errorf("flags should override the file, got %+v", merged)
	}
	if merged.Name != "rolebot" {
		t.Errorf("unset overrides should keep file values, got %s", merged.Name)
	}
	if merged.Env.SuppressWarnings != "UserWarning" || merged.Env.Unbuffered == nil || !*merged.Env.Unbuffered {
		t.Errorf("unexpected env %+v", merged.Env)
	}
	if *base.Quiet != true {
		t.Error("Merge must not modify the receiver")
	}
}

func TestLoad_Missing(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	p, err := config.Load(mfs, ".")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "" || p.Env != nil {
		t.Errorf("expected an empty project, got %+v", p)
	}
}

func TestOptions(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("stevedore.toml", []byte(botProject))
	mfs.AddFile("requirements.txt", []byte("python-telegram-bot==13.15\n"))
	mfs.AddFile("main.py", []byte("print('hi')\n"))

	p, err := config.Load(mfs, ".")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts, err := p.Options(mfs, ".")
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.ManifestPath != "requirements.txt" || opts.Manifest == nil {
		t.Fatalf("expected the detected manifest, got %q", opts.ManifestPath)
	}
	if opts.Install != schema.InstallVenv || !opts.Quiet {
		t.Errorf("unexpected options %+v", opts)
	}

	r, err := recipe.Plan(opts)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if r.Name != "rolebot" || r.BaseImage != "python:3.11-slim" {
		t.Errorf("unexpected recipe %s %s", r.Name, r.BaseImage)
	}
	if strings.Join(r.Entry, " ") != "/opt/venv/bin/python main.py" {
		t.Errorf("unexpected entry %v", r.Entry)
	}
}

func TestOptions_NamedManifest(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("deps/requirements.txt", []byte("requests>=2\n"))

	opts, err := config.Project{Manifest: "deps/requirements.txt", Install: "bogus"}.Options(mfs, ".")
	if err == nil {
		t.Fatalf("expected an install mode error, got %+v", opts)
	}

	opts, err = config.Project{Manifest: "deps/requirements.txt"}.Options(mfs, ".")
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.ManifestPath != "deps/requirements.txt" || opts.Name != "app" {
		t.Errorf("unexpected options %q %q", opts.ManifestPath, opts.Name)
	}
}

func TestOptions_NoManifest(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("main.py", []byte("print('hi')\n"))

	if _, err := (config.Project{}).Options(mfs, "."); err == nil {
		t.Fatal("expected an error without a manifest")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"RoleBot":     "rolebot",
		"my bot":      "my-bot",
		"..":          "app",
		"telegram_v2": "telegram_v2",
	}
	for in, want := range tests {
		if got := config.SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
