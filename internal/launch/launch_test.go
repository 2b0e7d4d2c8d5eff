package launch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/railwayapp/stevedore/internal/artifact"
	"github.com/railwayapp/stevedore/internal/container"
	"github.com/railwayapp/stevedore/internal/schema"
)

func botArtifact() *artifact.Artifact {
	a := &artifact.Artifact{
		Name: "bot",
		Config: artifact.Config{
			WorkDir: "/app",
			Env: []schema.EnvVar{
				{Name: "PYTHONDONTWRITEBYTECODE", Value: "1"},
				{Name: "PYTHONUNBUFFERED", Value: "1"},
			},
			Cmd: []string{"python", "main.py"},
		},
		Secrets: []string{"BOT_TOKEN"},
	}
	a.ID = artifact.ComputeID(nil, a.Config)
	return a
}

func TestEnvironment(t *testing.T) {
	env, err := Environment(botArtifact(), map[string]string{"BOT_TOKEN": "123:abc"})
	if err != nil {
		t.Fatalf("Environment: %v", err)
	}
	want := []string{"BOT_TOKEN=123:abc", "PYTHONDONTWRITEBYTECODE=1", "PYTHONUNBUFFERED=1"}
	if strings.Join(env, " ") != strings.Join(want, " ") {
		t.Errorf("expected %v, got %v", want, env)
	}
}

func TestEnvironment_MissingSecret(t *testing.T) {
	_, err := Environment(botArtifact(), nil)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if len(missing.Names) != 1 || missing.Names[0] != "BOT_TOKEN" {
		t.Errorf("unexpected missing names %v", missing.Names)
	}
}

func TestEnvironment_SecretCannotOverrideBaked(t *testing.T) {
	_, err := Environment(botArtifact(), map[string]string{"BOT_TOKEN": "x", "PYTHONUNBUFFERED": "0"})
	if err == nil {
		t.Fatal("expected an error overriding a baked variable")
	}
	_, err = Environment(botArtifact(), map[string]string{"BOT_TOKEN": "x", "PYTHONWARNINGS": "ignore::Warning"})
	if err == nil {
		t.Fatal("expected an error setting a runtime variable at launch")
	}
}

func TestParseSecretFlags(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "BOT_TOKEN" {
			return "from-host", true
		}
		return "", false
	}

	secrets, err := ParseSecretFlags([]string{"BOT_TOKEN", "ADMIN_ID=42", "EMPTY="}, lookup)
	if err != nil {
		t.Fatalf("ParseSecretFlags: %v", err)
	}
	if secrets["BOT_TOKEN"] != "from-host" || secrets["ADMIN_ID"] != "42" {
		t.Errorf("unexpected secrets %v", secrets)
	}
	if v, ok := secrets["EMPTY"]; !ok || v != "" {
		t.Errorf("expected EMPTY to be set to the empty string")
	}

	if _, err := ParseSecretFlags([]string{"UNSET"}, lookup); err == nil {
		t.Error("expected an error for a secret missing from the host")
	}
	if _, err := ParseSecretFlags([]string{"=value"}, lookup); err == nil {
		t.Error("expected an error for an empty name")
	}
}

func TestReadSecretsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.env")
	if err := os.WriteFile(path, []byte("# telegram\nBOT_TOKEN=123:abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	secrets, err := ReadSecretsFile(path)
	if err != nil {
		t.Fatalf("ReadSecretsFile: %v", err)
	}
	merged := MergeSecrets(secrets, map[string]string{"ADMIN_ID": "1"})
	if merged["BOT_TOKEN"] != "123:abc" || merged["ADMIN_ID"] != "1" {
		t.Errorf("unexpected secrets %v", merged)
	}
}

const helperMarker = "stevedore-launch-helper"

// helperCommand runs TestHelperProcess in place of the entry program. The
// launcher replaces the command's environment, so the helper is selected
// by a marker argument instead of a variable.
func helperCommand(calls *[]string) container.ExecCommandFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		*calls = append(*calls, name)
		cs := append([]string{"-test.run=TestHelperProcess", "--", helperMarker, name}, args...)
		return exec.CommandContext(ctx, os.Args[0], cs...)
	}
}

func TestHelperProcess(t *testing.T) {
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 3 || args[1] != helperMarker {
		return
	}

	fmt.Fprintf(os.Stdout, "ARGS=%s\n", strings.Join(args[2:], " "))
	env := os.Environ()
	sort.Strings(env)
	for _, kv := range env {
		fmt.Fprintln(os.Stdout, kv)
	}
	wd, _ := os.Getwd()
	fmt.Fprintf(os.Stdout, "WD=%s\n", filepath.Base(wd))

	if strings.HasSuffix(args[2], "fail") {
		os.Exit(3)
	}
	os.Exit(0)
}

func TestProcessLauncher_ExactEnvironment(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "workdir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOST_ONLY", "leak")

	var calls []string
	var stdout bytes.Buffer
	l := NewProcessLauncher(dir, WithProcessExecCommand(helperCommand(&calls)))

	res, err := l.Launch(context.Background(), botArtifact(), Options{
		Secrets: map[string]string{"BOT_TOKEN": "123:abc"},
		Stdout:  &stdout,
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d\n%s", res.ExitCode, stdout.String())
	}
	if len(calls) != 1 {
		t.Fatalf("expected exactly one process, got %d", len(calls))
	}

	want := "ARGS=python main.py\nBOT_TOKEN=123:abc\nPYTHONDONTWRITEBYTECODE=1\nPYTHONUNBUFFERED=1\nWD=workdir\n"
	if stdout.String() != want {
		t.Errorf("unexpected process view:\n%s\nwant:\n%s", stdout.String(), want)
	}
}

func TestProcessLauncher_ExitCode(t *testing.T) {
	var calls []string
	l := NewProcessLauncher(t.TempDir(), WithProcessExecCommand(helperCommand(&calls)), WithInterpreter("python-fail"))

	res, err := l.Launch(context.Background(), botArtifact(), Options{
		Secrets: map[string]string{"BOT_TOKEN": "x"},
		Stdout:  &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", res.ExitCode)
	}
	if calls[0] != "python-fail" {
		t.Errorf("expected interpreter override, got %s", calls[0])
	}
}

func TestProcessLauncher_MissingSecretStartsNothing(t *testing.T) {
	var calls []string
	l := NewProcessLauncher(t.TempDir(), WithProcessExecCommand(helperCommand(&calls)))

	if _, err := l.Launch(context.Background(), botArtifact(), Options{}); err == nil {
		t.Fatal("expected an error for a missing secret")
	}
	if len(calls) != 0 {
		t.Error("no process should start")
	}
}

type fakeEngine struct {
	container.Engine
	exists bool
	runs   []container.RunOptions
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	return f.exists, nil
}

func (f *fakeEngine) Run(ctx context.Context, opts container.RunOptions) (*container.RunResult, error) {
	f.runs = append(f.runs, opts)
	return &container.RunResult{ExitCode: 0}, nil
}

func TestEngineLauncher(t *testing.T) {
	engine := &fakeEngine{exists: true}
	a := botArtifact()

	res, err := NewEngineLauncher(engine, nil).Launch(context.Background(), a, Options{
		Secrets: map[string]string{"BOT_TOKEN": "x"},
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if res.ExitCode != 0 || len(engine.runs) != 1 {
		t.Fatalf("expected one successful run, got %+v", engine.runs)
	}

	run := engine.runs[0]
	if run.Image != a.ImageTag() {
		t.Errorf("expected image %s, got %s", a.ImageTag(), run.Image)
	}
	if len(run.Ports) != 0 {
		t.Errorf("no port should be published by default, got %v", run.Ports)
	}
	if len(run.Env) != 1 || run.Env["BOT_TOKEN"] != "x" {
		t.Errorf("only secrets should be passed, got %v", run.Env)
	}
	if len(run.Command) != 0 {
		t.Errorf("the image entry command should not be overridden, got %v", run.Command)
	}
}

func TestEngineLauncher_Port(t *testing.T) {
	a := botArtifact()

	engine := &fakeEngine{exists: true}
	_, err := NewEngineLauncher(engine, nil).Launch(context.Background(), a, Options{
		Secrets: map[string]string{"BOT_TOKEN": "x"},
		Port:    9000,
	})
	if err == nil {
		t.Fatal("expected an error publishing an undeclared port")
	}

	a.Config.ExposedPorts = []string{"8080/tcp"}
	if _, err := NewEngineLauncher(engine, nil).Launch(context.Background(), a, Options{
		Secrets: map[string]string{"BOT_TOKEN": "x"},
		Port:    9000,
	}); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if got := engine.runs[len(engine.runs)-1].Ports; len(got) != 1 || got[0] != "9000:8080" {
		t.Errorf("unexpected port mapping %v", got)
	}
}

func TestEngineLauncher_ImageMissing(t *testing.T) {
	engine := &fakeEngine{exists: false}
	_, err := NewEngineLauncher(engine, nil).Launch(context.Background(), botArtifact(), Options{
		Secrets: map[string]string{"BOT_TOKEN": "x"},
	})
	if err == nil {
		t.Fatal("expected an error for an unbuilt image")
	}
	if len(engine.runs) != 0 {
		t.Error("nothing should run")
	}
}
