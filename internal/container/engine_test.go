package container

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestBaseCLIEngine_BuildArgs(t *testing.T) {
	engine := NewBaseCLIEngine("docker", "/usr/bin/docker")

	tests := []struct {
		name     string
		opts     BuildOptions
		expected []string
	}{
		{
			name:     "minimal build",
			opts:     BuildOptions{ContextDir: "."},
			expected: []string{"build", "."},
		},
		{
			name: "tag and dockerfile",
			opts: BuildOptions{
				ContextDir: "/ctx",
				Dockerfile: "Dockerfile",
				Tag:        "bot:3f2a9c1b7d4e",
			},
			expected: []string{"build", "-f", filepath.Join("/ctx", "Dockerfile"), "-t", "bot:3f2a9c1b7d4e", "/ctx"},
		},
		{
			name: "labels are sorted",
			opts: BuildOptions{
				ContextDir: "/ctx",
				NoCache:    true,
				Labels:     map[string]string{"b": "2", "a": "1"},
			},
			expected: []string{"build", "--no-cache", "--label", "a=1", "--label", "b=2", "/ctx"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.BuildArgs(tt.opts); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("BuildArgs() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBaseCLIEngine_RunArgs(t *testing.T) {
	engine := NewBaseCLIEngine("docker", "/usr/bin/docker")

	got := engine.RunArgs(RunOptions{
		Image:   "bot:latest",
		Remove:  true,
		WorkDir: "/app",
		Env:     map[string]string{"PYTHONUNBUFFERED": "1", "BOT_TOKEN": "x"},
		Ports:   []string{"8080:8080"},
	})

	want := []string{
		"run", "--rm", "-w", "/app",
		"-e", "BOT_TOKEN=x", "-e", "PYTHONUNBUFFERED=1",
		"-p", "8080:8080",
		"bot:latest",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RunArgs() = %v, want %v", got, want)
	}
}

func TestParseInspect(t *testing.T) {
	object := `{"Id":"sha256:abc","RepoDigests":["python@sha256:def"],"Config":{"Env":["PATH=/usr/bin","PYTHONUNBUFFERED=1"],"Cmd":["python","main.py"],"WorkingDir":"/app","ExposedPorts":{"8080/tcp":{}}}}`

	for _, out := range []string{object, "[" + object + "]\n"} {
		info, err := parseInspect([]byte(out))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.ID != "sha256:abc" || info.WorkingDir != "/app" {
			t.Errorf("unexpected info %+v", info)
		}
		if !reflect.DeepEqual(info.Cmd, []string{"python", "main.py"}) {
			t.Errorf("unexpected cmd %v", info.Cmd)
		}
		if _, ok := info.ExposedPorts["8080/tcp"]; !ok {
			t.Errorf("expected exposed port, got %v", info.ExposedPorts)
		}
	}

	if _, err := parseInspect([]byte("[]")); err == nil {
		t.Error("expected error for empty inspect output")
	}
}

// helperCommand runs TestHelperProcess in place of the engine binary.
func helperCommand(stdout string, exitCode int, calls *[][]string) ExecCommandFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		*calls = append(*calls, args)
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = []string{
			"GO_WANT_HELPER_PROCESS=1",
			"HELPER_STDOUT=" + stdout,
			fmt.Sprintf("HELPER_EXIT=%d", exitCode),
		}
		return cmd
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Fprint(os.Stdout, os.Getenv("HELPER_STDOUT"))
	code := 0
	fmt.Sscanf(os.Getenv("HELPER_EXIT"), "%d", &code)
	os.Exit(code)
}

func TestDockerEngine_Inspect(t *testing.T) {
	var calls [][]string
	engine := NewDockerEngine(
		WithBinaryPath("docker"),
		WithExecCommand(helperCommand(`{"Id":"sha256:abc","Config":{"WorkingDir":"/app"}}`, 0, &calls)),
	)

	info, err := engine.Inspect(context.Background(), "bot:latest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.WorkingDir != "/app" {
		t.Errorf("expected /app, got %q", info.WorkingDir)
	}
	if got := strings.Join(calls[0], " "); got != "image inspect --format {{json .}} bot:latest" {
		t.Errorf("unexpected args %q", got)
	}
}

func TestDockerEngine_RunExitCode(t *testing.T) {
	var calls [][]string
	engine := NewDockerEngine(WithBinaryPath("docker"), WithExecCommand(helperCommand("", 3, &calls)))

	var stdout bytes.Buffer
	result, err := engine.Run(context.Background(), RunOptions{Image: "bot:latest", Stdout: &stdout})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", result.ExitCode)
	}
}

func TestDockerEngine_ImageExists(t *testing.T) {
	var calls [][]string
	present := NewDockerEngine(WithBinaryPath("docker"), WithExecCommand(helperCommand("", 0, &calls)))
	missing := NewDockerEngine(WithBinaryPath("docker"), WithExecCommand(helperCommand("", 1, &calls)))

	if ok, _ := present.ImageExists(context.Background(), "python:3.11-slim"); !ok {
		t.Error("expected image to exist")
	}
	if ok, _ := missing.ImageExists(context.Background(), "python:3.11-slim"); ok {
		t.Error("expected image to be missing")
	}
}

func TestEngine_UnavailableWithoutBinary(t *testing.T) {
	engine := NewPodmanEngine(WithBinaryPath(""))
	if engine.Available() {
		t.Error("expected engine without binary to be unavailable")
	}
}

func TestNewEngine_UnknownType(t *testing.T) {
	if _, err := NewEngine("containerd"); err == nil {
		t.Error("expected error for unknown engine type")
	}
}
