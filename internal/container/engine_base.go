package container

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// Tests inject a helper process through it.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine implements the operations shared by the docker and
	// podman command lines. Concrete engines embed it.
	BaseCLIEngine struct {
		name        string
		binaryPath  string
		execCommand ExecCommandFunc
	}
)

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithBinaryPath overrides the engine binary found on PATH.
func WithBinaryPath(path string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.binaryPath = path
	}
}

// NewBaseCLIEngine creates a base engine for the given binary.
func NewBaseCLIEngine(name, binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		name:        name,
		binaryPath:  binaryPath,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *BaseCLIEngine) Name() string {
	return e.name
}

// BinaryPath returns the path to the container engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// Available checks that the binary exists and the server answers.
func (e *BaseCLIEngine) Available() bool {
	if e.binaryPath == "" {
		return false
	}
	return e.CreateCommand(context.Background(), "version").Run() == nil
}

// Build builds an image from a Dockerfile.
func (e *BaseCLIEngine) Build(ctx context.Context, opts BuildOptions) error {
	cmd := e.CreateCommand(ctx, e.BuildArgs(opts)...)
	cmd.Stdout = opts.Stdout
	var stderr bytes.Buffer
	if opts.Stderr != nil {
		cmd.Stderr = opts.Stderr
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s build failed: %w: %s", e.name, err, msg)
		}
		return fmt.Errorf("%s build failed: %w", e.name, err)
	}
	return nil
}

// Run runs a container and waits for it. A non-zero exit is reported in
// the result, not as an error.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	cmd := e.CreateCommand(ctx, e.RunArgs(opts)...)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	result := &RunResult{}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
			result.Error = err
		}
	}
	return result, nil
}

// Pull fetches an image from its registry.
func (e *BaseCLIEngine) Pull(ctx context.Context, image string) error {
	return e.RunCommandStatus(ctx, "pull", image)
}

// ImageExists checks if an image is present locally.
func (e *BaseCLIEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	err := e.RunCommandStatus(ctx, "image", "inspect", image)
	return err == nil, nil
}

// Inspect reads image metadata with "image inspect".
func (e *BaseCLIEngine) Inspect(ctx context.Context, image string) (*ImageInfo, error) {
	out, err := e.RunCommand(ctx, "image", "inspect", "--format", "{{json .}}", image)
	if err != nil {
		return nil, err
	}
	return parseInspect(out)
}

// RemoveImage removes an image.
func (e *BaseCLIEngine) RemoveImage(ctx context.Context, image string, force bool) error {
	args := []string{"rmi"}
	if force {
		args = append(args, "-f")
	}
	return e.RunCommandStatus(ctx, append(args, image)...)
}

// BuildArgs constructs arguments for a build command.
//
// Generated command: <binary> build [options] <context>
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Dockerfile != "" {
		dockerfilePath := opts.Dockerfile
		if !filepath.IsAbs(dockerfilePath) && opts.ContextDir != "" {
			dockerfilePath = filepath.Join(opts.ContextDir, dockerfilePath)
		}
		args = append(args, "-f", dockerfilePath)
	}

	if opts.Tag != "" {
		args = append(args, "-t", opts.Tag)
	}

	if opts.NoCache {
		args = append(args, "--no-cache")
	}

	for _, k := range sortedKeys(opts.Labels) {
		args = append(args, "--label", k+"="+opts.Labels[k])
	}

	return append(args, opts.ContextDir)
}

// RunArgs constructs arguments for a run command.
//
// Generated command: <binary> run [options] <image> [command...]
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Remove {
		args = append(args, "--rm")
	}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	if opts.Stdin != nil {
		args = append(args, "-i")
	}

	for _, k := range sortedKeys(opts.Env) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}

	for _, p := range opts.Ports {
		args = append(args, "-p", p)
	}

	args = append(args, opts.Image)
	return append(args, opts.Command...)
}

// RunCommand executes a command and returns its stdout.
func (e *BaseCLIEngine) RunCommand(ctx context.Context, args ...string) ([]byte, error) {
	out, err := e.CreateCommand(ctx, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}
	return out, nil
}

// RunCommandStatus executes a command and returns only the error status.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	if err := e.CreateCommand(ctx, args...).Run(); err != nil {
		return fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}
	return nil
}

// CreateCommand creates an exec.Cmd for the given arguments.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

type inspectOutput struct {
	ID          string   `json:"Id"`
	RepoDigests []string `json:"RepoDigests"`
	Config      struct {
		Env          []string            `json:"Env"`
		Cmd          []string            `json:"Cmd"`
		WorkingDir   string              `json:"WorkingDir"`
		ExposedPorts map[string]struct{} `json:"ExposedPorts"`
	} `json:"Config"`
}

func parseInspect(out []byte) (*ImageInfo, error) {
	out = bytes.TrimSpace(out)
	// podman prints a one-element array even with --format
	if bytes.HasPrefix(out, []byte("[")) {
		var list []inspectOutput
		if err := json.Unmarshal(out, &list); err != nil {
			return nil, fmt.Errorf("failed to decode image inspect output: %w", err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("image inspect returned no images")
		}
		return list[0].info(), nil
	}

	var single inspectOutput
	if err := json.Unmarshal(out, &single); err != nil {
		return nil, fmt.Errorf("failed to decode image inspect output: %w", err)
	}
	return single.info(), nil
}

func (o inspectOutput) info() *ImageInfo {
	return &ImageInfo{
		ID:           o.ID,
		RepoDigests:  o.RepoDigests,
		Env:          o.Config.Env,
		Cmd:          o.Config.Cmd,
		WorkingDir:   o.Config.WorkingDir,
		ExposedPorts: o.Config.ExposedPorts,
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
