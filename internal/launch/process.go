package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/railwayapp/stevedore/internal/artifact"
	"github.com/railwayapp/stevedore/internal/container"
	envtypes "github.com/railwayapp/stevedore/internal/environment/types"
)

// ProcessLauncher runs the entry command on the host inside a directory
// holding the materialized build context.
type ProcessLauncher struct {
	dir         string
	interpreter string
	logger      *log.Logger
	execCommand container.ExecCommandFunc
}

type ProcessOption func(*ProcessLauncher)

func WithProcessLogger(logger *log.Logger) ProcessOption {
	return func(l *ProcessLauncher) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithInterpreter replaces the artifact's interpreter, for hosts where the
// in-image path (such as a venv under /opt) does not exist.
func WithInterpreter(interpreter string) ProcessOption {
	return func(l *ProcessLauncher) { l.interpreter = interpreter }
}

func WithProcessExecCommand(fn container.ExecCommandFunc) ProcessOption {
	return func(l *ProcessLauncher) { l.execCommand = fn }
}

// NewProcessLauncher returns a launcher whose working directory stands in
// for the artifact's.
func NewProcessLauncher(dir string, opts ...ProcessOption) *ProcessLauncher {
	l := &ProcessLauncher{
		dir:         dir,
		logger:      log.New(io.Discard),
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *ProcessLauncher) Launch(ctx context.Context, a *artifact.Artifact, opts Options) (*Result, error) {
	if len(a.Config.Cmd) == 0 {
		return nil, ErrNoEntry
	}
	if opts.Port != 0 && len(a.Config.ExposedPorts) == 0 {
		return nil, fmt.Errorf("artifact %s declares no port to publish", a.Name)
	}
	env, err := Environment(a, opts.Secrets)
	if err != nil {
		return nil, err
	}

	argv := append([]string(nil), a.Config.Cmd...)
	if l.interpreter != "" {
		argv[0] = l.interpreter
	}
	program := argv[0]
	if !path.IsAbs(program) && strings.Contains(program, "/") {
		program = filepath.Join(l.dir, filepath.FromSlash(program))
	}

	cmd := l.execCommand(ctx, program, argv[1:]...)
	cmd.Dir = l.dir
	cmd.Env = env
	cmd.Stdin = opts.Stdin
	cmd.Stdout = writerOr(opts.Stdout, os.Stdout)
	cmd.Stderr = writerOr(opts.Stderr, os.Stderr)

	l.logger.Info("launching", "artifact", a.ShortID(), "cmd", strings.Join(argv, " "), "dir", l.dir)
	for _, kv := range env {
		name, value, _ := strings.Cut(kv, "=")
		l.logger.Debug("env", "name", name, "value", envtypes.Redact(name, value))
	}

	err = cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return &Result{ExitCode: 0}, nil
	case errors.As(err, &exitErr):
		return &Result{ExitCode: exitErr.ExitCode()}, nil
	default:
		return nil, fmt.Errorf("failed to start %s: %w", program, err)
	}
}
