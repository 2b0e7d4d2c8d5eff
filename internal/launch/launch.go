// Package launch starts the single process of a built artifact.
package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/railwayapp/stevedore/internal/artifact"
	"github.com/railwayapp/stevedore/internal/runtimeenv"
)

// Options are the launch-time inputs. Nothing else from the host reaches
// the process.
type Options struct {
	// Secrets are supplied explicitly at launch and never baked.
	Secrets map[string]string
	// Port publishes the declared container port on this host port.
	// Zero publishes nothing.
	Port int
	// Name names the container when launched through an engine.
	Name   string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Result is how the process ended.
type Result struct {
	ExitCode int
}

// Launcher starts exactly one process for an artifact and waits for it.
type Launcher interface {
	Launch(ctx context.Context, a *artifact.Artifact, opts Options) (*Result, error)
}

// MissingSecretsError lists required secrets that were not supplied.
type MissingSecretsError struct {
	Names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets: %s", strings.Join(e.Names, ", "))
}

// Environment returns the process environment: the baked variables plus
// the supplied secrets, sorted. Required secrets must all be present and
// no secret may override a baked variable.
func Environment(a *artifact.Artifact, secrets map[string]string) ([]string, error) {
	env, err := environmentMap(a, secrets)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(env))
	for name, value := range env {
		out = append(out, name+"="+value)
	}
	sort.Strings(out)
	return out, nil
}

func environmentMap(a *artifact.Artifact, secrets map[string]string) (map[string]string, error) {
	var missing []string
	for _, name := range a.Secrets {
		if _, ok := secrets[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingSecretsError{Names: missing}
	}

	env := a.EnvMap()
	for name, value := range secrets {
		if _, baked := env[name]; baked || runtimeenv.IsDescriptorVar(name) {
			return nil, fmt.Errorf("secret %s would override a baked runtime variable", name)
		}
		if name == "" || strings.ContainsAny(name, "=\x00") {
			return nil, fmt.Errorf("invalid secret name %q", name)
		}
		env[name] = value
	}
	return env, nil
}

// ReadSecretsFile loads secrets from a dotenv file.
func ReadSecretsFile(path string) (map[string]string, error) {
	secrets, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file %s: %w", path, err)
	}
	return secrets, nil
}

// ParseSecretFlags parses NAME=value flags. A bare NAME takes its value
// from lookup, which lets a caller pass one host variable through by name.
func ParseSecretFlags(flags []string, lookup func(string) (string, bool)) (map[string]string, error) {
	secrets := make(map[string]string, len(flags))
	for _, flag := range flags {
		name, value, hasValue := strings.Cut(flag, "=")
		if name == "" {
			return nil, fmt.Errorf("invalid secret %q", flag)
		}
		if !hasValue {
			v, ok := lookup(name)
			if !ok {
				return nil, fmt.Errorf("secret %s is not set in the calling environment", name)
			}
			value = v
		}
		secrets[name] = value
	}
	return secrets, nil
}

// MergeSecrets combines secret sources; later sources win.
func MergeSecrets(sources ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, src := range sources {
		for k, v := range src {
			out[k] = v
		}
	}
	return out
}

// ErrNoEntry is returned for an artifact without an entry command.
var ErrNoEntry = errors.New("artifact has no entry command")

func writerOr(w io.Writer, fallback *os.File) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
