// Package artifact describes the immutable result of a successful build
// and where it is kept.
package artifact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/railwayapp/stevedore/internal/schema"
)

// Layer is one executed or reused pipeline step.
type Layer struct {
	Kind        schema.StepKind `json:"kind"`
	Instruction string          `json:"instruction"`
	Args        []string        `json:"args,omitempty"`
	Key         digest.Digest   `json:"key"`    // cache key: parent key plus step input
	Digest      digest.Digest   `json:"digest"` // content produced by the step
	CacheHit    bool            `json:"cacheHit"`
	Outputs     []string        `json:"outputs,omitempty"`
}

// Config is what the artifact runs with. It is fixed at build time.
type Config struct {
	WorkDir      string          `json:"workDir"`
	Env          []schema.EnvVar `json:"env,omitempty"`
	Cmd          []string        `json:"cmd"`
	ExposedPorts []string        `json:"exposedPorts,omitempty"`
}

// Artifact is a runnable build result.
type Artifact struct {
	ID           digest.Digest `json:"id"`
	Name         string        `json:"name"`
	BaseImage    string        `json:"baseImage"`
	BaseDigest   digest.Digest `json:"baseDigest"`
	Layers       []Layer       `json:"layers"`
	Config       Config        `json:"config"`
	Secrets      []string      `json:"secrets,omitempty"`
	Dependencies []string      `json:"dependencies,omitempty"`
}

// ComputeID derives the artifact ID from the layer chain and the run
// configuration. Cache hits do not affect it, so cold and warm builds of
// the same inputs produce the same ID.
func ComputeID(layers []Layer, cfg Config) digest.Digest {
	var sb strings.Builder
	for _, l := range layers {
		fmt.Fprintf(&sb, "layer %s %s\n", l.Key, l.Digest)
	}
	fmt.Fprintf(&sb, "workdir %s\n", cfg.WorkDir)
	for _, e := range cfg.Env {
		fmt.Fprintf(&sb, "env %s=%s\n", e.Name, e.Value)
	}
	fmt.Fprintf(&sb, "cmd %q\n", cfg.Cmd)
	for _, p := range cfg.ExposedPorts {
		fmt.Fprintf(&sb, "port %s\n", p)
	}
	return digest.FromString(sb.String())
}

// Environ returns the baked variables as sorted NAME=value pairs.
func (a *Artifact) Environ() []string {
	env := make([]string, 0, len(a.Config.Env))
	for _, e := range a.Config.Env {
		env = append(env, e.Name+"="+e.Value)
	}
	sort.Strings(env)
	return env
}

// EnvMap returns the baked variables as a fresh map.
func (a *Artifact) EnvMap() map[string]string {
	m := make(map[string]string, len(a.Config.Env))
	for _, e := range a.Config.Env {
		m[e.Name] = e.Value
	}
	return m
}

// Layer returns the first layer of the given kind.
func (a *Artifact) Layer(kind schema.StepKind) (Layer, bool) {
	for _, l := range a.Layers {
		if l.Kind == kind {
			return l, true
		}
	}
	return Layer{}, false
}

// ShortID is the first twelve hex characters of the ID.
func (a *Artifact) ShortID() string {
	hex := a.ID.Encoded()
	if len(hex) > 12 {
		return hex[:12]
	}
	return hex
}

// ImageTag is the tag used when the artifact is built into a real image.
func (a *Artifact) ImageTag() string {
	return fmt.Sprintf("%s:%s", a.Name, a.ShortID())
}
