// Package schema defines the image recipe: the ordered build steps that
// turn a dependency manifest and a source tree into a runnable image.
package schema

import (
	"fmt"

	"github.com/railwayapp/stevedore/internal/runtimeenv"
)

// InstallMode selects where dependencies are installed.
type InstallMode string

const (
	// InstallSystem installs into the base image's interpreter.
	InstallSystem InstallMode = "system"
	// InstallVenv creates an isolated virtual environment first.
	InstallVenv InstallMode = "venv"
)

func ParseInstallMode(s string) (InstallMode, error) {
	switch InstallMode(s) {
	case "", InstallSystem:
		return InstallSystem, nil
	case InstallVenv:
		return InstallVenv, nil
	}
	return "", fmt.Errorf("unknown install mode %q (valid: system, venv)", s)
}

// StepKind identifies a pipeline step.
type StepKind string

const (
	StepBase         StepKind = "base"
	StepWorkDir      StepKind = "workdir"
	StepCopyManifest StepKind = "copy-manifest"
	StepCreateVenv   StepKind = "create-venv"
	StepInstall      StepKind = "install"
	StepCopySource   StepKind = "copy-source"
	StepEnv          StepKind = "env"
	StepExpose       StepKind = "expose"
	StepCmd          StepKind = "cmd"

	// StepRun is an imported RUN instruction stevedore does not plan itself.
	StepRun StepKind = "run"
)

// Step is one build instruction. Args depend on the kind:
//
//	base          [image]
//	workdir       [dir]
//	copy-manifest [src, dest]
//	create-venv   argv
//	install       argv, empty when there is nothing to install
//	copy-source   [src, dest]
//	env           [NAME=value...]
//	expose        [port/proto]
//	cmd           argv
type Step struct {
	Kind        StepKind `json:"kind" yaml:"kind"`
	Instruction string   `json:"instruction" yaml:"instruction"`
	Args        []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// NoOp reports whether the step does nothing when executed.
func (s Step) NoOp() bool {
	return s.Kind == StepInstall && len(s.Args) == 0
}

// Recipe is a complete, ordered image definition.
type Recipe struct {
	Name         string      `json:"name" yaml:"name"`
	BaseImage    string      `json:"baseImage" yaml:"baseImage"`
	WorkDir      string      `json:"workDir" yaml:"workDir"`
	Manifest     string      `json:"manifest" yaml:"manifest"`
	InstallMode  InstallMode `json:"installMode" yaml:"installMode"`
	VenvPath     string      `json:"venvPath,omitempty" yaml:"venvPath,omitempty"`
	Quiet        bool        `json:"quiet,omitempty" yaml:"quiet,omitempty"`
	Env          []EnvVar    `json:"env,omitempty" yaml:"env,omitempty"`
	Ports        []Port      `json:"ports,omitempty" yaml:"ports,omitempty"`
	Entry        []string    `json:"entry" yaml:"entry"`
	Secrets      []string    `json:"secrets,omitempty" yaml:"secrets,omitempty"`
	Dependencies []string    `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Steps        []Step      `json:"steps" yaml:"steps"`
}

// EnvVar is a variable baked into the image.
type EnvVar struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Port is a declared, optional container port.
type Port struct {
	Number   int    `json:"number" yaml:"number"`
	Protocol string `json:"protocol" yaml:"protocol"`
}

func (p Port) String() string {
	return fmt.Sprintf("%d/%s", p.Number, p.Protocol)
}

// Constructors

func NewRecipe(name string) *Recipe {
	return &Recipe{
		Name:  name,
		Steps: make([]Step, 0),
	}
}

func (r *Recipe) AddStep(step Step) {
	r.Steps = append(r.Steps, step)
}

func NewStep(kind StepKind, instruction string, args ...string) Step {
	return Step{
		Kind:        kind,
		Instruction: instruction,
		Args:        args,
	}
}

func NewEnvVar(name, value string) EnvVar {
	return EnvVar{Name: name, Value: value}
}

func NewPort(number int) Port {
	return Port{Number: number, Protocol: "tcp"}
}

// Step returns the first step of the given kind.
func (r *Recipe) Step(kind StepKind) (Step, bool) {
	for _, s := range r.Steps {
		if s.Kind == kind {
			return s, true
		}
	}
	return Step{}, false
}

// Descriptor rebuilds the runtime environment descriptor from Env.
func (r *Recipe) Descriptor() (runtimeenv.Descriptor, error) {
	vars := make(map[string]string, len(r.Env))
	for _, e := range r.Env {
		vars[e.Name] = e.Value
	}
	return runtimeenv.Parse(vars)
}

// EnvMap returns the baked variables as a fresh map.
func (r *Recipe) EnvMap() map[string]string {
	m := make(map[string]string, len(r.Env))
	for _, e := range r.Env {
		m[e.Name] = e.Value
	}
	return m
}
