// Package runtimeenv models the environment variables baked into an image.
//
// The descriptor is an immutable value. It is built once, either from
// options at build time or from a lookup function at process start, and is
// never read from or written to the ambient process environment implicitly.
package runtimeenv

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	NoBytecodeVar = "PYTHONDONTWRITEBYTECODE"
	UnbufferedVar = "PYTHONUNBUFFERED"
	WarningsVar   = "PYTHONWARNINGS"
)

// Names lists every variable a descriptor can set, sorted.
var Names = []string{NoBytecodeVar, UnbufferedVar, WarningsVar}

var warningClassPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Descriptor is the runtime environment baked into an artifact.
// The zero value sets no variables. Descriptors are comparable with ==.
type Descriptor struct {
	noBytecode      bool
	unbuffered      bool
	suppressWarning string
}

// Variable is a single name/value pair.
type Variable struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

type Option func(*Descriptor)

// WithNoBytecode disables writing compiled bytecode.
func WithNoBytecode(enabled bool) Option {
	return func(d *Descriptor) { d.noBytecode = enabled }
}

// WithUnbuffered forces unbuffered standard output and error.
func WithUnbuffered(enabled bool) Option {
	return func(d *Descriptor) { d.unbuffered = enabled }
}

// WithSuppressedWarnings ignores one warning class, e.g. "DeprecationWarning".
// An empty class turns suppression off.
func WithSuppressedWarnings(class string) Option {
	return func(d *Descriptor) { d.suppressWarning = strings.TrimSpace(class) }
}

// New builds a descriptor from the zero value.
func New(opts ...Option) Descriptor {
	var d Descriptor
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Default returns the descriptor used when a project does not choose:
// no bytecode, unbuffered output, warnings left alone.
func Default() Descriptor {
	return New(WithNoBytecode(true), WithUnbuffered(true))
}

// With returns a copy of d with opts applied.
func (d Descriptor) With(opts ...Option) Descriptor {
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func (d Descriptor) NoBytecode() bool { return d.noBytecode }

func (d Descriptor) Unbuffered() bool { return d.unbuffered }

// SuppressedWarning returns the ignored warning class, or "".
func (d Descriptor) SuppressedWarning() string { return d.suppressWarning }

// Validate checks the warning class is a dotted Python identifier.
func (d Descriptor) Validate() error {
	if d.suppressWarning != "" && !warningClassPattern.MatchString(d.suppressWarning) {
		return fmt.Errorf("invalid warning class %q", d.suppressWarning)
	}
	return nil
}

// Variables returns the variables the descriptor sets, sorted by name.
func (d Descriptor) Variables() []Variable {
	var vars []Variable
	if d.noBytecode {
		vars = append(vars, Variable{Name: NoBytecodeVar, Value: "1"})
	}
	if d.unbuffered {
		vars = append(vars, Variable{Name: UnbufferedVar, Value: "1"})
	}
	if d.suppressWarning != "" {
		vars = append(vars, Variable{Name: WarningsVar, Value: "ignore::" + d.suppressWarning})
	}
	return vars
}

// Map returns the variables as a fresh map.
func (d Descriptor) Map() map[string]string {
	m := make(map[string]string)
	for _, v := range d.Variables() {
		m[v.Name] = v.Value
	}
	return m
}

// Environ returns the variables in NAME=value form, sorted.
func (d Descriptor) Environ() []string {
	vars := d.Variables()
	out := make([]string, 0, len(vars))
	for _, v := range vars {
		out = append(out, v.Name+"="+v.Value)
	}
	return out
}

func (d Descriptor) String() string {
	return strings.Join(d.Environ(), " ")
}

// IsDescriptorVar reports whether name belongs to the descriptor surface.
func IsDescriptorVar(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// Parse builds a descriptor from explicit variables. Unknown variables and
// values outside the recognized forms are rejected.
func Parse(vars map[string]string) (Descriptor, error) {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var d Descriptor
	for _, name := range names {
		value := vars[name]
		switch name {
		case NoBytecodeVar:
			d.noBytecode = value != ""
		case UnbufferedVar:
			d.unbuffered = value != ""
		case WarningsVar:
			class, err := parseWarnings(value)
			if err != nil {
				return Descriptor{}, err
			}
			d.suppressWarning = class
		default:
			return Descriptor{}, fmt.Errorf("unrecognized runtime variable %s", name)
		}
	}

	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// Load reads the descriptor variables through lookup exactly once each.
// Variables outside the descriptor surface are never consulted.
func Load(lookup func(string) (string, bool)) (Descriptor, error) {
	vars := make(map[string]string)
	for _, name := range Names {
		if value, ok := lookup(name); ok {
			vars[name] = value
		}
	}
	return Parse(vars)
}

func parseWarnings(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	class, ok := strings.CutPrefix(value, "ignore::")
	if !ok || strings.Contains(class, ",") || strings.Contains(class, ":") {
		return "", fmt.Errorf("%s must have the form ignore::<Class>, got %q", WarningsVar, value)
	}
	return class, nil
}
