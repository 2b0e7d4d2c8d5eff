// Package manifest reads the dependency manifest of a Python build context.
//
// A manifest is an ordered list of requirements, each a package name with an
// optional PEP 440 version constraint, plus an optional interpreter
// constraint (requires-python). Three formats are understood:
// requirements.txt, pyproject.toml and Pipfile.
package manifest

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Format identifies the manifest file format.
type Format string

const (
	FormatRequirements Format = "requirements"
	FormatPyProject    Format = "pyproject"
	FormatPipfile      Format = "pipfile"
)

// Requirement is a single declared dependency.
type Requirement struct {
	Name       string   `json:"name"`
	Extras     []string `json:"extras,omitempty"`
	Constraint string   `json:"constraint,omitempty"`
	URL        string   `json:"url,omitempty"`
	Marker     string   `json:"marker,omitempty"`
	Hashes     []string `json:"hashes,omitempty"`
	Line       int      `json:"line,omitempty"`
}

// Manifest is a parsed dependency manifest. It is never mutated after Parse
// returns.
type Manifest struct {
	Path           string        `json:"path"`
	Format         Format        `json:"format"`
	Requirements   []Requirement `json:"requirements"`
	RequiresPython string        `json:"requiresPython,omitempty"`
	Options        []string      `json:"options,omitempty"`
	Raw            []byte        `json:"-"`
}

// ParseError reports a malformed manifest entry.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// ErrUnknownFormat is returned when a file name matches no known manifest format.
var ErrUnknownFormat = errors.New("unknown manifest format")

// FormatOf returns the manifest format implied by a file name.
func FormatOf(filename string) (Format, error) {
	base := strings.ToLower(path.Base(strings.ReplaceAll(filename, "\\", "/")))
	switch {
	case base == "pyproject.toml":
		return FormatPyProject, nil
	case base == "pipfile":
		return FormatPipfile, nil
	case strings.HasSuffix(base, ".txt") || strings.HasSuffix(base, ".in"):
		return FormatRequirements, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, filename)
}

// Parse parses manifest content. The format is chosen from the file name.
func Parse(filename string, content []byte) (*Manifest, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}

	var m *Manifest
	switch format {
	case FormatRequirements:
		m, err = parseRequirements(filename, content)
	case FormatPyProject:
		m, err = parsePyProject(filename, content)
	case FormatPipfile:
		m, err = parsePipfile(filename, content)
	}
	if err != nil {
		return nil, err
	}

	if err := checkDuplicates(m); err != nil {
		return nil, err
	}
	if m.RequiresPython != "" {
		if err := ValidateSpecifierSet(m.RequiresPython); err != nil {
			return nil, &ParseError{Path: filename, Msg: fmt.Sprintf("invalid python constraint %q: %v", m.RequiresPython, err)}
		}
	}

	m.Raw = content
	return m, nil
}

// Empty reports whether the manifest declares no dependencies.
func (m *Manifest) Empty() bool {
	return len(m.Requirements) == 0
}

// Specs returns the requirements in pip command-line form, in declared order.
func (m *Manifest) Specs() []string {
	specs := make([]string, 0, len(m.Requirements))
	for _, r := range m.Requirements {
		specs = append(specs, r.String())
	}
	return specs
}

// Canonical returns a deterministic rendering of everything that affects
// dependency installation. Formatting and comments in the source file do
// not change it.
func (m *Manifest) Canonical() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "format %s\n", m.Format)
	if m.RequiresPython != "" {
		fmt.Fprintf(&sb, "python %s\n", m.RequiresPython)
	}
	for _, opt := range m.Options {
		fmt.Fprintf(&sb, "option %s\n", opt)
	}
	for _, r := range m.Requirements {
		fmt.Fprintf(&sb, "require %s", r.String())
		for _, h := range r.Hashes {
			fmt.Fprintf(&sb, " --hash=%s", h)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// String renders the requirement in PEP 508 form.
func (r Requirement) String() string {
	var sb strings.Builder
	sb.WriteString(r.Name)
	if len(r.Extras) > 0 {
		sb.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	if r.URL != "" {
		sb.WriteString(" @ " + r.URL)
	} else if r.Constraint != "" {
		sb.WriteString(r.Constraint)
	}
	if r.Marker != "" {
		if r.URL != "" {
			sb.WriteString(" ")
		}
		sb.WriteString("; " + r.Marker)
	}
	return sb.String()
}

// CanonicalName normalizes a project name per PEP 503.
func CanonicalName(name string) string {
	var sb strings.Builder
	lastSep := false
	for _, r := range strings.ToLower(name) {
		if r == '-' || r == '_' || r == '.' {
			if !lastSep {
				sb.WriteRune('-')
			}
			lastSep = true
			continue
		}
		sb.WriteRune(r)
		lastSep = false
	}
	return sb.String()
}

func checkDuplicates(m *Manifest) error {
	seen := make(map[string]int)
	for _, r := range m.Requirements {
		key := CanonicalName(r.Name) + ";" + r.Marker
		if line, ok := seen[key]; ok {
			msg := fmt.Sprintf("duplicate requirement %q", r.Name)
			if line > 0 {
				msg += fmt.Sprintf(" (first declared on line %d)", line)
			}
			return &ParseError{Path: m.Path, Line: r.Line, Msg: msg}
		}
		seen[key] = r.Line
	}
	return nil
}
