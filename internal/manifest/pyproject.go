package manifest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

type pyProjectFile struct {
	Project *struct {
		Dependencies   []string `toml:"dependencies"`
		RequiresPython string   `toml:"requires-python"`
	} `toml:"project"`
	Tool struct {
		Poetry *struct {
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

type pipfileFile struct {
	Packages map[string]any `toml:"packages"`
	Requires struct {
		PythonVersion     string `toml:"python_version"`
		PythonFullVersion string `toml:"python_full_version"`
	} `toml:"requires"`
}

func parsePyProject(filename string, content []byte) (*Manifest, error) {
	var doc pyProjectFile
	if err := decodeTOML(filename, content, &doc); err != nil {
		return nil, err
	}

	m := &Manifest{Path: filename, Format: FormatPyProject}

	switch {
	case doc.Project != nil:
		for i, spec := range doc.Project.Dependencies {
			req, err := ParseRequirement(spec)
			if err != nil {
				return nil, &ParseError{Path: filename, Msg: fmt.Sprintf("project.dependencies[%d]: %v", i, err)}
			}
			m.Requirements = append(m.Requirements, req)
		}
		m.RequiresPython = strings.TrimSpace(doc.Project.RequiresPython)

	case doc.Tool.Poetry != nil:
		names := sortedKeys(doc.Tool.Poetry.Dependencies)
		for _, name := range names {
			value := doc.Tool.Poetry.Dependencies[name]
			if strings.EqualFold(name, "python") {
				constraint, ok := value.(string)
				if !ok {
					return nil, &ParseError{Path: filename, Msg: "tool.poetry.dependencies.python must be a string"}
				}
				converted, err := convertPoetryConstraint(constraint)
				if err != nil {
					return nil, &ParseError{Path: filename, Msg: fmt.Sprintf("python: %v", err)}
				}
				m.RequiresPython = converted
				continue
			}

			req, err := tableRequirement(name, value, convertPoetryConstraint)
			if err != nil {
				return nil, &ParseError{Path: filename, Msg: fmt.Sprintf("tool.poetry.dependencies.%s: %v", name, err)}
			}
			m.Requirements = append(m.Requirements, req)
		}

	default:
		return nil, &ParseError{Path: filename, Msg: "no [project] or [tool.poetry] table"}
	}

	return m, nil
}

func parsePipfile(filename string, content []byte) (*Manifest, error) {
	var doc pipfileFile
	if err := decodeTOML(filename, content, &doc); err != nil {
		return nil, err
	}

	m := &Manifest{Path: filename, Format: FormatPipfile}

	for _, name := range sortedKeys(doc.Packages) {
		req, err := tableRequirement(name, doc.Packages[name], convertPipfileConstraint)
		if err != nil {
			return nil, &ParseError{Path: filename, Msg: fmt.Sprintf("packages.%s: %v", name, err)}
		}
		m.Requirements = append(m.Requirements, req)
	}

	switch {
	case doc.Requires.PythonFullVersion != "":
		m.RequiresPython = "==" + doc.Requires.PythonFullVersion
	case doc.Requires.PythonVersion != "":
		m.RequiresPython = "==" + doc.Requires.PythonVersion + ".*"
	}

	return m, nil
}

func decodeTOML(filename string, content []byte, v any) error {
	if _, err := toml.Decode(string(content), v); err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return &ParseError{Path: filename, Line: perr.Position.Line, Msg: perr.Message}
		}
		return &ParseError{Path: filename, Msg: err.Error()}
	}
	return nil
}

// tableRequirement builds a requirement from a TOML dependency value, which
// is either a constraint string or a table with version/extras/markers keys.
func tableRequirement(name string, value any, convert func(string) (string, error)) (Requirement, error) {
	if err := ValidateName(name); err != nil {
		return Requirement{}, err
	}
	req := Requirement{Name: name}

	var version string
	switch v := value.(type) {
	case string:
		version = v
	case map[string]any:
		if s, ok := v["version"].(string); ok {
			version = s
		}
		if extras, ok := v["extras"].([]any); ok {
			for _, e := range extras {
				extra, ok := e.(string)
				if !ok || ValidateName(extra) != nil {
					return req, fmt.Errorf("invalid extra %v", e)
				}
				req.Extras = append(req.Extras, extra)
			}
		}
		if marker, ok := v["markers"].(string); ok {
			req.Marker = marker
		}
		for _, key := range []string{"path", "git", "file", "url"} {
			if _, ok := v[key]; ok {
				return req, fmt.Errorf("%s dependencies are not supported", key)
			}
		}
	default:
		return req, fmt.Errorf("unsupported dependency value %v", value)
	}

	constraint, err := convert(version)
	if err != nil {
		return req, err
	}
	req.Constraint = constraint
	return req, nil
}

func convertPipfileConstraint(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return "", nil
	}
	specs, err := ParseSpecifierSet(s)
	if err != nil {
		return "", err
	}
	return FormatSpecifiers(specs), nil
}

// convertPoetryConstraint translates Poetry's caret/tilde syntax into PEP 440.
func convertPoetryConstraint(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return "", nil
	}

	var parts []string
	for _, clause := range strings.Split(s, ",") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "^"):
			lower := strings.TrimPrefix(clause, "^")
			upper, err := bumpRelease(lower, true)
			if err != nil {
				return "", err
			}
			parts = append(parts, ">="+lower, "<"+upper)
		case strings.HasPrefix(clause, "~") && !strings.HasPrefix(clause, "~="):
			lower := strings.TrimPrefix(clause, "~")
			upper, err := bumpRelease(lower, false)
			if err != nil {
				return "", err
			}
			parts = append(parts, ">="+lower, "<"+upper)
		case len(clause) > 0 && clause[0] >= '0' && clause[0] <= '9':
			parts = append(parts, "=="+clause)
		default:
			parts = append(parts, clause)
		}
	}

	joined := strings.Join(parts, ",")
	specs, err := ParseSpecifierSet(joined)
	if err != nil {
		return "", err
	}
	return FormatSpecifiers(specs), nil
}

// bumpRelease returns the exclusive upper bound of a caret (^) or tilde (~)
// range starting at version.
func bumpRelease(version string, caret bool) (string, error) {
	segments := strings.Split(version, ".")
	nums := make([]int, len(segments))
	for i, seg := range segments {
		n := 0
		if _, err := fmt.Sscanf(seg, "%d", &n); err != nil {
			return "", fmt.Errorf("invalid version %q", version)
		}
		nums[i] = n
	}

	idx := 0
	if caret {
		// first non-zero segment, or the last one given
		for idx < len(nums)-1 && nums[idx] == 0 {
			idx++
		}
	} else if len(nums) > 1 {
		idx = 1
	}

	out := make([]string, idx+1)
	for i := 0; i < idx; i++ {
		out[i] = fmt.Sprint(nums[i])
	}
	out[idx] = fmt.Sprint(nums[idx] + 1)
	return strings.Join(out, "."), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
