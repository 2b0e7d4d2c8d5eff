package manifest

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	namePattern    = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	versionPattern = regexp.MustCompile(`^v?([0-9]+!)?[0-9]+(\.[0-9]+)*((a|b|rc|alpha|beta|c|pre|preview)[0-9]*)?(\.?(post|rev|r)[0-9]*)?(\.?dev[0-9]*)?(\+[A-Za-z0-9.]+)?$`)
	wildcardPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*\.\*$`)
)

// operators ordered so that two-character operators match first
var operators = []string{"===", "~=", "==", "!=", "<=", ">=", "<", ">"}

// ValidateName reports whether name is a valid PEP 508 project name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid package name %q", name)
	}
	return nil
}

// Specifier is one clause of a version specifier set, e.g. ">=2.0".
type Specifier struct {
	Op      string
	Version string
}

// ParseSpecifierSet splits and validates a comma-separated PEP 440
// specifier set such as ">=3.9, <3.13".
func ParseSpecifierSet(set string) ([]Specifier, error) {
	set = strings.TrimSpace(set)
	if set == "" {
		return nil, nil
	}

	var specs []Specifier
	for _, clause := range strings.Split(set, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			return nil, fmt.Errorf("empty clause in %q", set)
		}

		op := ""
		for _, candidate := range operators {
			if strings.HasPrefix(clause, candidate) {
				op = candidate
				break
			}
		}
		if op == "" {
			return nil, fmt.Errorf("missing comparison operator in %q", clause)
		}

		version := strings.TrimSpace(strings.TrimPrefix(clause, op))
		if version == "" {
			return nil, fmt.Errorf("missing version in %q", clause)
		}

		switch {
		case op == "===":
			if strings.ContainsAny(version, " \t") {
				return nil, fmt.Errorf("invalid version %q", version)
			}
		case strings.HasSuffix(version, ".*"):
			if op != "==" && op != "!=" {
				return nil, fmt.Errorf("wildcard version %q only allowed with == or !=", version)
			}
			if !wildcardPattern.MatchString(version) {
				return nil, fmt.Errorf("invalid wildcard version %q", version)
			}
		default:
			if !versionPattern.MatchString(version) {
				return nil, fmt.Errorf("invalid version %q", version)
			}
			if op == "~=" && !strings.Contains(version, ".") {
				return nil, fmt.Errorf("compatible release %q needs at least two release segments", clause)
			}
		}

		specs = append(specs, Specifier{Op: op, Version: version})
	}
	return specs, nil
}

// ValidateSpecifierSet reports whether set is a valid PEP 440 specifier set.
func ValidateSpecifierSet(set string) error {
	_, err := ParseSpecifierSet(set)
	return err
}

// FormatSpecifiers joins specifiers into canonical form without spaces.
func FormatSpecifiers(specs []Specifier) string {
	parts := make([]string, 0, len(specs))
	for _, s := range specs {
		parts = append(parts, s.Op+s.Version)
	}
	return strings.Join(parts, ",")
}

// ParseRequirement parses a single PEP 508 requirement string.
func ParseRequirement(spec string) (Requirement, error) {
	var req Requirement
	rest := strings.TrimSpace(spec)
	if rest == "" {
		return req, fmt.Errorf("empty requirement")
	}

	if before, marker, found := strings.Cut(rest, ";"); found {
		marker = strings.TrimSpace(marker)
		if marker == "" {
			return req, fmt.Errorf("empty environment marker in %q", spec)
		}
		req.Marker = marker
		rest = strings.TrimSpace(before)
	}

	// name ends at the first character that cannot be part of a name
	end := strings.IndexFunc(rest, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '_' || r == '-')
	})
	if end == -1 {
		end = len(rest)
	}
	req.Name = rest[:end]
	if err := ValidateName(req.Name); err != nil {
		return req, err
	}
	rest = strings.TrimSpace(rest[end:])

	if strings.HasPrefix(rest, "[") {
		closeIdx := strings.Index(rest, "]")
		if closeIdx == -1 {
			return req, fmt.Errorf("unterminated extras in %q", spec)
		}
		for _, extra := range strings.Split(rest[1:closeIdx], ",") {
			extra = strings.TrimSpace(extra)
			if err := ValidateName(extra); err != nil {
				return req, fmt.Errorf("invalid extra %q in %q", extra, spec)
			}
			req.Extras = append(req.Extras, extra)
		}
		rest = strings.TrimSpace(rest[closeIdx+1:])
	}

	if strings.HasPrefix(rest, "@") {
		url := strings.TrimSpace(rest[1:])
		if url == "" || strings.ContainsAny(url, " \t") {
			return req, fmt.Errorf("invalid direct reference in %q", spec)
		}
		req.URL = url
		return req, nil
	}

	if strings.HasPrefix(rest, "(") {
		if !strings.HasSuffix(rest, ")") {
			return req, fmt.Errorf("unbalanced parentheses in %q", spec)
		}
		rest = strings.TrimSpace(rest[1 : len(rest)-1])
	}

	specs, err := ParseSpecifierSet(rest)
	if err != nil {
		return req, err
	}
	req.Constraint = FormatSpecifiers(specs)
	return req, nil
}
