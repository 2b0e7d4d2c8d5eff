package manifest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var preReleasePattern = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)*)(a|b|rc)([0-9]+)$`)

// Constraint converts a PEP 440 specifier set into a semver constraint.
func Constraint(set string) (*semver.Constraints, error) {
	specs, err := ParseSpecifierSet(set)
	if err != nil {
		return nil, fmt.Errorf("invalid constraint %q: %w", set, err)
	}

	var clauses []string
	for _, spec := range specs {
		translated, err := translateSpecifier(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid constraint %q: %w", set, err)
		}
		clauses = append(clauses, translated...)
	}

	c, err := semver.NewConstraint(strings.Join(clauses, ", "))
	if err != nil {
		return nil, fmt.Errorf("invalid constraint %q: %w", set, err)
	}
	return c, nil
}

func translateSpecifier(spec Specifier) ([]string, error) {
	version := spec.Version

	if wildcard, ok := strings.CutSuffix(version, ".*"); ok {
		switch spec.Op {
		case "==":
			return []string{wildcard + ".x"}, nil
		case "!=":
			return []string{"!=" + wildcard + ".x"}, nil
		}
		return nil, fmt.Errorf("wildcard not allowed with %s", spec.Op)
	}

	version = semverVersion(version)

	switch spec.Op {
	case "==", "===":
		return []string{"=" + version}, nil
	case "!=", "<", "<=", ">", ">=":
		return []string{spec.Op + version}, nil
	case "~=":
		segments := strings.Split(strings.SplitN(version, "-", 2)[0], ".")
		nums := make([]int, len(segments))
		for i, s := range segments {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("invalid version %q", spec.Version)
			}
			nums[i] = n
		}
		// ~=X.Y means >=X.Y,<X+1; ~=X.Y.Z means >=X.Y.Z,<X.Y+1
		prefix := nums[:len(nums)-1]
		upper := make([]string, len(prefix))
		for i, n := range prefix {
			upper[i] = strconv.Itoa(n)
		}
		upper[len(upper)-1] = strconv.Itoa(prefix[len(prefix)-1] + 1)
		return []string{">=" + version, "<" + strings.Join(upper, ".")}, nil
	}
	return nil, fmt.Errorf("unsupported operator %s", spec.Op)
}

// semverVersion rewrites PEP 440 pre-releases ("3.13.0rc1") into semver
// form ("3.13.0-rc1").
func semverVersion(v string) string {
	v = strings.TrimPrefix(v, "v")
	if m := preReleasePattern.FindStringSubmatch(v); m != nil {
		return m[1] + "-" + m[2] + m[3]
	}
	return v
}

// Version parses a PEP 440 release such as "2.31.0" or "3.13.0rc1" as a
// semver version. Post, dev and epoch releases are not representable and
// return an error.
func Version(v string) (*semver.Version, error) {
	return semver.NewVersion(semverVersion(v))
}
