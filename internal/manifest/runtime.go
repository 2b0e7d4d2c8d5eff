package manifest

import (
	"fmt"
	"regexp"
	"strings"
)

// RuntimeFile is the conventional file pinning the interpreter version for
// manifests that cannot declare one themselves.
const RuntimeFile = "runtime.txt"

var runtimePattern = regexp.MustCompile(`^python-([0-9]+\.[0-9]+(\.[0-9]+)?)$`)

// ParseRuntime reads a runtime.txt body such as "python-3.11.4" and returns
// the equivalent interpreter constraint ("==3.11.4"). A two-segment version
// becomes a wildcard ("==3.11.*").
func ParseRuntime(content []byte) (string, error) {
	text := strings.TrimSpace(string(content))
	match := runtimePattern.FindStringSubmatch(text)
	if match == nil {
		return "", &ParseError{Path: RuntimeFile, Line: 1, Msg: fmt.Sprintf("expected python-X.Y[.Z], got %q", text)}
	}
	if match[2] == "" {
		return "==" + match[1] + ".*", nil
	}
	return "==" + match[1], nil
}
