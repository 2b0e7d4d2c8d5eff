package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// global pip options that may appear in a requirements file and do not
// reference anything outside of it
var allowedOptions = map[string]bool{
	"-i":                true,
	"--index-url":       true,
	"--extra-index-url": true,
	"--trusted-host":    true,
	"--pre":             true,
	"--prefer-binary":   true,
	"--only-binary":     true,
	"--no-binary":       true,
}

// options that pull in other files or local source trees; the manifest
// layer must be buildable from the manifest alone
var rejectedOptions = map[string]string{
	"-r":            "includes another requirements file",
	"--requirement": "includes another requirements file",
	"-c":            "includes a constraints file",
	"--constraint":  "includes a constraints file",
	"-e":            "installs an editable local project",
	"--editable":    "installs an editable local project",
}

type logicalLine struct {
	text string
	line int
}

func parseRequirements(filename string, content []byte) (*Manifest, error) {
	m := &Manifest{Path: filename, Format: FormatRequirements}

	lines, err := logicalLines(content)
	if err != nil {
		return nil, &ParseError{Path: filename, Msg: err.Error()}
	}

	for _, ll := range lines {
		text := ll.text
		if strings.HasPrefix(text, "-") {
			opt, err := parseOption(text)
			if err != nil {
				return nil, &ParseError{Path: filename, Line: ll.line, Msg: err.Error()}
			}
			m.Options = append(m.Options, opt)
			continue
		}

		spec, hashes, err := splitHashes(text)
		if err != nil {
			return nil, &ParseError{Path: filename, Line: ll.line, Msg: err.Error()}
		}

		req, err := ParseRequirement(spec)
		if err != nil {
			return nil, &ParseError{Path: filename, Line: ll.line, Msg: err.Error()}
		}
		req.Hashes = hashes
		req.Line = ll.line
		m.Requirements = append(m.Requirements, req)
	}

	return m, nil
}

// logicalLines strips comments and joins backslash continuations.
func logicalLines(content []byte) ([]logicalLine, error) {
	var out []logicalLine
	scanner := bufio.NewScanner(bytes.NewReader(content))

	var pending strings.Builder
	start := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := stripComment(scanner.Text())

		if pending.Len() == 0 {
			start = lineNo
		}

		trimmed := strings.TrimRight(text, " \t")
		if strings.HasSuffix(trimmed, "\\") {
			pending.WriteString(strings.TrimSuffix(trimmed, "\\"))
			pending.WriteString(" ")
			continue
		}

		pending.WriteString(text)
		joined := strings.TrimSpace(pending.String())
		pending.Reset()
		if joined != "" {
			out = append(out, logicalLine{text: joined, line: start})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if pending.Len() > 0 {
		return nil, fmt.Errorf("line %d: dangling line continuation", start)
	}
	return out, nil
}

// stripComment removes a comment that starts the line or follows whitespace.
func stripComment(line string) string {
	if strings.HasPrefix(strings.TrimSpace(line), "#") {
		return ""
	}
	for i := 1; i < len(line); i++ {
		if line[i] == '#' && (line[i-1] == ' ' || line[i-1] == '\t') {
			return line[:i]
		}
	}
	return line
}

func parseOption(text string) (string, error) {
	fields := strings.Fields(text)
	name, value, _ := strings.Cut(fields[0], "=")
	if len(fields) > 1 {
		value = strings.Join(fields[1:], " ")
	}

	if reason, rejected := rejectedOptions[name]; rejected {
		return "", fmt.Errorf("option %s is not supported: it %s", name, reason)
	}
	if !allowedOptions[name] {
		return "", fmt.Errorf("unsupported option %s", name)
	}

	if value == "" {
		return name, nil
	}
	return name + " " + strings.TrimSpace(value), nil
}

// splitHashes separates per-requirement --hash options from the requirement.
func splitHashes(text string) (string, []string, error) {
	idx := strings.Index(text, "--")
	if idx == -1 {
		return text, nil, nil
	}

	spec := strings.TrimSpace(text[:idx])
	var hashes []string
	for _, field := range strings.Fields(text[idx:]) {
		value, ok := strings.CutPrefix(field, "--hash=")
		if !ok {
			return "", nil, fmt.Errorf("unsupported per-requirement option %q", field)
		}
		algo, digest, found := strings.Cut(value, ":")
		if !found || algo == "" || digest == "" {
			return "", nil, fmt.Errorf("malformed hash %q", value)
		}
		hashes = append(hashes, value)
	}
	return spec, hashes, nil
}
