// Package parser reads Dockerfiles back into recipes and lints them against
// the layering rules stevedore's planner follows.
package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"

	"github.com/railwayapp/stevedore/internal/manifest"
	"github.com/railwayapp/stevedore/internal/schema"
)

// Instruction is one parsed Dockerfile instruction.
type Instruction struct {
	Command  string   // upper-case, e.g. "COPY"
	Args     []string // arguments with quotes preserved as written
	Flags    []string // e.g. --chown=app
	JSON     bool     // exec form
	Line     int
	Original string
}

// Dockerfile is a parsed Dockerfile.
type Dockerfile struct {
	Path         string
	Instructions []Instruction
}

// ParseDockerfile parses Dockerfile content with the buildkit parser.
func ParseDockerfile(path string, content []byte) (*Dockerfile, error) {
	result, err := parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	df := &Dockerfile{Path: path}
	for _, child := range result.AST.Children {
		inst := Instruction{
			Command:  strings.ToUpper(child.Value),
			Flags:    child.Flags,
			Line:     child.StartLine,
			Original: child.Original,
		}
		for n := child.Next; n != nil; n = n.Next {
			inst.Args = append(inst.Args, n.Value)
		}
		inst.JSON = isExecForm(child.Original)
		df.Instructions = append(df.Instructions, inst)
	}
	return df, nil
}

func isExecForm(original string) bool {
	fields := strings.SplitN(strings.TrimSpace(original), " ", 2)
	if len(fields) < 2 {
		return false
	}
	rest := strings.TrimSpace(fields[1])
	return strings.HasPrefix(rest, "[") && strings.HasSuffix(rest, "]")
}

// Env returns the ENV assignments in declaration order. Later assignments
// of the same name appear again.
func (d *Dockerfile) Env() []schema.EnvVar {
	var vars []schema.EnvVar
	for _, inst := range d.Instructions {
		if inst.Command == "ENV" {
			vars = append(vars, envPairs(inst.Args)...)
		}
	}
	return vars
}

// envPairs handles both the flattened name/value chain buildkit produces
// and raw NAME=value words.
func envPairs(args []string) []schema.EnvVar {
	var vars []schema.EnvVar
	if len(args)%2 == 0 && len(args) > 0 && !strings.Contains(args[0], "=") {
		for i := 0; i+1 < len(args); i += 2 {
			vars = append(vars, schema.NewEnvVar(args[i], unquote(args[i+1])))
		}
		return vars
	}
	for _, a := range args {
		if name, value, ok := strings.Cut(a, "="); ok {
			vars = append(vars, schema.NewEnvVar(name, unquote(value)))
		}
	}
	return vars
}

func unquote(s string) string {
	if len(s) >= 2 {
		switch {
		case s[0] == '"' && s[len(s)-1] == '"':
			if u, err := strconv.Unquote(s); err == nil {
				return u
			}
		case s[0] == '\'' && s[len(s)-1] == '\'':
			return s[1 : len(s)-1]
		}
	}
	return s
}

// Classify maps an instruction onto the recipe step it corresponds to.
// The second result is false for instructions with no recipe equivalent.
func Classify(inst Instruction) (schema.StepKind, bool) {
	switch inst.Command {
	case "FROM":
		return schema.StepBase, true
	case "WORKDIR":
		return schema.StepWorkDir, true
	case "COPY", "ADD":
		if isManifestCopy(inst) {
			return schema.StepCopyManifest, true
		}
		return schema.StepCopySource, true
	case "RUN":
		cmd := strings.Join(inst.Args, " ")
		switch {
		case strings.Contains(cmd, "-m venv") || strings.Contains(cmd, "virtualenv "):
			return schema.StepCreateVenv, true
		case strings.Contains(cmd, "pip install") || strings.Contains(cmd, "pip3 install"):
			return schema.StepInstall, true
		}
		return schema.StepRun, true
	case "ENV":
		return schema.StepEnv, true
	case "EXPOSE":
		return schema.StepExpose, true
	case "CMD", "ENTRYPOINT":
		return schema.StepCmd, true
	}
	return "", false
}

// isManifestCopy reports whether every source of a COPY is a dependency
// manifest or runtime.txt.
func isManifestCopy(inst Instruction) bool {
	if len(inst.Args) < 2 {
		return false
	}
	for _, src := range inst.Args[:len(inst.Args)-1] {
		base := src
		if i := strings.LastIndex(src, "/"); i >= 0 {
			base = src[i+1:]
		}
		if base == manifest.RuntimeFile {
			continue
		}
		if _, err := manifest.FormatOf(base); err != nil {
			return false
		}
		if strings.ContainsAny(base, "*?[") {
			return false
		}
	}
	return true
}

// Recipe reconstructs a recipe from the Dockerfile. Only the fields that
// can be read back reliably are filled in.
func (d *Dockerfile) Recipe(name string) *schema.Recipe {
	r := schema.NewRecipe(name)
	r.InstallMode = schema.InstallSystem

	for _, inst := range d.Instructions {
		kind, ok := Classify(inst)
		if !ok {
			continue
		}
		args := inst.Args
		switch kind {
		case schema.StepBase:
			if len(args) > 0 {
				r.BaseImage = args[0]
			}
		case schema.StepWorkDir:
			if len(args) > 0 {
				r.WorkDir = args[0]
			}
		case schema.StepCopyManifest:
			for _, src := range args[:len(args)-1] {
				if !strings.HasSuffix(src, manifest.RuntimeFile) {
					r.Manifest = src
					break
				}
			}
		case schema.StepCreateVenv:
			r.InstallMode = schema.InstallVenv
			if fields := strings.Fields(strings.Join(args, " ")); len(fields) > 0 {
				r.VenvPath = fields[len(fields)-1]
			}
		case schema.StepInstall:
			r.Quiet = strings.Contains(strings.Join(args, " "), "--quiet") || containsWord(args, "-q")
		case schema.StepEnv:
			env := envPairs(args)
			r.Env = append(r.Env, env...)
			args = args[:0:0]
			for _, e := range env {
				args = append(args, e.Name+"="+e.Value)
			}
		case schema.StepExpose:
			for _, a := range args {
				port, proto, _ := strings.Cut(a, "/")
				n, err := strconv.Atoi(port)
				if err != nil {
					continue
				}
				p := schema.NewPort(n)
				if proto != "" {
					p.Protocol = proto
				}
				r.Ports = append(r.Ports, p)
			}
		case schema.StepCmd:
			r.Entry = append([]string(nil), args...)
		}
		r.AddStep(schema.NewStep(kind, inst.Command, args...))
	}
	return r
}

func containsWord(args []string, word string) bool {
	for _, a := range args {
		for _, f := range strings.Fields(a) {
			if f == word {
				return true
			}
		}
	}
	return false
}
