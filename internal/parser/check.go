package parser

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/railwayapp/stevedore/internal/baseimage"
	"github.com/railwayapp/stevedore/internal/runtimeenv"
	"github.com/railwayapp/stevedore/internal/schema"
)

// Rule names reported in violations.
const (
	RuleSingleStage         = "single-stage"
	RulePinnedBase          = "pinned-base"
	RuleManifestFirst       = "manifest-first"
	RuleManifestAlone       = "manifest-alone"
	RuleInstallBeforeSource = "install-before-source"
	RuleSingleCmd           = "single-cmd"
	RuleExecForm            = "exec-form"
	RuleCmdArgs             = "cmd-args"
	RuleEnvSurface          = "env-surface"
)

// Violation is a Dockerfile line that breaks a layering rule.
type Violation struct {
	Line    int    `json:"line"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Line > 0 {
		return fmt.Sprintf("line %d: [%s] %s", v.Line, v.Rule, v.Message)
	}
	return fmt.Sprintf("[%s] %s", v.Rule, v.Message)
}

// Check lints a Dockerfile against the build layout stevedore produces:
// one stage from a pinned base, the manifest copied on its own and
// installed before the rest of the source, a single exec-form CMD naming
// only the program, and ENV limited to the runtime descriptor variables.
// Violations are returned in line order.
func Check(d *Dockerfile) []Violation {
	var out []Violation
	add := func(line int, rule, format string, args ...any) {
		out = append(out, Violation{Line: line, Rule: rule, Message: fmt.Sprintf(format, args...)})
	}

	var (
		stages       int
		manifestLine int
		installLine  int
		sourceLine   int
		cmds         []Instruction
	)

	for _, inst := range d.Instructions {
		kind, ok := Classify(inst)
		if !ok {
			continue
		}

		switch kind {
		case schema.StepBase:
			stages++
			if stages > 1 {
				add(inst.Line, RuleSingleStage, "multiple FROM instructions; build must be a single stage")
				continue
			}
			checkBase(inst, add)

		case schema.StepCopyManifest:
			if manifestLine == 0 {
				manifestLine = inst.Line
			}

		case schema.StepCopySource:
			if installLine == 0 && copiesManifest(inst) {
				add(inst.Line, RuleManifestAlone, "dependency manifest is copied together with other files")
			}
			if sourceLine == 0 {
				sourceLine = inst.Line
			}

		case schema.StepInstall:
			if installLine == 0 {
				installLine = inst.Line
			}
			if installsFromFile(inst) && manifestLine == 0 && sourceLine == 0 {
				add(inst.Line, RuleManifestFirst, "dependencies installed before the manifest is copied")
			}
			if sourceLine != 0 {
				add(inst.Line, RuleInstallBeforeSource, "dependencies installed after the source tree was copied (line %d)", sourceLine)
			}

		case schema.StepEnv:
			for _, v := range envPairs(inst.Args) {
				if !runtimeenv.IsDescriptorVar(v.Name) {
					add(inst.Line, RuleEnvSurface, "%s is not a runtime descriptor variable", v.Name)
					continue
				}
				if _, err := runtimeenv.Parse(map[string]string{v.Name: v.Value}); err != nil {
					add(inst.Line, RuleEnvSurface, "%v", err)
				}
			}

		case schema.StepCmd:
			cmds = append(cmds, inst)
		}
	}

	if stages == 0 {
		add(0, RuleSingleStage, "no FROM instruction")
	}

	switch len(cmds) {
	case 0:
		add(0, RuleSingleCmd, "no CMD instruction")
	case 1:
	default:
		for _, c := range cmds[1:] {
			add(c.Line, RuleSingleCmd, "%s repeats the entry command declared on line %d", c.Command, cmds[0].Line)
		}
	}
	if len(cmds) > 0 {
		entry := cmds[len(cmds)-1]
		if !entry.JSON {
			add(entry.Line, RuleExecForm, "%s should use exec form, e.g. [\"python\", \"main.py\"]", entry.Command)
		} else if len(entry.Args) > 2 {
			add(entry.Line, RuleCmdArgs, "entry command passes arguments beyond the program: %s", strings.Join(entry.Args[2:], " "))
		}
	}

	sortViolations(out)
	return out
}

func checkBase(inst Instruction, add func(int, string, string, ...any)) {
	if len(inst.Args) == 0 {
		add(inst.Line, RulePinnedBase, "FROM has no image")
		return
	}
	ref, err := baseimage.Parse(inst.Args[0])
	switch {
	case errors.Is(err, baseimage.ErrUnpinned):
		add(inst.Line, RulePinnedBase, "base image %s is not pinned to a tag or digest", inst.Args[0])
	case err != nil:
		add(inst.Line, RulePinnedBase, "%v", err)
	case ref.Tag == "latest" && ref.Digest == "":
		add(inst.Line, RulePinnedBase, "base image %s uses the moving latest tag", inst.Args[0])
	}
}

// copiesManifest reports whether a COPY names a manifest file alongside
// other sources.
func copiesManifest(inst Instruction) bool {
	if len(inst.Args) < 3 {
		return false
	}
	for _, src := range inst.Args[:len(inst.Args)-1] {
		if isManifestCopy(Instruction{Command: inst.Command, Args: []string{src, "."}}) {
			return true
		}
	}
	return false
}

func installsFromFile(inst Instruction) bool {
	for _, a := range inst.Args {
		for _, f := range strings.Fields(a) {
			if f == "-r" || f == "--requirement" || strings.HasPrefix(f, "--requirement=") {
				return true
			}
		}
	}
	return false
}

func sortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].Line < vs[j].Line })
}
