package stevedore

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/railwayapp/stevedore/internal/environment"
	"github.com/railwayapp/stevedore/internal/environment/types"
)

var envCmd = &cobra.Command{
	Use:   "env [context|Dockerfile]",
	Short: "Show the variables a project bakes, declares and requires",
	Long: `Env scans the context for Dockerfile ENV instructions, dotenv and compose
files, and environment lookups in Python source. Baked variables are part of
the image; required ones must be supplied as secrets at launch. Sensitive
values are redacted.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runEnvExtraction(cmd.Context(), sourceArg(args), cmd.OutOrStdout()); err != nil {
			fmt.Printf("Environment extraction failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func runEnvExtraction(ctx context.Context, sourcePath string, out io.Writer) error {
	bc, err := openContext(ctx, sourcePath)
	if err != nil {
		return err
	}
	defer bc.close()

	results, err := environment.NewExtractor(bc.fs).Scan(ctx, bc.root)
	if err != nil {
		return err
	}
	summary := environment.Summarize(results)

	// Deduplicate - keep highest confidence version
	best := make(map[string]types.EnvResult)
	for _, r := range results {
		if existing, ok := best[r.VarName]; !ok || r.Confidence > existing.Confidence {
			best[r.VarName] = r
		}
	}

	printSection(out, "Baked", summary.Baked, best)
	printSection(out, "Declared", summary.Declared, best)

	fmt.Fprintln(out, "Required at launch:")
	if len(summary.Required) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	for _, name := range summary.Required {
		fmt.Fprintf(out, "  %s\n    Source: %s\n", name, best[name].Source)
	}
	return nil
}

func printSection(out io.Writer, title string, vars map[string]string, best map[string]types.EnvResult) {
	fmt.Fprintf(out, "%s:\n", title)
	if len(vars) == 0 {
		fmt.Fprintln(out, "  (none)")
		return
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := best[name]
		marker := ""
		if r.Sensitive {
			marker = " [SENSITIVE]"
		}
		fmt.Fprintf(out, "  %s = %s\n", name, types.Redact(name, vars[name]))
		fmt.Fprintf(out, "    Type: %s, Source: %s%s\n", r.Type, r.Source, marker)
	}
}

func init() {
	rootCmd.AddCommand(envCmd)
}
