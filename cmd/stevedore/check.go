package stevedore

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/railwayapp/stevedore/internal/parser"
)

var checkCmd = &cobra.Command{
	Use:   "check <Dockerfile>",
	Short: "Check a Dockerfile against the layering rules",
	Long: `Check verifies that a Dockerfile copies the dependency manifest alone and
installs from it before copying the source tree, runs a single exec-form CMD
and bakes only the recognized interpreter settings. It exits non-zero when
any rule is violated.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		violations, err := runCheck(args[0], cmd.OutOrStdout())
		if err != nil {
			fmt.Printf("Check failed: %v\n", err)
			os.Exit(1)
		}
		if violations > 0 {
			os.Exit(1)
		}
	},
}

func runCheck(path string, out io.Writer) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	df, err := parser.ParseDockerfile(path, content)
	if err != nil {
		return 0, err
	}

	violations := parser.Check(df)
	if len(violations) == 0 {
		fmt.Fprintf(out, "%s: ok\n", path)
		return 0, nil
	}
	for _, v := range violations {
		fmt.Fprintf(out, "%s: %s\n", path, v)
	}
	return len(violations), nil
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
