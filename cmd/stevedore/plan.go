package stevedore

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/railwayapp/stevedore/internal/config"
	"github.com/railwayapp/stevedore/internal/export"
	"github.com/railwayapp/stevedore/internal/parser"
	"github.com/railwayapp/stevedore/internal/schema"
)

var (
	planFlags  projectFlags
	planFormat string
	planImport bool
)

var planCmd = &cobra.Command{
	Use:   "plan [context]",
	Short: "Print the image recipe for a source tree without building it",
	Long: `Plan detects the dependency manifest, reads stevedore.toml and prints the
ordered recipe in the requested format.

With --import the recipe is read back from the context's existing Dockerfile
(and compose file, for ports and secrets) instead of being planned.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger()
		if err := runPlan(cmd.Context(), sourceArg(args), planFlags.overrides(cmd), cmd.OutOrStdout(), logger); err != nil {
			fmt.Printf("Plan failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func runPlan(ctx context.Context, sourcePath string, over config.Project, out io.Writer, logger *log.Logger) error {
	exporter, err := export.Lookup(planFormat)
	if err != nil {
		return err
	}

	bc, err := openContext(ctx, sourcePath)
	if err != nil {
		return err
	}
	defer bc.close()

	var r *schema.Recipe
	if planImport {
		name := over.Name
		if name == "" {
			name = config.SanitizeName(bc.fs.Base(bc.root))
		}
		r, err = parser.ParseContext(ctx, bc.fs, bc.root, name)
	} else {
		r, err = planRecipe(ctx, bc, over, logger)
	}
	if err != nil {
		return err
	}

	output, err := exporter.Export(r)
	if err != nil {
		return fmt.Errorf("%s export failed: %w", exporter.Name(), err)
	}
	_, err = out.Write(output)
	return err
}

func init() {
	planFlags.register(planCmd)
	planCmd.Flags().StringVarP(&planFormat, "format", "f", "dockerfile", "output format ("+strings.Join(export.Names(), ", ")+")")
	planCmd.Flags().BoolVar(&planImport, "import", false, "read the recipe from the existing Dockerfile instead of planning one")
	rootCmd.AddCommand(planCmd)
}
