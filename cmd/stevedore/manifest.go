package stevedore

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/railwayapp/stevedore/internal/config"
	"github.com/railwayapp/stevedore/internal/manifest"
)

var (
	manifestPath    string
	manifestResolve bool
)

var manifestCmd = &cobra.Command{
	Use:   "manifest [context]",
	Short: "Show the parsed dependency manifest",
	Long: `Manifest locates and parses the project's dependency manifest
(requirements.txt, pyproject.toml or Pipfile) and prints the declared
requirements and interpreter constraint. With --resolve each requirement is
pinned through the configured resolver.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runManifest(cmd.Context(), sourceArg(args), cmd.OutOrStdout()); err != nil {
			fmt.Printf("Manifest failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func runManifest(ctx context.Context, sourcePath string, out io.Writer) error {
	bc, err := openContext(ctx, sourcePath)
	if err != nil {
		return err
	}
	defer bc.close()

	project, err := config.Load(bc.fs, bc.root)
	if err != nil {
		return err
	}
	rel := project.Manifest
	if manifestPath != "" {
		rel = manifestPath
	}

	path := bc.fs.Join(bc.root, rel)
	if rel == "" {
		path, err = manifest.Detect(bc.fs, bc.root)
		if err != nil {
			return err
		}
	}

	m, err := manifest.Load(bc.fs, path)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Manifest: %s (%s)\n", path, m.Format)
	if m.RequiresPython != "" {
		fmt.Fprintf(out, "Requires python: %s\n", m.RequiresPython)
	}
	fmt.Fprintf(out, "Requirements (%d):\n", len(m.Requirements))
	for _, req := range m.Requirements {
		fmt.Fprintf(out, "  - %s\n", req)
	}

	if !manifestResolve || m.Empty() {
		return nil
	}

	res, err := newResolver()
	if err != nil {
		return err
	}
	pinned, err := res.Resolve(ctx, m.Requirements)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Resolved:")
	for _, p := range pinned {
		fmt.Fprintf(out, "  - %s\n", p)
	}
	return nil
}

func init() {
	manifestCmd.Flags().StringVar(&manifestPath, "manifest", "", "manifest path relative to the context (default: detected)")
	manifestCmd.Flags().BoolVar(&manifestResolve, "resolve", false, "pin every requirement through the resolver")
	rootCmd.AddCommand(manifestCmd)
}
