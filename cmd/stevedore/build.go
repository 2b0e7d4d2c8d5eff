package stevedore

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/railwayapp/stevedore/internal/artifact"
	"github.com/railwayapp/stevedore/internal/build"
	"github.com/railwayapp/stevedore/internal/config"
	"github.com/railwayapp/stevedore/internal/container"
	"github.com/railwayapp/stevedore/internal/schema"
)

var (
	buildFlags     projectFlags
	materializeDir string
)

var buildCmd = &cobra.Command{
	Use:   "build [context]",
	Short: "Plan and build an image artifact from a source tree",
	Long: `Build plans the image recipe for the context and runs it as a layered
pipeline. Unchanged layers are reused from the cache, so editing source code
does not reinstall dependencies. The artifact becomes current only when every
step succeeds.

With --engine the recipe is also rendered into a build context and built into
a real image tagged <name>:<artifact id>.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger()
		if err := runBuild(cmd.Context(), sourceArg(args), buildFlags.overrides(cmd), cmd.OutOrStdout(), logger); err != nil {
			fmt.Printf("Build failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func runBuild(ctx context.Context, sourcePath string, over config.Project, out io.Writer, logger *log.Logger) error {
	bc, err := openContext(ctx, sourcePath)
	if err != nil {
		return err
	}
	defer bc.close()

	r, err := planRecipe(ctx, bc, over, logger)
	if err != nil {
		return err
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}
	builder, err := newBuilder(logger, engine)
	if err != nil {
		return err
	}

	a, err := builder.Build(ctx, build.Request{Recipe: r, Context: bc.fs, Root: bc.root})
	if err != nil {
		return err
	}
	printArtifact(out, a)

	if materializeDir != "" {
		if err := build.Materialize(ctx, r, bc.fs, bc.root, materializeDir); err != nil {
			return err
		}
		fmt.Fprintf(out, "Build context written to %s\n", materializeDir)
	}

	if engine != nil {
		if err := buildImage(ctx, engine, r, bc, a, logger); err != nil {
			return err
		}
		fmt.Fprintf(out, "Image %s built with %s\n", a.ImageTag(), engine.Name())
	}
	return nil
}

func buildImage(ctx context.Context, engine container.Engine, r *schema.Recipe, bc *buildContext, a *artifact.Artifact, logger *log.Logger) error {
	dir, err := os.MkdirTemp("", "stevedore-context-")
	if err != nil {
		return fmt.Errorf("failed to create build context directory: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := build.Materialize(ctx, r, bc.fs, bc.root, dir); err != nil {
		return err
	}

	logger.Info("building image", "engine", engine.Name(), "tag", a.ImageTag())
	return engine.Build(ctx, container.BuildOptions{
		ContextDir: dir,
		Dockerfile: "Dockerfile",
		Tag:        a.ImageTag(),
		Labels:     map[string]string{"io.stevedore.artifact": a.ID.String()},
		Stdout:     os.Stderr,
		Stderr:     os.Stderr,
	})
}

func printArtifact(out io.Writer, a *artifact.Artifact) {
	fmt.Fprintf(out, "Built %s (%s)\n", a.ImageTag(), a.ID)
	for i, l := range a.Layers {
		status := "built"
		if l.CacheHit {
			status = "cached"
		}
		line := strings.TrimSpace(l.Instruction + " " + strings.Join(l.Args, " "))
		fmt.Fprintf(out, "  %2d  %-13s %-6s  %s\n", i+1, l.Kind, status, line)
	}

	if len(a.Dependencies) > 0 {
		fmt.Fprintf(out, "Dependencies (%d):\n", len(a.Dependencies))
		for _, d := range a.Dependencies {
			fmt.Fprintf(out, "  - %s\n", d)
		}
	}
	if len(a.Secrets) > 0 {
		fmt.Fprintf(out, "Secrets required at launch: %s\n", strings.Join(a.Secrets, ", "))
	}
}

func init() {
	buildFlags.register(buildCmd)
	buildCmd.Flags().StringVar(&materializeDir, "output", "", "also write a self-contained docker build context to this empty directory")
	rootCmd.AddCommand(buildCmd)
}
