package stevedore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/railwayapp/stevedore/internal/artifact"
	"github.com/railwayapp/stevedore/internal/config"
	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/railwayapp/stevedore/internal/launch"
)

type runOptions struct {
	name        string
	envFiles    []string
	secrets     []string
	port        int
	interpreter string
}

var runFlags runOptions

var runCmd = &cobra.Command{
	Use:   "run [context]",
	Short: "Launch the latest artifact built from a context",
	Long: `Run starts exactly one process: the artifact's entry command in its working
directory, with the baked interpreter settings plus the secrets supplied with
--env-file and --secret. Nothing else from the calling environment is passed
through. Missing required secrets fail before anything starts.

Without --engine the entry runs on the host from the context directory;
with --engine the built image is run and --port publishes the declared port.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger()
		code, err := runLaunch(cmd.Context(), sourceArg(args), runFlags, logger, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			fmt.Printf("Run failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(code)
	},
}

func runLaunch(ctx context.Context, sourcePath string, opts runOptions, logger *log.Logger, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	dir, err := filepath.Abs(sourcePath)
	if err != nil {
		return 0, err
	}

	name := opts.name
	if name == "" {
		project, err := config.Load(filesystems.NewLocalFS(), dir)
		if err != nil {
			return 0, err
		}
		name = project.Name
		if name == "" {
			name = config.SanitizeName(filepath.Base(dir))
		}
	}

	st, err := store()
	if err != nil {
		return 0, err
	}
	a, err := st.Latest(ctx, name)
	if errors.Is(err, artifact.ErrNotFound) {
		return 0, fmt.Errorf("no artifact named %s; run stevedore build first", name)
	}
	if err != nil {
		return 0, err
	}

	secrets, err := collectSecrets(opts)
	if err != nil {
		return 0, err
	}

	engine, err := newEngine()
	if err != nil {
		return 0, err
	}

	var launcher launch.Launcher
	if engine != nil {
		launcher = launch.NewEngineLauncher(engine, logger)
	} else {
		launcher = launch.NewProcessLauncher(dir,
			launch.WithProcessLogger(logger),
			launch.WithInterpreter(opts.interpreter),
		)
	}

	res, err := launcher.Launch(ctx, a, launch.Options{
		Secrets: secrets,
		Port:    opts.port,
		Name:    name,
		Stdin:   stdin,
		Stdout:  stdout,
		Stderr:  stderr,
	})
	if err != nil {
		return 0, err
	}
	return res.ExitCode, nil
}

// collectSecrets reads env files in order, then --secret flags, which win.
func collectSecrets(opts runOptions) (map[string]string, error) {
	var sources []map[string]string
	for _, path := range opts.envFiles {
		secrets, err := launch.ReadSecretsFile(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, secrets)
	}

	flags, err := launch.ParseSecretFlags(opts.secrets, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	sources = append(sources, flags)
	return launch.MergeSecrets(sources...), nil
}

func init() {
	flags := runCmd.Flags()
	flags.StringVar(&runFlags.name, "name", "", "artifact name (default: project name or context directory)")
	flags.StringArrayVar(&runFlags.envFiles, "env-file", nil, "dotenv file with secrets (repeatable)")
	flags.StringArrayVarP(&runFlags.secrets, "secret", "s", nil, "secret NAME=value, or NAME to pass the calling environment's value (repeatable)")
	flags.IntVarP(&runFlags.port, "port", "p", 0, "publish the declared port on this host port (engine only)")
	flags.StringVar(&runFlags.interpreter, "interpreter", "", "host interpreter replacing the image's (host launches only)")
	rootCmd.AddCommand(runCmd)
}
