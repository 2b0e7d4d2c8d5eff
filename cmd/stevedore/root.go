package stevedore

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/railwayapp/stevedore/internal/artifact"
	"github.com/railwayapp/stevedore/internal/baseimage"
	"github.com/railwayapp/stevedore/internal/build"
	"github.com/railwayapp/stevedore/internal/container"
	"github.com/railwayapp/stevedore/internal/resolver"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "stevedore",
	Short: "Build and run Python service images from a manifest and a source tree",
	Long: `Stevedore turns a Python service's source tree into a runnable image:
1. Plan - Detect the dependency manifest and produce an ordered image recipe
2. Build - Execute the recipe as a cached, layered pipeline
3. Export - Render the recipe as a Dockerfile, JSON, YAML or Compose file
4. Run - Launch the single entry process with baked settings plus secrets`,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.stevedore.yaml)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("cache-dir", "", "layer cache and artifact store directory (default is the user cache dir)")
	flags.String("engine", "", "container engine for image builds and launches (docker, podman, auto)")
	flags.String("resolver", "offline", "dependency resolver (offline, index)")
	flags.String("index-url", resolver.DefaultIndexURL, "package index JSON API used by the index resolver")
	flags.Int("hash-concurrency", build.DefaultHashConcurrency, "files read in parallel while hashing the source tree")

	for _, key := range []string{"log-level", "cache-dir", "engine", "resolver", "index-url", "hash-concurrency"} {
		cobra.CheckErr(viper.BindPFlag(key, flags.Lookup(key)))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".stevedore")
	}

	viper.SetEnvPrefix("stevedore")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "stevedore"})
	level, err := log.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = log.WarnLevel
		logger.Warn("unknown log level, using warn", "level", viper.GetString("log-level"))
	}
	logger.SetLevel(level)
	return logger
}

func cacheDir() (string, error) {
	if dir := viper.GetString("cache-dir"); dir != "" {
		return dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate a cache directory: %w", err)
	}
	return filepath.Join(base, "stevedore"), nil
}

func store() (artifact.Store, error) {
	dir, err := cacheDir()
	if err != nil {
		return nil, err
	}
	return artifact.NewDiskStore(dir), nil
}

func newResolver() (resolver.Resolver, error) {
	switch name := viper.GetString("resolver"); name {
	case "", "offline":
		return resolver.NewOffline(), nil
	case "index":
		return resolver.NewIndex(resolver.WithBaseURL(viper.GetString("index-url"))), nil
	default:
		return nil, fmt.Errorf("unknown resolver %q (valid: offline, index)", name)
	}
}

// newEngine returns nil when no engine is configured.
func newEngine() (container.Engine, error) {
	switch name := viper.GetString("engine"); name {
	case "":
		return nil, nil
	case "auto":
		return container.AutoDetectEngine()
	default:
		return container.NewEngine(container.EngineType(name))
	}
}

// newBuilder wires the pipeline to the on-disk cache and store. With an
// engine, base images resolve through it instead of the offline catalog.
func newBuilder(logger *log.Logger, engine container.Engine) (*build.Builder, error) {
	dir, err := cacheDir()
	if err != nil {
		return nil, err
	}
	res, err := newResolver()
	if err != nil {
		return nil, err
	}

	var registry baseimage.Registry = baseimage.DefaultCatalog()
	if engine != nil {
		registry = baseimage.NewEngineRegistry(engine, true)
	}

	return build.NewBuilder(
		build.WithLogger(logger),
		build.WithCache(build.NewDiskCache(dir)),
		build.WithStore(artifact.NewDiskStore(dir)),
		build.WithResolver(res),
		build.WithRegistry(registry),
		build.WithHashConcurrency(viper.GetInt("hash-concurrency")),
	), nil
}
