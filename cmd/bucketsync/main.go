package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/openmined/bucketsync/internal/config"
	"github.com/openmined/bucketsync/internal/logging"
	"github.com/openmined/bucketsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// commands annotated with skipSetup run without config or log file
const skipSetup = "skip-setup"

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
)

// cfg and closeLog are set by the root pre-run hook.
var (
	cfg      *config.Config
	closeLog = func() error { return nil }
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bucketsync",
		Short:         "Reconcile local directories with object storage buckets",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipSetup] != "" {
				return nil
			}

			loaded, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg = loaded

			level, _ := cfg.Level()
			logger, closer, err := logging.New(logging.Options{
				Level: level,
				File:  cfg.LogFilePath(),
			})
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			closeLog = closer

			slog.Debug("config loaded", "path", cfg.Path, "dataDir", cfg.DataDir,
				"objects", cfg.ObjectBackend, "metadata", cfg.MetadataBackend)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return closeLog()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", "", "config file (default "+config.DefaultConfigPath+")")
	flags.String("data-dir", config.DefaultDataDir, "directory for the catalog, locks and logs")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Int("workers", 8, "concurrent transfers per folder")
	flags.String("object-backend", config.BackendS3, "object store: s3 or memory")
	flags.String("region", "us-east-1", "AWS region")
	flags.String("profile", "", "AWS shared config profile")
	flags.String("endpoint", "", "custom S3/DynamoDB endpoint, e.g. MinIO or LocalStack")
	flags.String("metadata-backend", config.BackendDynamoDB, "repository registry: dynamodb, sqlite or postgres")
	flags.String("metadata-table", "repositories", "repository registry table")
	flags.String("metadata-dsn", "", "PostgreSQL DSN for the postgres registry")

	rootCmd.AddCommand(
		newCreateCmd(),
		newCloneCmd(),
		newCloneLocalCmd(),
		newStatusCmd(),
		newPullCmd(),
		newPushCmd(),
		newReposCmd(),
		newUseCmd(),
		newTreeCmd(),
		newWatchCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig binds the root flags on a fresh viper instance and loads the config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	bindings := map[string]string{
		config.KeyDataDir:         "data-dir",
		config.KeyLogLevel:        "log-level",
		config.KeyWorkers:         "workers",
		config.KeyObjectBackend:   "object-backend",
		config.KeyRegion:          "region",
		config.KeyProfile:         "profile",
		config.KeyEndpoint:        "endpoint",
		config.KeyMetadataBackend: "metadata-backend",
		config.KeyMetadataTable:   "metadata-table",
		config.KeyMetadataDSN:     "metadata-dsn",
	}
	for key, name := range bindings {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, err
			}
		}
	}

	path, _ := cmd.Flags().GetString("config")
	return config.Load(v, path)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", red("ERROR"), err)
		closeLog()
		stop()
		os.Exit(1)
	}
}
