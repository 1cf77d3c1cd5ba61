// Package main implements the feedsnap CLI: one invocation runs one
// aggregation pass and reports the outcome through its exit code.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pevans/feedsnap/failure"
	"github.com/pevans/feedsnap/history"
	"github.com/pevans/feedsnap/logging"
	"github.com/pevans/feedsnap/pipeline"
	"github.com/pevans/feedsnap/snapshot"
	"github.com/pevans/feedsnap/telemetry"
)

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) (code int) {
	defer func() {
		if v := recover(); v != nil {
			fmt.Fprintf(stderr, "Error: %v\n", failure.FromPanic(v))
			code = failure.ExitUncaught
		}
	}()

	code = failure.ExitOK
	root := newRootCmd(stdout, stderr, &code)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		// flag and usage errors
		return failure.ExitConfigInvalid
	}
	return code
}

type runFlags struct {
	configPath  string
	outPath     string
	pretty      bool
	fixtures    string
	historyPath string
	metricsFile string
}

func newRootCmd(stdout, stderr io.Writer, code *int) *cobra.Command {
	flags := &runFlags{}

	root := &cobra.Command{
		Use:   "feedsnap",
		Short: "Aggregate syndication feeds into a versioned JSON snapshot",
		Long: `feedsnap fetches the configured Medium and RSS/Atom feeds, normalizes and
scores every article, and writes a deterministic JSON snapshot. The file is
replaced only when the quality gates pass and the content actually changed.

Exit codes:
  0  success (written or unchanged)
  1  configuration invalid
  2  every source failed
  3  quality gate failed
  4  snapshot schema validation failed
  5  unexpected error

Examples:
  # Live run
  feedsnap --config feeds.yaml --out public/snapshot.json

  # Offline run against fixtures, pretty-printed
  feedsnap --config feeds.yaml --out /tmp/snapshot.json --fixtures testdata/feeds --pretty`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			*code = runPipeline(cmd, flags, stderr)
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.Flags().StringVar(&flags.configPath, "config", "", "path to the feed configuration file")
	root.Flags().StringVar(&flags.outPath, "out", "", "path of the snapshot file to write")
	root.Flags().BoolVar(&flags.pretty, "pretty", false, "pretty-print the snapshot JSON")
	root.Flags().StringVar(&flags.fixtures, "fixtures", "", "serve feeds from this fixture directory instead of the network")
	root.Flags().StringVar(&flags.metricsFile, "metrics-file", getEnv("FEEDSNAP_METRICS_FILE", ""), "write run metrics in Prometheus text format to this file")
	root.PersistentFlags().StringVar(&flags.historyPath, "history", getEnv("FEEDSNAP_HISTORY_DSN", ""), "SQLite run history database")
	_ = root.MarkFlagRequired("config")
	_ = root.MarkFlagRequired("out")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newHistoryCmd(&flags.historyPath))

	return root
}

func runPipeline(cmd *cobra.Command, flags *runFlags, stderr io.Writer) int {
	logger, err := logging.New(logging.ConfigFromEnv(), stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return failure.ExitConfigInvalid
	}
	defer logger.Sync()

	opts := pipeline.Options{
		ConfigPath: flags.configPath,
		OutPath:    flags.outPath,
		Pretty:     flags.pretty,
		Fixtures:   flags.fixtures,
		Logger:     logger,
	}

	if flags.historyPath != "" {
		store, err := history.NewStore(flags.historyPath)
		if err != nil {
			logger.Warn("run history disabled", logging.Err(err))
		} else {
			defer store.Close()
			opts.Recorder = store
		}
	}

	res, err := pipeline.New(opts).Run(cmd.Context())
	code := failure.ExitCode(err)

	if flags.metricsFile != "" {
		metrics := telemetry.New()
		metrics.Observe(res.Metrics, code, res.Written)
		if err := metrics.WriteTextfile(flags.metricsFile); err != nil {
			logger.Warn("failed to export metrics", logging.Err(err))
		}
	}

	return code
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the generator and snapshot schema versions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "feedsnap %s (specVersion %d)\n", snapshot.GeneratorVersion, snapshot.SpecVersion)
		},
	}
}
