package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/franklinbaldo/djen-backup/internal/archiveclient"
	"github.com/franklinbaldo/djen-backup/internal/config"
	"github.com/franklinbaldo/djen-backup/internal/logging"
	"github.com/franklinbaldo/djen-backup/internal/ratelimit"
	"github.com/franklinbaldo/djen-backup/internal/sourceclient"
)

var (
	verboseFlag bool
	dryRunFlag  bool
	outputFlag  string
	cfgFileFlag string

	runID  string
	appLog *logrus.Logger
)

// errExitCode1 signals "run completed, but below the success threshold" —
// cobra's SilenceErrors means it never prints a message; the run's own log
// events already explain what happened.
var errExitCode1 = fmt.Errorf("run finished below the success threshold")

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "djen-backup",
	Short: "Mirror Brazilian judicial bulletins (DJEN) into an archival object store",
	Long: `djen-backup mirrors daily judicial bulletins ("cadernos") from the DJEN
publication proxy into an Internet-Archive-style object store, keyed by
(date, tribunal).

Two modes:
  scan       Fill gaps in a recent date window.
  backfill   Walk each tribunal (or one, with --tribunal) backward from a
             start date, stopping a tribunal after 60 consecutive empty days.

Use "status" to inspect backfill progress and "reset" to clear a stopped
tribunal's streak.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path := cfgFileFlag; path != "" {
			if err := os.Setenv("DJEN_CONFIG", path); err != nil {
				return err
			}
		}
		runID = logging.NewRunID()
		appLog = logging.New(logging.Options{Verbose: verboseFlag}, runID)
		return nil
	},
}

// Execute runs the root command; the caller (main) exits nonzero on error.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&dryRunFlag, "dry-run", false, "show what would happen without uploading or mutating state")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug-level logging")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "", "output format override (table, json)")
	rootCmd.PersistentFlags().StringVar(&cfgFileFlag, "config", "", "config file (default: .djen/config.yaml, then ~/.djen/config.yaml)")
}

// loadConfig resolves the layered config and applies this invocation's
// flag overrides. dry-run has no config field of its own — it's threaded
// directly into each subcommand's mode-specific Config struct instead.
func loadConfig(overrides *config.Config) (*config.Config, error) {
	return config.Load(overrides)
}

// buildClients wires the shared rate-limited HTTP client into both the
// source and archive clients, resolving IA S3 credentials per dryRun.
func buildClients(cfg *config.Config, dryRun bool) (*sourceclient.Client, *archiveclient.Client, error) {
	transport := ratelimit.New(http.DefaultTransport, cfg.RatePerSecond)
	httpClient := &http.Client{Transport: transport}

	auth, err := config.ResolveIAAuth(dryRun)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve archive credentials: %w", err)
	}

	source := sourceclient.New(httpClient, cfg.SourceBaseURL)
	archive := archiveclient.New(httpClient, auth)
	return source, archive, nil
}

func mirrorStatePath(cfg *config.Config) string {
	return filepath.Join(cfg.StateDir, "mirror_state.json")
}

func defaultBackfillStatePath(cfg *config.Config) string {
	return filepath.Join(cfg.StateDir, "backfill_state.json")
}

func resolveOutput(cfg *config.Config, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return cfg.Output
}
