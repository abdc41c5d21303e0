package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/franklinbaldo/djen-backup/internal/config"
	"github.com/franklinbaldo/djen-backup/internal/metrics"
	"github.com/franklinbaldo/djen-backup/internal/mirror"
	"github.com/franklinbaldo/djen-backup/internal/scanner"
)

type scanReport struct {
	Result  scanner.Result   `json:"result"`
	Metrics metrics.Snapshot `json:"metrics"`
}

var (
	scanWindowDays      int
	scanWorkers         int
	scanDeadlineMinutes int
	scanForceRecheck    bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Fill gaps in a recent date window",
	Long: `scan discovers which (date, tribunal) pairs in a recent window are
missing from the archive and uploads them, newest date first.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanWindowDays, "window-days", 0, "size of the recent-date window (default: config/7)")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "concurrent item workers (default: config/1)")
	scanCmd.Flags().IntVar(&scanDeadlineMinutes, "deadline-minutes", 0, "run deadline in minutes (default: config/45)")
	scanCmd.Flags().BoolVar(&scanForceRecheck, "force-recheck", false, "skip the mirror fast path and re-query archive metadata for every date")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	overrides := &config.Config{
		WindowDays:      scanWindowDays,
		Workers:         scanWorkers,
		DeadlineMinutes: scanDeadlineMinutes,
		ForceRecheck:    scanForceRecheck,
	}
	cfg, err := loadConfig(overrides)
	if err != nil {
		return err
	}

	source, archive, err := buildClients(cfg, dryRunFlag)
	if err != nil {
		return err
	}

	statePath := mirrorStatePath(cfg)
	state := mirror.Load(statePath, appLog)
	reg := metrics.New()

	end := time.Now().UTC().AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(cfg.WindowDays - 1))

	result := scanner.Run(cmd.Context(), source, archive, state, reg, scanner.Config{
		StartDate:       start,
		EndDate:         end,
		DeadlineMinutes: cfg.DeadlineMinutes,
		MaxItems:        cfg.MaxItems,
		Workers:         cfg.Workers,
		DryRun:          dryRunFlag,
		ForceRecheck:    cfg.ForceRecheck,
	}, appLog)

	if !dryRunFlag {
		if err := mirror.Save(state, statePath, appLog); err != nil {
			appLog.WithError(err).Warn("mirror_state_save_failed")
		}
	}

	if resolveOutput(cfg, outputFlag) == "json" {
		snapshot, err := reg.Gather()
		if err != nil {
			appLog.WithError(err).Warn("metrics_gather_failed")
		}
		out, err := json.MarshalIndent(scanReport{Result: result, Metrics: snapshot}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal scan report: %w", err)
		}
		fmt.Println(string(out))
	}

	if !result.Success {
		return errExitCode1
	}
	return nil
}
