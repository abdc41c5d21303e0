package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	backfillengine "github.com/franklinbaldo/djen-backup/internal/backfill"
	"github.com/franklinbaldo/djen-backup/internal/backfillstate"
	"github.com/franklinbaldo/djen-backup/internal/config"
	"github.com/franklinbaldo/djen-backup/internal/metrics"
	"github.com/franklinbaldo/djen-backup/internal/mirror"
)

type backfillReport struct {
	Summary *backfillengine.Summary `json:"summary"`
	Metrics metrics.Snapshot        `json:"metrics"`
}

var (
	backfillTribunal        string
	backfillStartDate       string
	backfillLowerBound      string
	backfillMaxItems        int
	backfillWorkers         int
	backfillDeadlineMinutes int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Walk a tribunal (or all tribunals) backward from a start date",
	Long: `backfill walks each tribunal backward one day at a time from
start-date down to lower-bound, stopping a tribunal after 60 consecutive
authoritative empty days. A later run with a newer start-date ratchets a
stopped cursor forward without losing the stop.`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().StringVar(&backfillTribunal, "tribunal", "", "restrict the walk to a single tribunal code (default: all)")
	backfillCmd.Flags().StringVar(&backfillStartDate, "start-date", "", "walk start date YYYY-MM-DD (default: yesterday)")
	backfillCmd.Flags().StringVar(&backfillLowerBound, "lower-bound", "", "walk lower bound YYYY-MM-DD (required)")
	backfillCmd.Flags().IntVar(&backfillMaxItems, "max-items", 0, "cap dates processed per tribunal this run (default: config/unlimited)")
	backfillCmd.Flags().IntVar(&backfillWorkers, "workers", 0, "concurrent tribunal walkers (default: config/1)")
	backfillCmd.Flags().IntVar(&backfillDeadlineMinutes, "deadline-minutes", 0, "run deadline in minutes (default: config/45)")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	overrides := &config.Config{
		StartDate:       backfillStartDate,
		LowerBound:      backfillLowerBound,
		MaxItems:        backfillMaxItems,
		Workers:         backfillWorkers,
		DeadlineMinutes: backfillDeadlineMinutes,
	}
	cfg, err := loadConfig(overrides)
	if err != nil {
		return err
	}

	if cfg.LowerBound == "" {
		return fmt.Errorf("backfill requires --lower-bound (no default; refuses to walk to the epoch unbounded)")
	}
	lowerBound, err := time.Parse("2006-01-02", cfg.LowerBound)
	if err != nil {
		return fmt.Errorf("invalid --lower-bound %q: %w", cfg.LowerBound, err)
	}

	startDate := time.Now().UTC().AddDate(0, 0, -1)
	if cfg.StartDate != "" {
		startDate, err = time.Parse("2006-01-02", cfg.StartDate)
		if err != nil {
			return fmt.Errorf("invalid --start-date %q: %w", cfg.StartDate, err)
		}
	}

	source, archive, err := buildClients(cfg, dryRunFlag)
	if err != nil {
		return err
	}

	mirrorPath := mirrorStatePath(cfg)
	state := mirror.Load(mirrorPath, appLog)

	backfillStatePath := defaultBackfillStatePath(cfg)
	bstate := backfillstate.Load(backfillStatePath, appLog)

	reg := metrics.New()

	summary := backfillengine.Run(cmd.Context(), source, archive, state, bstate, backfillStatePath, reg, backfillengine.Config{
		StartDate:       startDate,
		LowerBound:      lowerBound,
		Tribunal:        backfillTribunal,
		DeadlineMinutes: cfg.DeadlineMinutes,
		MaxItems:        cfg.MaxItems,
		Workers:         cfg.Workers,
		DryRun:          dryRunFlag,
	}, appLog)

	if !dryRunFlag {
		if err := mirror.Save(state, mirrorPath, appLog); err != nil {
			appLog.WithError(err).Warn("mirror_state_save_failed")
		}
	}

	if resolveOutput(cfg, outputFlag) == "json" {
		snapshot, err := reg.Gather()
		if err != nil {
			appLog.WithError(err).Warn("metrics_gather_failed")
		}
		out, err := json.MarshalIndent(backfillReport{Summary: summary, Metrics: snapshot}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal backfill report: %w", err)
		}
		fmt.Println(string(out))
	}

	return nil
}
