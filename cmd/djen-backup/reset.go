package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/franklinbaldo/djen-backup/internal/backfillstate"
	"github.com/franklinbaldo/djen-backup/internal/config"
)

var (
	resetTribunal          string
	resetAll               bool
	resetBackfillStateFile string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear a stopped tribunal's empty streak",
	Long: `reset clears the stopped flag and empty streak for one tribunal (or
every tribunal with --all), leaving the cursor untouched — the next
backfill run resumes from wherever the tribunal stood.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().StringVar(&resetTribunal, "tribunal", "", "tribunal code to reset")
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "reset every tribunal with recorded progress")
	resetCmd.Flags().StringVar(&resetBackfillStateFile, "backfill-state-file", "", "path to the backfill state file (default: state-dir/backfill_state.json)")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if resetTribunal == "" && !resetAll {
		return fmt.Errorf("reset requires --tribunal CODE or --all")
	}
	if resetTribunal != "" && resetAll {
		return fmt.Errorf("reset accepts either --tribunal or --all, not both")
	}

	cfg, err := loadConfig(&config.Config{})
	if err != nil {
		return err
	}

	path := resetBackfillStateFile
	if path == "" {
		path = defaultBackfillStatePath(cfg)
	}
	bstate := backfillstate.Load(path, appLog)

	var targets []string
	if resetAll {
		progress := bstate.GetAllProgress()
		for code := range progress {
			targets = append(targets, code)
		}
		sort.Strings(targets)
	} else {
		targets = []string{resetTribunal}
	}

	resetCount := 0
	for _, code := range targets {
		if bstate.ResetTribunal(code) {
			resetCount++
			fmt.Printf("reset %s\n", code)
		}
	}

	if resetCount > 0 {
		if err := backfillstate.Save(bstate, path, appLog); err != nil {
			return fmt.Errorf("save backfill state: %w", err)
		}
	}

	return nil
}
