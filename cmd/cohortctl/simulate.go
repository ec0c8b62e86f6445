package main

import (
	"runtime"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/okian/cohort/internal/simulate"
)

//nolint:gochecknoglobals // Cobra boilerplate
var (
	simReviewers []string
	simWorkers   int
	simTopN      int
	simSeed      int64
)

//nolint:gochecknoglobals // Cobra boilerplate
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Review every applicant of a phase with concurrent reviewers",
	Long: `Submits one generated review per (reviewer, applicant) pair through the
HTTP API, then verifies the ranking order and reports coverage.

Examples:
  cohortctl simulate --cycle 2026-fall --reviewer ada@org.test --reviewer bob@org.test
  cohortctl simulate --cycle 2026-fall --track eng --reviewer ada@org.test --top 20 -v`,
	RunE: runSimulate,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringSliceVar(&simReviewers, "reviewer", nil, "Reviewer email (repeatable)")
	simulateCmd.Flags().IntVar(&simWorkers, "workers", runtime.NumCPU()*2, "Number of concurrent submitters")
	simulateCmd.Flags().IntVar(&simTopN, "top", 0, "Preview a top_n cutoff of this size at the end")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "Generator seed (0 is random)")
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	key, err := phaseKey()
	if err != nil {
		return err
	}
	stats, err := simulate.Run(cmd.Context(), &simulate.Config{
		BaseURL:   baseURL,
		CycleID:   key.CycleID,
		Phase:     key.Phase,
		Track:     key.Track,
		Reviewers: simReviewers,
		Workers:   simWorkers,
		Timeout:   timeout,
		Seed:      simSeed,
		TopN:      simTopN,
		Verbose:   verbose,
	})
	if err != nil {
		return errors.Wrap(err, "simulation failed")
	}
	return printJSON(cmd, stats)
}
