package main

import (
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/internal/simulate"
	"github.com/okian/cohort/pkg/logger"
)

//nolint:gochecknoglobals // Cobra boilerplate
var (
	baseURL string
	timeout time.Duration
	verbose bool
	cycleID string
	phase   string
	track   string
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "cohortctl",
	Short: "Seed, simulate and inspect recruitment review phases",
	Long: `cohortctl talks to a running cohort service.

It can seed synthetic applicants into a store, drive concurrent reviewers
through the HTTP API, and print rankings, coverage and cutoff previews.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		var w io.Writer = io.Discard
		if verbose {
			w = os.Stderr
		}
		return logger.InitWithWriter(w)
	},
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:9080", "Base URL of the service")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "HTTP request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&cycleID, "cycle", "", "Recruitment cycle id")
	rootCmd.PersistentFlags().StringVar(&phase, "phase", string(model.PhaseApplication), "Phase: application, interview_round1 or interview_round2")
	rootCmd.PersistentFlags().StringVar(&track, "track", "", "Track filter")
}

func client() *simulate.Client {
	return simulate.NewClient(baseURL, timeout)
}

// phaseKey builds the key selected by the persistent flags.
func phaseKey() (model.PhaseKey, error) {
	p, err := model.ParsePhase(phase)
	if err != nil {
		return model.PhaseKey{}, err
	}
	key := model.PhaseKey{CycleID: cycleID, Phase: p, Track: track}
	return key, key.Validate()
}
