package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/okian/cohort/internal/domain/model"
)

//nolint:gochecknoglobals // Cobra boilerplate
var (
	previewType string
	previewTopN int
	previewMin  float64
)

//nolint:gochecknoglobals // Cobra boilerplate
var rankingsCmd = &cobra.Command{
	Use:   "rankings",
	Short: "Print the current ranking of a phase",
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := phaseKey()
		if err != nil {
			return err
		}
		ranked, err := client().Rankings(cmd.Context(), key)
		if err != nil {
			return errors.Wrap(err, "failed to fetch rankings")
		}
		return printJSON(cmd, ranked)
	},
}

//nolint:gochecknoglobals // Cobra boilerplate
var completenessCmd = &cobra.Command{
	Use:   "completeness",
	Short: "Print review coverage of a phase",
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := phaseKey()
		if err != nil {
			return err
		}
		c, err := client().Completeness(cmd.Context(), key)
		if err != nil {
			return errors.Wrap(err, "failed to fetch completeness")
		}
		return printJSON(cmd, c)
	},
}

//nolint:gochecknoglobals // Cobra boilerplate
var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Preview a cutoff without moving anyone",
	Long: `Examples:
  cohortctl preview --cycle 2026-fall --type top_n --n 30
  cohortctl preview --cycle 2026-fall --track eng --type min_score --min 3.5`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := phaseKey()
		if err != nil {
			return err
		}
		criteria := model.CutoffCriteria{Type: model.CutoffType(previewType)}
		switch criteria.Type {
		case model.CutoffTopN:
			criteria.TopN = &previewTopN
		case model.CutoffMinScore:
			criteria.MinScore = &previewMin
		}
		preview, err := client().PreviewCutoff(cmd.Context(), key, criteria)
		if err != nil {
			return errors.Wrap(err, "failed to preview cutoff")
		}
		return printJSON(cmd, preview)
	},
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(rankingsCmd, completenessCmd, previewCmd)
	previewCmd.Flags().StringVar(&previewType, "type", string(model.CutoffTopN), "Criteria: top_n, min_score or manual")
	previewCmd.Flags().IntVar(&previewTopN, "n", 10, "Applicants to advance for top_n")
	previewCmd.Flags().Float64Var(&previewMin, "min", 3, "Minimum weighted score for min_score")
}
