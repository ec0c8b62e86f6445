package main

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/okian/cohort/internal/adapters/repository"
	"github.com/okian/cohort/internal/adapters/repository/postgres"
	"github.com/okian/cohort/internal/adapters/repository/sqlite"
	"github.com/okian/cohort/internal/config"
	"github.com/okian/cohort/internal/simulate"
)

//nolint:gochecknoglobals // Cobra boilerplate
var (
	seedApplicants int
	seedReviewers  int
	seedTracks     []string
	seedValue      int64
)

//nolint:gochecknoglobals // Cobra boilerplate
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write synthetic applicants and reviewers into the configured store",
	Long: `Seeds the store selected by COHORT_STORE_DRIVER (sqlite or postgres)
with generated applicants and reviewers. The memory driver is rejected since
nothing would survive the command.

Examples:
  COHORT_STORE_DRIVER=sqlite COHORT_SQLITE_PATH=cohort.db \
    cohortctl seed --cycle 2026-fall --applicants 200 --reviewers 4 --tracks eng,design`,
	RunE: runSeed,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().IntVar(&seedApplicants, "applicants", 50, "Number of applicants to create")
	seedCmd.Flags().IntVar(&seedReviewers, "reviewers", 3, "Number of reviewers to create")
	seedCmd.Flags().StringSliceVar(&seedTracks, "tracks", nil, "Tracks assigned round-robin")
	seedCmd.Flags().Int64Var(&seedValue, "seed", 0, "Generator seed (0 is random)")
}

func runSeed(cmd *cobra.Command, _ []string) (err error) {
	ctx := cmd.Context()
	if cycleID == "" {
		return errors.New("--cycle is required")
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "failed to close store")
		}
	}()

	res, err := simulate.Seed(ctx, store, simulate.NewGenerator(seedValue), cycleID, seedApplicants, seedReviewers, seedTracks...)
	if err != nil {
		return errors.Wrap(err, "seeding failed")
	}

	reviewers := make([]string, len(res.Admins))
	for i, a := range res.Admins {
		reviewers[i] = a.Email
	}
	return printJSON(cmd, map[string]any{
		"cycle_id":     cycleID,
		"applications": len(res.Applications),
		"reviewers":    reviewers,
	})
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.StorePostgres:
		return postgres.Open(ctx, cfg.PostgresDSN)
	}
	return nil, errors.Errorf("store driver %q cannot be seeded", cfg.StoreDriver)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "failed to write output")
}
