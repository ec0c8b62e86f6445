package simulate

import (
	"context"
	"fmt"

	"github.com/okian/cohort/internal/domain/model"
)

// SeedStore is the part of the store seeding writes to.
type SeedStore interface {
	PutApplication(ctx context.Context, app model.Application) error
	PutAdmin(ctx context.Context, admin model.Admin) error
}

// SeedResult lists what Seed wrote.
type SeedResult struct {
	Applications []model.Application
	Admins       []model.Admin
}

// Seed writes n generated applicants of cycleID and the given number of
// reviewers to store.
func Seed(ctx context.Context, store SeedStore, gen *Generator, cycleID string, applicants, reviewers int, tracks ...string) (SeedResult, error) {
	res := SeedResult{
		Applications: gen.Applicants(cycleID, applicants, tracks...),
		Admins:       gen.Admins(reviewers),
	}
	for _, a := range res.Admins {
		if err := store.PutAdmin(ctx, a); err != nil {
			return SeedResult{}, fmt.Errorf("put admin %s: %w", a.Email, err)
		}
	}
	for _, app := range res.Applications {
		if err := ctx.Err(); err != nil {
			return SeedResult{}, err
		}
		if err := store.PutApplication(ctx, app); err != nil {
			return SeedResult{}, fmt.Errorf("put application %s: %w", app.ID, err)
		}
	}
	return res, nil
}
