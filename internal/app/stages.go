package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/internal/domain/stage"
	"github.com/okian/cohort/pkg/logger"
	"github.com/okian/cohort/pkg/metrics"
	"github.com/okian/cohort/pkg/tracing"
)

// TransitionStage applies an admin stage action such as withdraw or
// waitlist. Cutoff-only stages are rejected.
func (s *Service) TransitionStage(ctx context.Context, applicationID string, to model.ApplicationStage, actor string) (out model.Application, err error) {
	ctx, span := tracing.Start(ctx, "service.TransitionStage",
		attribute.String("application_id", applicationID),
		attribute.String("to", string(to)),
	)
	defer func() { tracing.End(span, err) }()

	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return model.Application{}, err
	}
	if app.Stage == to {
		return app, nil
	}
	if err := stage.Validate(app.Stage, to, stage.Admin()); err != nil {
		return model.Application{}, &model.StageTransitionError{
			ApplicationID: app.ID,
			From:          app.Stage,
			To:            to,
			Reason:        err.Error(),
		}
	}
	move := model.StageMove{ApplicationID: app.ID, From: app.Stage, To: to}
	if _, err := s.applyMoves(ctx, []model.StageMove{move}, stage.CauseAdmin); err != nil {
		return model.Application{}, err
	}
	s.audit(ctx, actor, "stage.transition", "application", app.ID, map[string]any{
		"from": string(app.Stage),
		"to":   string(to),
	})
	return s.store.GetApplication(ctx, app.ID)
}

// applyMoves writes moves in batches of batchSize, each batch atomically.
// It returns the number of applications whose stage changed. A failing
// batch stops the run with a model.BatchError; earlier batches stay
// applied and re-running the same moves skips them.
func (s *Service) applyMoves(ctx context.Context, moves []model.StageMove, cause stage.CauseKind) (int, error) {
	changed, committed := 0, 0
	for start := 0; start < len(moves); start += s.batchSize {
		end := min(start+s.batchSize, len(moves))
		n, err := s.store.SetStages(ctx, moves[start:end])
		if err != nil {
			metrics.RecordErrorByComponent("service", "stage_batch")
			s.logger.Error(ctx, "stage batch failed",
				logger.String("cause", string(cause)),
				logger.Int("committed", committed),
				logger.Int("total", len(moves)),
				logger.Error(err),
			)
			metrics.RecordStageTransitions(string(cause), changed)
			return changed, &model.BatchError{
				Applied: committed,
				Total:   len(moves),
				Err:     fmt.Errorf("set stages: %w", err),
			}
		}
		changed += n
		committed = end
	}
	metrics.RecordStageTransitions(string(cause), changed)
	return changed, nil
}
