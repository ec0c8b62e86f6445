package api

import (
	"errors"
	"net/http"

	"github.com/okian/cohort/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrMissingActor = errors.New("missing actor")
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// writeError maps service and domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	writeJSON(w, status, body)
}

func classify(err error) (int, errorResponse) {
	resp := errorResponse{Message: err.Error()}

	var (
		validation *model.ValidationError
		outOfRange *model.ScoreOutOfRangeError
		incomplete *model.IncompleteReviewsError
		batch      *model.BatchError
		transition *model.StageTransitionError
	)
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrMissingActor):
		resp.Code = "bad_request"
		return http.StatusBadRequest, resp
	case errors.As(err, &outOfRange):
		resp.Code = "score_out_of_range"
		resp.Details = map[string]any{
			"category": outOfRange.Category,
			"value":    outOfRange.Value,
			"min":      outOfRange.Min,
			"max":      outOfRange.Max,
		}
		return http.StatusBadRequest, resp
	case errors.As(err, &validation):
		resp.Code = "validation_error"
		resp.Details = map[string]string{"field": validation.Field, "reason": validation.Reason}
		return http.StatusBadRequest, resp
	case errors.Is(err, model.ErrValidation):
		resp.Code = "validation_error"
		return http.StatusBadRequest, resp
	case errors.Is(err, model.ErrNotFound):
		resp.Code = "not_found"
		return http.StatusNotFound, resp
	case errors.As(err, &incomplete):
		resp.Code = "incomplete_reviews"
		resp.Details = map[string]any{"incomplete_admins": incomplete.IncompleteAdmins}
		return http.StatusConflict, resp
	case errors.Is(err, model.ErrPhaseFinalized):
		resp.Code = "phase_finalized"
		return http.StatusConflict, resp
	case errors.As(err, &transition):
		resp.Code = "invalid_transition"
		resp.Details = map[string]string{
			"application_id": transition.ApplicationID,
			"from":           string(transition.From),
			"to":             string(transition.To),
		}
		return http.StatusConflict, resp
	case errors.Is(err, model.ErrInvalidTransition):
		resp.Code = "invalid_transition"
		return http.StatusConflict, resp
	case errors.As(err, &batch):
		resp.Code = "stage_batch_failed"
		resp.Details = map[string]int{"applied": batch.Applied, "total": batch.Total}
		if errors.Is(err, model.ErrConflict) {
			return http.StatusConflict, resp
		}
		return http.StatusInternalServerError, resp
	case errors.Is(err, model.ErrConflict):
		resp.Code = "conflict"
		return http.StatusConflict, resp
	}
	resp.Code = "internal_error"
	return http.StatusInternalServerError, resp
}
