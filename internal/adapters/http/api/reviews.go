package api

import (
	"context"
	"net/http"

	"github.com/okian/cohort/internal/domain/model"
)

// ReviewDependencies defines review submission and ranking reads.
type ReviewDependencies interface {
	UpsertReview(ctx context.Context, review model.ApplicationReview) (model.ApplicationReview, error)
	GetReviews(ctx context.Context, applicationID string, phase model.Phase) ([]model.ApplicationReview, error)
	Rankings(ctx context.Context, key model.PhaseKey) ([]model.RankedApplicant, error)
	Completeness(ctx context.Context, key model.PhaseKey) (model.PhaseCompleteness, error)
}

// ReviewHandler handles review and ranking requests.
type ReviewHandler struct {
	deps ReviewDependencies
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(deps ReviewDependencies) *ReviewHandler {
	return &ReviewHandler{deps: deps}
}

type upsertReviewRequest struct {
	Scores         []model.CategoryScore `json:"scores"`
	ReferralSignal model.ReferralSignal  `json:"referral_signal"`
	Recommendation *model.Recommendation `json:"recommendation"`
	Notes          string                `json:"notes"`
	AudioURL       string                `json:"audio_url"`
}

// HandleUpsert handles POST /api/v1/applications/{applicationID}/reviews/{phase}.
// The reviewer is the caller named by the actor header.
func (h *ReviewHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	phase, err := model.ParsePhase(r.PathValue("phase"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body upsertReviewRequest
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	review, err := h.deps.UpsertReview(r.Context(), model.ApplicationReview{
		ApplicationID:  r.PathValue("applicationID"),
		Phase:          phase,
		ReviewerEmail:  who,
		Scores:         body.Scores,
		ReferralSignal: body.ReferralSignal,
		Recommendation: body.Recommendation,
		Notes:          body.Notes,
		AudioURL:       body.AudioURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// HandleList handles GET /api/v1/applications/{applicationID}/reviews/{phase}.
func (h *ReviewHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	phase, err := model.ParsePhase(r.PathValue("phase"))
	if err != nil {
		writeError(w, err)
		return
	}
	reviews, err := h.deps.GetReviews(r.Context(), r.PathValue("applicationID"), phase)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// HandleRankings handles GET /api/v1/cycles/{cycleID}/phases/{phase}/rankings?track=.
func (h *ReviewHandler) HandleRankings(w http.ResponseWriter, r *http.Request) {
	key, err := phaseKey(r, "")
	if err != nil {
		writeError(w, err)
		return
	}
	ranked, err := h.deps.Rankings(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

// HandleCompleteness handles GET /api/v1/cycles/{cycleID}/phases/{phase}/completeness?track=.
func (h *ReviewHandler) HandleCompleteness(w http.ResponseWriter, r *http.Request) {
	key, err := phaseKey(r, "")
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.deps.Completeness(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
