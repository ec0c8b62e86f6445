package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	service "github.com/okian/cohort/internal/app"
	"github.com/okian/cohort/internal/domain/model"
)

// actorHeader mirrors the header the API reads the caller from.
const actorHeader = "X-Actor-Email"

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s: %s", e.Status, e.Code, e.Message)
}

// Client is a small typed client of the review API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
}

// InitializePhaseConfigs seeds the default configs of a cycle.
func (c *Client) InitializePhaseConfigs(ctx context.Context, cycleID, actor string) ([]model.PhaseConfig, error) {
	var out []model.PhaseConfig
	err := c.do(ctx, http.MethodPost, "/api/v1/cycles/"+url.PathEscape(cycleID)+"/phase-configs/initialize", actor, nil, &out)
	return out, err
}

// PhaseConfigs lists the stored configs of a cycle.
func (c *Client) PhaseConfigs(ctx context.Context, cycleID string) ([]model.PhaseConfig, error) {
	var out []model.PhaseConfig
	err := c.do(ctx, http.MethodGet, "/api/v1/cycles/"+url.PathEscape(cycleID)+"/phase-configs", "", nil, &out)
	return out, err
}

// UpsertReview submits a review as its reviewer.
func (c *Client) UpsertReview(ctx context.Context, r model.ApplicationReview) (model.ApplicationReview, error) {
	body := map[string]any{
		"scores":          r.Scores,
		"referral_signal": r.ReferralSignal,
		"recommendation":  r.Recommendation,
		"notes":           r.Notes,
		"audio_url":       r.AudioURL,
	}
	var out model.ApplicationReview
	path := "/api/v1/applications/" + url.PathEscape(r.ApplicationID) + "/reviews/" + string(r.Phase)
	err := c.do(ctx, http.MethodPost, path, r.ReviewerEmail, body, &out)
	return out, err
}

// Rankings fetches the current ranking of a phase.
func (c *Client) Rankings(ctx context.Context, key model.PhaseKey) ([]model.RankedApplicant, error) {
	var out []model.RankedApplicant
	err := c.do(ctx, http.MethodGet, phasePath(key, "rankings"), "", nil, &out)
	return out, err
}

// Completeness fetches review coverage of a phase.
func (c *Client) Completeness(ctx context.Context, key model.PhaseKey) (model.PhaseCompleteness, error) {
	var out model.PhaseCompleteness
	err := c.do(ctx, http.MethodGet, phasePath(key, "completeness"), "", nil, &out)
	return out, err
}

// PreviewCutoff partitions the ranking without side effects.
func (c *Client) PreviewCutoff(ctx context.Context, key model.PhaseKey, criteria model.CutoffCriteria) (service.CutoffPreview, error) {
	var out service.CutoffPreview
	body := map[string]any{"track": key.Track, "criteria": criteria}
	err := c.do(ctx, http.MethodPost, phasePath(key, "cutoff/preview"), "", body, &out)
	return out, err
}

func phasePath(key model.PhaseKey, suffix string) string {
	p := "/api/v1/cycles/" + url.PathEscape(key.CycleID) + "/phases/" + string(key.Phase) + "/" + suffix
	if key.Track != "" {
		p += "?track=" + url.QueryEscape(key.Track)
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path, actor string, body, out any) error {
	var rd io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
