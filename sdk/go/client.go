package stratlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Stratline HTTP API client.
type Client struct {
	BaseURL    string
	LearnerID  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ModuleOutput is the recorded answer state for one module (partial).
type ModuleOutput struct {
	ModuleID  string         `json:"module_id"`
	Completed bool           `json:"completed"`
	Outputs   map[string]any `json:"outputs,omitempty"`
	UpdatedAt string         `json:"updated_at"`
}

// Warning flags a violated upstream assumption.
type Warning struct {
	ModuleID string `json:"module_id"`
	Upstream string `json:"upstream_module_id"`
	Message  string `json:"message"`
}

// NoteScore is the rubric result for a strategy note.
type NoteScore struct {
	Score     int `json:"score"`
	Breakdown struct {
		Specificity     int `json:"specificity"`
		Falsifiability  int `json:"falsifiability"`
		TradeoffClarity int `json:"tradeoff_clarity"`
		EvidenceLinkage int `json:"evidence_linkage"`
		RiskHonesty     int `json:"risk_honesty"`
	} `json:"breakdown"`
}

// Metrics is the derived valuation bundle.
type Metrics struct {
	Valuation    float64 `json:"valuation"`
	CAC          float64 `json:"cac"`
	QualityIndex float64 `json:"quality_index"`
	QuizIndex    float64 `json:"quiz_index"`
}

// TrajectoryPoint is one point of the profit series.
type TrajectoryPoint struct {
	Label  string  `json:"label"`
	Profit float64 `json:"profit"`
}

// Challenge is the currently visible prompt.
type Challenge struct {
	ModuleID    string `json:"module_id"`
	ModuleTitle string `json:"module_title"`
	Question    string `json:"question"`
}

// ChallengeView pairs the scheduler state with the visible challenge.
type ChallengeView struct {
	State     string     `json:"state"`
	Challenge *Challenge `json:"challenge,omitempty"`
}

// Event is one activity-log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SetOutput records a required-output value for a module.
func (c *Client) SetOutput(ctx context.Context, moduleID, outputID string, value any) (ModuleOutput, error) {
	var resp ModuleOutput
	endpoint := fmt.Sprintf("v0/modules/%s/outputs/%s", url.PathEscape(moduleID), url.PathEscape(outputID))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"value": value}, &resp)
	return resp, err
}

// SetWorksheetField records a worksheet field value.
func (c *Client) SetWorksheetField(ctx context.Context, moduleID, worksheetID, fieldID string, value any) (ModuleOutput, error) {
	var resp ModuleOutput
	endpoint := fmt.Sprintf("v0/modules/%s/worksheets/%s/fields/%s",
		url.PathEscape(moduleID), url.PathEscape(worksheetID), url.PathEscape(fieldID))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"value": value}, &resp)
	return resp, err
}

// SetResponse records a free-text response slot.
func (c *Client) SetResponse(ctx context.Context, moduleID, kind, text string) (ModuleOutput, error) {
	var resp ModuleOutput
	endpoint := fmt.Sprintf("v0/modules/%s/responses/%s", url.PathEscape(moduleID), url.PathEscape(kind))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"text": text}, &resp)
	return resp, err
}

// CompleteModule marks a module complete.
func (c *Client) CompleteModule(ctx context.Context, moduleID string) (ModuleOutput, error) {
	var resp ModuleOutput
	endpoint := fmt.Sprintf("v0/modules/%s/complete", url.PathEscape(moduleID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Warnings returns failing upstream assumptions for a module.
func (c *Client) Warnings(ctx context.Context, moduleID string) ([]Warning, error) {
	var resp struct {
		Warnings []Warning `json:"warnings"`
	}
	endpoint := fmt.Sprintf("v0/modules/%s/warnings", url.PathEscape(moduleID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Warnings, err
}

// Violations returns consistency-rule violations for a module.
func (c *Client) Violations(ctx context.Context, moduleID string) ([]string, error) {
	var resp struct {
		Violations []string `json:"violations"`
	}
	endpoint := fmt.Sprintf("v0/modules/%s/violations", url.PathEscape(moduleID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Violations, err
}

// Invalidated returns completed modules with violated upstream assumptions.
func (c *Client) Invalidated(ctx context.Context) (map[string][]Warning, error) {
	var resp struct {
		Modules map[string][]Warning `json:"modules"`
	}
	err := c.do(ctx, http.MethodGet, "v0/invalidated", nil, &resp)
	return resp.Modules, err
}

// ScoreNote scores a strategy note against the rubric.
func (c *Client) ScoreNote(ctx context.Context, thesis string, evidence, tradeoffs, risks []string, decision string) (NoteScore, error) {
	body := map[string]any{
		"thesis":    thesis,
		"evidence":  evidence,
		"tradeoffs": tradeoffs,
		"risks":     risks,
		"decision":  decision,
	}
	var resp NoteScore
	err := c.do(ctx, http.MethodPost, "v0/score", body, &resp)
	return resp, err
}

// Metrics returns the derived valuation bundle.
func (c *Client) Metrics(ctx context.Context) (Metrics, error) {
	var resp Metrics
	err := c.do(ctx, http.MethodGet, "v0/metrics", nil, &resp)
	return resp, err
}

// Trajectory returns the profit series.
func (c *Client) Trajectory(ctx context.Context) ([]TrajectoryPoint, error) {
	var resp []TrajectoryPoint
	err := c.do(ctx, http.MethodGet, "v0/metrics/trajectory", nil, &resp)
	return resp, err
}

// Challenge returns the scheduler state and visible challenge.
func (c *Client) Challenge(ctx context.Context) (ChallengeView, error) {
	var resp ChallengeView
	err := c.do(ctx, http.MethodGet, "v0/challenge", nil, &resp)
	return resp, err
}

// RespondChallenge answers the visible challenge.
func (c *Client) RespondChallenge(ctx context.Context, text string) (ChallengeView, error) {
	var resp ChallengeView
	err := c.do(ctx, http.MethodPost, "v0/challenge/response", map[string]any{"text": text}, &resp)
	return resp, err
}

// DismissChallenge dismisses the visible challenge without answering.
func (c *Client) DismissChallenge(ctx context.Context) (ChallengeView, error) {
	var resp ChallengeView
	err := c.do(ctx, http.MethodPost, "v0/challenge/dismiss", nil, &resp)
	return resp, err
}

// LoadDemo replaces all answers with demo data.
func (c *Client) LoadDemo(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "v0/demo", nil, nil)
}

// Events returns recent activity-log entries.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.LearnerID != "" {
		req.Header.Set("X-Learner-Id", c.LearnerID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
