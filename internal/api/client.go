// Package api is the HTTP transport client for the Thinkube control
// plane. It owns request authentication and the normalization of wire
// payloads whose field names and casing drift between backend versions.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
	"github.com/cmxela/thinkube-cicd-monitor/internal/notify"
)

// DefaultTimeout is the default timeout for API requests.
const DefaultTimeout = 10 * time.Second

// Client wraps HTTP calls to the Thinkube control plane.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	notifier   *notify.Notifier
}

// ListOptions filters a pipeline list request.
type ListOptions struct {
	App    string
	Status string
	Limit  int
}

// TriggerRequest asks the control plane to start a build.
type TriggerRequest struct {
	AppName string
	Branch  string
	Commit  string
	Message string
}

// New creates an API client. The notifier may be nil; auth warnings are
// then only logged.
func New(baseURL, token string, notifier *notify.Notifier) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &bearerTransport{
				token: token,
				base:  http.DefaultTransport,
			},
		},
		notifier: notifier,
	}
}

// BaseURL returns the normalized control-plane base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StreamURL derives the push-channel endpoint for one pipeline, or the
// global multiplexed events channel when id is empty.
func (c *Client) StreamURL(id string) string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	if id == "" {
		return u + "/ws/events"
	}
	return u + "/ws/pipelines/" + url.PathEscape(id)
}

// AuthHeader returns the headers a non-HTTP transport should present,
// currently just the bearer credential when one is configured.
func (c *Client) AuthHeader() http.Header {
	h := http.Header{}
	if ValidToken(c.token) {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

// ListPipelines fetches pipelines most recent first. Failures are
// absorbed here: an authentication failure surfaces a one-time warning,
// anything else is logged, and both return an empty list.
func (c *Client) ListPipelines(ctx context.Context, opts ListOptions) []models.Pipeline {
	query := url.Values{}
	if opts.App != "" {
		query.Set("app_name", opts.App)
	}
	if opts.Status != "" {
		query.Set("status", strings.ToLower(opts.Status))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	body, err := c.get(ctx, "/pipelines", query)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			c.warnAuth()
		} else {
			logrus.WithError(err).Warn("Failed to list pipelines")
		}
		return nil
	}

	payloads, err := decodePipelineList(body)
	if err != nil {
		logrus.WithError(err).Warn("Failed to decode pipeline list")
		return nil
	}

	pipelines := make([]models.Pipeline, len(payloads))
	for i, p := range payloads {
		pipelines[i] = p.toPipeline()
	}
	sort.SliceStable(pipelines, func(i, j int) bool {
		return pipelines[i].StartTime.After(pipelines[j].StartTime)
	})
	return pipelines
}

// GetPipeline fetches a single pipeline with stages and events. A 404
// maps to ErrNotFound, a 401 to ErrUnauthorized.
func (c *Client) GetPipeline(ctx context.Context, id string) (*models.Pipeline, error) {
	body, err := c.get(ctx, "/pipelines/"+url.PathEscape(id), nil)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			c.warnAuth()
		}
		return nil, err
	}

	var payload pipelinePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	p := payload.toPipeline()
	if p.ID == "" {
		p.ID = id
	}
	p.DetailLoaded = true
	return &p, nil
}

// GetPipelineEvents fetches the raw event sequence for a pipeline, the
// legacy representation older backends still serve.
func (c *Client) GetPipelineEvents(ctx context.Context, id string) ([]models.PipelineEvent, error) {
	body, err := c.get(ctx, "/pipelines/"+url.PathEscape(id)+"/events", nil)
	if err != nil {
		return nil, err
	}
	events, err := DecodeEvents(body)
	if err != nil {
		return nil, err
	}
	for i := range events {
		if events[i].PipelineID == "" {
			events[i].PipelineID = id
		}
	}
	return events, nil
}

// GetMetrics fetches backend-side aggregates for an application.
func (c *Client) GetMetrics(ctx context.Context, app, period string) (*models.Metrics, error) {
	query := url.Values{}
	if app != "" {
		query.Set("app_name", app)
	}
	if period != "" {
		query.Set("period", period)
	}
	body, err := c.get(ctx, "/metrics", query)
	if err != nil {
		return nil, err
	}

	var payload metricsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	m := payload.toMetrics()
	if m.AppName == "" {
		m.AppName = app
	}
	if m.Period == "" {
		m.Period = period
	}
	return &m, nil
}

// ListApplications fetches the applications known to the control plane.
func (c *Client) ListApplications(ctx context.Context) ([]models.Application, error) {
	body, err := c.get(ctx, "/applications", nil)
	if err != nil {
		return nil, err
	}

	var list []models.Application
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Applications []models.Application `json:"applications"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode applications: %w", err)
	}
	return wrapped.Applications, nil
}

// TriggerBuild posts a build-requested event for an application.
func (c *Client) TriggerBuild(ctx context.Context, req TriggerRequest) error {
	if req.AppName == "" {
		return fmt.Errorf("trigger build: app name is required")
	}

	payload := map[string]interface{}{
		"id":        uuid.New().String(),
		"app_name":  req.AppName,
		"eventType": "build-requested",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	details := map[string]string{}
	if req.Branch != "" {
		details["branch"] = req.Branch
	}
	if req.Commit != "" {
		details["commit"] = req.Commit
	}
	if req.Message != "" {
		details["message"] = req.Message
	}
	if len(details) > 0 {
		payload["details"] = details
	}

	_, err := c.post(ctx, "/events", payload)
	if errors.Is(err, ErrUnauthorized) {
		c.warnAuth()
	}
	return err
}

// TestConnection probes whether the control plane is reachable. A 401
// on the fallback data path still counts as reachable: reachability,
// not authorization, is what is being tested.
func (c *Client) TestConnection(ctx context.Context) bool {
	if resp, err := c.do(ctx, http.MethodGet, "/health", nil); err == nil {
		resp.Body.Close()
		if resp.StatusCode < 300 {
			return true
		}
	}

	// Older backends have no health path; probe a data path instead.
	resp, err := c.do(ctx, http.MethodGet, "/pipelines?limit=1", nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300 ||
		resp.StatusCode == http.StatusUnauthorized ||
		resp.StatusCode == http.StatusForbidden
}

func (c *Client) warnAuth() {
	if c.notifier == nil {
		logrus.Warn("Thinkube API rejected the request: authentication required")
		return
	}
	c.notifier.WarnOnce("auth",
		"Thinkube API rejected the request: run 'tkmon config token <token>' to authenticate")
}

func (c *Client) do(ctx context.Context, method, pathAndQuery string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+pathAndQuery, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	pathAndQuery := path
	if len(query) > 0 {
		pathAndQuery += "?" + query.Encode()
	}
	resp, err := c.do(ctx, http.MethodGet, pathAndQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) post(ctx context.Context, path string, data interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// checkResponse converts HTTP error statuses to client errors.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrUnavailable
	}

	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		if msg := firstNonEmpty(errResp.Error, errResp.Message); msg != "" {
			return &APIError{Code: resp.StatusCode, Message: msg}
		}
	}
	return &APIError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// decodePipelineList accepts both list encodings in the wild: a bare
// JSON array and an object wrapping the array.
func decodePipelineList(data []byte) ([]pipelinePayload, error) {
	var list []pipelinePayload
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Pipelines []pipelinePayload `json:"pipelines"`
		Items     []pipelinePayload `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode pipeline list: %w", err)
	}
	if wrapped.Pipelines != nil {
		return wrapped.Pipelines, nil
	}
	return wrapped.Items, nil
}

type metricsPayload struct {
	AppName        string         `json:"appName"`
	AppNameLegacy  string         `json:"app_name"`
	Period         string         `json:"period"`
	Total          int            `json:"total_runs"`
	TotalAlt       int            `json:"total"`
	Succeeded      int            `json:"succeeded_runs"`
	SucceededAlt   int            `json:"succeeded"`
	Failed         int            `json:"failed_runs"`
	FailedAlt      int            `json:"failed"`
	SuccessRate    *float64       `json:"success_rate"`
	AvgDurationSec float64        `json:"avg_duration"`
	FailureReasons map[string]int `json:"failure_reasons"`
}

func (m metricsPayload) toMetrics() models.Metrics {
	out := models.Metrics{
		AppName:        firstNonEmpty(m.AppName, m.AppNameLegacy),
		Period:         m.Period,
		TotalRuns:      firstNonZero(m.Total, m.TotalAlt),
		SucceededRuns:  firstNonZero(m.Succeeded, m.SucceededAlt),
		FailedRuns:     firstNonZero(m.Failed, m.FailedAlt),
		AvgDuration:    time.Duration(m.AvgDurationSec * float64(time.Second)),
		FailureReasons: m.FailureReasons,
	}
	switch {
	case m.SuccessRate != nil:
		out.SuccessRate = *m.SuccessRate
	case out.TotalRuns > 0:
		out.SuccessRate = float64(out.SucceededRuns) / float64(out.TotalRuns) * 100
	}
	return out
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
