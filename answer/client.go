// Package answer is the HTTP client for the RACEN answer backend: the
// /answer question endpoint, URL ingestion jobs, and the specs sync
// admin call.
package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotAuthorized is returned when the backend rejects an admin
// operation with HTTP 403. Callers surface it as a distinct notice
// instead of the generic failure path.
var ErrNotAuthorized = errors.New("not authorized")

// ErrUnavailable covers non-2xx responses and unparseable bodies on
// the answer path. The orchestrator maps it to "Info not found".
var ErrUnavailable = errors.New("answer backend unavailable")

type Client struct {
	http       *http.Client
	baseURL    string
	adminToken string
}

func NewClient(httpClient *http.Client, baseURL, adminToken string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		http:       httpClient,
		baseURL:    strings.TrimSpace(strings.TrimRight(baseURL, "/")),
		adminToken: strings.TrimSpace(adminToken),
	}
}

type AnswerRequest struct {
	Question       string `json:"question"`
	Allowlist      string `json:"allowlist"`
	K              int    `json:"k"`
	Short          bool   `json:"short"`
	PreviousAnswer string `json:"previous_answer"`
	PreviousUser   string `json:"previous_user"`
}

type Citation struct {
	URL       string `json:"url"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

type AnswerResponse struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Ribbon    string     `json:"settings_summary"`
}

// Answer asks the backend for a grounded answer. Any non-success
// status or unparseable body comes back as ErrUnavailable; the caller
// must not store context in that case.
func (c *Client) Answer(ctx context.Context, req AnswerRequest) (AnswerResponse, error) {
	body, status, err := c.postJSON(ctx, "/answer", req)
	if err != nil {
		return AnswerResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status < 200 || status >= 300 {
		return AnswerResponse{}, fmt.Errorf("%w: http %d", ErrUnavailable, status)
	}
	var out AnswerResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return AnswerResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

type ingestRequest struct {
	URL         string `json:"url"`
	RequestedBy string `json:"requested_by"`
	Token       string `json:"token,omitempty"`
}

type ingestResponse struct {
	JobID string `json:"job_id"`
}

// EnqueueIngest submits a URL for ingestion and returns the job id.
// The shared admin token rides along when configured.
func (c *Client) EnqueueIngest(ctx context.Context, target, requestedBy string) (string, error) {
	body, status, err := c.postJSON(ctx, "/ingest/url", ingestRequest{
		URL:         strings.TrimSpace(target),
		RequestedBy: strings.TrimSpace(requestedBy),
		Token:       c.adminToken,
	})
	if err != nil {
		return "", err
	}
	if status == http.StatusForbidden {
		return "", ErrNotAuthorized
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("ingest enqueue http %d", status)
	}
	var out ingestResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parse ingest response: %w", err)
	}
	jobID := strings.TrimSpace(out.JobID)
	if jobID == "" {
		return "", fmt.Errorf("ingest enqueue returned empty job_id")
	}
	return jobID, nil
}

type JobStatus struct {
	Status             string `json:"status"`
	Stage              string `json:"stage"`
	Detail             string `json:"detail"`
	ChunksInserted     int    `json:"chunks_inserted"`
	EmbeddingsInserted int    `json:"embeddings_inserted"`
}

// Terminal reports whether the job reached a final state. The status
// enum is backend-defined and open; only done/error end polling.
func (s JobStatus) Terminal() bool {
	return s.Status == "done" || s.Status == "error"
}

func (c *Client) IngestStatus(ctx context.Context, jobID string) (JobStatus, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return JobStatus{}, fmt.Errorf("job_id is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ingest/status/"+jobID, nil)
	if err != nil {
		return JobStatus{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return JobStatus{}, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return JobStatus{}, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return JobStatus{}, fmt.Errorf("ingest status http %d", resp.StatusCode)
	}
	var out JobStatus
	if err := json.Unmarshal(raw, &out); err != nil {
		return JobStatus{}, err
	}
	return out, nil
}

type syncRequest struct {
	Token string `json:"token,omitempty"`
}

type SyncResult struct {
	Status           string   `json:"status"`
	RowsWritten      int      `json:"rows_written"`
	DuplicateSlugs   []string `json:"duplicate_slugs"`
	SlugsAllMissing  []string `json:"slugs_all_missing"`
	SlugsSomeMissing []string `json:"slugs_some_missing"`
}

// SyncError carries the HTTP status and optional backend detail of a
// failed specs sync so the notice can name both.
type SyncError struct {
	HTTPStatus int
	Detail     string
}

func (e *SyncError) Error() string {
	if strings.TrimSpace(e.Detail) == "" {
		return fmt.Sprintf("specs sync http %d", e.HTTPStatus)
	}
	return fmt.Sprintf("specs sync http %d: %s", e.HTTPStatus, e.Detail)
}

func (c *Client) SyncPhoneSpecs(ctx context.Context) (SyncResult, error) {
	body, status, err := c.postJSON(ctx, "/admin/sync/iphone-specs", syncRequest{Token: c.adminToken})
	if err != nil {
		return SyncResult{}, err
	}
	if status < 200 || status >= 300 {
		var detail struct {
			Detail string `json:"detail"`
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(body, &detail)
		d := strings.TrimSpace(detail.Detail)
		if d == "" {
			d = strings.TrimSpace(detail.Reason)
		}
		return SyncResult{}, &SyncError{HTTPStatus: status, Detail: d}
	}
	var out SyncResult
	if err := json.Unmarshal(body, &out); err != nil {
		return SyncResult{}, fmt.Errorf("parse sync response: %w", err)
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, int, error) {
	if c == nil || c.http == nil {
		return nil, 0, fmt.Errorf("answer client is not initialized")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, readErr
	}
	return body, resp.StatusCode, nil
}
