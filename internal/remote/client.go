// Package remote is the HTTP client of an external execution backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/flowdeck/ports"
	"github.com/soochol/flowdeck/internal/plan"
)

const maxResponseBody = 4 << 20

// Client talks to an executor exposing /tools, /generate-plan,
// /workflows/execute and /active-workflows.
type Client struct {
	baseURL string
	http    *http.Client
	group   singleflight.Group
}

var (
	_ ports.Executor      = (*Client)(nil)
	_ ports.PlanGenerator = (*Client)(nil)
)

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// ListTools fetches the tool catalog. Concurrent callers share one request.
// Every failure wraps flowdeck.ErrCatalogUnavailable.
func (c *Client) ListTools(ctx context.Context) ([]flowdeck.ToolInfo, error) {
	v, err, _ := c.group.Do("tools", func() (any, error) {
		var resp flowdeck.ToolCatalogResponse
		if err := c.do(ctx, http.MethodGet, "/tools", nil, &resp); err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, fmt.Errorf("executor reported failure")
		}
		return resp.Tools, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", flowdeck.ErrCatalogUnavailable, err)
	}
	return v.([]flowdeck.ToolInfo), nil
}

// GeneratePlan asks the backend for a plan. The reply may wrap the JSON in
// prose or code fences; the object is extracted and checked before it is
// returned.
func (c *Client) GeneratePlan(ctx context.Context, message string) (*flowdeck.GeneratedPlan, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/generate-plan", map[string]string{"message": message}, &raw); err != nil {
		return nil, fmt.Errorf("%w: generate plan: %v", flowdeck.ErrCatalogUnavailable, err)
	}
	body := []byte(raw)
	var text string
	if json.Unmarshal(raw, &text) == nil {
		extracted, err := extractJSON(text)
		if err != nil {
			return nil, flowdeck.Violationf("generated plan", "", "%v", err)
		}
		body = []byte(extracted)
	}
	return plan.DecodeGenerated(body, nil)
}

// Execute submits a plan. Any 2xx reply is an acknowledgement.
func (c *Client) Execute(ctx context.Context, sub flowdeck.Submission) error {
	if err := c.do(ctx, http.MethodPost, "/workflows/execute", sub, nil); err != nil {
		return fmt.Errorf("submit workflow: %w", err)
	}
	return nil
}

type activeWorkflowsResponse struct {
	Workflows []flowdeck.ExecutionRecord `json:"workflows"`
}

func (c *Client) ActiveWorkflows(ctx context.Context) ([]flowdeck.ExecutionRecord, error) {
	var resp activeWorkflowsResponse
	if err := c.do(ctx, http.MethodGet, "/active-workflows", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch active workflows: %w", err)
	}
	return resp.Workflows, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// extractJSON pulls a JSON object out of generated text that may carry
// markdown fences or leading prose. "{{" pairs belong to step placeholders
// and never start the object.
func extractJSON(text string) (string, error) {
	content := strings.TrimSpace(text)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	for i := 0; i < len(content); i++ {
		if content[i] != '{' {
			continue
		}
		if i+1 < len(content) && content[i+1] == '{' {
			i++
			continue
		}
		return content[i:], nil
	}
	return "", fmt.Errorf("no JSON object found in text")
}
