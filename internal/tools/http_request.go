package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBody caps how much of an HTTP response body is kept as a step result.
const maxResponseBody = 100 * 1024

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true,
}

// HTTPRequestTool makes HTTP requests to external APIs and URLs.
type HTTPRequestTool struct {
	Client *http.Client
}

func (h *HTTPRequestTool) Name() string { return "http_request" }

func (h *HTTPRequestTool) Description() string {
	return "Make an HTTP request. Returns the response status, headers, and body."
}

func (h *HTTPRequestTool) Parameters() map[string]string {
	return map[string]string{
		"url":     "string",
		"method":  "string (optional, default GET)",
		"headers": "object (optional)",
		"body":    "string (optional)",
	}
}

func (h *HTTPRequestTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	method, _ := args["method"].(string)
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}
	if !allowedMethods[method] {
		return nil, fmt.Errorf("unsupported HTTP method: %q", method)
	}

	url, _ := args["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	var bodyReader io.Reader
	if body, ok := args["body"].(string); ok && body != "" {
		bodyReader = strings.NewReader(body)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if hdrs, ok := args["headers"].(map[string]any); ok {
		for k, v := range hdrs {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	bodyStr := string(bodyBytes)
	if len(bodyBytes) > maxResponseBody {
		bodyStr = bodyStr[:maxResponseBody] + "\n... [truncated at 100KB]"
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"status":      resp.Status,
		"headers":     respHeaders,
		"body":        bodyStr,
	}, nil
}
