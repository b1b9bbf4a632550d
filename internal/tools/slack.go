package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackMessageTool posts a message to a Slack incoming webhook.
type SlackMessageTool struct {
	Client *http.Client
}

func (s *SlackMessageTool) Name() string { return "send_slack_message" }

func (s *SlackMessageTool) Description() string {
	return "Post a message to a Slack channel through an incoming webhook URL."
}

func (s *SlackMessageTool) Parameters() map[string]string {
	return map[string]string{
		"webhook_url": "string",
		"text":        "string",
		"channel":     "string (optional, overrides the webhook's default channel)",
	}
}

func (s *SlackMessageTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	webhookURL, _ := args["webhook_url"].(string)
	if webhookURL == "" {
		return nil, fmt.Errorf("webhook_url is required")
	}
	text, _ := args["text"].(string)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	payload := map[string]string{"text": text}
	if channel, _ := args["channel"].(string); channel != "" {
		payload["channel"] = channel
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slack send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("slack API returned %d", resp.StatusCode)
	}
	return map[string]any{"sent": true, "status_code": resp.StatusCode}, nil
}
