package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const maxTextOutput = 100 * 1024

// GetWebpageTool fetches a page and returns its title and visible text.
type GetWebpageTool struct {
	Client *http.Client
}

func (g *GetWebpageTool) Name() string { return "get_webpage" }

func (g *GetWebpageTool) Description() string {
	return "Fetch a web page and return its title and readable text content."
}

func (g *GetWebpageTool) Parameters() map[string]string {
	return map[string]string{
		"url":      "string",
		"selector": "string (optional, CSS selector to extract)",
	}
}

func (g *GetWebpageTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}
	selector, _ := args["selector"].(string)

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Flowdeck/1.0")

	client := g.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch page: HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())

	root := doc.Find("body")
	if selector != "" {
		root = doc.Find(selector)
	}
	var parts []string
	root.Each(func(_ int, s *goquery.Selection) {
		if text := collapseSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	text := strings.Join(parts, "\n")
	if len(text) > maxTextOutput {
		text = text[:maxTextOutput] + "\n... [truncated]"
	}

	return map[string]any{
		"url":   url,
		"title": title,
		"text":  text,
	}, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
