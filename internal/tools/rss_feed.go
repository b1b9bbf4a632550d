package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedItem is one entry of a fetch_rss result.
type FeedItem struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Published string `json:"published,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Author    string `json:"author,omitempty"`
}

// RSSFeedTool fetches an RSS, Atom or JSON feed and returns its entries,
// optionally filtered by date and keyword.
type RSSFeedTool struct {
	Client *http.Client
}

func (r *RSSFeedTool) Name() string { return "fetch_rss" }

func (r *RSSFeedTool) Description() string {
	return "Fetch an RSS, Atom or JSON feed and return its items (title, link, published date, summary, author)."
}

func (r *RSSFeedTool) Parameters() map[string]string {
	return map[string]string{
		"url":        "string",
		"max_items":  "number (optional)",
		"since_date": "string (optional, RFC3339)",
		"contains":   "string (optional, keyword matched against title and summary)",
	}
}

type feedFilter struct {
	max      int
	since    time.Time
	contains string
}

func parseFeedFilter(args map[string]any) (feedFilter, error) {
	var f feedFilter
	switch v := args["max_items"].(type) {
	case float64:
		f.max = int(v)
	case int:
		f.max = v
	}
	if v, _ := args["since_date"].(string); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("since_date must be RFC3339: %w", err)
		}
		f.since = t
	}
	if v, _ := args["contains"].(string); v != "" {
		f.contains = strings.ToLower(v)
	}
	return f, nil
}

// keep reports whether item passes the filter. Undated items never pass a
// since_date cutoff.
func (f feedFilter) keep(item *gofeed.Item) bool {
	if !f.since.IsZero() && (item.PublishedParsed == nil || item.PublishedParsed.Before(f.since)) {
		return false
	}
	if f.contains != "" {
		text := strings.ToLower(item.Title + " " + item.Description)
		if !strings.Contains(text, f.contains) {
			return false
		}
	}
	return true
}

func (r *RSSFeedTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}
	filter, err := parseFeedFilter(args)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	parser := gofeed.NewParser()
	parser.Client = r.Client
	if parser.Client == nil {
		parser.Client = &http.Client{Timeout: 30 * time.Second}
	}
	feed, err := parser.ParseURLWithContext(url, reqCtx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	items := []FeedItem{}
	for _, it := range feed.Items {
		if !filter.keep(it) {
			continue
		}
		item := FeedItem{Title: it.Title, Link: it.Link, Summary: it.Description, Published: it.Published}
		if it.PublishedParsed != nil {
			item.Published = it.PublishedParsed.Format(time.RFC3339)
		}
		if it.Author != nil {
			item.Author = it.Author.Name
		}
		items = append(items, item)
		if filter.max > 0 && len(items) >= filter.max {
			break
		}
	}

	return map[string]any{
		"feed_title": feed.Title,
		"feed_url":   feed.Link,
		"items":      items,
		"item_count": len(items),
	}, nil
}
