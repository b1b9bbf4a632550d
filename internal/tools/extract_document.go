package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/soochol/flowdeck/internal/extract"
)

// maxDocumentSize caps the bytes read from a document download.
const maxDocumentSize = 20 << 20

// ExtractDocumentTool downloads a document (PDF, DOCX, XLSX, HTML or text)
// and returns its text.
type ExtractDocumentTool struct {
	Client *http.Client
}

func (d *ExtractDocumentTool) Name() string { return "extract_document" }

func (d *ExtractDocumentTool) Description() string {
	return "Download a document (PDF, Word, Excel, HTML or plain text) and return its text content."
}

func (d *ExtractDocumentTool) Parameters() map[string]string {
	return map[string]string{
		"url": "string",
	}
}

func (d *ExtractDocumentTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("url must be an absolute http(s) URL")
	}

	reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Flowdeck/1.0")

	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch document: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if guessed := extract.TypeFromExtension(u.Path); guessed != "" {
			contentType = guessed
		}
	}
	text, err := extract.Text(contentType, io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, err
	}
	if len(text) > maxTextOutput {
		text = text[:maxTextOutput] + "\n... [truncated]"
	}
	return map[string]any{
		"url":          rawURL,
		"content_type": contentType,
		"text":         text,
	}, nil
}
