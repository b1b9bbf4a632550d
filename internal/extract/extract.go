// Package extract turns fetched documents into plain text for tool results.
package extract

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnsupported is returned for content types with no text extractor.
var ErrUnsupported = errors.New("unsupported content type")

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Text extracts the text of a document of the given content type.
func Text(contentType string, r io.Reader) (string, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.ToLower(strings.SplitN(contentType, ";", 2)[0]))
	}

	switch {
	case mt == "text/html" || mt == "application/xhtml+xml":
		return htmlText(r)
	case strings.HasPrefix(mt, "text/"), mt == "application/json", mt == "application/xml":
		return plainText(r)
	case mt == mimePDF:
		return pdfText(r)
	case mt == mimeDOCX:
		return docxText(r)
	case mt == mimeXLSX:
		return xlsxText(r)
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, mt)
}

// TypeFromExtension guesses a content type for servers that answer with
// application/octet-stream.
func TypeFromExtension(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return mimePDF
	case strings.HasSuffix(lower, ".docx"):
		return mimeDOCX
	case strings.HasSuffix(lower, ".xlsx"):
		return mimeXLSX
	case strings.HasSuffix(lower, ".csv"):
		return "text/csv"
	case strings.HasSuffix(lower, ".txt"), strings.HasSuffix(lower, ".md"):
		return "text/plain"
	}
	return ""
}

func plainText(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func htmlText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Find("body").Text()), " "), nil
}
