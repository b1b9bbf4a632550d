package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDocumentTool_PlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("quarterly notes\n"))
	}))
	defer srv.Close()

	tool := &ExtractDocumentTool{Client: srv.Client()}
	out, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL + "/notes.txt"})
	require.NoError(t, err)
	res := out.(map[string]any)
	assert.Equal(t, "quarterly notes", res["text"])
	assert.Equal(t, "text/plain", res["content_type"])
}

func TestExtractDocumentTool_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".png") {
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte{0x89, 'P', 'N', 'G'})
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	tool := &ExtractDocumentTool{Client: srv.Client()}
	for _, args := range []map[string]any{
		{},
		{"url": "file:///etc/passwd"},
		{"url": srv.URL + "/missing.pdf"},
		{"url": srv.URL + "/logo.png"},
	} {
		_, err := tool.Execute(context.Background(), args)
		assert.Error(t, err, "%v", args)
	}
}
