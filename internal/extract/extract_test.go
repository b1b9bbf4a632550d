package extract

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestText_Plain(t *testing.T) {
	got, err := Text("text/csv; charset=utf-8", strings.NewReader("  a,b,c\n"))
	require.NoError(t, err)
	assert.Equal(t, "a,b,c", got)
}

func TestText_HTML(t *testing.T) {
	html := `<html><head><style>p{}</style></head><body><p>Hello</p><script>x()</script><p>world</p></body></html>`
	got, err := Text("text/html", strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, "Hello world", got)
}

func TestText_Unsupported(t *testing.T) {
	_, err := Text("image/png", strings.NewReader("png"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestText_DOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/document.xml")
	w.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t> there</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second line</w:t></w:r></w:p></w:body></w:document>`))
	zw.Close()

	got, err := Text(mimeDOCX, &buf)
	require.NoError(t, err)
	assert.Equal(t, "Hello there\nSecond line", got)
}

func TestText_XLSX(t *testing.T) {
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "name")
	f.SetCellValue("Sheet1", "B1", "count")
	f.SetCellValue("Sheet1", "A2", "apples")
	f.SetCellValue("Sheet1", "B2", 3)
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	got, err := Text(mimeXLSX, &buf)
	require.NoError(t, err)
	assert.Equal(t, "# Sheet1\nname\tcount\napples\t3", got)
}

func TestTypeFromExtension(t *testing.T) {
	cases := map[string]string{
		"report.PDF":      mimePDF,
		"/files/notes.md": "text/plain",
		"sheet.xlsx":      mimeXLSX,
		"archive.tar.gz":  "",
	}
	for name, want := range cases {
		assert.Equal(t, want, TypeFromExtension(name), name)
	}
}
