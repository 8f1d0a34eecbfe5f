package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcpassist/gcpassist/engine/core"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writePDF(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	for _, line := range lines {
		doc.Cell(0, 10, line)
		doc.Ln(10)
	}
	require.NoError(t, doc.OutputFileAndClose(path))
	return path
}

func TestFileLoader_Load(t *testing.T) {
	t.Run("Should read markdown files as text", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "guide.md", "# Monitoring\r\nSponsors should monitor trials.\r\n")
		doc, err := NewFileLoader().Load(t.Context(), path)
		require.NoError(t, err)
		assert.Equal(t, "guide.md", doc.Name)
		assert.Equal(t, "# Monitoring\nSponsors should monitor trials.\n", doc.Text)
		assert.True(t, strings.HasPrefix(doc.ContentType, "text/plain"))
	})

	t.Run("Should extract text from a pdf", func(t *testing.T) {
		dir := t.TempDir()
		path := writePDF(t, dir, "e6.pdf", "InformedConsent", "EthicsCommittee")
		doc, err := NewFileLoader().Load(t.Context(), path)
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", doc.ContentType)
		compact := strings.Join(strings.Fields(doc.Text), "")
		assert.Contains(t, compact, "InformedConsent")
		assert.Contains(t, compact, "EthicsCommittee")
	})

	t.Run("Should fail with a document load error for a missing file", func(t *testing.T) {
		_, err := NewFileLoader().Load(t.Context(), filepath.Join(t.TempDir(), "missing.pdf"))
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.ErrCodeDocumentLoad))
	})

	t.Run("Should fail for a corrupt pdf", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "broken.pdf", "%PDF-1.4\nthis is not really a pdf")
		_, err := NewFileLoader().Load(t.Context(), path)
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.ErrCodeDocumentLoad))
	})

	t.Run("Should reject unsupported binary content", func(t *testing.T) {
		dir := t.TempDir()
		png := string([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0})
		path := writeFile(t, dir, "figure.png", png)
		_, err := NewFileLoader().Load(t.Context(), path)
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.ErrCodeDocumentLoad))
	})

	t.Run("Should reject files above the size limit", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "big.txt", strings.Repeat("a", 64))
		_, err := NewFileLoader(WithMaxFileSize(10)).Load(t.Context(), path)
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.ErrCodeDocumentLoad))
	})

	t.Run("Should reject directories", func(t *testing.T) {
		_, err := NewFileLoader().Load(t.Context(), t.TempDir())
		assert.True(t, core.IsCode(err, core.ErrCodeDocumentLoad))
	})
}

func TestExpand(t *testing.T) {
	t.Run("Should expand recursive globs in sorted order without duplicates", func(t *testing.T) {
		dir := t.TempDir()
		b := writeFile(t, dir, "b/two.md", "two")
		a := writeFile(t, dir, "a/one.md", "one")
		writeFile(t, dir, "a/skip.txt", "skip")
		paths, err := Expand([]string{
			filepath.Join(dir, "**", "*.md"),
			a,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{a, b}, paths)
	})

	t.Run("Should keep literal paths even when they do not exist", func(t *testing.T) {
		paths, err := Expand([]string{"docs/missing.pdf", "  ", "docs/missing.pdf"})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Clean("docs/missing.pdf")}, paths)
	})

	t.Run("Should reject malformed patterns", func(t *testing.T) {
		_, err := Expand([]string{"docs/[.pdf"})
		assert.Error(t, err)
	})
}
