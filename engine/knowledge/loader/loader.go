package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/gcpassist/gcpassist/engine/core"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

// DefaultMaxFileSize bounds how much of a single source file is read.
const DefaultMaxFileSize = 64 * 1024 * 1024

// Document is the raw text extracted from one source file.
type Document struct {
	Path        string
	Name        string
	Text        string
	ContentType string
}

// Loader turns a file path into extracted text.
type Loader interface {
	Load(ctx context.Context, path string) (Document, error)
}

// FileLoader reads PDF, plain text and markdown files from disk.
type FileLoader struct {
	maxSize    int64
	extractPDF func(path string) (string, error)
}

type Option func(*FileLoader)

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(n int64) Option {
	return func(l *FileLoader) {
		if n > 0 {
			l.maxSize = n
		}
	}
}

func NewFileLoader(opts ...Option) *FileLoader {
	l := &FileLoader{maxSize: DefaultMaxFileSize, extractPDF: extractPDFText}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load extracts the full text of path. Every failure is a DOCUMENT_LOAD_ERROR.
func (l *FileLoader) Load(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, loadError(path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Document{}, loadError(path, err)
	}
	if info.IsDir() {
		return Document{}, loadError(path, errors.New("path is a directory"))
	}
	if info.Size() > l.maxSize {
		return Document{}, loadError(path, fmt.Errorf("file size %d exceeds limit %d", info.Size(), l.maxSize))
	}
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return Document{}, loadError(path, fmt.Errorf("detect content type: %w", err))
	}
	doc := Document{Path: path, Name: filepath.Base(path), ContentType: mime.String()}
	switch {
	case mime.Is("application/pdf"):
		text, err := l.extractPDF(path)
		if err != nil {
			return Document{}, loadError(path, fmt.Errorf("extract pdf: %w", err))
		}
		doc.Text = text
	case isTextual(mime):
		data, err := os.ReadFile(path)
		if err != nil {
			return Document{}, loadError(path, err)
		}
		if !utf8.Valid(data) {
			return Document{}, loadError(path, errors.New("file is not valid utf-8"))
		}
		doc.Text = normalizeNewlines(string(data))
	default:
		return Document{}, loadError(path, fmt.Errorf("unsupported content type %s", mime.String()))
	}
	if strings.TrimSpace(doc.Text) == "" {
		logger.FromContext(ctx).Warn("Document contains no extractable text", "path", path, "content_type", doc.ContentType)
	}
	return doc, nil
}

func isTextual(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func extractPDFText(path string) (text string, err error) {
	defer func() {
		// the pdf reader panics on some malformed cross-reference tables
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return normalizeNewlines(buf.String()), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func loadError(path string, err error) error {
	return core.NewError(err, core.ErrCodeDocumentLoad, map[string]any{"path": path})
}
