package sources

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/mudler/xlog"
	"jaytaylor.com/html2text"
)

// Loader converts one source format into raw text.
type Loader interface {
	Load(path string) (string, error)
}

// ErrUnsupportedFormat marks a file extension no loader handles.
var ErrUnsupportedFormat = fmt.Errorf("unsupported document format")

// ForFile selects the loader for a file by extension.
func ForFile(path string) (Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".log":
		return TextLoader{}, nil
	case ".pdf":
		return PDFLoader{}, nil
	case ".html", ".htm":
		return HTMLLoader{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// FormatName reports the source format label stored in document metadata.
func FormatName(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "unknown"
	}
	return strings.TrimPrefix(ext, ".")
}

// Load reads path with the loader matching its extension.
func Load(path string) (string, error) {
	loader, err := ForFile(path)
	if err != nil {
		return "", err
	}
	xlog.Debug("Loading document", "path", path)
	return loader.Load(path)
}

// TextLoader reads plain-text and markdown files as-is.
type TextLoader struct{}

func (TextLoader) Load(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(content), nil
}

// PDFLoader extracts the plain text stream from a PDF.
type PDFLoader struct{}

func (PDFLoader) Load(path string) (string, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", path, err)
	}
	b, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(b); err != nil {
		return "", fmt.Errorf("reading pdf text from %s: %w", path, err)
	}
	return buf.String(), nil
}

// HTMLLoader converts markup to readable text, keeping table layout since AWR
// reports are mostly tables.
type HTMLLoader struct{}

func (HTMLLoader) Load(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	text, err := html2text.FromString(string(content), html2text.Options{PrettyTables: true})
	if err != nil {
		return "", fmt.Errorf("converting %s: %w", path, err)
	}
	return text, nil
}
