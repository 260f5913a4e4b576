package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Extractor converts raw document bytes into plain text suitable for a
// model prompt.
type Extractor interface {
	Extract(r io.Reader, filename string) (string, error)
}

// SupportedExtensions lists file extensions the pipeline can ingest.
var SupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".html": true,
	".htm":  true,
	".pdf":  true,
	".docx": true,
}

// ForFile returns the appropriate extractor for a filename.
func ForFile(filename string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", "":
		return &TextExtractor{}, nil
	case ".md", ".markdown":
		return &MarkdownExtractor{}, nil
	case ".html", ".htm":
		return &HTMLExtractor{}, nil
	case ".pdf":
		return &PDFExtractor{}, nil
	case ".docx":
		return &DOCXExtractor{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupported checks if a file extension is supported.
func IsSupported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// Excerpt bounds text to at most limit characters, cutting at a word
// boundary when one is close. The cut never splits a UTF-8 sequence.
func Excerpt(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || len(text) <= limit {
		return text
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	// Prefer the last whitespace within the final 10% of the budget.
	if idx := strings.LastIndexAny(text[:cut], " \t\n"); idx > limit-limit/10 {
		cut = idx
	}
	return strings.TrimSpace(text[:cut])
}

// FromFile opens a document, routes it to the right extractor, and returns
// the bounded excerpt.
func FromFile(path string, limit int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	ex, err := ForFile(path)
	if err != nil {
		return "", err
	}

	text, err := ex.Extract(f, filepath.Base(path))
	if err != nil {
		return "", err
	}
	return Excerpt(text, limit), nil
}
