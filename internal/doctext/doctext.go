// Package doctext turns source files into plain text for extraction.
package doctext

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultMinChars is the shortest backend result accepted without trying the
// next backend.
const DefaultMinChars = 100

// Backend extracts text from one file format.
type Backend interface {
	Name() string
	ExtractText(ctx context.Context, path string) (string, error)
}

// Attempt records one backend run.
type Attempt struct {
	Backend string `json:"backend"`
	Chars   int    `json:"chars"`
	Error   string `json:"error,omitempty"`
	Chosen  bool   `json:"chosen,omitempty"`
}

// Result is the text of one file and how it was obtained.
type Result struct {
	Text    string    `json:"text"`
	Length  int       `json:"length"`
	Methods []Attempt `json:"methods"`
}

// Extractor extracts text from a file.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (Result, error)
}

// Chain tries backends in order and keeps the first result of at least
// MinChars characters, or else the longest one.
type Chain struct {
	Backends []Backend
	MinChars int
}

// NewPDFChain returns the PDF backend chain: pdftotext, then the pure Go
// reader, then MuPDF, then any extra backends (OCR).
func NewPDFChain(pdftotextPath string, minChars int, extra ...Backend) *Chain {
	backends := []Backend{NewPdfToText(pdftotextPath), GoPDF{}, Fitz{}}
	return &Chain{
		Backends: append(backends, extra...),
		MinChars: minChars,
	}
}

// ExtractText implements Extractor.
func (c *Chain) ExtractText(ctx context.Context, path string) (Result, error) {
	minChars := c.MinChars
	if minChars <= 0 {
		minChars = DefaultMinChars
	}

	var res Result
	best := -1
	var lastErr error
	for _, b := range c.Backends {
		if err := ctx.Err(); err != nil {
			return Result{}, eris.Wrap(err, "doctext: extraction cancelled")
		}
		text, err := b.ExtractText(ctx, path)
		text = strings.TrimSpace(text)
		a := Attempt{Backend: b.Name(), Chars: utf8.RuneCountInString(text)}
		if err != nil {
			a.Error = err.Error()
			lastErr = err
			zap.L().Debug("doctext: backend failed", zap.String("backend", b.Name()), zap.Error(err))
		}
		res.Methods = append(res.Methods, a)
		if err == nil && a.Chars > 0 && (best < 0 || a.Chars > res.Methods[best].Chars) {
			best = len(res.Methods) - 1
			res.Text = text
		}
		if best >= 0 && res.Methods[best].Chars >= minChars {
			break
		}
	}

	if best < 0 {
		if lastErr != nil {
			return res, eris.Wrapf(lastErr, "doctext: no text extracted from %s", filepath.Base(path))
		}
		return res, eris.Errorf("doctext: no text extracted from %s", filepath.Base(path))
	}
	res.Methods[best].Chosen = true
	res.Length = res.Methods[best].Chars
	return res, nil
}

// ForPath returns the extractor for the file's extension. extra backends are
// appended to the PDF chain.
func ForPath(path, pdftotextPath string, minChars int, extra ...Backend) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return NewPDFChain(pdftotextPath, minChars, extra...), nil
	case ".xlsx":
		return &Chain{Backends: []Backend{Spreadsheet{}}, MinChars: 1}, nil
	case ".txt", ".md":
		return &Chain{Backends: []Backend{PlainText{}}, MinChars: 1}, nil
	default:
		return nil, eris.Errorf("doctext: unsupported file type %q", filepath.Ext(path))
	}
}

// PlainText reads a text file as is.
type PlainText struct{}

func (PlainText) Name() string { return "text" }

func (PlainText) ExtractText(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "doctext: read %s", path)
	}
	return string(data), nil
}
