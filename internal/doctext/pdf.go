package doctext

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText backend. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

func (p *PdfToText) Name() string { return "pdftotext" }

// ExtractText runs pdftotext -layout on the given PDF and returns stdout.
func (p *PdfToText) ExtractText(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "doctext: pdftotext failed for %s: %s", path, stderr.String())
	}
	return stdout.String(), nil
}

// GoPDF reads the PDF text layer in pure Go.
type GoPDF struct{}

func (GoPDF) Name() string { return "pdf" }

func (GoPDF) ExtractText(_ context.Context, path string) (text string, err error) {
	defer func() {
		// The reader panics on some malformed cross-reference tables.
		if r := recover(); r != nil {
			err = eris.Errorf("doctext: pdf reader panic on %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "doctext: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	plain, err := r.GetPlainText()
	if err != nil {
		return "", eris.Wrapf(err, "doctext: read text layer of %s", path)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", eris.Wrapf(err, "doctext: read text layer of %s", path)
	}
	return string(out), nil
}

// Fitz extracts page text with MuPDF.
type Fitz struct{}

func (Fitz) Name() string { return "mupdf" }

func (Fitz) ExtractText(ctx context.Context, path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", eris.Wrapf(err, "doctext: mupdf open %s", path)
	}
	defer doc.Close() //nolint:errcheck

	var sb strings.Builder
	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return "", eris.Wrap(err, "doctext: mupdf cancelled")
		}
		page, err := doc.Text(n)
		if err != nil {
			return "", eris.Wrapf(err, "doctext: mupdf page %d of %s", n+1, path)
		}
		if n > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(page)
	}
	return sb.String(), nil
}
