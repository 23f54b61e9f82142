package doctext

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeBackend struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) ExtractText(context.Context, string) (string, error) {
	f.calls++
	return f.text, f.err
}

func TestChain_StopsAtFirstLongEnough(t *testing.T) {
	first := &fakeBackend{name: "a", text: strings.Repeat("x", 120)}
	second := &fakeBackend{name: "b", text: strings.Repeat("y", 500)}
	c := &Chain{Backends: []Backend{first, second}, MinChars: 100}

	res, err := c.ExtractText(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, 120, res.Length)
	assert.Equal(t, 0, second.calls)
	require.Len(t, res.Methods, 1)
	assert.True(t, res.Methods[0].Chosen)
}

func TestChain_KeepsLongestWhenAllShort(t *testing.T) {
	c := &Chain{Backends: []Backend{
		&fakeBackend{name: "a", text: "short"},
		&fakeBackend{name: "b", err: errors.New("boom")},
		&fakeBackend{name: "c", text: "a bit longer"},
	}, MinChars: 100}

	res, err := c.ExtractText(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "a bit longer", res.Text)
	require.Len(t, res.Methods, 3)
	assert.False(t, res.Methods[0].Chosen)
	assert.Equal(t, "boom", res.Methods[1].Error)
	assert.True(t, res.Methods[2].Chosen)
}

func TestChain_AllFail(t *testing.T) {
	c := &Chain{Backends: []Backend{
		&fakeBackend{name: "a", err: errors.New("no binary")},
		&fakeBackend{name: "b", text: "   "},
	}}

	res, err := c.ExtractText(context.Background(), "scan.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text extracted from scan.pdf")
	assert.Len(t, res.Methods, 2)
}

func TestChain_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &fakeBackend{name: "a", text: "text"}

	_, err := (&Chain{Backends: []Backend{b}}).ExtractText(ctx, "doc.pdf")
	require.Error(t, err)
	assert.Equal(t, 0, b.calls)
}

func TestForPath(t *testing.T) {
	for _, ext := range []string{"a.pdf", "b.PDF", "c.xlsx", "d.txt", "e.md"} {
		_, err := ForPath(ext, "", 0)
		assert.NoError(t, err, ext)
	}
	_, err := ForPath("photo.jpg", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestPlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoice.txt")
	require.NoError(t, os.WriteFile(path, []byte("COMMERCIAL INVOICE\nNo. 222500187\n"), 0o600))

	ext, err := ForPath(path, "", 0)
	require.NoError(t, err)
	res, err := ext.ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "COMMERCIAL INVOICE\nNo. 222500187", res.Text)
	assert.Equal(t, "text", res.Methods[0].Backend)
}

func TestSpreadsheet(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Packing"))
	rows := [][]any{{"Item", "HS Code", "Boxes"}, {"Pine boards", "4407.11", 12}, {"Spruce beams", "4407.12", 8}}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Packing", cell, &row))
	}
	path := filepath.Join(t.TempDir(), "packing.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	text, err := Spreadsheet{}.ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "## Packing\nItem\tHS Code\tBoxes\nPine boards\t4407.11\t12\nSpruce beams\t4407.12\t8\n", text)
}

func TestPdfToText_BinPath(t *testing.T) {
	assert.Equal(t, "pdftotext", NewPdfToText("").binPath)
	assert.Equal(t, "/custom/pdftotext", NewPdfToText("/custom/pdftotext").binPath)
}

func TestPdfToText_BinaryNotFound(t *testing.T) {
	_, err := NewPdfToText("/nonexistent/pdftotext").ExtractText(context.Background(), "/tmp/test.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func TestPDFChain_PrefersPdfToText(t *testing.T) {
	fakeBin := filepath.Join(t.TempDir(), "pdftotext")
	script := "#!/bin/sh\nprintf 'COMMERCIAL INVOICE %0100d\\n' 0\n"
	require.NoError(t, os.WriteFile(fakeBin, []byte(script), 0o755))

	res, err := NewPDFChain(fakeBin, 50).ExtractText(context.Background(), "/tmp/dummy.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Text, "COMMERCIAL INVOICE"))
	require.Len(t, res.Methods, 1)
	assert.Equal(t, "pdftotext", res.Methods[0].Backend)
}

func TestGoPDF_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o600))

	_, err := GoPDF{}.ExtractText(context.Background(), path)
	assert.Error(t, err)
}
