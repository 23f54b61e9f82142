package doctext

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 scanned"), 0o600))
	return path
}

func TestMistralOCR_ExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req ocrRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, defaultMistralModel, req.Model)
		assert.Contains(t, req.Document.DocumentURL, "data:application/pdf;base64,")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pages":[{"index":0,"markdown":"FUMIGATION CERTIFICATE"},{"index":1,"markdown":"Container MSCU1234567"}]}`))
	}))
	defer srv.Close()

	m := NewMistralOCR("test-key", "")
	m.endpoint = srv.URL

	text, err := m.ExtractText(context.Background(), writePDF(t))
	require.NoError(t, err)
	assert.Equal(t, "FUMIGATION CERTIFICATE\n\nContainer MSCU1234567", text)
}

func TestMistralOCR_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	m := NewMistralOCR("bad-key", "custom")
	m.endpoint = srv.URL
	assert.Equal(t, "custom", m.model)

	_, err := m.ExtractText(context.Background(), writePDF(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr API returned 401")
}

func TestMistralOCR_FileNotFound(t *testing.T) {
	_, err := NewMistralOCR("key", "").ExtractText(context.Background(), "/nonexistent/file.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read PDF")
}

func TestNewPDFChain_OCRBackend(t *testing.T) {
	assert.Len(t, NewPDFChain("", 0).Backends, 3)

	c := NewPDFChain("", 0, NewMistralOCR("key", ""))
	require.Len(t, c.Backends, 4)
	assert.Equal(t, "mistral-ocr", c.Backends[3].Name())
}
