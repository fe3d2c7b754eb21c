package tika

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"invest-assist-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	var gotMethod, gotPath, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte("extracted text"))
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL + "/"})
	text, err := c.ExtractText(context.Background(), strings.NewReader("raw"), "guide.html")
	require.NoError(t, err)
	assert.Equal(t, "extracted text", text)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/tika", gotPath)
	assert.Contains(t, gotType, "text/html")
	assert.Equal(t, "raw", gotBody)
}

func TestExtractText_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL})
	_, err := c.ExtractText(context.Background(), strings.NewReader("raw"), "x.bin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/octet-stream", detectMimeType("README"))
	assert.Equal(t, "application/octet-stream", detectMimeType("file.unknownext"))
	assert.Contains(t, detectMimeType("doc.pdf"), "application/pdf")
}
