package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchText(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("A,B\n1,2\n")) //nolint:errcheck
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, testLogger())
	text, err := f.FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "A,B\n1,2\n", text)
	assert.Equal(t, userAgent, gotUA)
}

func TestFetchTextStripsBOM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("\uFEFFMeldewoche\tFallzahl\n")) //nolint:errcheck
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, testLogger())
	text, err := f.FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Meldewoche\tFallzahl\n", text)
}

func TestFetchTextNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, testLogger())
	_, err := f.FetchText(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestFetchTextNetworkError(t *testing.T) {
	f := NewFetcher(100*time.Millisecond, testLogger())
	_, err := f.FetchText(context.Background(), "http://127.0.0.1:1/never")
	require.Error(t, err)
}
