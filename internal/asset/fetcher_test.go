package asset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsage-ai/medsage/internal/errors"
	"github.com/medsage-ai/medsage/internal/status"
)

const payload = "model-weights-payload"

func newTestServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/main.gguf", "/projector.gguf":
			w.Write([]byte(payload))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testAsset(srv *httptest.Server, dir, name string) Asset {
	return Asset{
		Label: "main",
		URL:   srv.URL + "/" + name,
		Path:  filepath.Join(dir, name),
		Size:  int64(len(payload)),
	}
}

func TestEnsureAssetDownloads(t *testing.T) {
	srv, hits := newTestServer(t)
	dir := t.TempDir()
	f := NewFetcher(status.NewTracker(false), zerolog.Nop())

	a := testAsset(srv, dir, "main.gguf")
	require.NoError(t, f.EnsureAsset(context.Background(), a))

	data, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
	assert.Equal(t, int64(1), hits.Load())

	_, err = os.Stat(a.Path + ".part")
	assert.True(t, os.IsNotExist(err), "partial file must not survive a completed download")
}

func TestEnsureAssetSkipsVerifiedFile(t *testing.T) {
	srv, hits := newTestServer(t)
	dir := t.TempDir()
	f := NewFetcher(status.NewTracker(false), zerolog.Nop())

	a := testAsset(srv, dir, "main.gguf")
	require.NoError(t, os.WriteFile(a.Path, []byte(payload), 0644))

	require.NoError(t, f.EnsureAsset(context.Background(), a))
	assert.Zero(t, hits.Load(), "a verified asset must trigger no network I/O")
}

func TestEnsureAssetRefetchesOnSizeMismatch(t *testing.T) {
	srv, hits := newTestServer(t)
	dir := t.TempDir()
	f := NewFetcher(status.NewTracker(false), zerolog.Nop())

	a := testAsset(srv, dir, "main.gguf")
	require.NoError(t, os.WriteFile(a.Path, []byte("truncated"), 0644))

	require.NoError(t, f.EnsureAsset(context.Background(), a))

	data, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
	assert.Equal(t, int64(1), hits.Load())
}

func TestEnsureAssetMissingOriginIsNotRetried(t *testing.T) {
	srv, hits := newTestServer(t)
	dir := t.TempDir()
	f := NewFetcher(status.NewTracker(false), zerolog.Nop())

	a := testAsset(srv, dir, "missing.gguf")
	err := f.EnsureAsset(context.Background(), a)

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeAssetDownloadFailed))
	assert.Contains(t, err.Error(), "main")
	assert.Equal(t, int64(1), hits.Load(), "a 404 is permanent and must not be retried")
}

func TestEnsureAllReportsProgressAndReady(t *testing.T) {
	srv, _ := newTestServer(t)
	dir := t.TempDir()
	tracker := status.NewTracker(false)

	var phases []status.Phase
	tracker.Subscribe(func(s status.Status) {
		phases = append(phases, s.Phase)
	})

	f := NewFetcher(tracker, zerolog.Nop())
	assets := []Asset{
		testAsset(srv, dir, "main.gguf"),
		{
			Label: "projector",
			URL:   srv.URL + "/projector.gguf",
			Path:  filepath.Join(dir, "projector.gguf"),
			Size:  int64(len(payload)),
		},
	}

	require.NoError(t, f.EnsureAll(context.Background(), assets))

	require.NotEmpty(t, phases)
	assert.Equal(t, status.PhaseDownloading, phases[0])
	assert.Equal(t, status.PhaseReady, phases[len(phases)-1])
	assert.Equal(t, status.PhaseReady, tracker.Current().Phase)
	assert.Equal(t, 100, tracker.Current().Progress)
}

func TestEnsureAllStopsAtFirstFailure(t *testing.T) {
	srv, hits := newTestServer(t)
	dir := t.TempDir()
	tracker := status.NewTracker(false)
	f := NewFetcher(tracker, zerolog.Nop())

	assets := []Asset{
		{Label: "main", URL: srv.URL + "/missing.gguf", Path: filepath.Join(dir, "main.gguf"), Size: 10},
		testAsset(srv, dir, "projector.gguf"),
	}

	err := f.EnsureAll(context.Background(), assets)
	require.Error(t, err)

	assert.Equal(t, int64(1), hits.Load(), "the projector must not be attempted after the main asset fails")
	assert.NotEqual(t, status.PhaseReady, tracker.Current().Phase)
	_, statErr := os.Stat(filepath.Join(dir, "projector.gguf"))
	assert.True(t, os.IsNotExist(statErr))
}
