// Package asset downloads and verifies the binary files required by
// the local inference engine.
package asset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/medsage-ai/medsage/internal/errors"
	"github.com/medsage-ai/medsage/internal/status"
)

// Asset is one downloadable file required for inference.
// Assets are declared statically at service construction and are only
// verified and (re)populated at runtime, never created or destroyed.
type Asset struct {
	// Label identifies the asset in status updates and error messages.
	Label string

	// URL is the HTTPS origin of the file.
	URL string

	// Path is the destination on local storage.
	Path string

	// Size is the expected byte size. A file on disk is valid only if
	// its size matches exactly; any mismatch forces re-acquisition.
	Size int64
}

// Fetcher ensures assets are present and byte-exact on local storage.
type Fetcher struct {
	client  *http.Client
	tracker *status.Tracker
	policy  *errors.Policy
	log     zerolog.Logger
}

// NewFetcher creates a fetcher reporting progress through the tracker.
// The HTTP client carries no overall timeout: asset transfers run for
// minutes and are bounded by the request context instead.
func NewFetcher(tracker *status.Tracker, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		client:  &http.Client{},
		tracker: tracker,
		policy:  errors.DownloadPolicy(),
		log:     log.With().Str("component", "asset").Logger(),
	}
}

// EnsureAsset makes sure one asset is present with the exact expected
// size. A valid file on disk returns immediately with no network I/O
// and no status change. A size mismatch deletes the file and
// re-acquires it. Transfer failures are retried under the download
// policy; the final error names the asset label.
func (f *Fetcher) EnsureAsset(ctx context.Context, a Asset) error {
	info, err := os.Stat(a.Path)
	if err == nil {
		if info.Size() == a.Size {
			f.log.Debug().Str("asset", a.Label).Msg("asset already present and verified")
			return nil
		}
		f.log.Warn().
			Str("asset", a.Label).
			Int64("size", info.Size()).
			Int64("expected", a.Size).
			Msg("asset size mismatch, re-acquiring")
		if err := os.Remove(a.Path); err != nil {
			return errors.Wrap(err, errors.CodeFileWriteFailed,
				fmt.Sprintf("failed to remove stale %s asset", a.Label), errors.CategorySystem)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, errors.CodeFileNotFound,
			fmt.Sprintf("failed to inspect %s asset", a.Label), errors.CategorySystem)
	}

	err = errors.Do(ctx, f.policy, func() error {
		return f.download(ctx, a)
	})
	if err != nil {
		return errors.NewBuilder(errors.CodeAssetDownloadFailed,
			fmt.Sprintf("failed to download %s asset", a.Label)).
			Temporary().
			Wrap(err).
			WithContext("url", a.URL).
			WithSuggestion("Check network connectivity and retry the download").
			Build()
	}
	return nil
}

// EnsureAll sequentially ensures every asset, main weights first. The
// first failure stops the sequence; later assets are not attempted.
// When every asset is verified the tracker moves to ready.
func (f *Fetcher) EnsureAll(ctx context.Context, assets []Asset) error {
	for _, a := range assets {
		if err := f.EnsureAsset(ctx, a); err != nil {
			return err
		}
	}
	f.tracker.Ready()
	return nil
}

// download streams the asset to <path>.part and renames it into place,
// so an interrupted transfer never leaves a wrongly-sized file at the
// destination. Re-running converges to a correctly sized file.
func (f *Fetcher) download(ctx context.Context, a Asset) error {
	f.log.Info().Str("asset", a.Label).Str("url", a.URL).Msg("downloading asset")
	f.tracker.Downloading(a.Label, 0)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeNetworkUnavailable, "failed to create request", errors.CategoryPermanent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodeNetworkUnavailable, "transfer failed", errors.CategoryTemporary)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Proceed
	case resp.StatusCode == http.StatusNotFound:
		return errors.Permanent(errors.CodeAssetDownloadFailed,
			fmt.Sprintf("asset origin returned 404 for %s", a.Label))
	case resp.StatusCode >= 500:
		return errors.Temporary(errors.CodeNetworkUnavailable,
			fmt.Sprintf("asset origin unavailable: %s", resp.Status))
	default:
		return errors.Temporary(errors.CodeAssetDownloadFailed,
			fmt.Sprintf("unexpected response: %s", resp.Status))
	}

	if err := os.MkdirAll(filepath.Dir(a.Path), 0755); err != nil {
		return errors.Wrap(err, errors.CodeFileWriteFailed, "failed to create asset directory", errors.CategorySystem)
	}

	partPath := a.Path + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return errors.Wrap(err, errors.CodeFileWriteFailed, "failed to create asset file", errors.CategorySystem)
	}

	written, err := io.Copy(out, f.progressReader(resp.Body, a))
	closeErr := out.Close()
	if err != nil {
		os.Remove(partPath)
		return errors.Wrap(err, errors.CodeNetworkUnavailable, "transfer interrupted", errors.CategoryTemporary)
	}
	if closeErr != nil {
		os.Remove(partPath)
		return errors.Wrap(closeErr, errors.CodeFileWriteFailed, "failed to flush asset file", errors.CategorySystem)
	}

	if written != a.Size {
		os.Remove(partPath)
		return errors.Temporary(errors.CodeAssetIntegrity,
			fmt.Sprintf("%s transfer yielded %d bytes, expected %d", a.Label, written, a.Size))
	}

	if err := os.Rename(partPath, a.Path); err != nil {
		os.Remove(partPath)
		return errors.Wrap(err, errors.CodeFileWriteFailed, "failed to finalize asset file", errors.CategorySystem)
	}

	f.log.Info().Str("asset", a.Label).Int64("bytes", written).Msg("asset downloaded")
	return nil
}

// progressReader wraps the response body, pushing integer-percent
// progress updates through the tracker as bytes arrive.
func (f *Fetcher) progressReader(r io.Reader, a Asset) io.Reader {
	return &progressReader{
		inner:   r,
		asset:   a,
		tracker: f.tracker,
		lastPct: -1,
	}
}

type progressReader struct {
	inner   io.Reader
	asset   Asset
	tracker *status.Tracker
	written int64
	lastPct int
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.inner.Read(buf)
	p.written += int64(n)
	if p.asset.Size > 0 {
		pct := int(p.written * 100 / p.asset.Size)
		if pct > 100 {
			pct = 100
		}
		if pct != p.lastPct {
			p.lastPct = pct
			p.tracker.Downloading(p.asset.Label, pct)
		}
	}
	return n, err
}
