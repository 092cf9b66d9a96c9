package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetch outcomes reported to an Observer.
const (
	OutcomeCacheHit   = "cache_hit"
	OutcomeDownloaded = "downloaded"
	OutcomeFailed     = "failed"
)

// Observer receives one outcome per Fetch call.
type Observer interface {
	ObserveFetch(outcome string)
}

// FetchError reports a resource that could not be retrieved. Callers skip the
// unit and continue with the batch.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retriever implements FileRetriever on top of a Fetcher.
type Retriever struct {
	fetcher  Fetcher
	observer Observer
}

// NewRetriever wraps f. observer may be nil.
func NewRetriever(f Fetcher, observer Observer) *Retriever {
	return &Retriever{fetcher: f, observer: observer}
}

// Fetch downloads url to destPath unless a non-empty file is already there.
// Partial downloads are written beside destPath and renamed on success.
func (r *Retriever) Fetch(ctx context.Context, rawURL, destPath string) error {
	log := zap.L().With(
		zap.String("component", "fetcher.retriever"),
		zap.String("url", RedactURL(rawURL)),
		zap.String("path", destPath),
	)

	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		log.Debug("cache hit, skipping download")
		r.observe(OutcomeCacheHit)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		r.observe(OutcomeFailed)
		return &FetchError{URL: RedactURL(rawURL), Err: eris.Wrap(err, "create dest dir")}
	}

	part := destPath + ".part"
	n, err := r.fetcher.DownloadToFile(ctx, rawURL, part)
	if err == nil && n == 0 {
		err = eris.New("empty response body")
	}
	if err != nil {
		_ = os.Remove(part)
		r.observe(OutcomeFailed)
		return &FetchError{URL: RedactURL(rawURL), Err: err}
	}

	if err := os.Rename(part, destPath); err != nil {
		_ = os.Remove(part)
		r.observe(OutcomeFailed)
		return &FetchError{URL: RedactURL(rawURL), Err: eris.Wrap(err, "finalize download")}
	}

	log.Info("downloaded", zap.Int64("bytes", n))
	r.observe(OutcomeDownloaded)
	return nil
}

func (r *Retriever) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveFetch(outcome)
	}
}

// RedactURL blanks the Census API key in a URL so it can be logged.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Get("key") == "" {
		return rawURL
	}
	q.Set("key", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}
