package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote resources.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// FileRetriever materializes a remote resource at a local path, reusing the
// local copy when one already exists.
type FileRetriever interface {
	Fetch(ctx context.Context, url, destPath string) error
}
