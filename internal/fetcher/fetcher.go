// Package fetcher downloads remote feed files with retry and rate limiting.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path, removing
	// any partial file on failure. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// HeadETag performs a HEAD request and returns the ETag header value.
	HeadETag(ctx context.Context, url string) (string, error)

	// DownloadIfChanged fetches the URL into path unless the remote ETag
	// matches the one recorded at etagPath and path already exists. Returns
	// bytes written and whether a download happened.
	DownloadIfChanged(ctx context.Context, url string, path string, etagPath string) (int64, bool, error)
}
