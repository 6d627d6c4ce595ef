// Package fetcher downloads the county's published documents and reads the
// spreadsheet inputs of the pipeline.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote documents.
type Fetcher interface {
	// Download returns the response body; the caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile writes the body to path and returns the bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
