package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
)

const (
	// FetchTimeout bounds a remote CSV download
	FetchTimeout = 30 * time.Second

	maxFetchBytes = 32 << 20
)

// ErrFetchFailed is returned when a remote CSV cannot be downloaded
var ErrFetchFailed = apperror.Validation("CSV_FETCH_FAILED", "Failed to fetch CSV")

// Fetcher downloads CSV documents
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches over HTTP(S)
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: FetchTimeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", ErrFetchFailed.WithMessage(fmt.Sprintf("Failed to fetch CSV: %v", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", ErrFetchFailed.WithMessage(fmt.Sprintf("Failed to fetch CSV: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", ErrFetchFailed.WithMessage(fmt.Sprintf("Failed to fetch CSV: status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", ErrFetchFailed.WithMessage(fmt.Sprintf("Failed to fetch CSV: %v", err))
	}
	return string(body), nil
}
