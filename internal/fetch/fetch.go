/*
Package fetch downloads disclosure documents into a run-scoped temporary
directory and converts them to per-page line sequences via pdftotext.
*/
package fetch

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 4 * time.Second
	defaultMaxBackoff     = 10 * time.Second
)

// Fetcher downloads filing documents. Retries are bounded with exponential
// backoff; a download that exhausts every attempt surfaces as a transient
// failure and the filing stays queued.
type Fetcher struct {
	client         *http.Client
	tempDir        string
	userAgent      string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	log            zerolog.Logger
}

// New creates a Fetcher with a 30 second per-request timeout.
func New(log zerolog.Logger) *Fetcher {
	return &Fetcher{
		client:         &http.Client{Timeout: 30 * time.Second},
		userAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		log:            log,
	}
}

// CreateTempDir makes the run-scoped download directory.
func (f *Fetcher) CreateTempDir() (string, error) {
	if f.tempDir != "" {
		return f.tempDir, nil
	}
	dir, err := os.MkdirTemp("", "congress_pdfs_")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	f.tempDir = dir
	return dir, nil
}

// Cleanup removes the temp directory and everything downloaded into it.
// Safe to call on every exit path, including before any download happened.
func (f *Fetcher) Cleanup() {
	if f.tempDir == "" {
		return
	}
	if err := os.RemoveAll(f.tempDir); err != nil {
		f.log.Warn().Str("dir", f.tempDir).Err(err).Msg("failed to remove temp directory")
	}
	f.tempDir = ""
}

// Download fetches pdfURL into the temp directory under filename, retrying
// with backoff on network errors and non-OK statuses.
func (f *Fetcher) Download(pdfURL, filename string) (string, error) {
	if _, err := f.CreateTempDir(); err != nil {
		return "", err
	}
	path := filepath.Join(f.tempDir, filename)

	var lastErr error
	backoff := f.initialBackoff
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if attempt > 1 {
			f.log.Warn().Str("pdf_url", pdfURL).Int("attempt", attempt).Err(lastErr).Msg("retrying download")
			time.Sleep(backoff)
			backoff *= 2
			if backoff > f.maxBackoff {
				backoff = f.maxBackoff
			}
		}

		lastErr = f.downloadOnce(pdfURL, path)
		if lastErr == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("failed to download %s after %d attempts: %w", pdfURL, f.maxAttempts, lastErr)
}

func (f *Fetcher) downloadOnce(pdfURL, path string) error {
	req, err := http.NewRequest(http.MethodGet, pdfURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", pdfURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-OK status code %d from %s", resp.StatusCode, pdfURL)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
