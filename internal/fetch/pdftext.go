package fetch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const pdfProcessingTimeout = 60 * time.Second

// ExtractPages converts a downloaded PDF into per-page line sequences using
// the pdftotext binary. pdftotext separates pages with form feeds, which map
// directly onto the extractor's page model.
func ExtractPages(pdfPath string) ([][]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pdfProcessingTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "pdftotext", "-raw", pdfPath, "-")

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("pdf text extraction timed out after %s", pdfProcessingTimeout)
		}
		errMsg := strings.TrimSpace(stderr.String())
		if strings.Contains(errMsg, "no such file or directory") || strings.Contains(err.Error(), "executable file not found") {
			return nil, fmt.Errorf("pdftotext binary not found; ensure poppler-utils is installed: %w", err)
		}
		return nil, fmt.Errorf("pdftotext failed: %v (stderr: %s)", err, errMsg)
	}

	text := out.String()
	if strings.TrimSpace(text) == "" {
		// Image-based or protected files produce no text and will never
		// succeed; phrase the error so it classifies as permanent.
		return nil, fmt.Errorf("invalid pdf: extracted empty text, file may be image-based or protected")
	}

	var pages [][]string
	for _, pageText := range strings.Split(text, "\f") {
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		pages = append(pages, strings.Split(pageText, "\n"))
	}
	return pages, nil
}
