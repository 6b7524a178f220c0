/*
Package notify delivers run results: push notifications via the Bark API,
email reports over SMTP, and a console summary. Delivery failures are logged
and surfaced to the caller but never affect stored state.
*/
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxContentLength = 500

// Request is one notification to deliver.
type Request struct {
	Title    string
	Body     string
	Subtitle string
	URL      string
}

// Response reports the outcome of a delivery attempt.
type Response struct {
	Success   bool
	Error     string
	Timestamp string
}

// BarkConfig holds the push notification settings.
type BarkConfig struct {
	APIKey  string
	BaseURL string
	Icon    string
}

// Enabled reports whether push delivery is configured.
func (c BarkConfig) Enabled() bool { return c.APIKey != "" }

// BarkClient sends push notifications through a Bark server.
type BarkClient struct {
	cfg        BarkConfig
	client     *http.Client
	maxRetries int
	log        zerolog.Logger
}

// NewBarkClient creates a push client with bounded retries.
func NewBarkClient(cfg BarkConfig, log zerolog.Logger) *BarkClient {
	return &BarkClient{
		cfg:        cfg,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		log:        log,
	}
}

// Send delivers one notification, retrying with exponential backoff.
func (c *BarkClient) Send(req Request) Response {
	timestamp := time.Now().Format("2006-01-02T15:04:05")

	if !c.cfg.Enabled() {
		return Response{Success: false, Error: "bark API key not configured", Timestamp: timestamp}
	}

	payload := map[string]string{
		"title": sanitizeContent(req.Title),
		"body":  sanitizeContent(req.Body),
	}
	if req.Subtitle != "" {
		payload["subtitle"] = sanitizeContent(req.Subtitle)
	}
	if req.URL != "" {
		payload["url"] = req.URL
	}
	if c.cfg.Icon != "" {
		payload["icon"] = c.cfg.Icon
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(1<<(attempt-1)) * time.Second)
		}

		lastErr = c.post(payload)
		if lastErr == nil {
			c.log.Info().Str("title", req.Title).Msg("notification sent")
			return Response{Success: true, Timestamp: timestamp}
		}
		c.log.Warn().Int("attempt", attempt+1).Err(lastErr).Msg("notification attempt failed")
	}

	return Response{Success: false, Error: lastErr.Error(), Timestamp: timestamp}
}

func (c *BarkClient) post(payload map[string]string) error {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + c.cfg.APIKey

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	resp, err := c.client.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// sanitizeContent normalizes line endings and truncates oversized content.
func sanitizeContent(content string) string {
	if content == "" {
		return ""
	}
	sanitized := strings.ReplaceAll(content, "\r\n", "\n")
	sanitized = strings.ReplaceAll(sanitized, "\r", "\n")
	if len(sanitized) > maxContentLength {
		sanitized = sanitized[:maxContentLength-3] + "..."
	}
	return sanitized
}
