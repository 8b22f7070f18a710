package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"media-optimizer/internal/database"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/metrics"

	"github.com/google/uuid"
)

var (
	// ErrExternalDisabled means external processing is turned off in
	// configuration; callers fall back to local conversion.
	ErrExternalDisabled = errors.New("external processing is disabled")

	// ErrAccountRequired means no account id is configured, so jobs
	// cannot be attributed and must not be submitted.
	ErrAccountRequired = errors.New("account_id_required: no account id configured")
)

// Config holds the external processing service settings.
type Config struct {
	Enabled bool
	// BaseURL is the root of the remote conversion service API.
	BaseURL string
	// AccountID is the UUID identifying this installation to the
	// remote service; completion webhooks must echo it.
	AccountID string
	// WebhookURL is the absolute URL the remote service calls back on.
	WebhookURL string
}

// Validate checks the configuration is internally consistent. A
// disabled config is always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.BaseURL == "" {
		return fmt.Errorf("external processing enabled but EXTERNAL_BASE_URL is empty")
	}
	if c.AccountID != "" {
		if _, err := uuid.Parse(c.AccountID); err != nil {
			return fmt.Errorf("EXTERNAL_ACCOUNT_ID is not a valid UUID: %w", err)
		}
	}
	if c.WebhookURL != "" {
		if u, err := url.Parse(c.WebhookURL); err != nil || !u.IsAbs() {
			return fmt.Errorf("WEBHOOK_URL must be an absolute URL, got %q", c.WebhookURL)
		}
	}
	return nil
}

// Client submits conversion jobs to the remote processing service.
// Completion arrives asynchronously through the webhook reconciler;
// Submit only covers the first phase of the protocol.
type Client struct {
	config     Config
	httpClient *http.Client
	db         *database.Database
}

// NewClient creates a client for the remote conversion service.
func NewClient(config Config, db *database.Database) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		db: db,
	}
}

// Enabled reports whether external processing can be used at all.
func (c *Client) Enabled() bool {
	return c.config.Enabled
}

// submissionRequest is the outbound job submission body.
type submissionRequest struct {
	AccountID    string   `json:"account_id"`
	AttachmentID string   `json:"attachment_id"`
	PullFileURL  string   `json:"pull_file_url"`
	WebhookURL   string   `json:"webhook_url"`
	MimeType     string   `json:"mimetype"`
	Operations   []string `json:"operations"`
}

// submissionResponse is the remote service's reply.
type submissionResponse struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Submit asks the remote service to convert one asset. sourceURL must
// be an absolute, durable origin URL the service can pull from; CDN
// URLs churn and are refused upstream. On acceptance a submitted job
// row is recorded, superseding any prior job for the asset.
func (c *Client) Submit(ctx context.Context, assetID int64, sourceURL, mimeType string, operations []string) error {
	if !c.config.Enabled {
		return ErrExternalDisabled
	}
	if c.config.AccountID == "" {
		metrics.ExternalSubmissionsTotal.WithLabelValues("refused").Inc()
		return ErrAccountRequired
	}

	parsed, err := url.Parse(sourceURL)
	if err != nil || !parsed.IsAbs() {
		metrics.ExternalSubmissionsTotal.WithLabelValues("refused").Inc()
		return fmt.Errorf("source url must be absolute, got %q", sourceURL)
	}

	body, err := json.Marshal(submissionRequest{
		AccountID:    c.config.AccountID,
		AttachmentID: strconv.FormatInt(assetID, 10),
		PullFileURL:  sourceURL,
		WebhookURL:   c.config.WebhookURL,
		MimeType:     mimeType,
		Operations:   operations,
	})
	if err != nil {
		return fmt.Errorf("encoding submission: %w", err)
	}

	resp, err := c.post(ctx, c.endpoint("/jobs"), body)
	if err != nil {
		metrics.ExternalSubmissionsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("submitting job for asset %d: %w", assetID, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ExternalSubmissionsTotal.WithLabelValues("refused").Inc()
		var reply submissionResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&reply); decodeErr == nil && reply.Error != "" {
			return fmt.Errorf("remote service refused asset %d: %s (HTTP %d)", assetID, reply.Error, resp.StatusCode)
		}
		return fmt.Errorf("remote service refused asset %d: HTTP %d", assetID, resp.StatusCode)
	}

	if err := c.db.UpsertExternalJob(ctx, assetID, c.config.AccountID); err != nil {
		return fmt.Errorf("recording submission for asset %d: %w", assetID, err)
	}

	metrics.ExternalSubmissionsTotal.WithLabelValues("accepted").Inc()
	logging.Info("Submitted asset %d for external conversion (%s)", assetID, mimeType)
	return nil
}

// Delete tells the remote service to drop its artifacts for a deleted
// asset. Best effort: the local delete already happened and a remote
// failure should not resurrect the asset, so errors are logged and
// swallowed.
func (c *Client) Delete(ctx context.Context, assetID int64) {
	if !c.config.Enabled || c.config.AccountID == "" {
		return
	}

	body, err := json.Marshal(map[string]string{
		"account_id":    c.config.AccountID,
		"attachment_id": strconv.FormatInt(assetID, 10),
	})
	if err != nil {
		logging.Warn("Failed to encode remote delete for asset %d: %v", assetID, err)
		return
	}

	resp, err := c.post(ctx, c.endpoint("/jobs/delete"), body)
	if err != nil {
		logging.Warn("Remote delete for asset %d failed: %v", assetID, err)
		return
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.Warn("Remote delete for asset %d returned HTTP %d", assetID, resp.StatusCode)
		return
	}

	if err := c.db.DeleteExternalJob(ctx, assetID); err != nil {
		logging.Warn("Failed to drop job row for asset %d: %v", assetID, err)
	}
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

func (c *Client) endpoint(path string) string {
	base, err := url.JoinPath(c.config.BaseURL, path)
	if err != nil {
		// Fall back to naive concatenation; Validate already checked
		// the base URL at startup.
		return c.config.BaseURL + path
	}
	return base
}

// drainAndClose consumes the rest of a response body so the underlying
// connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	_ = body.Close()
}
