package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Client posts merged records to the backend with at-least-once delivery.
// Records are keyed by fingerprint id and the backend upserts, so a retried
// or repeated submission is harmless.
type Client struct {
	endpoint   string
	httpClient *http.Client
	policy     *RetryPolicy
	logger     arbor.ILogger
}

// NewClient creates a submission client from configuration
func NewClient(config *common.SubmissionConfig, logger arbor.ILogger) interfaces.Submitter {
	policy := NewRetryPolicy()
	if config.MaxAttempts > 0 {
		policy.MaxAttempts = config.MaxAttempts
	}
	if config.InitialBackoff > 0 {
		policy.InitialBackoff = config.InitialBackoff
	}

	return &Client{
		endpoint:   strings.TrimRight(config.Endpoint, "/"),
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		policy:     policy,
		logger:     logger,
	}
}

// Submit delivers a record to the backend, retrying per policy. The returned
// error reports exhaustion only; callers treat it as non-fatal to the run.
func (c *Client) Submit(ctx context.Context, record *models.JobRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	url := c.endpoint + "/api/jobs"

	err = c.policy.Execute(ctx, c.logger, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if isTransientError(err) {
				c.logger.Debug().Err(err).Str("record_id", record.ID).Msg("Transient submission error")
			}
			return fmt.Errorf("submission request failed: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("backend returned status %d", resp.StatusCode)
		}
		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to submit record %s: %w", record.ID, err)
	}

	c.logger.Info().
		Str("record_id", record.ID).
		Str("title", record.Title).
		Msg("Record submitted to backend")

	return nil
}

// FetchPending returns backend records whose downstream flag is unset,
// filtered client-side
func (c *Client) FetchPending(ctx context.Context) ([]*models.JobRecord, error) {
	url := c.endpoint + "/api/jobs"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	var all []*models.JobRecord
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, fmt.Errorf("failed to decode record list: %w", err)
	}

	pending := make([]*models.JobRecord, 0, len(all))
	for _, record := range all {
		if !record.Built {
			pending = append(pending, record)
		}
	}

	c.logger.Debug().
		Int("total", len(all)).
		Int("pending", len(pending)).
		Msg("Fetched backend records for downstream phase")

	return pending, nil
}
