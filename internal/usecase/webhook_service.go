package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vellum-stream/pipeline/internal/domain/model"
	"github.com/vellum-stream/pipeline/internal/domain/repository"
	"github.com/vellum-stream/pipeline/internal/infrastructure/metrics"
)

// webhookTimeout bounds a single delivery attempt. A hung receiver must
// never hold up the worker that dispatched it.
const webhookTimeout = 10 * time.Second

// webhookPayload is the POST body delivered to callbackUrl. ThumbnailURL
// and MP4URL are omitted when empty; Error is omitted on success.
type webhookPayload struct {
	VideoID      string `json:"videoId"`
	Filename     string `json:"filename"`
	Status       string `json:"status"`
	StreamURL    string `json:"streamUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	MP4URL       string `json:"mp4Url,omitempty"`
	Error        string `json:"error,omitempty"`
}

// WebhookDispatcher delivers the completion/failure notification for a
// VideoRecord and applies the outcome rules from §4.9 to it.
type WebhookDispatcher interface {
	// Dispatch sends one attempt for record and persists the outcome.
	// No-op if record.CallbackURL is empty.
	Dispatch(ctx context.Context, record *model.VideoRecord) error
}

type webhookDispatcher struct {
	repo       repository.VideoRepository
	httpClient *http.Client
}

// NewWebhookDispatcher constructs a WebhookDispatcher.
func NewWebhookDispatcher(repo repository.VideoRepository) WebhookDispatcher {
	return &webhookDispatcher{
		repo:       repo,
		httpClient: &http.Client{Timeout: webhookTimeout},
	}
}

// Dispatch sends a single-attempt POST to record.CallbackURL and records
// the outcome per §4.9's rules: HTTP 200 is terminal success; anything
// else increments callbackRetryCount and, on exhausting
// MAX_CALLBACK_ATTEMPTS, marks the callback terminally failed. A second,
// in-process retry loop is deliberately not used here — the retry budget
// is the persisted callbackRetryCount, driven externally by the sweeper,
// not a client-level backoff that would double-count attempts.
func (d *webhookDispatcher) Dispatch(ctx context.Context, record *model.VideoRecord) error {
	if record.CallbackURL == "" {
		return nil
	}

	payload := buildWebhookPayload(record)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	success := d.post(ctx, record.CallbackURL, body)
	record.RecordCallbackAttempt(success)

	if err := d.repo.Update(ctx, record); err != nil {
		return fmt.Errorf("persist callback attempt: %w", err)
	}
	return nil
}

// post returns true iff the endpoint answered HTTP 200. Any transport
// error or non-200 response is logged and treated as a failed attempt;
// the error itself is never returned, since a webhook failure must never
// fail the job that triggered it.
func (d *webhookDispatcher) post(ctx context.Context, url string, body []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Warn("webhook request construction failed", "url", url, "error", err)
		metrics.WebhookAttemptsTotal.WithLabelValues(metrics.WebhookFailed).Inc()
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		slog.Warn("webhook delivery failed", "url", url, "error", err)
		metrics.WebhookAttemptsTotal.WithLabelValues(metrics.WebhookFailed).Inc()
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("webhook delivery rejected", "url", url, "status", resp.StatusCode)
		metrics.WebhookAttemptsTotal.WithLabelValues(metrics.WebhookRejected).Inc()
		return false
	}
	metrics.WebhookAttemptsTotal.WithLabelValues(metrics.WebhookDelivered).Inc()
	return true
}

func buildWebhookPayload(record *model.VideoRecord) webhookPayload {
	if record.IsFailed() {
		return webhookPayload{
			VideoID:  record.ID,
			Filename: record.Filename,
			Status:   string(model.StatusFailed),
			Error:    record.Error,
		}
	}
	return webhookPayload{
		VideoID:      record.ID,
		Filename:     record.Filename,
		Status:       string(model.StatusCompleted),
		StreamURL:    record.StreamURL,
		ThumbnailURL: record.ThumbnailURL,
		MP4URL:       record.MP4URL,
	}
}

// WebhookSweeperConfig configures the periodic redispatch loop.
type WebhookSweeperConfig struct {
	Interval time.Duration
}

// WebhookSweeper periodically re-dispatches webhooks for completed jobs
// whose callback is still pending, per §4.9's "periodic sweeper" clause.
// It runs on its own ticker, independent of the job-consumer goroutine.
type WebhookSweeper struct {
	repo       repository.VideoRepository
	dispatcher WebhookDispatcher
	cfg        WebhookSweeperConfig
}

// NewWebhookSweeper constructs a WebhookSweeper.
func NewWebhookSweeper(repo repository.VideoRepository, dispatcher WebhookDispatcher, cfg WebhookSweeperConfig) *WebhookSweeper {
	return &WebhookSweeper{repo: repo, dispatcher: dispatcher, cfg: cfg}
}

// Run blocks, sweeping on cfg.Interval until ctx is cancelled.
func (s *WebhookSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *WebhookSweeper) sweepOnce(ctx context.Context) {
	records, err := s.repo.ListPendingCallbacks(ctx)
	if err != nil {
		slog.Error("webhook sweep: list pending callbacks failed", "error", err)
		return
	}

	for _, record := range records {
		if err := s.dispatcher.Dispatch(ctx, record); err != nil {
			slog.Warn("webhook sweep: dispatch failed", "upload_id", record.ID, "error", err)
		}
	}
}
