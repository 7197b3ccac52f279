package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/conveyorhq/conveyor/config"
	"github.com/conveyorhq/conveyor/internal/broker"
	"github.com/conveyorhq/conveyor/internal/core"
	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
)

// WebhookWorkerOptions groups dependencies for WebhookWorker.
type WebhookWorkerOptions struct {
	Webhooks core.WebhookRepository
	Users    core.UserRepository
	Logger   *slog.Logger
}

// WebhookWorker consumes webhook-delivery jobs and POSTs each event to the
// owner's matching endpoints. Individual endpoint failures are logged; the
// delivery job itself fails only when every target fails, which lets the
// broker-level retry take another pass.
type WebhookWorker struct {
	webhooks core.WebhookRepository
	users    core.UserRepository
	cfg      config.WebhookDeliveryConfig
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewWebhookWorker creates a new WebhookWorker.
func NewWebhookWorker(opts WebhookWorkerOptions, cfg config.WebhookDeliveryConfig) (*WebhookWorker, error) {
	if opts.Webhooks == nil {
		return nil, errors.New("webhook repository is required")
	}
	if opts.Users == nil {
		return nil, errors.New("user repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	return &WebhookWorker{
		webhooks: opts.Webhooks,
		users:    opts.Users,
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  limiter,
		logger:   logger.With("component", "webhook_worker"),
	}, nil
}

// Handler returns the broker handler for the webhook queue.
func (w *WebhookWorker) Handler() broker.Handler {
	return func(ctx context.Context, job *broker.Job) (any, error) {
		return w.process(ctx, job)
	}
}

// deliveryItem is the webhook queue payload shape the demultiplexer enqueues.
type deliveryItem struct {
	ID        string                 `json:"id"`
	JobName   string                 `json:"jobname"`
	UserID    uint64                 `json:"userId"`
	EventType model.WebhookEventType `json:"eventType"`
}

// process resolves targets for one delivery item and POSTs to each.
func (w *WebhookWorker) process(ctx context.Context, job *broker.Job) ([]bool, error) {
	raw, err := json.Marshal(job.Data)
	if err != nil {
		return nil, apperrors.Validationf("delivery item is not serializable")
	}
	var item deliveryItem
	if err := json.Unmarshal(raw, &item); err != nil || item.UserID == 0 || !item.EventType.Valid() {
		return nil, apperrors.Validationf("malformed delivery item")
	}

	targets, err := w.resolveTargets(ctx, &item)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return []bool{}, nil
	}

	results := make([]bool, len(targets))
	failures := 0
	for i, target := range targets {
		if derr := w.deliver(ctx, target, raw); derr != nil {
			w.logger.Warn("webhook delivery failed",
				"url", target,
				"job_id", item.ID,
				"event_type", item.EventType,
				"error", derr,
			)
			failures++
			continue
		}
		results[i] = true
	}

	if failures == len(targets) {
		return results, fmt.Errorf("all %d webhook deliveries failed", len(targets))
	}
	return results, nil
}

// resolveTargets lists the owner's matching endpoints. Users without
// registered webhooks still get completion events at their legacy account
// URL, if one is set.
func (w *WebhookWorker) resolveTargets(ctx context.Context, item *deliveryItem) ([]string, error) {
	hooks, err := w.webhooks.ListActiveForEvent(ctx, item.UserID, item.EventType)
	if err != nil {
		return nil, fmt.Errorf("resolve webhooks: %w", err)
	}

	targets := make([]string, 0, len(hooks))
	for _, hook := range hooks {
		targets = append(targets, hook.URL)
	}

	if len(targets) == 0 && item.EventType == model.WebhookEventCompleted {
		user, uerr := w.users.GetByID(ctx, item.UserID)
		if uerr == nil && user.WebhookURL != nil && *user.WebhookURL != "" {
			targets = append(targets, *user.WebhookURL)
		}
	}
	return targets, nil
}

// deliver POSTs the payload to one endpoint with bounded attempts and
// exponential backoff between them.
func (w *WebhookWorker) deliver(ctx context.Context, url string, payload []byte) error {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Second << (attempt - 2)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		lastErr = w.post(ctx, url, payload)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("after %d attempts: %w", w.cfg.MaxAttempts, lastErr)
}

func (w *WebhookWorker) post(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}
