package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"ingestion-service/internal/events"
	"ingestion-service/internal/models"
)

// SubscriptionSource resolves the enabled subscriptions for an event type
type SubscriptionSource interface {
	ListEnabledForEvent(ctx context.Context, eventType string) ([]models.Webhook, error)
}

// Config carries the dispatcher tunables
type Config struct {
	Workers        int           // Delivery pool size, independent of ingest concurrency
	RequestTimeout time.Duration // Per-attempt HTTP timeout
	DeliveryBudget time.Duration // Total time budget across all attempts
	Retry          RetryConfig
}

// DefaultConfig returns the dispatcher defaults
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		RequestTimeout: 10 * time.Second,
		DeliveryBudget: 2 * time.Minute,
		Retry:          DefaultRetryConfig(),
	}
}

type delivery struct {
	webhook models.Webhook
	event   events.Event
}

// Dispatcher consumes lifecycle events from the bus and performs signed HTTP
// deliveries to matching subscriptions. Deliveries run on their own worker
// pool with at-least-once semantics; the delivery header carries a dedup key.
// One subscriber's failure never affects another's delivery or the ingestion
// task that produced the event.
type Dispatcher struct {
	source SubscriptionSource
	bus    *events.Bus
	client *http.Client
	cfg    Config
	logger *logrus.Entry

	jobs chan delivery
	wg   sync.WaitGroup
}

// NewDispatcher creates a dispatcher reading from the given bus
func NewDispatcher(source SubscriptionSource, bus *events.Bus, cfg Config, logger *logrus.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if cfg.DeliveryBudget <= 0 {
		cfg.DeliveryBudget = DefaultConfig().DeliveryBudget
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Dispatcher{
		source: source,
		bus:    bus,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:    cfg,
		logger: logger.WithField("component", "webhook-dispatcher"),
		jobs:   make(chan delivery, cfg.Workers*8),
	}
}

// Start launches the event consumer and the delivery workers. It returns
// immediately; Stop waits for in-flight deliveries to drain.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	d.wg.Add(1)
	go d.consume(ctx)
}

// Stop closes the job queue and waits for workers to finish
func (d *Dispatcher) Stop() {
	d.wg.Wait()
}

// consume fans lifecycle events out to per-webhook delivery jobs
func (d *Dispatcher) consume(ctx context.Context) {
	defer d.wg.Done()
	defer close(d.jobs)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.bus.Events():
			if !ok {
				return
			}
			d.fanOut(ctx, event)
		}
	}
}

func (d *Dispatcher) fanOut(ctx context.Context, event events.Event) {
	webhooks, err := d.source.ListEnabledForEvent(ctx, event.Type)
	if err != nil {
		d.logger.WithField("eventType", event.Type).WithError(err).Error("Failed to load webhook subscriptions")
		return
	}

	for _, webhook := range webhooks {
		select {
		case d.jobs <- delivery{webhook: webhook, event: event}:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for job := range d.jobs {
		d.deliver(ctx, job.webhook, job.event)
	}
}

// deliver POSTs the event to one subscriber, retrying with exponential
// backoff up to the attempt ceiling within the total delivery budget. After
// exhausting retries the delivery is abandoned and logged; there is no
// further automatic retry.
func (d *Dispatcher) deliver(ctx context.Context, webhook models.Webhook, event events.Event) {
	logger := d.logger.WithFields(logrus.Fields{
		"webhookId": webhook.ID,
		"eventType": event.Type,
		"eventId":   event.ID,
	})

	budget, cancel := context.WithTimeout(ctx, d.cfg.DeliveryBudget)
	defer cancel()

	for attempt := 1; attempt <= d.cfg.Retry.MaxAttempts; attempt++ {
		result := d.attempt(budget, webhook, event, attempt)

		if result.Err == nil && result.StatusCode >= 200 && result.StatusCode < 300 {
			logger.WithFields(logrus.Fields{
				"attempt":    attempt,
				"statusCode": result.StatusCode,
				"durationMs": result.Duration.Milliseconds(),
			}).Info("Webhook delivered")
			return
		}

		if !d.cfg.Retry.ShouldRetry(result.StatusCode, result.Err) {
			logger.WithFields(logrus.Fields{
				"attempt":    attempt,
				"statusCode": result.StatusCode,
			}).Warn("Webhook delivery rejected, not retrying")
			return
		}

		if attempt == d.cfg.Retry.MaxAttempts {
			break
		}

		select {
		case <-budget.Done():
			logger.WithField("attempt", attempt).Warn("Webhook delivery budget exhausted, abandoning")
			return
		case <-time.After(d.cfg.Retry.Backoff(attempt - 1)):
		}
	}

	logger.WithField("attempts", d.cfg.Retry.MaxAttempts).Error("Webhook delivery abandoned after retries")
}

// attempt performs one signed POST and records its outcome
func (d *Dispatcher) attempt(ctx context.Context, webhook models.Webhook, event events.Event, number int) models.DeliveryAttempt {
	result := models.DeliveryAttempt{
		WebhookID:     webhook.ID,
		EventType:     event.Type,
		AttemptNumber: number,
	}

	body, err := json.Marshal(event)
	if err != nil {
		result.Err = fmt.Errorf("failed to encode payload: %w", err)
		return result
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		result.Err = fmt.Errorf("failed to build request: %w", err)
		return result
	}

	timestamp := strconv.FormatInt(event.Timestamp.Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(webhook.Secret, timestamp, body))
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderEvent, event.Type)
	req.Header.Set(HeaderDelivery, event.ID)

	start := time.Now()
	resp, err := d.client.Do(req)
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = err
		return result
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	result.StatusCode = resp.StatusCode
	return result
}

// Test performs one synchronous delivery of a probe event, bypassing the
// queue, and reports the outcome for UI feedback.
func (d *Dispatcher) Test(ctx context.Context, webhook models.Webhook) models.WebhookTestResult {
	event := events.NewEvent("webhook.test", map[string]interface{}{
		"message": "This is a test webhook delivery",
	})

	attempt := d.attempt(ctx, webhook, event, 1)
	result := models.WebhookTestResult{
		StatusCode:     attempt.StatusCode,
		ResponseTimeMs: attempt.Duration.Milliseconds(),
		Success:        attempt.Err == nil && attempt.StatusCode >= 200 && attempt.StatusCode < 300,
	}
	if attempt.Err != nil {
		result.Error = attempt.Err.Error()
	}
	return result
}
