package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"contenthub/internal/config"
	"contenthub/internal/domain"
	"contenthub/internal/logging"
	"contenthub/internal/metrics"
	"contenthub/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// WebhookOptions configures the journal webhook dispatcher.
type WebhookOptions struct {
	Repo     repo.Repo
	Hooks    []config.WebhookConfig
	Log      logging.Logger
	Metrics  *metrics.Collector
	Interval time.Duration
	Client   *http.Client
}

type webhookDispatcher struct {
	repo     repo.Repo
	webhooks []config.WebhookConfig
	client   *http.Client
	log      logging.Logger
	metrics  *metrics.Collector
	interval time.Duration
}

// StartWebhookDispatcher posts journal events to every active webhook until
// ctx is cancelled. It returns false when there is nothing to dispatch.
func StartWebhookDispatcher(ctx context.Context, opts WebhookOptions) bool {
	var active []config.WebhookConfig
	for _, hook := range opts.Hooks {
		if hook.Active() {
			active = append(active, hook)
		}
	}
	if len(active) == 0 || opts.Repo.DB == nil {
		return false
	}
	d := newWebhookDispatcher(opts, active)
	go d.run(ctx)
	return true
}

func newWebhookDispatcher(opts WebhookOptions, hooks []config.WebhookConfig) *webhookDispatcher {
	d := &webhookDispatcher{
		repo:     opts.Repo,
		webhooks: hooks,
		client:   opts.Client,
		log:      opts.Log,
		metrics:  opts.Metrics,
		interval: opts.Interval,
	}
	if d.client == nil {
		d.client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if d.log == nil {
		d.log = logging.Discard()
	}
	if d.interval <= 0 {
		d.interval = defaultWebhookInterval
	}
	return d
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for _, hook := range d.webhooks {
		if ctx.Err() != nil {
			return
		}
		d.dispatchWebhook(ctx, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, hook config.WebhookConfig) {
	entry := d.log.WithField("url", hook.URL)
	cursor, err := d.cursorFor(ctx, hook)
	if err != nil {
		entry.WithError(err).Warn("webhook: init cursor failed")
		return
	}
	events, err := d.repo.EventsAfter(ctx, defaultWebhookBatch, cursor)
	if err != nil {
		entry.WithError(err).Warn("webhook: fetch events failed")
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range events {
		if filter.match(evt.Type) {
			if err := d.postEvent(ctx, hook, evt); err != nil {
				d.metrics.WebhookFailure()
				entry.WithError(err).WithField("event_id", evt.ID).Warn("webhook: delivery failed")
				return
			}
		}
		if err := d.repo.SetWebhookCursor(ctx, hook.URL, evt.ID); err != nil {
			entry.WithError(err).Warn("webhook: save cursor failed")
			return
		}
	}
}

// cursorFor returns the stored cursor for hook. A hook seen for the first
// time starts at the current end of the journal.
func (d *webhookDispatcher) cursorFor(ctx context.Context, hook config.WebhookConfig) (int64, error) {
	cur, err := d.repo.WebhookCursor(ctx, hook.URL)
	if err == nil {
		return cur, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return 0, err
	}
	cur, err = d.repo.LatestEventID(ctx)
	if err != nil {
		return 0, err
	}
	return cur, d.repo.SetWebhookCursor(ctx, hook.URL, cur)
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	Version    int64           `json:"version"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

func (d *webhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := json.RawMessage([]byte("{}"))
	var raw string
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			payload = json.RawMessage([]byte(evt.Payload))
		} else {
			raw = evt.Payload
		}
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		Version:    evt.Version,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		Actor:      evt.Actor,
		TS:         evt.TS,
		Payload:    payload,
		PayloadRaw: raw,
	})
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		timeout := time.Duration(hook.TimeoutSeconds) * time.Second
		if timeout != client.Timeout {
			client = &http.Client{Timeout: timeout, Transport: d.client.Transport}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Event", evt.Type)
	req.Header.Set("X-Hub-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Hub-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
