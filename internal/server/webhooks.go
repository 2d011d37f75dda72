package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ledgerline/internal/config"
	"ledgerline/internal/domain"
	"ledgerline/internal/engine"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// webhookDispatcher tails the event log and posts matching events to the
// configured endpoints. Cursors are persisted per webhook name so deliveries
// resume where they stopped after a restart.
type webhookDispatcher struct {
	engine   engine.Engine
	webhooks []config.Webhook
	client   *http.Client
	log      *zap.Logger
}

func startWebhookDispatcher(e engine.Engine, webhooks []config.Webhook, logger *zap.Logger) {
	d := &webhookDispatcher{
		engine:   e,
		webhooks: webhooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		log:      logger,
	}
	go d.run()
}

func (d *webhookDispatcher) run() {
	ticker := time.NewTicker(defaultWebhookInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll()
		<-ticker.C
	}
}

func (d *webhookDispatcher) dispatchAll() {
	for _, hook := range d.webhooks {
		if strings.TrimSpace(hook.URL) == "" || strings.TrimSpace(hook.Name) == "" {
			continue
		}
		d.dispatchWebhook(hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(hook config.Webhook) {
	ctx := context.Background()
	cursor, err := d.engine.Repo.WebhookCursor(ctx, hook.Name)
	if err != nil {
		d.log.Error("webhook: load cursor failed", zap.String("webhook", hook.Name), zap.Error(err))
		return
	}
	events, err := d.engine.Repo.EventsAfter(ctx, defaultWebhookBatch, cursor, "")
	if err != nil {
		d.log.Error("webhook: fetch events failed", zap.String("webhook", hook.Name), zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range events {
		if filter.match(evt.Type) {
			if err := d.postEvent(ctx, hook, evt); err != nil {
				d.log.Warn("webhook: delivery failed",
					zap.String("webhook", hook.Name),
					zap.String("url", hook.URL),
					zap.Int64("event_id", evt.ID),
					zap.Error(err))
				return
			}
		}
		if err := d.engine.Repo.SaveWebhookCursor(ctx, hook.Name, evt.ID); err != nil {
			d.log.Error("webhook: save cursor failed", zap.String("webhook", hook.Name), zap.Error(err))
			return
		}
	}
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	OrgID      string          `json:"org_id"`
	Entity     string          `json:"entity"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

func (d *webhookDispatcher) postEvent(ctx context.Context, hook config.Webhook, evt domain.Event) error {
	payload := json.RawMessage([]byte("{}"))
	var raw string
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			payload = json.RawMessage([]byte(evt.Payload))
		} else {
			raw = evt.Payload
		}
	}
	body := webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		OrgID:      evt.OrgID,
		Entity:     evt.Entity,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
		PayloadRaw: raw,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ledgerline-Event", evt.Type)
	req.Header.Set("X-Ledgerline-Delivery", fmt.Sprintf("%d", evt.ID))
	req.Header.Set("X-Ledgerline-Org", evt.OrgID)
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
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
