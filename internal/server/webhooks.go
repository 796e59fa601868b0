package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"peopleops/internal/config"
	"peopleops/internal/domain"
	"peopleops/internal/engine"
)

const (
	webhookPollInterval = 2 * time.Second
	webhookTimeout      = 5 * time.Second
	webhookBatch        = 100

	// SignatureHeader carries "sha256=<hex hmac of the body>" when the hook
	// has a secret.
	SignatureHeader = "X-Peopleops-Signature"
)

// hook is one configured endpoint and the id of the last event it has seen.
type hook struct {
	cfg    config.WebhookConfig
	client *http.Client
	types  []string
	cursor int64
	primed bool
}

func (h *hook) wants(evtType string) bool {
	return len(h.types) == 0 || slices.Contains(h.types, evtType)
}

type webhookDispatcher struct {
	engine engine.Engine
	hooks  []*hook
	log    *slog.Logger
}

// StartWebhookDispatcher forwards events committed after startup to the
// configured webhooks until ctx is cancelled.
func StartWebhookDispatcher(ctx context.Context, e engine.Engine, log *slog.Logger) {
	d := newWebhookDispatcher(e, log)
	if d == nil {
		return
	}
	go d.run(ctx)
}

func newWebhookDispatcher(e engine.Engine, log *slog.Logger) *webhookDispatcher {
	if e.Config == nil {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	d := &webhookDispatcher{engine: e, log: log.With("component", "webhooks")}
	for _, cfg := range e.Config.Webhooks {
		if cfg.Enabled != nil && !*cfg.Enabled {
			continue
		}
		timeout := webhookTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		var types []string
		for _, t := range cfg.Events {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		d.hooks = append(d.hooks, &hook{cfg: cfg, client: &http.Client{Timeout: timeout}, types: types})
	}
	if len(d.hooks) == 0 {
		return nil
	}
	return d
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(webhookPollInterval)
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
	for _, h := range d.hooks {
		if err := d.deliver(ctx, h); err != nil {
			d.log.Warn("webhook delivery paused", "url", h.cfg.URL, "cursor", h.cursor, "error", err)
		}
	}
}

// deliver posts pending events in id order. On failure the cursor stays on
// the last delivered event so the failed one is retried next tick.
func (d *webhookDispatcher) deliver(ctx context.Context, h *hook) error {
	if !h.primed {
		latest, err := d.engine.Repo.LatestEventID(ctx)
		if err != nil {
			return fmt.Errorf("prime cursor: %w", err)
		}
		h.cursor, h.primed = latest, true
	}
	batch, err := d.engine.Repo.EventsAfter(ctx, webhookBatch, h.cursor)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	for _, evt := range batch {
		if h.wants(evt.Type) {
			if err := d.post(ctx, h, evt); err != nil {
				return fmt.Errorf("event %d: %w", evt.ID, err)
			}
		}
		h.cursor = evt.ID
	}
	return nil
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *webhookDispatcher) post(ctx context.Context, h *hook, evt domain.Event) error {
	payload := json.RawMessage(`{}`)
	if json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	body, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Peopleops-Event", evt.Type)
	req.Header.Set("X-Peopleops-Delivery", strconv.FormatInt(evt.ID, 10))
	if secret := strings.TrimSpace(h.cfg.Secret); secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}
	res, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// Sign returns the signature header value for body: "sha256=" followed by
// the hex HMAC-SHA256 under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
