package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/events"
	"github.com/sophiahq/sophia/internal/log"
	"github.com/sophiahq/sophia/internal/pubsub"
	"github.com/sophiahq/sophia/internal/store"
)

// Notifier forwards bus events to the bot's webhook, honoring the
// operator's per-channel notification preferences. Delivery is best
// effort: a failed POST is logged and dropped, never retried, since the
// bot re-reads state from the API anyway.
type Notifier struct {
	bus    *pubsub.Broker[events.Event]
	store  *store.Store
	url    string
	token  string
	client *http.Client
}

// NewNotifier creates the notifier. url is the bot's inbound webhook.
func NewNotifier(bus *pubsub.Broker[events.Event], st *store.Store, url, token string) *Notifier {
	return &Notifier{
		bus:    bus,
		store:  st,
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Run subscribes and forwards until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	if n.url == "" {
		log.Info(log.CatBot, "Bot notifier disabled, no webhook URL")
		return
	}
	ch, err := n.bus.Subscribe(ctx)
	if err != nil {
		log.ErrorErr(log.CatBot, "Notifier subscribe failed", err)
		return
	}
	log.Info(log.CatBot, "Bot notifier started", "url", n.url)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			n.deliver(ctx, event)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, event events.Event) {
	pref, err := n.store.GetNotificationPreference(draft.ChannelBot)
	if err != nil {
		log.ErrorErr(log.CatBot, "Load notification preference failed", err)
		return
	}
	if !pref.Wants(string(event.Type)) {
		return
	}

	body, err := json.Marshal(map[string]any{
		"type":      event.Type,
		"timestamp": event.Timestamp,
		"payload":   event.Payload,
	})
	if err != nil {
		log.ErrorErr(log.CatBot, "Marshal notification failed", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.ErrorErr(log.CatBot, "Build notification request failed", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("X-Bot-Token", n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		log.ErrorErr(log.CatBot, "Deliver notification failed", err, "type", event.Type)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Warn(log.CatBot, "Notification rejected", "type", event.Type, "status", resp.StatusCode)
	}
}
