// Package notify delivers toast lifecycle events to outgoing webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oktsec/toastd/internal/config"
	"github.com/oktsec/toastd/internal/toast"
)

// Event names a webhook can subscribe to.
const (
	EventAdded    = "added"
	EventCritical = "critical"
	EventAction   = "action"
	EventRemoved  = "removed"
)

// Payload is the JSON body posted to webhooks.
type Payload struct {
	Event     string `json:"event"`
	ToastID   string `json:"toast_id"`
	Kind      string `json:"kind"`
	Severity  string `json:"severity,omitempty"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message"`
	Agent     string `json:"agent,omitempty"`
	Action    string `json:"action,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// PayloadFromEvent converts a manager event into the webhook body.
func PayloadFromEvent(name string, ev toast.Event) Payload {
	return Payload{
		Event:     name,
		ToastID:   ev.Toast.ID,
		Kind:      string(ev.Toast.Kind),
		Severity:  string(ev.Toast.Severity),
		Title:     ev.Toast.Title,
		Message:   ev.Toast.Message,
		Agent:     ev.Toast.AgentRef,
		Action:    ev.Action,
		Reason:    string(ev.Reason),
		Timestamp: ev.At.UTC().Format(time.RFC3339),
	}
}

// EventNames maps a manager event to the webhook event names it triggers.
// A critical alert being added fires both "added" and "critical".
func EventNames(ev toast.Event) []string {
	switch ev.Type {
	case toast.EventAdded:
		if ev.Toast.Kind == toast.KindAlert && ev.Toast.Severity == toast.SeverityCritical {
			return []string{EventAdded, EventCritical}
		}
		return []string{EventAdded}
	case toast.EventAction:
		return []string{EventAction}
	case toast.EventRemoved:
		return []string{EventRemoved}
	}
	return nil
}

// Notifier posts events to the configured webhooks.
type Notifier struct {
	mu       sync.RWMutex
	webhooks []config.Webhook
	client   *http.Client
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewNotifier keeps the webhooks whose URLs pass validation.
func NewNotifier(webhooks []config.Webhook, logger *slog.Logger) *Notifier {
	n := &Notifier{
		client: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				DialContext: safeDialContext,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 2 {
					return errors.New("too many redirects")
				}
				if err := ValidateURL(req.URL.String()); err != nil {
					return fmt.Errorf("redirect to blocked URL: %w", err)
				}
				return nil
			},
		},
		logger: logger,
	}
	n.SetWebhooks(webhooks)
	return n
}

// SetWebhooks replaces the webhook list, dropping invalid URLs.
func (n *Notifier) SetWebhooks(webhooks []config.Webhook) {
	var valid []config.Webhook
	for _, wh := range webhooks {
		if err := ValidateURL(wh.URL); err != nil {
			n.logger.Warn("skipping invalid webhook URL", "url", wh.URL, "error", err)
			continue
		}
		valid = append(valid, wh)
	}
	n.mu.Lock()
	n.webhooks = valid
	n.mu.Unlock()
}

// Notify sends the event to every webhook subscribed to it.
func (n *Notifier) Notify(ev toast.Event) {
	names := EventNames(ev)
	if len(names) == 0 {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, wh := range n.webhooks {
		for _, name := range names {
			if !matchesEvent(wh.Events, name) {
				continue
			}
			p := PayloadFromEvent(name, ev)
			if wh.Template != "" {
				n.dispatch(func() { n.sendRaw(wh.URL, RenderTemplate(wh.Template, p)) })
			} else {
				n.dispatch(func() { n.send(wh.URL, p) })
			}
			break
		}
	}
}

// NotifyURL posts a single payload to an ad-hoc URL such as a toast's
// callback_url.
func (n *Notifier) NotifyURL(rawURL string, p Payload) {
	if err := ValidateURL(rawURL); err != nil {
		n.logger.Warn("skipping invalid notify URL", "url", rawURL, "error", err)
		return
	}
	n.dispatch(func() { n.send(rawURL, p) })
}

// Run forwards manager events until the channel closes or ctx is done.
func (n *Notifier) Run(ctx context.Context, events <-chan toast.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n.Notify(ev)
		}
	}
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) dispatch(fn func()) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		fn()
	}()
}

// RenderTemplate replaces {{TAG}} placeholders in a plain-text template,
// then wraps the result in Slack-compatible JSON: {"text":"..."}.
func RenderTemplate(tmpl string, p Payload) string {
	r := strings.NewReplacer(
		"{{EVENT}}", p.Event,
		"{{TOAST_ID}}", p.ToastID,
		"{{KIND}}", p.Kind,
		"{{SEVERITY}}", p.Severity,
		"{{TITLE}}", p.Title,
		"{{MESSAGE}}", p.Message,
		"{{AGENT}}", p.Agent,
		"{{ACTION}}", p.Action,
		"{{TIMESTAMP}}", p.Timestamp,
	)
	payload, _ := json.Marshal(map[string]string{"text": r.Replace(tmpl)})
	return string(payload)
}

// DefaultTemplate is the plain-text template written by `toastd init`.
const DefaultTemplate = "*{{TITLE}}* ({{SEVERITY}})\n• Agent: {{AGENT}}\n• {{MESSAGE}}"

func (n *Notifier) sendRaw(url, body string) {
	resp, err := n.client.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		n.logger.Warn("webhook delivery failed", "url", url, "error", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		n.logger.Warn("webhook returned error", "url", url, "status", resp.StatusCode)
	}
}

func (n *Notifier) send(url string, p Payload) {
	body, err := json.Marshal(p)
	if err != nil {
		n.logger.Error("webhook marshal failed", "error", err)
		return
	}

	resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("webhook delivery failed", "url", url, "error", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		n.logger.Warn("webhook returned error", "url", url, "status", resp.StatusCode)
	}
}

// matchesEvent reports whether a webhook with the configured event filter
// wants the named event. An empty filter means all events.
func matchesEvent(configured []string, event string) bool {
	if len(configured) == 0 {
		return true
	}
	for _, e := range configured {
		if e == event {
			return true
		}
	}
	return false
}
