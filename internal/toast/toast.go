package toast

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an operation names a toast that is no
	// longer live.
	ErrNotFound = errors.New("toast not found")
	// ErrUnknownAction is returned when an action id is not attached to
	// the toast.
	ErrUnknownAction = errors.New("unknown toast action")
)

// Action is a button attached to a toast at creation time.
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ActionFunc is called after the user presses one of a toast's actions.
type ActionFunc func(t Toast, a Action)

// Toast is a transient notification record.
type Toast struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Severity  Severity          `json:"severity,omitempty"`
	Title     string            `json:"title,omitempty"`
	Message   string            `json:"message"`
	AgentRef  string            `json:"agent,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Duration  time.Duration     `json:"-"`
	Actions   []Action          `json:"actions,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Action returns the action with the given id.
func (t Toast) Action(id string) (Action, bool) {
	for _, a := range t.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

// Input is the caller-supplied part of a toast. Everything is optional;
// a missing message renders as empty.
type Input struct {
	Kind     Kind
	Severity Severity
	Title    string
	Message  string
	AgentRef string
	// Duration overrides the kind default when positive.
	Duration time.Duration
	Actions  []Action
	Metadata map[string]string
	OnAction ActionFunc
}

// Option customises an Input built by the Add* helpers.
type Option func(*Input)

// WithTitle sets the heading.
func WithTitle(title string) Option {
	return func(in *Input) { in.Title = title }
}

// WithAgent links the toast to an endpoint agent.
func WithAgent(ref string) Option {
	return func(in *Input) { in.AgentRef = ref }
}

// WithDuration overrides the default lifetime.
func WithDuration(d time.Duration) Option {
	return func(in *Input) { in.Duration = d }
}

// WithActions attaches action buttons.
func WithActions(actions ...Action) Option {
	return func(in *Input) { in.Actions = append(in.Actions, actions...) }
}

// WithMetadata adds a metadata key.
func WithMetadata(key, value string) Option {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata[key] = value
	}
}

// WithActionHandler registers the callback for the toast's actions.
func WithActionHandler(fn ActionFunc) Option {
	return func(in *Input) { in.OnAction = fn }
}

// Alert is a severity-bearing security event to surface as a toast.
type Alert struct {
	Severity Severity
	Title    string
	Message  string
	AgentRef string
}

// State is where a toast is in its lifecycle.
type State string

const (
	StateQueued  State = "queued"
	StateVisible State = "visible"
	StateExiting State = "exiting"
)

// View is a point-in-time snapshot of a live toast for renderers.
type View struct {
	Toast
	State       State   `json:"state"`
	Paused      bool    `json:"paused"`
	DurationMs  int64   `json:"duration_ms"`
	RemainingMs int64   `json:"remaining_ms"`
	Progress    float64 `json:"progress"`
}

// EventType names a lifecycle transition.
type EventType string

const (
	EventAdded    EventType = "added"
	EventPromoted EventType = "promoted"
	EventPaused   EventType = "paused"
	EventResumed  EventType = "resumed"
	EventExiting  EventType = "exiting"
	EventRemoved  EventType = "removed"
	EventAction   EventType = "action"
	EventDemoted  EventType = "demoted" // sent back to the queue by a lower cap
)

// Reason explains why a toast left the registry.
type Reason string

const (
	ReasonExpired   Reason = "expired"
	ReasonDismissed Reason = "dismissed"
	ReasonAction    Reason = "action"
	ReasonRemoved   Reason = "removed"
)

// Event is published to subscribers on every lifecycle transition.
type Event struct {
	Type   EventType `json:"type"`
	Toast  View      `json:"toast"`
	Reason Reason    `json:"reason,omitempty"`
	Action string    `json:"action,omitempty"`
	At     time.Time `json:"at"`
}
