package history

// Entry is one recorded toast lifecycle event.
type Entry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"` // added, removed, action
	ToastID   string `json:"toast_id"`
	Kind      string `json:"kind"`
	Severity  string `json:"severity,omitempty"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message"`
	Agent     string `json:"agent,omitempty"`
	Reason    string `json:"reason,omitempty"` // expired, dismissed, action, removed
	Action    string `json:"action,omitempty"`
}

// QueryOpts holds filters for history queries.
type QueryOpts struct {
	Event   string
	Kind    string
	Agent   string
	ToastID string
	Since   string // timestamp in the store's layout
	Limit   int
}

// KindStat counts how toasts of one kind ended.
type KindStat struct {
	Kind      string `json:"kind"`
	Created   int    `json:"created"`
	Expired   int    `json:"expired"`
	Dismissed int    `json:"dismissed"`
	Actioned  int    `json:"actioned"`
}
