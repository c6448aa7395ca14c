package toast

import "time"

// Default lifetimes and limits.
const (
	DefaultDuration         = 5 * time.Second
	DefaultCriticalDuration = 10 * time.Second
	DefaultMaxVisible       = 5
	DefaultExitDelay        = 300 * time.Millisecond
)

// Position is the screen corner renderers stack toasts in.
type Position string

const (
	PositionTopRight     Position = "top-right"
	PositionTopLeft      Position = "top-left"
	PositionTopCenter    Position = "top-center"
	PositionBottomRight  Position = "bottom-right"
	PositionBottomLeft   Position = "bottom-left"
	PositionBottomCenter Position = "bottom-center"
)

// Valid reports whether p is a known position.
func (p Position) Valid() bool {
	switch p {
	case PositionTopRight, PositionTopLeft, PositionTopCenter,
		PositionBottomRight, PositionBottomLeft, PositionBottomCenter:
		return true
	}
	return false
}

// Order controls how Visible sorts the rendered toasts.
type Order string

const (
	OrderNewestLast  Order = "newest_last"
	OrderNewestFirst Order = "newest_first"
)

// HiddenPolicy decides whether toasts waiting for a visible slot run
// their countdown.
type HiddenPolicy string

const (
	// HiddenHold starts the countdown only once the toast becomes visible.
	HiddenHold HiddenPolicy = "hold"
	// HiddenRun starts the countdown at creation; a toast can expire
	// without ever being shown.
	HiddenRun HiddenPolicy = "run"
)

// Settings configures a Manager.
type Settings struct {
	Position         Position
	Order            Order
	MaxVisible       int
	DefaultDuration  time.Duration
	CriticalDuration time.Duration
	KindDurations    map[Kind]time.Duration
	// ExitDelay is how long a dismissed or expired toast stays in the
	// exiting state before it is deleted. Zero deletes immediately.
	ExitDelay time.Duration
	Hidden    HiddenPolicy
}

// DefaultSettings returns the stock configuration.
func DefaultSettings() Settings {
	return Settings{
		Position:         PositionTopRight,
		Order:            OrderNewestLast,
		MaxVisible:       DefaultMaxVisible,
		DefaultDuration:  DefaultDuration,
		CriticalDuration: DefaultCriticalDuration,
		ExitDelay:        DefaultExitDelay,
		Hidden:           HiddenHold,
	}
}

func (s Settings) withDefaults() Settings {
	if !s.Position.Valid() {
		s.Position = PositionTopRight
	}
	if s.Order != OrderNewestFirst {
		s.Order = OrderNewestLast
	}
	if s.MaxVisible <= 0 {
		s.MaxVisible = DefaultMaxVisible
	}
	if s.DefaultDuration <= 0 {
		s.DefaultDuration = DefaultDuration
	}
	if s.CriticalDuration <= 0 {
		s.CriticalDuration = DefaultCriticalDuration
	}
	if s.ExitDelay < 0 {
		s.ExitDelay = 0
	}
	if s.Hidden != HiddenRun {
		s.Hidden = HiddenHold
	}
	return s
}

// DurationFor returns the default lifetime for a kind and severity.
func (s Settings) DurationFor(kind Kind, sev Severity) time.Duration {
	s = s.withDefaults()
	if kind == KindAlert && sev == SeverityCritical {
		return s.CriticalDuration
	}
	if d, ok := s.KindDurations[kind]; ok && d > 0 {
		return d
	}
	return s.DefaultDuration
}
