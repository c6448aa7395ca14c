// Package toast implements the registry of short-lived dashboard
// notifications: creation, countdown with pause-on-hover, a cap on how
// many are shown at once, and the exit transition before deletion.
package toast

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

type entry struct {
	toast    Toast
	state    State
	cd       Countdown
	timer    *clock.Timer
	gen      uint64
	reason   Reason
	onAction ActionFunc
	// held marks a countdown frozen because the toast was demoted.
	held bool
}

// Stats summarises the registry.
type Stats struct {
	Live          int   `json:"live"`
	Visible       int   `json:"visible"`
	Queued        int   `json:"queued"`
	Exiting       int   `json:"exiting"`
	DroppedEvents int64 `json:"dropped_events"`
}

// Manager owns the toast registry. All mutation goes through it; timer
// callbacks and API calls are serialised by one mutex.
type Manager struct {
	mu       sync.Mutex
	clock    clock.Clock
	settings Settings
	logger   *slog.Logger
	entries  []*entry
	byID     map[string]*entry
	hub      *hub
	newID    func() string
	closed   bool
}

// ManagerOption configures a Manager at construction.
type ManagerOption func(*Manager)

// WithClock replaces the wall clock, typically with clock.NewMock().
func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithIDGenerator replaces the id source.
func WithIDGenerator(fn func() string) ManagerOption {
	return func(m *Manager) { m.newID = fn }
}

// WithSubscriberBuffer sets the per-subscriber event buffer size.
func WithSubscriberBuffer(n int) ManagerOption {
	return func(m *Manager) { m.hub = newHub(n) }
}

// New creates a Manager. Call Close to cancel its timers.
func New(settings Settings, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{
		clock:    clock.New(),
		settings: settings.withDefaults(),
		logger:   logger,
		byID:     make(map[string]*entry),
		hub:      newHub(defaultSubscriberBuffer),
		newID:    newID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Settings returns the active settings.
func (m *Manager) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// Add registers a toast and returns its id. Add returns "" once the
// manager is closed.
func (m *Manager) Add(in Input) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ""
	}

	now := m.clock.Now()
	kind := ParseKind(string(in.Kind))
	var sev Severity
	if kind == KindAlert {
		sev = ParseSeverity(string(in.Severity))
	}
	d := in.Duration
	if d <= 0 {
		d = m.settings.DurationFor(kind, sev)
	}

	e := &entry{
		toast: Toast{
			ID:        m.uniqueIDLocked(),
			Kind:      kind,
			Severity:  sev,
			Title:     in.Title,
			Message:   in.Message,
			AgentRef:  in.AgentRef,
			CreatedAt: now,
			Duration:  d,
			Actions:   slices.Clone(in.Actions),
			Metadata:  cloneMap(in.Metadata),
		},
		state:    StateQueued,
		cd:       NewCountdown(d),
		onAction: in.OnAction,
	}
	m.entries = append(m.entries, e)
	m.byID[e.toast.ID] = e

	if m.occupiedLocked() < m.settings.MaxVisible {
		m.showLocked(e, now)
	} else if m.settings.Hidden == HiddenRun {
		e.cd.Start(now)
		m.armLocked(e, now)
	}

	m.logger.Debug("toast added",
		"id", e.toast.ID,
		"kind", kind,
		"severity", sev,
		"state", e.state,
		"duration_ms", d.Milliseconds(),
	)
	m.publishLocked(EventAdded, e, now, "", "")
	return e.toast.ID
}

func (m *Manager) uniqueIDLocked() string {
	for {
		id := m.newID()
		if _, taken := m.byID[id]; !taken && id != "" {
			return id
		}
	}
}

func (m *Manager) add(kind Kind, message string, opts []Option) string {
	in := Input{Kind: kind, Message: message}
	for _, opt := range opts {
		opt(&in)
	}
	return m.Add(in)
}

// AddSuccess adds a success toast.
func (m *Manager) AddSuccess(message string, opts ...Option) string {
	return m.add(KindSuccess, message, opts)
}

// AddError adds an error toast.
func (m *Manager) AddError(message string, opts ...Option) string {
	return m.add(KindError, message, opts)
}

// AddWarning adds a warning toast.
func (m *Manager) AddWarning(message string, opts ...Option) string {
	return m.add(KindWarning, message, opts)
}

// AddInfo adds an info toast.
func (m *Manager) AddInfo(message string, opts ...Option) string {
	return m.add(KindInfo, message, opts)
}

// AddAlert surfaces a security alert. Critical alerts get the longer
// critical lifetime unless WithDuration overrides it.
func (m *Manager) AddAlert(a Alert, opts ...Option) string {
	sev := ParseSeverity(string(a.Severity))
	title := a.Title
	if title == "" {
		title = sev.Title()
	}
	in := Input{
		Kind:     KindAlert,
		Severity: sev,
		Title:    title,
		Message:  a.Message,
		AgentRef: a.AgentRef,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return m.Add(in)
}

// Remove deletes a toast immediately, skipping the exit transition.
// Unknown ids are ignored: the toast may already have expired.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return
	}
	reason := ReasonRemoved
	if e.state == StateExiting {
		reason = e.reason
	}
	m.deleteLocked(e, reason, m.clock.Now())
}

// Dismiss closes a toast on behalf of the user. The countdown is
// bypassed and the toast enters the exit transition. It reports whether
// the toast was live.
func (m *Manager) Dismiss(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return false
	}
	m.beginExitLocked(e, ReasonDismissed, m.clock.Now())
	return true
}

// Pause freezes a visible toast's countdown (pointer enter).
// It reports whether the toast is live.
func (m *Manager) Pause(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return false
	}
	if e.state != StateVisible {
		return true
	}
	now := m.clock.Now()
	if e.cd.Pause(now) {
		m.stopTimerLocked(e)
		m.publishLocked(EventPaused, e, now, "", "")
	}
	return true
}

// Resume continues a paused countdown from where it stopped (pointer
// leave). It reports whether the toast is live.
func (m *Manager) Resume(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return false
	}
	if e.state != StateVisible {
		return true
	}
	now := m.clock.Now()
	if e.cd.Resume(now) {
		m.armLocked(e, now)
		m.publishLocked(EventResumed, e, now, "", "")
	}
	return true
}

// InvokeAction records that the user pressed one of the toast's action
// buttons, runs its handler and dismisses the toast.
func (m *Manager) InvokeAction(id, actionID string) error {
	m.mu.Lock()
	e, ok := m.byID[id]
	if !ok || e.state == StateExiting {
		m.mu.Unlock()
		return ErrNotFound
	}
	action, ok := e.toast.Action(actionID)
	if !ok {
		m.mu.Unlock()
		return ErrUnknownAction
	}
	now := m.clock.Now()
	handler := e.onAction
	snapshot := e.toast
	m.publishLocked(EventAction, e, now, "", action.ID)
	m.beginExitLocked(e, ReasonAction, now)
	m.mu.Unlock()

	if handler != nil {
		handler(snapshot, action)
	}
	return nil
}

// Get returns a snapshot of one toast.
func (m *Manager) Get(id string) (View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return View{}, false
	}
	return m.viewLocked(e, m.clock.Now()), true
}

// List returns every live toast, oldest first, including queued ones.
func (m *Manager) List() []View {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	out := make([]View, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, m.viewLocked(e, now))
	}
	return out
}

// Visible returns the toasts a renderer should paint, in the configured
// order. Queued toasts are left out.
func (m *Manager) Visible() []View {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	out := make([]View, 0, m.settings.MaxVisible)
	for _, e := range m.entries {
		if e.state == StateQueued {
			continue
		}
		out = append(out, m.viewLocked(e, now))
	}
	if m.settings.Order == OrderNewestFirst {
		slices.Reverse(out)
	}
	return out
}

// Subscribe returns a stream of lifecycle events and a cancel func.
// The channel is closed by cancel or by Close.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.hub.subscribe()
}

// Stats reports registry counts.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{Live: len(m.entries), DroppedEvents: m.hub.dropped.Load()}
	for _, e := range m.entries {
		switch e.state {
		case StateVisible:
			s.Visible++
		case StateQueued:
			s.Queued++
		case StateExiting:
			s.Exiting++
		}
	}
	return s
}

// Reconfigure swaps the settings of a running manager. Lifetimes of
// existing toasts are kept; the cap and hidden policy apply at once.
// Lowering the cap sends the newest visible toasts back to the queue.
func (m *Manager) Reconfigure(settings Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings.withDefaults()
	now := m.clock.Now()
	if m.settings.Hidden == HiddenRun {
		for _, e := range m.entries {
			if e.state != StateQueued {
				continue
			}
			if !e.cd.Started() {
				e.cd.Start(now)
				m.armLocked(e, now)
			} else if e.held {
				e.held = false
				e.cd.Resume(now)
				m.armLocked(e, now)
			}
		}
	}
	m.demoteLocked(now)
	m.promoteLocked(now)
	m.logger.Info("toast settings updated",
		"max_visible", m.settings.MaxVisible,
		"position", m.settings.Position,
		"hidden", m.settings.Hidden,
	)
}

// demoteLocked queues the newest visible toasts until the cap holds.
// Exiting toasts keep their slot. Under the hold policy a demoted
// toast's countdown is frozen until it is shown again.
func (m *Manager) demoteLocked(now time.Time) {
	excess := m.occupiedLocked() - m.settings.MaxVisible
	for i := len(m.entries) - 1; i >= 0 && excess > 0; i-- {
		e := m.entries[i]
		if e.state != StateVisible {
			continue
		}
		e.state = StateQueued
		switch m.settings.Hidden {
		case HiddenRun:
			if e.cd.Resume(now) {
				m.armLocked(e, now)
			}
		default:
			e.cd.Pause(now)
			e.held = true
			m.stopTimerLocked(e)
		}
		m.publishLocked(EventDemoted, e, now, "", "")
		excess--
	}
}

// Close cancels every timer, drops all toasts and closes subscriber
// channels. It is safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, e := range m.entries {
		m.stopTimerLocked(e)
	}
	m.entries = nil
	clear(m.byID)
	m.hub.close()
}

// expire is the timer callback for a toast's countdown.
func (m *Manager) expire(id string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok || e.gen != gen || e.state == StateExiting || e.cd.Paused() {
		return
	}
	now := m.clock.Now()
	if !e.cd.Done(now) {
		m.armLocked(e, now)
		return
	}
	e.timer = nil
	m.beginExitLocked(e, ReasonExpired, now)
}

// finishExit is the timer callback that ends the exit transition.
func (m *Manager) finishExit(id string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok || e.gen != gen || e.state != StateExiting {
		return
	}
	e.timer = nil
	m.deleteLocked(e, e.reason, m.clock.Now())
}

// beginExitLocked is the single path by which expiry, dismissal and
// actions take a toast off screen.
func (m *Manager) beginExitLocked(e *entry, reason Reason, now time.Time) {
	if e.state == StateExiting {
		return
	}
	m.stopTimerLocked(e)
	if e.state == StateQueued || m.settings.ExitDelay <= 0 {
		m.deleteLocked(e, reason, now)
		return
	}
	e.state = StateExiting
	e.reason = reason
	m.publishLocked(EventExiting, e, now, reason, "")

	id, gen := e.toast.ID, e.gen
	e.timer = m.clock.AfterFunc(m.settings.ExitDelay, func() { m.finishExit(id, gen) })
}

func (m *Manager) deleteLocked(e *entry, reason Reason, now time.Time) {
	m.stopTimerLocked(e)
	if i := slices.Index(m.entries, e); i >= 0 {
		m.entries = slices.Delete(m.entries, i, i+1)
	}
	delete(m.byID, e.toast.ID)
	m.logger.Debug("toast removed", "id", e.toast.ID, "reason", reason)
	m.publishLocked(EventRemoved, e, now, reason, "")
	m.promoteLocked(now)
}

// promoteLocked fills free slots with the oldest queued toasts.
func (m *Manager) promoteLocked(now time.Time) {
	free := m.settings.MaxVisible - m.occupiedLocked()
	for _, e := range m.entries {
		if free <= 0 {
			return
		}
		if e.state != StateQueued {
			continue
		}
		m.showLocked(e, now)
		m.publishLocked(EventPromoted, e, now, "", "")
		free--
	}
}

func (m *Manager) showLocked(e *entry, now time.Time) {
	e.state = StateVisible
	switch {
	case !e.cd.Started():
		e.cd.Start(now)
		m.armLocked(e, now)
	case e.held:
		e.held = false
		e.cd.Resume(now)
		m.armLocked(e, now)
	}
}

// occupiedLocked counts toasts holding a visible slot. Exiting toasts
// keep their slot until deleted.
func (m *Manager) occupiedLocked() int {
	n := 0
	for _, e := range m.entries {
		if e.state != StateQueued {
			n++
		}
	}
	return n
}

func (m *Manager) armLocked(e *entry, now time.Time) {
	m.stopTimerLocked(e)
	id, gen := e.toast.ID, e.gen
	e.timer = m.clock.AfterFunc(e.cd.Left(now), func() { m.expire(id, gen) })
}

// stopTimerLocked cancels the pending callback and bumps the generation
// so a callback already in flight becomes a no-op.
func (m *Manager) stopTimerLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}

func (m *Manager) viewLocked(e *entry, now time.Time) View {
	v := View{
		Toast:      e.toast,
		State:      e.state,
		Paused:     e.cd.Paused() && !e.held,
		DurationMs: e.toast.Duration.Milliseconds(),
	}
	switch {
	case e.state == StateExiting:
		v.Progress = 0
	case e.cd.Started():
		v.RemainingMs = e.cd.Left(now).Milliseconds()
		v.Progress = e.cd.Fraction(now)
	default:
		v.RemainingMs = v.DurationMs
		v.Progress = 1
	}
	return v
}

func (m *Manager) publishLocked(t EventType, e *entry, now time.Time, reason Reason, action string) {
	m.hub.publish(Event{
		Type:   t,
		Toast:  m.viewLocked(e, now),
		Reason: reason,
		Action: action,
		At:     now,
	})
}

func cloneMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
