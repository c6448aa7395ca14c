// Package tui renders the live toast stack in a terminal, the way the
// dashboard paints it in a screen corner.
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/oktsec/toastd/sdk"
)

// frameInterval drives countdown bar redraws at roughly 30fps.
const frameInterval = time.Second / 30

const cardWidth = 46

// API is the subset of sdk.Client the watcher needs.
type API interface {
	Visible(ctx context.Context) ([]sdk.Toast, error)
	Dismiss(ctx context.Context, id string) error
	Hover(ctx context.Context, id string, enter bool) error
	InvokeAction(ctx context.Context, id, action string) error
}

type frameMsg time.Time

type snapshotMsg struct {
	toasts []sdk.Toast
	at     time.Time
	err    error
}

// EventMsg carries one server event into the program.
type EventMsg sdk.Event

type errMsg struct{ err error }

// Model is the bubbletea model for `toastd watch`.
type Model struct {
	api      API
	position string
	now      func() time.Time

	toasts   []sdk.Toast
	syncedAt time.Time
	selected int
	hovered  string
	width    int
	height   int
	status   string
	bar      progress.Model
}

// New creates a watcher model. position is one of the toast corner names
// (top-right, bottom-left, ...).
func New(api API, position string) Model {
	return Model{
		api:      api,
		position: position,
		now:      time.Now,
		bar: progress.New(
			progress.WithWidth(cardWidth-4),
			progress.WithoutPercentage(),
			progress.WithSolidFill("#5f87ff"),
		),
		status: "connecting...",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), frame())
}

func frame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m Model) fetch() tea.Cmd {
	api := m.api
	now := m.now
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		toasts, err := api.Visible(ctx)
		return snapshotMsg{toasts: toasts, at: now(), err: err}
	}
}

func (m Model) call(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		return m, frame()

	case snapshotMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.toasts = msg.toasts
		m.syncedAt = msg.at
		if m.hovered != "" && !slices.ContainsFunc(m.toasts, func(t sdk.Toast) bool { return t.ID == m.hovered }) {
			m.hovered = ""
		}
		if m.selected >= len(m.toasts) {
			m.selected = max(len(m.toasts)-1, 0)
		}
		m.status = fmt.Sprintf("%d visible", len(m.toasts))
		return m, nil

	case EventMsg:
		// Any lifecycle change can reshuffle the visible stack.
		return m, m.fetch()

	case errMsg:
		m.status = "error: " + msg.err.Error()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.toasts)-1 {
				m.selected++
			}
		case "x", "delete":
			if t, ok := m.current(); ok {
				id := t.ID
				return m, m.call(func(ctx context.Context) error { return m.api.Dismiss(ctx, id) })
			}
		case "enter":
			if t, ok := m.current(); ok && len(t.Actions) > 0 {
				id, action := t.ID, t.Actions[0].ID
				return m, m.call(func(ctx context.Context) error { return m.api.InvokeAction(ctx, id, action) })
			}
		}
	}
	return m, nil
}

// handleMouse translates pointer motion over cards into hover enter and
// leave calls, which pause and resume the server-side countdown.
func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	target := ""
	for i, b := range m.layout() {
		if b.contains(msg.X, msg.Y) {
			target = m.toasts[i].ID
			if msg.Action == tea.MouseActionPress {
				m.selected = i
			}
			break
		}
	}
	if target == m.hovered {
		return m, nil
	}

	prev := m.hovered
	m.hovered = target
	api := m.api
	return m, m.call(func(ctx context.Context) error {
		// A failed leave must not cost the new card its pause.
		var leaveErr error
		if prev != "" {
			if err := api.Hover(ctx, prev, false); err != nil && !sdk.IsNotFound(err) {
				leaveErr = err
			}
		}
		if target != "" {
			if err := api.Hover(ctx, target, true); err != nil {
				return err
			}
		}
		return leaveErr
	})
}

func (m Model) current() (sdk.Toast, bool) {
	if m.selected < 0 || m.selected >= len(m.toasts) {
		return sdk.Toast{}, false
	}
	return m.toasts[m.selected], true
}

// remaining estimates the fraction of countdown left at now from the last
// snapshot. Paused toasts stay frozen.
func (m Model) remaining(t sdk.Toast, now time.Time) float64 {
	if t.DurationMs <= 0 {
		return 0
	}
	left := time.Duration(t.RemainingMs) * time.Millisecond
	if !t.Paused && t.State == "visible" && t.ID != m.hovered {
		left -= now.Sub(m.syncedAt)
	}
	f := float64(left) / float64(time.Duration(t.DurationMs)*time.Millisecond)
	return min(max(f, 0), 1)
}

type box struct {
	x, y, w, h int
}

func (b box) contains(x, y int) bool {
	return x >= b.x && x < b.x+b.w && y >= b.y && y < b.y+b.h
}

// layout returns the screen rectangle of every card, matching View.
func (m Model) layout() []box {
	cards := make([]string, len(m.toasts))
	total := 0
	for i, t := range m.toasts {
		cards[i] = m.card(t, i == m.selected, 1)
		total += lipgloss.Height(cards[i])
	}

	width := max(m.width, cardWidth)
	x := 0
	switch {
	case strings.HasSuffix(m.position, "right"):
		x = width - cardWidth
	case strings.HasSuffix(m.position, "center"):
		x = (width - cardWidth) / 2
	}
	y := 0
	if strings.HasPrefix(m.position, "bottom") && m.height > total+1 {
		y = m.height - 1 - total
	}

	boxes := make([]box, len(cards))
	for i, c := range cards {
		h := lipgloss.Height(c)
		boxes[i] = box{x: x, y: y, w: cardWidth, h: h}
		y += h
	}
	return boxes
}

func (m Model) View() string {
	now := m.now()
	var cards []string
	for i, t := range m.toasts {
		cards = append(cards, m.card(t, i == m.selected, m.remaining(t, now)))
	}
	stack := lipgloss.JoinVertical(lipgloss.Left, cards...)

	footer := statusStyle.Render(m.status + "  ·  ↑/↓ select  x dismiss  enter action  q quit")
	if m.width == 0 || m.height == 0 {
		return stack + "\n" + footer
	}

	h := lipgloss.Left
	switch {
	case strings.HasSuffix(m.position, "right"):
		h = lipgloss.Right
	case strings.HasSuffix(m.position, "center"):
		h = lipgloss.Center
	}
	v := lipgloss.Top
	if strings.HasPrefix(m.position, "bottom") {
		v = lipgloss.Bottom
	}
	return lipgloss.Place(m.width, m.height-1, h, v, stack) + "\n" + footer
}

func (m Model) card(t sdk.Toast, selected bool, fraction float64) string {
	style := cardStyle.BorderForeground(kindColor(t.Kind, t.Severity))
	if selected {
		style = style.BorderStyle(lipgloss.ThickBorder())
	}

	title := t.Title
	if title == "" && t.Kind != "" {
		title = strings.ToUpper(t.Kind[:1]) + t.Kind[1:]
	}
	head := titleStyle.Foreground(kindColor(t.Kind, t.Severity)).Render(title)
	if t.Paused || t.ID == m.hovered {
		head += mutedStyle.Render("  paused")
	}

	lines := []string{head, truncate(t.Message, cardWidth-4)}
	if t.Agent != "" {
		lines = append(lines, mutedStyle.Render("agent "+t.Agent))
	}
	if len(t.Actions) > 0 {
		labels := make([]string, len(t.Actions))
		for i, a := range t.Actions {
			labels[i] = "[" + a.Label + "]"
		}
		lines = append(lines, actionStyle.Render(strings.Join(labels, " ")))
	}
	lines = append(lines, m.bar.ViewAs(fraction))
	return style.Render(strings.Join(lines, "\n"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
