// Package history persists toast lifecycle events so operators can see
// which alerts were shown, ignored, or acted on after the toasts are gone.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/oktsec/toastd/internal/toast"
	_ "modernc.org/sqlite"
)

// TimeLayout is the fixed-width UTC layout used for stored timestamps so
// they sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000Z"

const schema = `
CREATE TABLE IF NOT EXISTS toast_history (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	event TEXT NOT NULL,
	toast_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	severity TEXT,
	title TEXT,
	message TEXT NOT NULL,
	agent TEXT,
	reason TEXT,
	action TEXT
);

CREATE INDEX IF NOT EXISTS idx_history_toast ON toast_history(toast_id);
CREATE INDEX IF NOT EXISTS idx_history_kind ON toast_history(kind);
CREATE INDEX IF NOT EXISTS idx_history_timestamp ON toast_history(timestamp);
`

type write struct {
	entry Entry
	flush chan struct{}
}

// Store records toast history in SQLite or PostgreSQL.
type Store struct {
	db       *sql.DB
	postgres bool
	writes   chan write
	done     chan struct{}
	logger   *slog.Logger
}

// NewStore opens (or creates) the history database. driver is "sqlite"
// or "postgres"; dsn is a file path or a PostgreSQL connection string.
func NewStore(driver, dsn string, logger *slog.Logger) (*Store, error) {
	sqlDriver := "sqlite"
	postgres := false
	switch driver {
	case "", "sqlite":
	case "postgres":
		sqlDriver = "pgx"
		postgres = true
	default:
		return nil, fmt.Errorf("unsupported history driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	if !postgres {
		// WAL lets readers (CLI, API) run alongside the write loop.
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			if cerr := db.Close(); cerr != nil {
				return nil, fmt.Errorf("setting WAL mode: %w (also: close: %v)", err, cerr)
			}
			return nil, fmt.Errorf("setting WAL mode: %w", err)
		}
	}

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			if cerr := db.Close(); cerr != nil {
				return nil, fmt.Errorf("creating schema: %w (also: close: %v)", err, cerr)
			}
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	s := &Store{
		db:       db,
		postgres: postgres,
		writes:   make(chan write, 256),
		done:     make(chan struct{}),
		logger:   logger,
	}

	go s.writeLoop()
	return s, nil
}

// Log enqueues an entry for async writing.
func (s *Store) Log(entry Entry) {
	select {
	case s.writes <- write{entry: entry}:
	default:
		s.logger.Warn("history write buffer full, dropping entry", "toast_id", entry.ToastID, "event", entry.Event)
	}
}

// Record converts a manager event into a history entry. Only added,
// removed and action events are kept.
func (s *Store) Record(ev toast.Event) {
	switch ev.Type {
	case toast.EventAdded, toast.EventRemoved, toast.EventAction:
	default:
		return
	}
	s.Log(EntryFromEvent(ev))
}

// Run records events until the channel closes or ctx is done.
func (s *Store) Run(ctx context.Context, events <-chan toast.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.Record(ev)
		}
	}
}

// EntryFromEvent builds the history row for a manager event.
func EntryFromEvent(ev toast.Event) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Timestamp: ev.At.UTC().Format(TimeLayout),
		Event:     string(ev.Type),
		ToastID:   ev.Toast.ID,
		Kind:      string(ev.Toast.Kind),
		Severity:  string(ev.Toast.Severity),
		Title:     ev.Toast.Title,
		Message:   ev.Toast.Message,
		Agent:     ev.Toast.AgentRef,
		Reason:    string(ev.Reason),
		Action:    ev.Action,
	}
}

// Flush blocks until every entry enqueued before the call is written.
func (s *Store) Flush() {
	ch := make(chan struct{})
	s.writes <- write{flush: ch}
	<-ch
}

// Query returns history entries matching the given filters, newest first.
func (s *Store) Query(opts QueryOpts) ([]Entry, error) {
	query := "SELECT id, timestamp, event, toast_id, kind, severity, title, message, agent, reason, action FROM toast_history WHERE 1=1"
	var args []any

	if opts.Event != "" {
		query += " AND event = ?"
		args = append(args, opts.Event)
	}
	if opts.Kind != "" {
		query += " AND kind = ?"
		args = append(args, opts.Kind)
	}
	if opts.Agent != "" {
		query += " AND agent = ?"
		args = append(args, opts.Agent)
	}
	if opts.ToastID != "" {
		query += " AND toast_id = ?"
		args = append(args, opts.ToastID)
	}
	if opts.Since != "" {
		query += " AND timestamp >= ?"
		args = append(args, opts.Since)
	}

	query += " ORDER BY timestamp DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else {
		query += " LIMIT 50"
	}

	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var sev, title, agent, reason, action sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Event, &e.ToastID, &e.Kind,
			&sev, &title, &e.Message, &agent, &reason, &action); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.Severity = sev.String
		e.Title = title.String
		e.Agent = agent.String
		e.Reason = reason.String
		e.Action = action.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// QueryKindStats summarises how toasts of each kind ended.
func (s *Store) QueryKindStats() ([]KindStat, error) {
	rows, err := s.db.Query(`SELECT kind,
		SUM(CASE WHEN event = 'added' THEN 1 ELSE 0 END),
		SUM(CASE WHEN event = 'removed' AND reason = 'expired' THEN 1 ELSE 0 END),
		SUM(CASE WHEN event = 'removed' AND reason = 'dismissed' THEN 1 ELSE 0 END),
		SUM(CASE WHEN event = 'removed' AND reason = 'action' THEN 1 ELSE 0 END)
		FROM toast_history GROUP BY kind ORDER BY kind`)
	if err != nil {
		return nil, fmt.Errorf("querying kind stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []KindStat
	for rows.Next() {
		var ks KindStat
		if err := rows.Scan(&ks.Kind, &ks.Created, &ks.Expired, &ks.Dismissed, &ks.Actioned); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		stats = append(stats, ks)
	}
	return stats, rows.Err()
}

// Purge deletes entries older than the given number of days and returns
// how many rows were removed. days <= 0 keeps everything.
func (s *Store) Purge(days int, now time.Time) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour).UTC().Format(TimeLayout)
	res, err := s.db.Exec(s.rebind("DELETE FROM toast_history WHERE timestamp < ?"), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging history: %w", err)
	}
	return res.RowsAffected()
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close flushes pending writes and closes the database.
func (s *Store) Close() error {
	close(s.writes)
	<-s.done
	return s.db.Close()
}

func (s *Store) writeLoop() {
	defer close(s.done)
	insert := s.rebind(`INSERT INTO toast_history (id, timestamp, event, toast_id, kind, severity, title, message, agent, reason, action) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for w := range s.writes {
		if w.flush != nil {
			close(w.flush)
			continue
		}
		e := w.entry
		_, err := s.db.Exec(insert,
			e.ID, e.Timestamp, e.Event, e.ToastID, e.Kind, e.Severity,
			e.Title, e.Message, e.Agent, e.Reason, e.Action,
		)
		if err != nil {
			s.logger.Error("history write failed", "toast_id", e.ToastID, "error", err)
		}
	}
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
