package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/oktsec/toastd/internal/history"
)

func main() {
	dir, _ := os.MkdirTemp("", "toastd-bench-*")
	defer func() { _ = os.RemoveAll(dir) }()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := history.NewStore("sqlite", filepath.Join(dir, "bench.db"), logger)
	if err != nil {
		panic(err)
	}
	defer func() { _ = store.Close() }()

	kinds := []string{"info", "success", "warning", "error", "alert", "alert"}
	severities := []string{"critical", "high", "medium", "low"}
	reasons := []string{"expired", "expired", "expired", "dismissed", "action"}

	scales := []int{1000, 10000, 50000, 100000, 500000}

	fmt.Println("=== HISTORY SCALING BENCHMARK ===")
	fmt.Println()

	now := time.Now()
	written := 0
	for _, target := range scales {
		toWrite := target - written
		if toWrite <= 0 {
			continue
		}

		start := time.Now()
		batchSize := 500
		for i := 0; i < toWrite; i += batchSize {
			end := min(i+batchSize, toWrite)
			tx, _ := store.DB().Begin()
			for j := i; j < end; j++ {
				idx := written + j
				kind := kinds[idx%len(kinds)]
				sev := ""
				if kind == "alert" {
					sev = severities[idx%len(severities)]
				}
				// Every other row is the removal of the toast added just before.
				event, reason := "added", ""
				if idx%2 == 1 {
					event, reason = "removed", reasons[idx%len(reasons)]
				}
				ts := now.Add(-time.Duration(idx) * time.Second).UTC().Format(history.TimeLayout)
				_, _ = tx.Exec(
					`INSERT INTO toast_history (id, timestamp, event, toast_id, kind, severity, title, message, agent, reason, action) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
					uuid.NewString(), ts, event, fmt.Sprintf("t-%07d", idx/2), kind, sev,
					"", "benchmark toast", fmt.Sprintf("host-%d", idx%40), reason, "",
				)
			}
			_ = tx.Commit()
		}
		written = target
		fillTime := time.Since(start)
		insertRate := float64(toWrite) / fillTime.Seconds()

		// Update query planner statistics after bulk insert
		_, _ = store.DB().Exec("ANALYZE")

		since := now.Add(-time.Hour).UTC().Format(history.TimeLayout)
		type benchmark struct {
			name string
			fn   func()
		}
		benchmarks := []benchmark{
			{"Recent 50", func() { _, _ = store.Query(history.QueryOpts{Limit: 50}) }},
			{"Alerts only", func() { _, _ = store.Query(history.QueryOpts{Kind: "alert", Limit: 50}) }},
			{"By agent", func() { _, _ = store.Query(history.QueryOpts{Agent: "host-7", Limit: 50}) }},
			{"Last hour", func() { _, _ = store.Query(history.QueryOpts{Since: since, Limit: 1000}) }},
			{"Kind stats (all rows)", func() { _, _ = store.QueryKindStats() }},
		}

		fi, _ := os.Stat(filepath.Join(dir, "bench.db"))
		wal, _ := os.Stat(filepath.Join(dir, "bench.db-wal"))
		dbMB := float64(fi.Size()) / (1024 * 1024)
		walMB := float64(0)
		if wal != nil {
			walMB = float64(wal.Size()) / (1024 * 1024)
		}

		fmt.Printf("--- %dk rows | %.0f MB | %.0f ins/sec ---\n",
			written/1000, dbMB+walMB, insertRate)

		iters := 20
		if written >= 500000 {
			iters = 5
		}
		for _, b := range benchmarks {
			start := time.Now()
			for range iters {
				b.fn()
			}
			elapsed := time.Since(start)
			avgMs := float64(elapsed.Microseconds()) / float64(iters) / 1000.0
			fmt.Printf("  %-22s %7.1f ms\n", b.name, avgMs)
		}
		fmt.Println()
	}
}
