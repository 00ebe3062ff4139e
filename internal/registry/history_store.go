package registry

import (
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// HistoryStore is an optional SQLite-backed record of past context runs,
// used for queryable history beyond the live JSON registry's current-state
// view. Not required by any invariant in spec.md §4.10; a supplemental
// convenience grounded on the pack's sqlite stack. Schema migrations are
// plain embedded SQL files applied in filename order; the golang-migrate
// engine is not used.
type HistoryStore struct {
	db *sql.DB
}

// OpenHistoryStore opens (creating if necessary) a SQLite database at path
// and applies any pending embedded migrations.
func OpenHistoryStore(path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history store %s: %w", path, err)
	}
	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &HistoryStore{db: db}, nil
}

func applyMigrations(db *sql.DB) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, name := range names {
		var applied int
		if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}
		sqlBytes, err := migrationsFS.ReadFile(path.Join("migrations", name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

func (h *HistoryStore) Close() error {
	return h.db.Close()
}

// RecordRunStart inserts a new run row and returns its id.
func (h *HistoryStore) RecordRunStart(contextName, tmuxSession, workingDir string, agentCount int) (int64, error) {
	res, err := h.db.Exec(
		`INSERT INTO context_runs (context_name, tmux_session, working_dir, agent_count, started_at) VALUES (?, ?, ?, ?, ?)`,
		contextName, tmuxSession, workingDir, agentCount, time.Now())
	if err != nil {
		return 0, fmt.Errorf("record run start: %w", err)
	}
	return res.LastInsertId()
}

// RecordRunEnd stamps ended_at for a run id.
func (h *HistoryStore) RecordRunEnd(runID int64) error {
	_, err := h.db.Exec(`UPDATE context_runs SET ended_at = ? WHERE id = ?`, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("record run end: %w", err)
	}
	return nil
}

// Run is one historical context run.
type Run struct {
	ID          int64
	ContextName string
	TmuxSession string
	WorkingDir  string
	AgentCount  int
	StartedAt   time.Time
	EndedAt     sql.NullTime
}

// QueryRuns returns every recorded run for contextName, most recent first.
func (h *HistoryStore) QueryRuns(contextName string) ([]Run, error) {
	rows, err := h.db.Query(
		`SELECT id, context_name, tmux_session, working_dir, agent_count, started_at, ended_at
		 FROM context_runs WHERE context_name = ? ORDER BY started_at DESC`, contextName)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.ContextName, &r.TmuxSession, &r.WorkingDir, &r.AgentCount, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
