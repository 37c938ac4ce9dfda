package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"taskpulse/internal/engine"
	"taskpulse/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

type Store struct {
	db  *sql.DB
	log logx.Logger
}

var _ engine.Store = (*Store)(nil)

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the handle for test fixtures.
func (s *Store) DB() *sql.DB { return s.db }

// ListRecurringDoneTasks loads every candidate task: status done, non-null
// review date, non-null frequency. Org members, enabled custom checks with
// their run history (newest-first) and integration check runs are attached.
func (s *Store) ListRecurringDoneTasks(ctx context.Context) ([]engine.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.org_id, t.title, t.status, t.review_date, t.frequency, o.name
		FROM tasks t
		JOIN organizations o ON o.id = t.org_id
		WHERE t.status = ? AND t.review_date IS NOT NULL AND t.frequency IS NOT NULL
		ORDER BY t.id`,
		string(engine.StatusDone),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []engine.Task
	byID := map[string]int{}
	orgIDs := map[string]bool{}
	for rows.Next() {
		var (
			t      engine.Task
			review sql.NullString
			freq   sql.NullString
			status string
		)
		if err := rows.Scan(&t.ID, &t.Org.ID, &t.Title, &status, &review, &freq, &t.Org.Name); err != nil {
			return nil, err
		}
		t.Status = engine.Status(status)
		if review.Valid {
			at, err := parseTime(review.String)
			if err != nil {
				return nil, fmt.Errorf("task %s: bad review_date: %w", t.ID, err)
			}
			t.ReviewDate = &at
		}
		if freq.Valid {
			t.Frequency = engine.ParseFrequency(freq.String)
		}
		byID[t.ID] = len(tasks)
		orgIDs[t.Org.ID] = true
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	members, err := s.loadMembers(ctx, keys(orgIDs))
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Org.Members = members[tasks[i].Org.ID]
	}

	taskIDs := make([]string, 0, len(tasks))
	for _, t := range tasks {
		taskIDs = append(taskIDs, t.ID)
	}
	if err := s.loadCustomChecks(ctx, taskIDs, byID, tasks); err != nil {
		return nil, err
	}
	if err := s.loadIntegrationRuns(ctx, taskIDs, byID, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Store) loadMembers(ctx context.Context, orgIDs []string) (map[string][]engine.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, user_id, email, name, active, deactivated, platform_admin
		FROM members WHERE org_id IN (`+placeholders(len(orgIDs))+`)`,
		toAny(orgIDs)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]engine.Member{}
	for rows.Next() {
		var (
			orgID string
			m     engine.Member
		)
		if err := rows.Scan(&orgID, &m.UserID, &m.Email, &m.Name, &m.Active, &m.Deactivated, &m.PlatformAdmin); err != nil {
			return nil, err
		}
		out[orgID] = append(out[orgID], m)
	}
	return out, rows.Err()
}

func (s *Store) loadCustomChecks(ctx context.Context, taskIDs []string, byID map[string]int, tasks []engine.Task) error {
	// LEFT JOIN keeps checks with zero runs: those count as not passing.
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.task_id, c.id, r.id, r.evaluation_status, r.created_at
		FROM custom_checks c
		LEFT JOIN custom_check_runs r ON r.check_id = c.id
		WHERE c.enabled = 1 AND c.task_id IN (`+placeholders(len(taskIDs))+`)
		ORDER BY c.id, r.created_at DESC`,
		toAny(taskIDs)...,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	checks := map[string]*engine.CustomCheck{} // check id -> check
	order := map[string][]string{}             // task id -> check ids in order
	for rows.Next() {
		var (
			taskID, checkID string
			runID, status   sql.NullString
			createdAt       sql.NullString
		)
		if err := rows.Scan(&taskID, &checkID, &runID, &status, &createdAt); err != nil {
			return err
		}
		c, ok := checks[checkID]
		if !ok {
			c = &engine.CustomCheck{ID: checkID}
			checks[checkID] = c
			order[taskID] = append(order[taskID], checkID)
		}
		if runID.Valid {
			run := engine.CustomRun{ID: runID.String}
			if status.Valid {
				run.Status = engine.ParseEvalStatus(status.String)
			}
			if createdAt.Valid {
				if at, err := parseTime(createdAt.String); err == nil {
					run.CreatedAt = at
				}
			}
			c.Runs = append(c.Runs, run)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for taskID, checkIDs := range order {
		i, ok := byID[taskID]
		if !ok {
			continue
		}
		for _, id := range checkIDs {
			tasks[i].CustomChecks = append(tasks[i].CustomChecks, *checks[id])
		}
	}
	return nil
}

func (s *Store) loadIntegrationRuns(ctx context.Context, taskIDs []string, byID map[string]int, tasks []engine.Task) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, id, check_id, status, created_at
		FROM integration_check_runs
		WHERE task_id IN (`+placeholders(len(taskIDs))+`)`,
		toAny(taskIDs)...,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			taskID, status, createdAt string
			r                         engine.IntegrationRun
		)
		if err := rows.Scan(&taskID, &r.ID, &r.CheckID, &status, &createdAt); err != nil {
			return err
		}
		r.Status = engine.ParseCheckStatus(status)
		if at, err := parseTime(createdAt); err == nil {
			r.CreatedAt = at
		}
		if i, ok := byID[taskID]; ok {
			tasks[i].IntegrationRuns = append(tasks[i].IntegrationRuns, r)
		}
	}
	return rows.Err()
}

// BulkSetStatus sets the status of every listed task in one statement.
// Repeating an identical write is harmless, which is what makes a crashed
// run safe to re-run.
func (s *Store) BulkSetStatus(ctx context.Context, taskIDs []string, status engine.Status) error {
	if len(taskIDs) == 0 {
		return nil
	}
	args := append([]any{string(status)}, toAny(taskIDs)...)
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ? WHERE id IN (`+placeholders(len(taskIDs))+`)`,
		args...,
	)
	return err
}

// AppendRun records one invocation's summary in the audit trail.
func (s *Store) AppendRun(ctx context.Context, r engine.RunResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs(id, started_at, finished_at, inspected, overdue, kept_done,
			to_todo, to_failed, emails_sent, emails_failed, skipped, err)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO NOTHING`,
		r.RunID,
		r.StartedAt.Format(time.RFC3339Nano),
		nullTime(r.FinishedAt),
		r.Inspected, r.Overdue, r.KeptDone,
		r.MovedToTodo, r.MovedToFailed,
		r.EmailsSent, r.EmailsFailed, r.Skipped,
		nullStr(r.Err),
	)
	return err
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
