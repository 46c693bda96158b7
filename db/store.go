package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"serpmonitor/models"
)

var ErrNotFound = errors.New("not found")

// Store is the persistence layer for runs, alerts and target configuration.
// Queries are written with ? placeholders and rebound for Postgres.
type Store struct {
	db     *sql.DB
	driver string
}

func NewStore(conn *sql.DB, driver string) *Store {
	return &Store{db: conn, driver: driver}
}

func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// Runs

func (s *Store) InsertRun(ctx context.Context, run *models.DiagnosticRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO diagnostic_run (id, type, engine, params, result, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), run.ID, run.Type, run.Engine, run.Params, run.Result, string(run.Status), toNanos(run.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = "id, type, engine, params, result, status, created_at"

func scanRuns(rows *sql.Rows) ([]models.DiagnosticRun, error) {
	defer rows.Close()
	runs := []models.DiagnosticRun{}
	for rows.Next() {
		var r models.DiagnosticRun
		var status string
		var created int64
		if err := rows.Scan(&r.ID, &r.Type, &r.Engine, &r.Params, &r.Result, &status, &created); err != nil {
			return nil, err
		}
		r.Status = models.Status(status)
		r.CreatedAt = fromNanos(created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListRecentRuns returns up to limit runs for engine, newest first.
func (s *Store) ListRecentRuns(ctx context.Context, engine string, limit int) ([]models.DiagnosticRun, error) {
	return s.ListRuns(ctx, engine, limit, 0)
}

// ListRuns pages through run history newest first. An empty engine lists
// every engine.
func (s *Store) ListRuns(ctx context.Context, engine string, limit, offset int) ([]models.DiagnosticRun, error) {
	query := "SELECT " + runColumns + " FROM diagnostic_run"
	var args []interface{}
	if engine != "" {
		query += " WHERE engine = ?"
		args = append(args, engine)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return scanRuns(rows)
}

func (s *Store) LatestRun(ctx context.Context, engine string) (*models.DiagnosticRun, error) {
	runs, err := s.ListRuns(ctx, engine, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return &runs[0], nil
}

func (s *Store) EngineStats(ctx context.Context) ([]models.EngineStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT engine,
			COUNT(*),
			SUM(CASE WHEN status = 'STABLE' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'FLAKY' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'PARSER_FAIL' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'UPSTREAM_BLOCK' THEN 1 ELSE 0 END)
		FROM diagnostic_run
		GROUP BY engine
		ORDER BY engine
	`)
	if err != nil {
		return nil, fmt.Errorf("engine stats: %w", err)
	}
	defer rows.Close()

	stats := []models.EngineStats{}
	for rows.Next() {
		var st models.EngineStats
		if err := rows.Scan(&st.Engine, &st.RunCount, &st.StableCount, &st.FlakyCount, &st.ParserFail, &st.UpstreamBlock); err != nil {
			return nil, err
		}
		if st.RunCount > 0 {
			st.StableRate = float64(st.StableCount) / float64(st.RunCount) * 100
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Alerts

func (s *Store) InsertAlert(ctx context.Context, a *models.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = models.AlertPending
	}
	if a.Type == "" {
		a.Type = models.AlertTypeDashboard
	}
	var runID interface{}
	if a.DiagnosticRunID != "" {
		runID = a.DiagnosticRunID
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO alert (id, diagnostic_run_id, engine, type, status, message, severity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), a.ID, runID, a.Engine, a.Type, a.Status, a.Message, string(a.Severity), toNanos(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListAlerts pages through alerts newest first, optionally filtered by status.
func (s *Store) ListAlerts(ctx context.Context, status string, limit, offset int) ([]models.Alert, error) {
	query := "SELECT id, diagnostic_run_id, engine, type, status, message, severity, created_at FROM alert"
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		var a models.Alert
		var runID sql.NullString
		var severity string
		var created int64
		if err := rows.Scan(&a.ID, &runID, &a.Engine, &a.Type, &a.Status, &a.Message, &severity, &created); err != nil {
			return nil, err
		}
		a.DiagnosticRunID = runID.String
		a.Severity = models.Severity(severity)
		a.CreatedAt = fromNanos(created)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *Store) UnreadAlertCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM alert WHERE status = ?"), models.AlertPending).Scan(&n)
	return n, err
}

func (s *Store) setAlertStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("UPDATE alert SET status = ? WHERE id = ?"), status, id)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) MarkAlertRead(ctx context.Context, id string) error {
	return s.setAlertStatus(ctx, id, models.AlertRead)
}

func (s *Store) MarkAlertDismissed(ctx context.Context, id string) error {
	return s.setAlertStatus(ctx, id, models.AlertDismissed)
}

// MarkAllAlertsRead moves every pending alert to read and reports how many
// changed.
func (s *Store) MarkAllAlertsRead(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind("UPDATE alert SET status = ? WHERE status = ?"), models.AlertRead, models.AlertPending)
	if err != nil {
		return 0, fmt.Errorf("mark all alerts read: %w", err)
	}
	return res.RowsAffected()
}

// CountRecentAlerts counts alerts for engine with exactly message created
// after since.
func (s *Store) CountRecentAlerts(ctx context.Context, engine, message string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM alert
		WHERE engine = ? AND message = ? AND created_at > ?
	`), engine, message, toNanos(since)).Scan(&n)
	return n, err
}

func (s *Store) DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM alert WHERE created_at < ?"), toNanos(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete alerts: %w", err)
	}
	return res.RowsAffected()
}

// Target configuration

func (s *Store) ListTargetConfigs(ctx context.Context) ([]models.TargetConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, engine, label, params, interval_hours, enabled, last_run_at, created_at, updated_at
		FROM monitoring_config
		ORDER BY created_at, engine
	`)
	if err != nil {
		return nil, fmt.Errorf("list target configs: %w", err)
	}
	defer rows.Close()

	targets := []models.TargetConfig{}
	for rows.Next() {
		var t models.TargetConfig
		var params string
		var lastRun sql.NullInt64
		var created, updated int64
		if err := rows.Scan(&t.ID, &t.Engine, &t.Label, &params, &t.IntervalHours, &t.Enabled, &lastRun, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan target config: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &t.Params); err != nil || t.Params == nil {
			t.Params = map[string]interface{}{}
		}
		if lastRun.Valid {
			at := fromNanos(lastRun.Int64)
			t.LastRunAt = &at
		}
		c, u := fromNanos(created), fromNanos(updated)
		t.CreatedAt, t.UpdatedAt = &c, &u
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// UpsertTargetConfig inserts or replaces the configuration of t.Engine.
// last_run_at is left untouched on update.
func (s *Store) UpsertTargetConfig(ctx context.Context, t *models.TargetConfig) error {
	params := t.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	if t.IntervalHours < 1 {
		t.IntervalHours = 1
	}
	now := toNanos(time.Now())

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO monitoring_config (id, engine, label, params, interval_hours, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (engine) DO UPDATE SET
			label = excluded.label,
			params = excluded.params,
			interval_hours = excluded.interval_hours,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`), uuid.NewString(), t.Engine, t.Label, string(paramsJSON), t.IntervalHours, t.Enabled, now, now)
	if err != nil {
		return fmt.Errorf("upsert target config: %w", err)
	}

	var created, updated int64
	var lastRun sql.NullInt64
	err = s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, last_run_at, created_at, updated_at FROM monitoring_config WHERE engine = ?
	`), t.Engine).Scan(&t.ID, &lastRun, &created, &updated)
	if err != nil {
		return fmt.Errorf("reload target config: %w", err)
	}
	c, u := fromNanos(created), fromNanos(updated)
	t.CreatedAt, t.UpdatedAt = &c, &u
	if lastRun.Valid {
		at := fromNanos(lastRun.Int64)
		t.LastRunAt = &at
	}
	return nil
}

// TouchLastRun records a completed scan on the stored configuration of
// engine. Engines without a stored row are ignored.
func (s *Store) TouchLastRun(ctx context.Context, engine string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE monitoring_config SET last_run_at = ?, updated_at = ? WHERE engine = ?
	`), toNanos(at), toNanos(at), engine)
	if err != nil {
		return fmt.Errorf("touch last run: %w", err)
	}
	return nil
}
