// Package store provides the SQLite archive for events and alerts. The
// archive is the durable record behind reports and retention; live
// evaluation never reads from it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sreerevanth/behaviorlens/pkg/monitor/alert"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/event"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/rule"
)

type Archive struct {
	db *sql.DB
}

func NewArchive(dbPath string) (*Archive, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	// WAL lets intake writes overlap report reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	a := &Archive{db: db}
	if err := a.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return a, nil
}

func (a *Archive) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		confidence REAL NOT NULL,
		attributes TEXT,
		tags TEXT,
		received_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_subject ON events(subject_id);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL,
		rule_name TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		subject_name TEXT,
		event_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT,
		value REAL NOT NULL,
		details TEXT,
		triggered_at INTEGER NOT NULL,
		acknowledged_at INTEGER,
		resolved_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_subject ON alerts(subject_id);
	CREATE INDEX IF NOT EXISTS idx_alerts_rule ON alerts(rule_id);
	CREATE INDEX IF NOT EXISTS idx_alerts_triggered ON alerts(triggered_at);
	`
	_, err := a.db.Exec(query)
	return err
}

func (a *Archive) ArchiveEvent(ctx context.Context, e *event.Event) error {
	attrsJSON, _ := json.Marshal(e.Attributes)
	tagsJSON, _ := json.Marshal(e.Tags)

	query := `
		INSERT INTO events (id, subject_id, type, timestamp, confidence, attributes, tags, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := a.db.ExecContext(ctx, query,
		e.ID, e.SubjectID, e.Type, e.Timestamp.UnixMilli(), e.Confidence,
		string(attrsJSON), string(tagsJSON), e.ReceivedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (a *Archive) ListEvents(ctx context.Context, filter event.Filter) ([]event.Event, int, error) {
	whereClause := "1=1"
	args := []interface{}{}

	if filter.SubjectID != "" {
		whereClause += " AND subject_id = ?"
		args = append(args, filter.SubjectID)
	}
	if filter.Type != "" {
		whereClause += " AND type = ?"
		args = append(args, filter.Type)
	}
	if !filter.Since.IsZero() {
		whereClause += " AND timestamp >= ?"
		args = append(args, filter.Since.UnixMilli())
	}
	if !filter.Until.IsZero() {
		whereClause += " AND timestamp < ?"
		args = append(args, filter.Until.UnixMilli())
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM events WHERE %s", whereClause)
	var total int
	if err := a.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, subject_id, type, timestamp, confidence, attributes, tags, received_at
		FROM events WHERE %s ORDER BY timestamp DESC
	`, whereClause)
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var result []event.Event
	for rows.Next() {
		var e event.Event
		var attrsStr, tagsStr string
		var ts, received int64

		if err := rows.Scan(&e.ID, &e.SubjectID, &e.Type, &ts, &e.Confidence, &attrsStr, &tagsStr, &received); err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}

		e.Timestamp = time.UnixMilli(ts)
		e.ReceivedAt = time.UnixMilli(received)
		if attrsStr != "" {
			json.Unmarshal([]byte(attrsStr), &e.Attributes)
		}
		if tagsStr != "" {
			json.Unmarshal([]byte(tagsStr), &e.Tags)
		}
		result = append(result, e)
	}

	return result, total, rows.Err()
}

func (a *Archive) ArchiveAlert(ctx context.Context, al *alert.Alert) error {
	detailsJSON, _ := json.Marshal(al.Details)

	query := `
		INSERT INTO alerts (id, rule_id, rule_name, subject_id, subject_name, event_type,
			severity, status, message, value, details, triggered_at, acknowledged_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			acknowledged_at = excluded.acknowledged_at,
			resolved_at = excluded.resolved_at
	`
	_, err := a.db.ExecContext(ctx, query,
		al.ID, al.RuleID, al.RuleName, al.SubjectID, al.SubjectName, al.EventType,
		string(al.Severity), string(al.Status), al.Message, al.Value, string(detailsJSON),
		al.TriggeredAt.UnixMilli(), nullableMilli(al.AcknowledgedAt), nullableMilli(al.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert alert: %w", err)
	}
	return nil
}

func (a *Archive) ListAlerts(ctx context.Context, filter alert.Filter) ([]alert.Alert, int, error) {
	whereClause := "1=1"
	args := []interface{}{}

	if filter.RuleID != "" {
		whereClause += " AND rule_id = ?"
		args = append(args, filter.RuleID)
	}
	if filter.SubjectID != "" {
		whereClause += " AND subject_id = ?"
		args = append(args, filter.SubjectID)
	}
	if filter.Status != "" {
		whereClause += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Severity != "" {
		whereClause += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	if !filter.Since.IsZero() {
		whereClause += " AND triggered_at >= ?"
		args = append(args, filter.Since.UnixMilli())
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM alerts WHERE %s", whereClause)
	var total int
	if err := a.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, rule_id, rule_name, subject_id, subject_name, event_type,
			severity, status, message, value, details, triggered_at, acknowledged_at, resolved_at
		FROM alerts WHERE %s ORDER BY triggered_at DESC
	`, whereClause)
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var result []alert.Alert
	for rows.Next() {
		var al alert.Alert
		var severityStr, statusStr, detailsStr string
		var triggered int64
		var acked, resolved sql.NullInt64

		if err := rows.Scan(&al.ID, &al.RuleID, &al.RuleName, &al.SubjectID, &al.SubjectName,
			&al.EventType, &severityStr, &statusStr, &al.Message, &al.Value, &detailsStr,
			&triggered, &acked, &resolved); err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}

		al.Severity = rule.Severity(severityStr)
		al.Status = alert.Status(statusStr)
		al.TriggeredAt = time.UnixMilli(triggered)
		if acked.Valid {
			t := time.UnixMilli(acked.Int64)
			al.AcknowledgedAt = &t
		}
		if resolved.Valid {
			t := time.UnixMilli(resolved.Int64)
			al.ResolvedAt = &t
		}
		if detailsStr != "" {
			json.Unmarshal([]byte(detailsStr), &al.Details)
		}
		result = append(result, al)
	}

	return result, total, rows.Err()
}

// Purge removes events and alerts older than cutoff and returns the
// rows dropped from each table.
func (a *Archive) Purge(ctx context.Context, cutoff time.Time) (events int64, alerts int64, err error) {
	res, err := a.db.ExecContext(ctx, "DELETE FROM events WHERE timestamp < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, 0, fmt.Errorf("purge events: %w", err)
	}
	events, _ = res.RowsAffected()

	res, err = a.db.ExecContext(ctx, "DELETE FROM alerts WHERE triggered_at < ?", cutoff.UnixMilli())
	if err != nil {
		return events, 0, fmt.Errorf("purge alerts: %w", err)
	}
	alerts, _ = res.RowsAffected()

	return events, alerts, nil
}

// CountsSince reports archived event and alert totals newer than since,
// for the status endpoint and reports.
func (a *Archive) CountsSince(ctx context.Context, since time.Time) (events int64, alerts int64, err error) {
	if err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE timestamp >= ?", since.UnixMilli()).Scan(&events); err != nil {
		return 0, 0, fmt.Errorf("count events: %w", err)
	}
	if err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alerts WHERE triggered_at >= ?", since.UnixMilli()).Scan(&alerts); err != nil {
		return events, 0, fmt.Errorf("count alerts: %w", err)
	}
	return events, alerts, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) DB() *sql.DB {
	return a.db
}

func nullableMilli(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
