package store

import (
	"context"
	"fmt"
	"time"
)

// ActivityReport summarizes archived traffic over a period, the data
// behind the reports endpoint.
type ActivityReport struct {
	From            time.Time        `json:"from"`
	To              time.Time        `json:"to"`
	TotalEvents     int64            `json:"total_events"`
	TotalAlerts     int64            `json:"total_alerts"`
	EventsByType    map[string]int64 `json:"events_by_type"`
	AlertsByRule    map[string]int64 `json:"alerts_by_rule"`
	AlertsBySubject map[string]int64 `json:"alerts_by_subject"`
	BusiestSubject  string           `json:"busiest_subject,omitempty"`
}

// BuildActivityReport aggregates events and alerts in [from, to).
func (a *Archive) BuildActivityReport(ctx context.Context, from, to time.Time) (*ActivityReport, error) {
	report := &ActivityReport{
		From:            from,
		To:              to,
		EventsByType:    make(map[string]int64),
		AlertsByRule:    make(map[string]int64),
		AlertsBySubject: make(map[string]int64),
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT type, COUNT(*) FROM events
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY type
	`, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("events by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		report.EventsByType[typ] = n
		report.TotalEvents += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = a.db.QueryContext(ctx, `
		SELECT rule_name, COUNT(*) FROM alerts
		WHERE triggered_at >= ? AND triggered_at < ?
		GROUP BY rule_name
	`, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("alerts by rule: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan alert count: %w", err)
		}
		report.AlertsByRule[name] = n
		report.TotalAlerts += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = a.db.QueryContext(ctx, `
		SELECT subject_id, COUNT(*) FROM alerts
		WHERE triggered_at >= ? AND triggered_at < ?
		GROUP BY subject_id
		ORDER BY COUNT(*) DESC
	`, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("alerts by subject: %w", err)
	}
	defer rows.Close()
	first := true
	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan subject count: %w", err)
		}
		report.AlertsBySubject[id] = n
		if first {
			report.BusiestSubject = id
			first = false
		}
	}
	return report, rows.Err()
}
