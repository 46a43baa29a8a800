package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreerevanth/behaviorlens/pkg/monitor/alert"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/event"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/rule"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := NewArchive(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func testEvent(id, subjectID, typ string, at time.Time) *event.Event {
	return &event.Event{
		ID:         id,
		SubjectID:  subjectID,
		Type:       typ,
		Timestamp:  at,
		Confidence: 0.9,
		Attributes: map[string]float64{"duration": 1.5},
		Tags:       map[string]string{"camera": "cam-1"},
		ReceivedAt: at,
	}
}

func testAlert(id, ruleName, subjectID string, at time.Time) *alert.Alert {
	return &alert.Alert{
		ID:          id,
		RuleID:      "rule-" + ruleName,
		RuleName:    ruleName,
		SubjectID:   subjectID,
		EventType:   "fall_detected",
		Severity:    rule.SeverityCritical,
		Status:      alert.StatusFiring,
		Message:     "fall detected",
		Value:       0.97,
		Details:     map[string]any{"count": 3.0},
		TriggeredAt: at,
	}
}

func TestArchive_Events(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)

	require.NoError(t, a.ArchiveEvent(ctx, testEvent("e1", "s1", "fall_detected", base.Add(-2*time.Hour))))
	require.NoError(t, a.ArchiveEvent(ctx, testEvent("e2", "s1", "person_detected", base.Add(-time.Hour))))
	require.NoError(t, a.ArchiveEvent(ctx, testEvent("e3", "s2", "fall_detected", base)))

	all, total, err := a.ListEvents(ctx, event.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "e3", all[0].ID)
	assert.Equal(t, map[string]float64{"duration": 1.5}, all[0].Attributes)
	assert.Equal(t, "cam-1", all[0].Tags["camera"])
	assert.Equal(t, base.UnixMilli(), all[0].Timestamp.UnixMilli())

	bySubject, _, err := a.ListEvents(ctx, event.Filter{SubjectID: "s1"})
	require.NoError(t, err)
	assert.Len(t, bySubject, 2)

	byType, _, err := a.ListEvents(ctx, event.Filter{Type: "person_detected"})
	require.NoError(t, err)
	assert.Len(t, byType, 1)

	window, _, err := a.ListEvents(ctx, event.Filter{
		Since: base.Add(-90 * time.Minute),
		Until: base.Add(-time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "e2", window[0].ID)

	page, total, err := a.ListEvents(ctx, event.Filter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)
}

func TestArchive_Alerts(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)

	require.NoError(t, a.ArchiveAlert(ctx, testAlert("a1", "fall-alert", "s1", base.Add(-time.Hour))))
	require.NoError(t, a.ArchiveAlert(ctx, testAlert("a2", "inactivity", "s2", base)))

	all, total, err := a.ListAlerts(ctx, alert.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "a2", all[0].ID)
	assert.Equal(t, rule.SeverityCritical, all[0].Severity)
	assert.Nil(t, all[0].ResolvedAt)

	// Re-archiving the same ID updates lifecycle fields.
	resolved := testAlert("a1", "fall-alert", "s1", base.Add(-time.Hour))
	now := base
	resolved.Status = alert.StatusResolved
	resolved.ResolvedAt = &now
	require.NoError(t, a.ArchiveAlert(ctx, resolved))

	got, _, err := a.ListAlerts(ctx, alert.Filter{Status: alert.StatusResolved})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	require.NotNil(t, got[0].ResolvedAt)
	assert.Equal(t, now.UnixMilli(), got[0].ResolvedAt.UnixMilli())
}

func TestArchive_Purge(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, a.ArchiveEvent(ctx, testEvent("old", "s1", "motion", base.Add(-48*time.Hour))))
	require.NoError(t, a.ArchiveEvent(ctx, testEvent("new", "s1", "motion", base)))
	require.NoError(t, a.ArchiveAlert(ctx, testAlert("a-old", "fall-alert", "s1", base.Add(-48*time.Hour))))
	require.NoError(t, a.ArchiveAlert(ctx, testAlert("a-new", "fall-alert", "s1", base)))

	events, alerts, err := a.Purge(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), events)
	assert.Equal(t, int64(1), alerts)

	remaining, _, err := a.ListEvents(ctx, event.Filter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "new", remaining[0].ID)
}

func TestArchive_CountsSince(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, a.ArchiveEvent(ctx, testEvent("e1", "s1", "motion", base.Add(-2*time.Hour))))
	require.NoError(t, a.ArchiveEvent(ctx, testEvent("e2", "s1", "motion", base)))
	require.NoError(t, a.ArchiveAlert(ctx, testAlert("a1", "fall-alert", "s1", base)))

	events, alerts, err := a.CountsSince(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), events)
	assert.Equal(t, int64(1), alerts)
}

func TestArchive_BuildActivityReport(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	base := time.Now()
	from, to := base.Add(-time.Hour), base.Add(time.Minute)

	require.NoError(t, a.ArchiveEvent(ctx, testEvent("e1", "s1", "fall_detected", base)))
	require.NoError(t, a.ArchiveEvent(ctx, testEvent("e2", "s1", "person_detected", base)))
	require.NoError(t, a.ArchiveEvent(ctx, testEvent("e3", "s2", "person_detected", base)))
	require.NoError(t, a.ArchiveEvent(ctx, testEvent("outside", "s2", "person_detected", base.Add(-2*time.Hour))))

	require.NoError(t, a.ArchiveAlert(ctx, testAlert("a1", "fall-alert", "s1", base)))
	require.NoError(t, a.ArchiveAlert(ctx, testAlert("a2", "fall-alert", "s1", base)))
	require.NoError(t, a.ArchiveAlert(ctx, testAlert("a3", "inactivity", "s2", base)))

	report, err := a.BuildActivityReport(ctx, from, to)
	require.NoError(t, err)

	assert.Equal(t, int64(3), report.TotalEvents)
	assert.Equal(t, int64(2), report.EventsByType["person_detected"])
	assert.Equal(t, int64(3), report.TotalAlerts)
	assert.Equal(t, int64(2), report.AlertsByRule["fall-alert"])
	assert.Equal(t, "s1", report.BusiestSubject)
}
