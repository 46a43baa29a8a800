package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreerevanth/behaviorlens/pkg/monitor"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/rule"
)

func newTestAlert(ruleID, subjectID string) *Alert {
	return &Alert{
		RuleID:      ruleID,
		RuleName:    "fall-alert",
		SubjectID:   subjectID,
		EventType:   "fall_detected",
		Severity:    rule.SeverityCritical,
		Message:     "fall detected with high confidence",
		Value:       0.97,
		TriggeredAt: time.Now(),
	}
}

// --- store ---

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a := newTestAlert("r1", "s1")
	require.NoError(t, store.Create(ctx, a))
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, StatusFiring, a.Status)

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "fall-alert", got.RuleName)
	assert.Equal(t, 0.97, got.Value)
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_List_Filters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	a := newTestAlert("r1", "s1")
	a.TriggeredAt = base.Add(-2 * time.Hour)

	b := newTestAlert("r2", "s1")
	b.Severity = rule.SeverityWarning
	b.TriggeredAt = base.Add(-1 * time.Hour)

	c := newTestAlert("r1", "s2")
	c.Status = StatusResolved
	c.TriggeredAt = base

	for _, al := range []*Alert{a, b, c} {
		require.NoError(t, store.Create(ctx, al))
	}

	all, total, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	// Newest first.
	assert.Equal(t, c.ID, all[0].ID)
	assert.Equal(t, a.ID, all[2].ID)

	byRule, _, err := store.List(ctx, Filter{RuleID: "r1"})
	require.NoError(t, err)
	assert.Len(t, byRule, 2)

	bySubject, _, err := store.List(ctx, Filter{SubjectID: "s1"})
	require.NoError(t, err)
	assert.Len(t, bySubject, 2)

	byStatus, _, err := store.List(ctx, Filter{Status: StatusResolved})
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)

	bySeverity, _, err := store.List(ctx, Filter{Severity: rule.SeverityWarning})
	require.NoError(t, err)
	assert.Len(t, bySeverity, 1)

	recent, _, err := store.List(ctx, Filter{Since: base.Add(-90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestMemoryStore_List_Pagination(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		a := newTestAlert("r1", "s1")
		a.TriggeredAt = time.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Create(ctx, a))
	}

	page, total, err := store.List(ctx, Filter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)

	past, total, err := store.List(ctx, Filter{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, past)
}

func TestMemoryStore_ListActive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	firing := newTestAlert("r1", "s1")
	acked := newTestAlert("r1", "s2")
	acked.Status = StatusAcknowledged
	resolved := newTestAlert("r1", "s3")
	resolved.Status = StatusResolved

	for _, a := range []*Alert{firing, acked, resolved} {
		require.NoError(t, store.Create(ctx, a))
	}

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

// --- service ---

type recordingPublisher struct {
	events []monitor.Event
}

func (p *recordingPublisher) Publish(e monitor.Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type())
	}
	return out
}

func TestService_Create_PublishesFired(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(NewMemoryStore(), nil, pub)

	a := newTestAlert("r1", "s1")
	a.TriggeredAt = time.Time{}
	require.NoError(t, svc.Create(context.Background(), a))

	assert.False(t, a.TriggeredAt.IsZero())
	assert.Equal(t, []string{"alert.fired"}, pub.types())
}

func TestService_AcknowledgeAndResolve(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(NewMemoryStore(), nil, pub)
	ctx := context.Background()

	a := newTestAlert("r1", "s1")
	require.NoError(t, svc.Create(ctx, a))

	acked, err := svc.Acknowledge(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAcknowledged, acked.Status)
	require.NotNil(t, acked.AcknowledgedAt)

	// Acknowledging twice is rejected.
	_, err = svc.Acknowledge(ctx, a.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	resolved, err := svc.Resolve(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = svc.Resolve(ctx, a.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	assert.Equal(t, []string{"alert.fired", "alert.acknowledged", "alert.resolved"}, pub.types())
}

type recordingArchiver struct {
	statuses []Status
	err      error
}

func (r *recordingArchiver) ArchiveAlert(ctx context.Context, a *Alert) error {
	if r.err != nil {
		return r.err
	}
	r.statuses = append(r.statuses, a.Status)
	return nil
}

func TestService_TransitionsReArchive(t *testing.T) {
	arch := &recordingArchiver{}
	svc := NewService(NewMemoryStore(), arch, nil)
	ctx := context.Background()

	a := newTestAlert("r1", "s1")
	require.NoError(t, svc.Create(ctx, a))

	_, err := svc.Acknowledge(ctx, a.ID)
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, a.ID)
	require.NoError(t, err)

	assert.Equal(t, []Status{StatusAcknowledged, StatusResolved}, arch.statuses)
}

func TestService_ReArchiveFailureIsNonFatal(t *testing.T) {
	arch := &recordingArchiver{err: errors.New("disk full")}
	svc := NewService(NewMemoryStore(), arch, nil)
	ctx := context.Background()

	a := newTestAlert("r1", "s1")
	require.NoError(t, svc.Create(ctx, a))

	acked, err := svc.Acknowledge(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAcknowledged, acked.Status)
}

func TestService_ResolveWithoutAcknowledge(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil, nil)
	ctx := context.Background()

	a := newTestAlert("r1", "s1")
	require.NoError(t, svc.Create(ctx, a))

	resolved, err := svc.Resolve(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)
	assert.Nil(t, resolved.AcknowledgedAt)
}
