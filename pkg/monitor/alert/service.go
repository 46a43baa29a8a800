package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/sreerevanth/behaviorlens/pkg/infra/logger"
	"github.com/sreerevanth/behaviorlens/pkg/monitor"
)

// Archiver mirrors alert rows into the persistent archive. The archive
// upserts by ID, so lifecycle transitions re-archive the same alert.
type Archiver interface {
	ArchiveAlert(ctx context.Context, a *Alert) error
}

// Service owns alert lifecycle transitions. Alerts only move forward:
// firing -> acknowledged -> resolved, with acknowledge optional.
type Service struct {
	store   Store
	archive Archiver
	events  monitor.Publisher
}

func NewService(store Store, archive Archiver, events monitor.Publisher) *Service {
	if events == nil {
		events = monitor.NoopPublisher{}
	}
	return &Service{store: store, archive: archive, events: events}
}

func (s *Service) Create(ctx context.Context, a *Alert) error {
	if a.TriggeredAt.IsZero() {
		a.TriggeredAt = time.Now()
	}
	a.Status = StatusFiring

	if err := s.store.Create(ctx, a); err != nil {
		return fmt.Errorf("create alert: %w", err)
	}

	_ = s.events.Publish(monitor.NewChangeEvent("alert", "alert.fired", map[string]any{
		"alert_id":   a.ID,
		"rule_id":    a.RuleID,
		"subject_id": a.SubjectID,
		"severity":   string(a.Severity),
	}))

	return nil
}

func (s *Service) Acknowledge(ctx context.Context, id string) (*Alert, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusFiring {
		return nil, fmt.Errorf("%w: cannot acknowledge %s alert", ErrInvalidStatus, a.Status)
	}

	updated := *a
	now := time.Now()
	updated.Status = StatusAcknowledged
	updated.AcknowledgedAt = &now

	if err := s.store.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("acknowledge alert: %w", err)
	}
	s.rearchive(ctx, &updated)

	_ = s.events.Publish(monitor.NewChangeEvent("alert", "alert.acknowledged", map[string]any{
		"alert_id": id,
	}))

	return &updated, nil
}

func (s *Service) Resolve(ctx context.Context, id string) (*Alert, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusResolved {
		return nil, fmt.Errorf("%w: alert already resolved", ErrInvalidStatus)
	}

	updated := *a
	now := time.Now()
	updated.Status = StatusResolved
	updated.ResolvedAt = &now

	if err := s.store.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("resolve alert: %w", err)
	}
	s.rearchive(ctx, &updated)

	_ = s.events.Publish(monitor.NewChangeEvent("alert", "alert.resolved", map[string]any{
		"alert_id": id,
	}))

	return &updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Alert, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]Alert, int, error) {
	return s.store.List(ctx, filter)
}

func (s *Service) ListActive(ctx context.Context) ([]Alert, error) {
	return s.store.ListActive(ctx)
}

// rearchive pushes the updated status to the archive. The in-memory
// store is authoritative; archive failures are logged, not returned.
func (s *Service) rearchive(ctx context.Context, a *Alert) {
	if s.archive == nil {
		return
	}
	if err := s.archive.ArchiveAlert(ctx, a); err != nil {
		logger.Error(ctx, "failed to re-archive alert",
			"alert_id", a.ID,
			"status", string(a.Status),
			"error", err)
	}
}
