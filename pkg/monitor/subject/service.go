package subject

import (
	"context"
	"fmt"

	"github.com/sreerevanth/behaviorlens/pkg/monitor"
)

// Service wraps the store with bus announcements so the rest of the
// system can react to registry changes.
type Service struct {
	store  Store
	events monitor.Publisher
}

func NewService(store Store, events monitor.Publisher) *Service {
	if events == nil {
		events = monitor.NoopPublisher{}
	}
	return &Service{store: store, events: events}
}

type RegisterInput struct {
	Name     string
	Type     string
	Profile  string
	Channels []string
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*Subject, error) {
	sub := &Subject{
		Name:     input.Name,
		Type:     input.Type,
		Profile:  input.Profile,
		Channels: input.Channels,
	}

	if err := s.store.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("register subject: %w", err)
	}

	_ = s.events.Publish(monitor.NewChangeEvent("subject", "subject.registered", map[string]any{
		"subject_id": sub.ID,
		"type":       sub.Type,
	}))

	return sub, nil
}

type UpdateInput struct {
	Name     string
	Profile  string
	Channels []string
}

func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*Subject, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}

	updated := *sub
	if input.Name != "" {
		updated.Name = input.Name
	}
	if input.Profile != "" {
		updated.Profile = input.Profile
	}
	if input.Channels != nil {
		updated.Channels = input.Channels
	}

	if err := s.store.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update subject: %w", err)
	}

	_ = s.events.Publish(monitor.NewChangeEvent("subject", "subject.updated", map[string]any{
		"subject_id": id,
	}))

	return &updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}

	_ = s.events.Publish(monitor.NewChangeEvent("subject", "subject.deleted", map[string]any{
		"subject_id": id,
	}))

	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Subject, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]Subject, int, error) {
	return s.store.List(ctx, filter)
}
