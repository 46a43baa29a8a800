package alert

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("alert not found")
	ErrInvalidStatus = errors.New("invalid alert status transition")
)

type Store interface {
	Create(ctx context.Context, a *Alert) error
	Get(ctx context.Context, id string) (*Alert, error)
	List(ctx context.Context, filter Filter) ([]Alert, int, error)
	Update(ctx context.Context, a *Alert) error
	ListActive(ctx context.Context) ([]Alert, error)
}

type MemoryStore struct {
	alerts map[string]*Alert
	mu     sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts: make(map[string]*Alert),
	}
}

func (s *MemoryStore) Create(ctx context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = StatusFiring
	}

	s.alerts[a.ID] = a
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.alerts[id]
	if !exists {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]Alert, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Alert
	for _, a := range s.alerts {
		if filter.RuleID != "" && a.RuleID != filter.RuleID {
			continue
		}
		if filter.SubjectID != "" && a.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		if !filter.Since.IsZero() && a.TriggeredAt.Before(filter.Since) {
			continue
		}
		result = append(result, *a)
	}

	// Newest first; alert lists are read from the top.
	sort.Slice(result, func(i, j int) bool {
		return result[i].TriggeredAt.After(result[j].TriggeredAt)
	})

	total := len(result)

	offset := filter.Offset
	if offset > len(result) {
		offset = len(result)
	}

	end := len(result)
	if filter.Limit > 0 {
		end = offset + filter.Limit
		if end > len(result) {
			end = len(result)
		}
	}

	return result[offset:end], total, nil
}

func (s *MemoryStore) Update(ctx context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[a.ID]; !exists {
		return ErrNotFound
	}

	s.alerts[a.ID] = a
	return nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Alert
	for _, a := range s.alerts {
		if a.Active() {
			result = append(result, *a)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TriggeredAt.After(result[j].TriggeredAt)
	})
	return result, nil
}

var _ Store = (*MemoryStore)(nil)
