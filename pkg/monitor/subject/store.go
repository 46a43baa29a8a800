package subject

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("subject not found")
	ErrExists      = errors.New("subject already exists")
	ErrInvalidID   = errors.New("invalid subject id")
	ErrInvalidType = errors.New("subject type is required")
	ErrInvalidName = errors.New("subject name is required")
)

type Store interface {
	Create(ctx context.Context, s *Subject) error
	Get(ctx context.Context, id string) (*Subject, error)
	List(ctx context.Context, filter Filter) ([]Subject, int, error)
	Update(ctx context.Context, s *Subject) error
	Delete(ctx context.Context, id string) error
}

type MemoryStore struct {
	subjects map[string]*Subject
	mu       sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subjects: make(map[string]*Subject),
	}
}

func (s *MemoryStore) Create(ctx context.Context, sub *Subject) error {
	if sub.Name == "" {
		return ErrInvalidName
	}
	if sub.Type == "" {
		return ErrInvalidType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}

	if _, exists := s.subjects[sub.ID]; exists {
		return ErrExists
	}

	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	s.subjects[sub.ID] = sub
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.subjects[id]
	if !exists {
		return nil, ErrNotFound
	}
	return sub, nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]Subject, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Subject
	for _, sub := range s.subjects {
		if filter.Type != "" && sub.Type != filter.Type {
			continue
		}
		if filter.Profile != "" && sub.Profile != filter.Profile {
			continue
		}
		result = append(result, *sub)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
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

func (s *MemoryStore) Update(ctx context.Context, sub *Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.subjects[sub.ID]
	if !exists {
		return ErrNotFound
	}

	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = time.Now()
	s.subjects[sub.ID] = sub
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subjects[id]; !exists {
		return ErrNotFound
	}

	delete(s.subjects, id)
	return nil
}

var _ Store = (*MemoryStore)(nil)
