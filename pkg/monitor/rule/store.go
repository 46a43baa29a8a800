package rule

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("rule not found")
	ErrExists   = errors.New("rule already exists")
)

// Store holds compiled rules. Create and Update compile before
// inserting, so everything a Store returns is evaluable.
type Store interface {
	Create(ctx context.Context, r *Rule) error
	Get(ctx context.Context, id string) (*Rule, error)
	List(ctx context.Context, filter Filter) ([]Rule, int, error)
	Update(ctx context.Context, r *Rule) error
	Delete(ctx context.Context, id string) error
	SetEnabled(ctx context.Context, id string, enabled bool) (*Rule, error)
}

type MemoryStore struct {
	rules  map[string]*Rule
	byName map[string]string
	mu     sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:  make(map[string]*Rule),
		byName: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, r *Rule) error {
	if err := r.Compile(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	if _, exists := s.rules[r.ID]; exists {
		return ErrExists
	}
	if _, exists := s.byName[r.Name]; exists {
		return ErrExists
	}

	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.rules[r.ID] = r
	s.byName[r.Name] = r.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.rules[id]
	if !exists {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]Rule, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Rule
	for _, r := range s.rules {
		if filter.EnabledOnly && !r.Enabled {
			continue
		}
		if filter.EventType != "" && r.EventType != filter.EventType {
			continue
		}
		result = append(result, *r)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, len(result), nil
}

func (s *MemoryStore) Update(ctx context.Context, r *Rule) error {
	if err := r.Compile(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[r.ID]
	if !exists {
		return ErrNotFound
	}
	if other, taken := s.byName[r.Name]; taken && other != r.ID {
		return ErrExists
	}

	delete(s.byName, existing.Name)
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now()
	s.rules[r.ID] = r
	s.byName[r.Name] = r.ID
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rules[id]
	if !exists {
		return ErrNotFound
	}

	delete(s.byName, r.Name)
	delete(s.rules, id)
	return nil
}

func (s *MemoryStore) SetEnabled(ctx context.Context, id string, enabled bool) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rules[id]
	if !exists {
		return nil, ErrNotFound
	}

	r.Enabled = enabled
	r.UpdatedAt = time.Now()
	return r, nil
}

var _ Store = (*MemoryStore)(nil)
