package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prizzzz/leaseIQ/model"
)

// ContractRepository persists contracts. A contract's analysis is written
// exactly once through Lock; later Locks fail with ErrScoreLocked.
type ContractRepository interface {
	Create(ctx context.Context, c *model.Contract) error
	Get(ctx context.Context, id string) (*model.Contract, error)
	// GetByIDOrFilename resolves key as an id first, then as the tenant's
	// most recent upload with that filename.
	GetByIDOrFilename(ctx context.Context, tenant, key string) (*model.Contract, error)
	ListByTenant(ctx context.Context, tenant string) ([]*model.Contract, error)
	UpdateStatus(ctx context.Context, id, status, errMsg string) error
	Lock(ctx context.Context, id string, a model.Analysis) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore is an in-memory ContractRepository. Returned contracts are
// copies, so callers cannot mutate stored state.
type MemoryStore struct {
	contracts map[string]*model.Contract
	mu        sync.RWMutex
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contracts: make(map[string]*model.Contract),
		now:       time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, c *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.contracts[c.ID] = cloneContract(c)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneContract(c), nil
}

func (s *MemoryStore) GetByIDOrFilename(_ context.Context, tenant, key string) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.contracts[key]; ok && c.Tenant == tenant {
		return cloneContract(c), nil
	}

	var latest *model.Contract
	for _, c := range s.contracts {
		if c.Tenant != tenant || c.Filename != key {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneContract(latest), nil
}

// ListByTenant returns the tenant's contracts, newest first.
func (s *MemoryStore) ListByTenant(_ context.Context, tenant string) ([]*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Contract
	for _, c := range s.contracts {
		if c.Tenant == tenant {
			result = append(result, cloneContract(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.ErrorMsg = errMsg
	c.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Lock(_ context.Context, id string, a model.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return ErrNotFound
	}
	if c.Locked() {
		return ErrScoreLocked
	}

	data := a.Data
	data.JunkFees = append([]string(nil), a.Data.JunkFees...)
	fairness := a.Fairness

	c.Text = a.Text
	c.Data = &data
	c.Fairness = &fairness
	c.Strategy = a.Strategy
	c.Status = model.StatusCompleted
	c.ErrorMsg = ""
	c.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[id]; !ok {
		return ErrNotFound
	}
	delete(s.contracts, id)
	return nil
}

// Count returns the number of contracts in the store
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contracts)
}

func (s *MemoryStore) Close() error { return nil }

func cloneContract(c *model.Contract) *model.Contract {
	out := *c
	if c.Data != nil {
		data := *c.Data
		data.JunkFees = append([]string(nil), c.Data.JunkFees...)
		out.Data = &data
	}
	if c.Fairness != nil {
		fairness := *c.Fairness
		out.Fairness = &fairness
	}
	return &out
}
