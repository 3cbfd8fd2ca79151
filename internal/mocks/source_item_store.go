package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/taskrelay/dispatch-api/internal/domain"
	"github.com/taskrelay/dispatch-api/internal/store"
)

// MockSourceItemStore implements store.SourceItemStore for testing with
// an in-memory partition map and real conditional-consume semantics.
type MockSourceItemStore struct {
	// Function fields for customizable behavior
	CreateFn        func(ctx context.Context, item *domain.SourceItem) error
	GetByIDFn       func(ctx context.Context, partition string, id uuid.UUID) (*domain.SourceItem, error)
	FindAvailableFn func(ctx context.Context, partition, mobile string) ([]domain.SourceItem, error)
	ConsumeFn       func(ctx context.Context, partition string, id uuid.UUID) error

	mu    sync.Mutex
	items map[string]map[uuid.UUID]*domain.SourceItem

	// Call counts for verification
	ConsumeCalls int
}

// NewMockSourceItemStore creates a new mock store with initialized defaults.
func NewMockSourceItemStore() *MockSourceItemStore {
	return &MockSourceItemStore{
		items: make(map[string]map[uuid.UUID]*domain.SourceItem),
	}
}

// Create implements the SourceItemStore interface
func (m *MockSourceItemStore) Create(ctx context.Context, item *domain.SourceItem) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, item)
	}

	if err := item.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	partition := m.items[item.Partition]
	if partition == nil {
		partition = make(map[uuid.UUID]*domain.SourceItem)
		m.items[item.Partition] = partition
	}

	clone := *item
	partition[item.ID] = &clone
	return nil
}

// GetByID implements the SourceItemStore interface
func (m *MockSourceItemStore) GetByID(
	ctx context.Context,
	partition string,
	id uuid.UUID,
) (*domain.SourceItem, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, partition, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[partition][id]
	if !ok {
		return nil, store.ErrSourceItemNotFound
	}

	clone := *item
	return &clone, nil
}

// FindAvailable implements the SourceItemStore interface
func (m *MockSourceItemStore) FindAvailable(
	ctx context.Context,
	partition, mobile string,
) ([]domain.SourceItem, error) {
	if m.FindAvailableFn != nil {
		return m.FindAvailableFn(ctx, partition, mobile)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var result []domain.SourceItem
	for _, item := range m.items[partition] {
		if item.Mobile != mobile || item.IsUsed || item.Disabled {
			continue
		}
		result = append(result, *item)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Consume implements the SourceItemStore interface
func (m *MockSourceItemStore) Consume(ctx context.Context, partition string, id uuid.UUID) error {
	m.mu.Lock()
	m.ConsumeCalls++
	m.mu.Unlock()

	if m.ConsumeFn != nil {
		return m.ConsumeFn(ctx, partition, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[partition][id]
	if !ok {
		return store.ErrSourceItemNotFound
	}
	if item.IsUsed {
		return store.ErrAlreadyConsumed
	}

	item.IsUsed = true
	return nil
}

// Get returns a copy of the stored item, for test assertions.
func (m *MockSourceItemStore) Get(partition string, id uuid.UUID) (*domain.SourceItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[partition][id]
	if !ok {
		return nil, false
	}
	clone := *item
	return &clone, true
}
