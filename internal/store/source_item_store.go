package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/taskrelay/dispatch-api/internal/domain"
)

// SourceItemStore defines the persistence interface for partitioned
// source items. Partitions are date-keyed buckets rotated by an external
// collaborator; this core reads items and flips their consumption flag.
type SourceItemStore interface {
	// Create saves a new source item into its partition.
	Create(ctx context.Context, item *domain.SourceItem) error

	// GetByID retrieves a source item by partition and ID.
	// Returns ErrSourceItemNotFound if the item does not exist.
	GetByID(ctx context.Context, partition string, id uuid.UUID) (*domain.SourceItem, error)

	// FindAvailable returns the unconsumed, non-disabled items for the
	// given mobile in the partition, oldest first.
	FindAvailable(ctx context.Context, partition, mobile string) ([]domain.SourceItem, error)

	// Consume marks the item as used, but only if it is currently unused.
	// Returns ErrAlreadyConsumed when another task consumed the item
	// first, and ErrSourceItemNotFound when the item does not exist.
	Consume(ctx context.Context, partition string, id uuid.UUID) error
}
