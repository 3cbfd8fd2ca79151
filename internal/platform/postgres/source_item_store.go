package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/taskrelay/dispatch-api/internal/domain"
	"github.com/taskrelay/dispatch-api/internal/platform/logger"
	"github.com/taskrelay/dispatch-api/internal/store"
)

// PostgresSourceItemStore implements the store.SourceItemStore interface
// using PostgreSQL. Items are keyed by (partition, id); the partition
// column stands in for the date-keyed buckets the collaborator rotates.
type PostgresSourceItemStore struct {
	db store.DBTX
}

// NewPostgresSourceItemStore creates a new PostgresSourceItemStore.
func NewPostgresSourceItemStore(db store.DBTX) *PostgresSourceItemStore {
	return &PostgresSourceItemStore{
		db: db,
	}
}

// Create persists a new source item into its partition.
func (s *PostgresSourceItemStore) Create(ctx context.Context, item *domain.SourceItem) error {
	log := logger.FromContext(ctx)

	if err := item.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO source_items (id, partition, url, mobile, type, is_used, disabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		item.ID,
		item.Partition,
		item.URL,
		item.Mobile,
		item.Type,
		item.IsUsed,
		item.Disabled,
		item.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create source item",
			"item_id", item.ID,
			"partition", item.Partition,
			"error", err)
		return fmt.Errorf("failed to create source item: %w", MapError(err))
	}

	return nil
}

// GetByID retrieves a source item by partition and ID.
func (s *PostgresSourceItemStore) GetByID(ctx context.Context, partition string, id uuid.UUID) (*domain.SourceItem, error) {
	query := `
		SELECT id, partition, url, mobile, type, is_used, disabled, created_at
		FROM source_items
		WHERE partition = $1 AND id = $2
	`

	var item domain.SourceItem
	err := s.db.QueryRowContext(ctx, query, partition, id).Scan(
		&item.ID,
		&item.Partition,
		&item.URL,
		&item.Mobile,
		&item.Type,
		&item.IsUsed,
		&item.Disabled,
		&item.CreatedAt,
	)
	if err != nil {
		mapped := MapError(err)
		if store.IsNotFoundError(mapped) {
			return nil, store.ErrSourceItemNotFound
		}
		return nil, fmt.Errorf("failed to get source item: %w", mapped)
	}

	return &item, nil
}

// FindAvailable returns the unconsumed, non-disabled items for the given
// mobile in the partition, oldest first so dispatch order matches arrival
// order.
func (s *PostgresSourceItemStore) FindAvailable(ctx context.Context, partition, mobile string) ([]domain.SourceItem, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT id, partition, url, mobile, type, is_used, disabled, created_at
		FROM source_items
		WHERE partition = $1 AND mobile = $2 AND is_used = FALSE AND disabled = FALSE
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, partition, mobile)
	if err != nil {
		log.Error("failed to find available source items",
			"partition", partition,
			"mobile", mobile,
			"error", err)
		return nil, fmt.Errorf("failed to find available source items: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var items []domain.SourceItem
	for rows.Next() {
		var item domain.SourceItem
		if err := rows.Scan(
			&item.ID,
			&item.Partition,
			&item.URL,
			&item.Mobile,
			&item.Type,
			&item.IsUsed,
			&item.Disabled,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan source item row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source item rows: %w", err)
	}

	return items, nil
}

// Consume marks the item as used, but only if it is currently unused.
// The WHERE clause is the idempotency guard: when two tasks race to
// consume the same item, exactly one UPDATE matches and the loser gets
// ErrAlreadyConsumed.
func (s *PostgresSourceItemStore) Consume(ctx context.Context, partition string, id uuid.UUID) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE source_items
		SET is_used = TRUE
		WHERE partition = $1 AND id = $2 AND is_used = FALSE
	`

	result, err := s.db.ExecContext(ctx, query, partition, id)
	if err != nil {
		log.Error("failed to consume source item",
			"item_id", id,
			"partition", partition,
			"error", err)
		return fmt.Errorf("failed to consume source item: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Zero rows means either a lost consume race or a row that never
		// existed; tell them apart.
		var exists bool
		err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM source_items WHERE partition = $1 AND id = $2)",
			partition, id,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check source item existence: %w", MapError(err))
		}
		if !exists {
			return store.ErrSourceItemNotFound
		}
		return store.ErrAlreadyConsumed
	}

	return nil
}
