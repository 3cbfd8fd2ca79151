package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultSourceItemType is assigned when the collaborator that writes
// source items does not specify a type.
const DefaultSourceItemType = "A"

// partitionLayout is the date format for partition names (e.g. "20260828").
const partitionLayout = "20060102"

// Common validation errors for SourceItem
var (
	ErrEmptySourceItemURL       = errors.New("source item URL cannot be empty")
	ErrEmptySourceItemMobile    = errors.New("source item mobile cannot be empty")
	ErrEmptySourceItemPartition = errors.New("source item partition cannot be empty")
)

// SourceItem is one unit of source data consumed by at most one completed
// task. Items live in date-keyed partitions that an external collaborator
// rotates daily; this core only reads them and flips IsUsed.
type SourceItem struct {
	ID        uuid.UUID `json:"id"`
	Partition string    `json:"partition"`
	URL       string    `json:"url"`
	Mobile    string    `json:"mobile"`
	Type      string    `json:"type"`
	IsUsed    bool      `json:"is_used"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSourceItem creates a new unconsumed SourceItem in the given partition.
// Returns an error if validation fails.
func NewSourceItem(partition, url, mobile string) (*SourceItem, error) {
	item := &SourceItem{
		ID:        uuid.New(),
		Partition: partition,
		URL:       url,
		Mobile:    mobile,
		Type:      DefaultSourceItemType,
		CreatedAt: time.Now().UTC(),
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	return item, nil
}

// Validate checks if the SourceItem has valid data.
func (i *SourceItem) Validate() error {
	if i.Partition == "" {
		return ErrEmptySourceItemPartition
	}

	if i.URL == "" {
		return ErrEmptySourceItemURL
	}

	if i.Mobile == "" {
		return ErrEmptySourceItemMobile
	}

	return nil
}

// TodayPartition returns the partition name for the current day in UTC.
func TodayPartition() string {
	return time.Now().UTC().Format(partitionLayout)
}
