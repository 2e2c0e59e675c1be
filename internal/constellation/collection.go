package constellation

import (
	"context"
	"fmt"
	"time"
)

const (
	maxCollectionNameLen = 100
	maxCollectionDescLen = 500
)

type (
	// Collection is a named, ordered grouping of saved items belonging to
	// one owner, optionally visible to others.
	Collection struct {
		ID          string    `db:"id"`
		OwnerID     string    `db:"owner_id"`
		Name        string    `db:"name"`
		Description *string   `db:"description"`
		IsPublic    bool      `db:"is_public"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	// CollectionSummary is a collection plus its live item count.
	CollectionSummary struct {
		Collection

		ItemCount int  `db:"item_count"`
		IsOwner   bool `db:"is_owner"`
	}

	// CollectionItem is the membership row tying a saved item into a
	// collection at a position.
	CollectionItem struct {
		CollectionID string    `db:"collection_id"`
		ItemID       string    `db:"item_id"`
		Position     int       `db:"position"`
		Notes        *string   `db:"notes"`
		AddedAt      time.Time `db:"added_at"`
	}

	// CollectionEntry is a membership row joined with its saved item.
	CollectionEntry struct {
		SavedItem

		Position int       `db:"position"`
		Notes    *string   `db:"notes"`
		AddedAt  time.Time `db:"added_at"`
	}

	// PositionUpdate assigns a position to one member during a reorder.
	PositionUpdate struct {
		ItemID   string `json:"item_id"`
		Position int    `json:"position"`
	}

	CollectionStats struct {
		TotalCollections  int     `db:"total_collections" json:"total_collections"`
		PublicCollections int     `db:"public_collections" json:"public_collections"`
		TotalItems        int     `db:"total_items" json:"total_items"`
		AvgItemsPerColl   float64 `db:"avg_items" json:"avg_items_per_collection"`
		MaxCollectionSize int     `db:"max_items" json:"max_collection_size"`

		PrivateCollections int `db:"-" json:"private_collections"`
	}

	CollectionStore interface {
		List(ctx context.Context, ownerID string, args ListCollectionsArgs) (Page[CollectionSummary], error)
		Create(ctx context.Context, ownerID string, args CreateCollectionArgs) (Collection, error)
		Update(ctx context.Context, ownerID, collectionID string, args UpdateCollectionArgs) (Collection, error)
		Delete(ctx context.Context, ownerID, collectionID string) (bool, error)
		AddItem(ctx context.Context, collectionID, itemID string, args AddCollectionItemArgs) (CollectionItem, error)
		RemoveItem(ctx context.Context, collectionID, itemID string) (bool, error)
		Reorder(ctx context.Context, ownerID, collectionID string, updates []PositionUpdate) error
		ListItems(ctx context.Context, collectionID string, args ListCollectionItemsArgs) (Page[CollectionEntry], error)
		Stats(ctx context.Context, ownerID string) (CollectionStats, error)
		ListPublic(ctx context.Context, args ListPublicArgs) (Page[CollectionSummary], error)
	}
)

type ListCollectionsArgs struct {
	PageArgs

	// Also include other owners' public collections.
	IncludePublic bool
}

func (a ListCollectionsArgs) Validate() error {
	return a.PageArgs.Validate()
}

type CreateCollectionArgs struct {
	Name        string
	Description *string
	IsPublic    bool
}

func (a CreateCollectionArgs) Validate() error {
	if err := validateCollectionName(a.Name); err != nil {
		return err
	}

	return validateCollectionDesc(a.Description)
}

// UpdateCollectionArgs holds the optional fields for a partial collection
// update. Only non-nil fields are written.
type UpdateCollectionArgs struct {
	Name        *string
	Description *string
	IsPublic    *bool
}

func (a UpdateCollectionArgs) Validate() error {
	if a.Name == nil && a.Description == nil && a.IsPublic == nil {
		return fmt.Errorf("no fields to update: %w", ErrInvalidArgument)
	}
	if a.Name != nil {
		if err := validateCollectionName(*a.Name); err != nil {
			return err
		}
	}

	return validateCollectionDesc(a.Description)
}

type AddCollectionItemArgs struct {
	// Position to insert at; nil means append after the current maximum.
	Position *int
	Notes    *string
}

func (a AddCollectionItemArgs) Validate() error {
	if a.Position != nil && *a.Position < 0 {
		return fmt.Errorf("position must be >= 0: %w", ErrInvalidArgument)
	}

	return nil
}

// Sort keys accepted by ListItems.
const (
	SortByPosition = "position"
	SortByAddedAt  = "added_at"
	SortByTitle    = "title"
	SortBySavedAt  = "saved_at"
)

type ListCollectionItemsArgs struct {
	PageArgs

	// Defaults to position order when empty.
	SortBy string
}

func (a ListCollectionItemsArgs) Validate() error {
	if err := a.PageArgs.Validate(); err != nil {
		return err
	}
	switch a.SortBy {
	case "", SortByPosition, SortByAddedAt, SortByTitle, SortBySavedAt:
		return nil
	}

	return fmt.Errorf("unknown sort key %q: %w", a.SortBy, ErrInvalidArgument)
}

type ListPublicArgs struct {
	PageArgs

	// Optional ranked text search over name and description.
	Search string
}

func (a ListPublicArgs) Validate() error {
	return a.PageArgs.Validate()
}

func ValidateReorder(updates []PositionUpdate) error {
	if len(updates) == 0 {
		return fmt.Errorf("no positions to update: %w", ErrInvalidArgument)
	}
	for _, u := range updates {
		if u.ItemID == "" {
			return fmt.Errorf("item_id is required: %w", ErrInvalidArgument)
		}
		if u.Position < 0 {
			return fmt.Errorf("position must be >= 0: %w", ErrInvalidArgument)
		}
	}

	return nil
}

func validateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", ErrInvalidArgument)
	}
	if len(name) > maxCollectionNameLen {
		return fmt.Errorf("name must be at most %d characters: %w", maxCollectionNameLen, ErrInvalidArgument)
	}

	return nil
}

func validateCollectionDesc(desc *string) error {
	if desc != nil && len(*desc) > maxCollectionDescLen {
		return fmt.Errorf("description must be at most %d characters: %w", maxCollectionDescLen, ErrInvalidArgument)
	}

	return nil
}
