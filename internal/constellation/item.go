package constellation

import (
	"context"
	"fmt"
	"time"
)

// ItemType is the kind of catalog content a saved item references.
type ItemType string

const (
	ItemTypeAPOD      ItemType = "apod"
	ItemTypeMarsPhoto ItemType = "mars_photo"
	ItemTypeEPIC      ItemType = "epic"
	ItemTypeNEO       ItemType = "neo"
	ItemTypeMedia     ItemType = "media"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeAPOD, ItemTypeMarsPhoto, ItemTypeEPIC, ItemTypeNEO, ItemTypeMedia:
		return true
	}

	return false
}

type (
	// SavedItem is a user's reference to a piece of catalog content, with a
	// denormalized snapshot of its display fields taken at save time.
	SavedItem struct {
		OwnerID     string    `db:"owner_id"`
		ItemID      string    `db:"item_id"`
		ItemType    ItemType  `db:"item_type"`
		Title       string    `db:"title"`
		URL         string    `db:"url"`
		HDURL       *string   `db:"hd_url"`
		MediaKind   *string   `db:"media_kind"`
		Category    *string   `db:"category"`
		Description *string   `db:"description"`
		Copyright   *string   `db:"copyright"`
		ContentDate *string   `db:"content_date"`
		SavedAt     time.Time `db:"saved_at"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
		IsArchived  bool      `db:"is_archived"`
		UserNote    *string   `db:"user_note"`
		UserTags    Tags      `db:"user_tags"`
		IsFavorite  bool      `db:"is_favorite"`
		Metadata    Metadata  `db:"metadata"`
	}

	// AnnotatedItem is a saved item plus its collection membership rollup.
	AnnotatedItem struct {
		SavedItem

		CollectionCount int      `db:"collection_count"`
		CollectionNames []string `db:"-"`
	}

	// SearchResult is a saved item plus its text-relevance score.
	SearchResult struct {
		SavedItem

		Rank float64 `db:"rank"`
	}

	ItemStats struct {
		TotalActive     int `db:"total_active" json:"total_active"`
		TotalArchived   int `db:"total_archived" json:"total_archived"`
		Favorites       int `db:"favorites" json:"favorites"`
		DistinctTypes   int `db:"distinct_types" json:"distinct_types"`
		WithNotes       int `db:"with_notes" json:"with_notes"`
		WithTags        int `db:"with_tags" json:"with_tags"`
		SavedLast7Days  int `db:"saved_last_7_days" json:"saved_last_7_days"`
		SavedLast30Days int `db:"saved_last_30_days" json:"saved_last_30_days"`
	}

	ItemStore interface {
		List(ctx context.Context, ownerID string, args ListItemsArgs) (Page[AnnotatedItem], error)
		Get(ctx context.Context, ownerID, itemID string) (SavedItem, error)
		Add(ctx context.Context, ownerID string, args AddItemArgs) (SavedItem, error)
		Update(ctx context.Context, ownerID, itemID string, args UpdateItemArgs) (SavedItem, error)
		Remove(ctx context.Context, ownerID, itemID string) (bool, error)
		Search(ctx context.Context, ownerID, query string, args SearchArgs) (Page[SearchResult], error)
		Stats(ctx context.Context, ownerID string) (ItemStats, error)
	}
)

type ListItemsArgs struct {
	PageArgs

	// Restrict to a single item type when set.
	Type ItemType
	// Archived items are hidden unless explicitly asked for.
	IncludeArchived bool
}

func (a ListItemsArgs) Validate() error {
	if err := a.PageArgs.Validate(); err != nil {
		return err
	}
	if a.Type != "" && !a.Type.Valid() {
		return fmt.Errorf("unknown item type %q: %w", a.Type, ErrInvalidArgument)
	}

	return nil
}

// AddItemArgs is the denormalized catalog payload captured at save time.
type AddItemArgs struct {
	ItemID      string
	ItemType    ItemType
	Title       string
	URL         string
	HDURL       *string
	MediaKind   *string
	Category    *string
	Description *string
	Copyright   *string
	ContentDate *string
	Metadata    Metadata
}

func (a AddItemArgs) Validate() error {
	if a.ItemID == "" {
		return fmt.Errorf("item_id is required: %w", ErrInvalidArgument)
	}
	if !a.ItemType.Valid() {
		return fmt.Errorf("unknown item type %q: %w", a.ItemType, ErrInvalidArgument)
	}

	return nil
}

// UpdateItemArgs holds the optional fields for a partial item update. Only
// non-nil fields are written.
type UpdateItemArgs struct {
	Note       *string
	Tags       *Tags
	IsFavorite *bool
}

func (a UpdateItemArgs) Validate() error {
	if a.Note == nil && a.Tags == nil && a.IsFavorite == nil {
		return fmt.Errorf("no fields to update: %w", ErrInvalidArgument)
	}

	return nil
}

type SearchArgs struct {
	PageArgs

	Types []ItemType
	Tags  []string
}

func (a SearchArgs) Validate() error {
	if err := a.PageArgs.Validate(); err != nil {
		return err
	}
	for _, t := range a.Types {
		if !t.Valid() {
			return fmt.Errorf("unknown item type %q: %w", t, ErrInvalidArgument)
		}
	}

	return nil
}
