package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/evanfuller/constellation/internal/constellation"
)

// annotatedItemRow carries the membership rollup computed by the list join.
// Names are aggregated as a JSON array; names may contain any separator
// character themselves.
type annotatedItemRow struct {
	constellation.SavedItem

	CollectionCount int            `db:"collection_count"`
	CollectionNames sql.NullString `db:"collection_names"`
}

func (row annotatedItemRow) annotated() (constellation.AnnotatedItem, error) {
	item := constellation.AnnotatedItem{
		SavedItem:       row.SavedItem,
		CollectionCount: row.CollectionCount,
		CollectionNames: []string{},
	}
	if row.CollectionNames.Valid {
		if err := json.Unmarshal([]byte(row.CollectionNames.String), &item.CollectionNames); err != nil {
			return item, fmt.Errorf("error decoding collection names: %s", err)
		}
	}

	return item, nil
}

func (r ItemRepo) List(ctx context.Context, ownerID string, args constellation.ListItemsArgs) (constellation.Page[constellation.AnnotatedItem], error) {
	var page constellation.Page[constellation.AnnotatedItem]
	if err := args.Validate(); err != nil {
		return page, err
	}

	where := sq.Eq{"si.owner_id": ownerID}
	if !args.IncludeArchived {
		where["si.is_archived"] = false
	}
	if args.Type != "" {
		where["si.item_type"] = string(args.Type)
	}

	countQuery, countArgs, err := sq.Select("COUNT(*)").From("saved_items si").Where(where).ToSql()
	if err != nil {
		return page, fmt.Errorf("error constructing sql: %s", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return page, fmt.Errorf("error counting saved items: %s", err)
	}

	// One join/aggregation computes the collection rollup for the whole
	// page; no per-item fan-out.
	query, queryArgs, err := sq.Select(
		"si.*",
		"COUNT(c.id) AS collection_count",
		"json_group_array(c.name) FILTER (WHERE c.id IS NOT NULL) AS collection_names",
	).
		From("saved_items si").
		LeftJoin("collection_items ci ON ci.item_id = si.item_id").
		LeftJoin("collections c ON c.id = ci.collection_id AND c.owner_id = si.owner_id").
		Where(where).
		GroupBy("si.owner_id", "si.item_id").
		OrderBy("si.saved_at DESC", "si.rowid DESC").
		Limit(uint64(args.Limit)).
		Offset(uint64(args.Offset())).
		ToSql()
	if err != nil {
		return page, fmt.Errorf("error constructing sql: %s", err)
	}

	var rows []annotatedItemRow
	if err := r.db.SelectContext(ctx, &rows, query, queryArgs...); err != nil {
		return page, fmt.Errorf("error selecting saved items: %s", err)
	}

	page.Items = make([]constellation.AnnotatedItem, 0, len(rows))
	for _, row := range rows {
		item, err := row.annotated()
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, item)
	}
	page.Meta = constellation.NewPageMeta(total, args.Page, args.Limit)

	return page, nil
}

// Get returns the item regardless of archive state; archived rows are only
// reachable by explicit id lookup.
func (r ItemRepo) Get(ctx context.Context, ownerID, itemID string) (constellation.SavedItem, error) {
	const q = `SELECT * FROM saved_items WHERE owner_id = ? AND item_id = ?;`

	var item constellation.SavedItem
	err := r.db.GetContext(ctx, &item, q, ownerID, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return constellation.SavedItem{}, constellation.ErrNotFound
	}
	if err != nil {
		return constellation.SavedItem{}, fmt.Errorf("error fetching saved item: %s", err)
	}

	return item, nil
}

func (r ItemRepo) Add(ctx context.Context, ownerID string, args constellation.AddItemArgs) (constellation.SavedItem, error) {
	if err := args.Validate(); err != nil {
		return constellation.SavedItem{}, err
	}

	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var isArchived bool
		err := tx.GetContext(ctx, &isArchived,
			`SELECT is_archived FROM saved_items WHERE owner_id = ? AND item_id = ?;`, ownerID, args.ItemID)
		switch {
		case err == nil && isArchived:
			// Reactivation is the only upsert: the archived row comes back
			// instead of a duplicate being created.
			const reactivate = `
			UPDATE saved_items
			SET is_archived = 0, saved_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			WHERE owner_id = ? AND item_id = ?;`
			if _, err := tx.ExecContext(ctx, reactivate, ownerID, args.ItemID); err != nil {
				return fmt.Errorf("error reactivating saved item: %s", err)
			}
			return nil
		case err == nil:
			return fmt.Errorf("item already saved: %w", constellation.ErrAlreadyExists)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("error checking for existing item: %s", err)
		}

		const q = `
		INSERT INTO saved_items (
			owner_id, item_id, item_type, title, url, hd_url, media_kind,
			category, description, copyright, content_date, user_tags, metadata
		) VALUES (
			:owner_id, :item_id, :item_type, :title, :url, :hd_url, :media_kind,
			:category, :description, :copyright, :content_date, :user_tags, :metadata
		);`
		_, err = tx.NamedExecContext(ctx, q, constellation.SavedItem{
			OwnerID:     ownerID,
			ItemID:      args.ItemID,
			ItemType:    args.ItemType,
			Title:       args.Title,
			URL:         args.URL,
			HDURL:       args.HDURL,
			MediaKind:   args.MediaKind,
			Category:    args.Category,
			Description: args.Description,
			Copyright:   args.Copyright,
			ContentDate: args.ContentDate,
			UserTags:    constellation.Tags{},
			Metadata:    args.Metadata,
		})
		if isUniqueViolation(err) {
			return fmt.Errorf("item already saved: %w", constellation.ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("error inserting saved item: %s", err)
		}

		return nil
	})
	if err != nil {
		return constellation.SavedItem{}, err
	}

	return r.Get(ctx, ownerID, args.ItemID)
}

func (r ItemRepo) Update(ctx context.Context, ownerID, itemID string, args constellation.UpdateItemArgs) (constellation.SavedItem, error) {
	if err := args.Validate(); err != nil {
		return constellation.SavedItem{}, err
	}

	q := sq.Update("saved_items").Set("updated_at", sq.Expr("CURRENT_TIMESTAMP"))
	if args.Note != nil {
		q = q.Set("user_note", *args.Note)
	}
	if args.Tags != nil {
		q = q.Set("user_tags", *args.Tags)
	}
	if args.IsFavorite != nil {
		q = q.Set("is_favorite", *args.IsFavorite)
	}
	q = q.Where(sq.Eq{"owner_id": ownerID, "item_id": itemID, "is_archived": false})

	query, queryArgs, err := q.ToSql()
	if err != nil {
		return constellation.SavedItem{}, fmt.Errorf("error constructing sql: %s", err)
	}
	res, err := r.db.ExecContext(ctx, query, queryArgs...)
	if err != nil {
		return constellation.SavedItem{}, fmt.Errorf("error updating saved item: %s", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return constellation.SavedItem{}, fmt.Errorf("error reading rows affected: %s", err)
	}
	if affected == 0 {
		return constellation.SavedItem{}, constellation.ErrNotFound
	}

	return r.Get(ctx, ownerID, itemID)
}

// Remove soft-deletes the item. The second call on the same item finds no
// active row and reports false rather than erroring.
func (r ItemRepo) Remove(ctx context.Context, ownerID, itemID string) (bool, error) {
	const q = `
	UPDATE saved_items
	SET is_archived = 1, updated_at = CURRENT_TIMESTAMP
	WHERE owner_id = ? AND item_id = ? AND is_archived = 0;`

	res, err := r.db.ExecContext(ctx, q, ownerID, itemID)
	if err != nil {
		return false, fmt.Errorf("error archiving saved item: %s", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected: %s", err)
	}

	return affected > 0, nil
}

// bm25 weights: title, description, category, user_note, user_tags. Body
// matches outrank incidental tag matches.
const itemRankExpr = "bm25(saved_items_fts, 10.0, 5.0, 3.0, 2.0, 0.5) AS rank"

func (r ItemRepo) Search(ctx context.Context, ownerID, query string, args constellation.SearchArgs) (constellation.Page[constellation.SearchResult], error) {
	var page constellation.Page[constellation.SearchResult]
	if err := args.Validate(); err != nil {
		return page, err
	}
	if strings.TrimSpace(query) == "" {
		return page, fmt.Errorf("search query is required: %w", constellation.ErrInvalidArgument)
	}

	applyFilters := func(b sq.SelectBuilder) sq.SelectBuilder {
		b = b.From("saved_items_fts").
			Join("saved_items si ON si.rowid = saved_items_fts.rowid").
			Where("saved_items_fts MATCH ?", matchQuery(query)).
			Where(sq.Eq{"si.owner_id": ownerID, "si.is_archived": false})
		if len(args.Types) > 0 {
			types := make([]string, 0, len(args.Types))
			for _, t := range args.Types {
				types = append(types, string(t))
			}
			b = b.Where(sq.Eq{"si.item_type": types})
		}
		if len(args.Tags) > 0 {
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args.Tags)), ",")
			tagArgs := make([]any, 0, len(args.Tags))
			for _, tag := range args.Tags {
				tagArgs = append(tagArgs, tag)
			}
			b = b.Where(
				"EXISTS (SELECT 1 FROM json_each(si.user_tags) WHERE json_each.value IN ("+placeholders+"))",
				tagArgs...,
			)
		}
		return b
	}

	countQuery, countArgs, err := applyFilters(sq.Select("COUNT(*)")).ToSql()
	if err != nil {
		return page, fmt.Errorf("error constructing sql: %s", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return page, fmt.Errorf("error counting search results: %s", err)
	}

	searchQuery, searchArgs, err := applyFilters(sq.Select("si.*", itemRankExpr)).
		OrderBy("rank").
		Limit(uint64(args.Limit)).
		Offset(uint64(args.Offset())).
		ToSql()
	if err != nil {
		return page, fmt.Errorf("error constructing sql: %s", err)
	}

	results := []constellation.SearchResult{}
	if err := r.db.SelectContext(ctx, &results, searchQuery, searchArgs...); err != nil {
		return page, fmt.Errorf("error searching saved items: %s", err)
	}

	page.Items = results
	page.Meta = constellation.NewPageMeta(total, args.Page, args.Limit)

	return page, nil
}

func (r ItemRepo) Stats(ctx context.Context, ownerID string) (constellation.ItemStats, error) {
	const q = `
	SELECT
		SUM(CASE WHEN is_archived = 0 THEN 1 ELSE 0 END) AS total_active,
		SUM(CASE WHEN is_archived = 1 THEN 1 ELSE 0 END) AS total_archived,
		SUM(CASE WHEN is_archived = 0 AND is_favorite = 1 THEN 1 ELSE 0 END) AS favorites,
		COUNT(DISTINCT CASE WHEN is_archived = 0 THEN item_type END) AS distinct_types,
		SUM(CASE WHEN is_archived = 0 AND user_note IS NOT NULL AND user_note != '' THEN 1 ELSE 0 END) AS with_notes,
		SUM(CASE WHEN is_archived = 0 AND user_tags != '[]' THEN 1 ELSE 0 END) AS with_tags,
		SUM(CASE WHEN is_archived = 0 AND saved_at >= datetime('now', '-7 days') THEN 1 ELSE 0 END) AS saved_last_7_days,
		SUM(CASE WHEN is_archived = 0 AND saved_at >= datetime('now', '-30 days') THEN 1 ELSE 0 END) AS saved_last_30_days
	FROM saved_items
	WHERE owner_id = ?;`

	var stats struct {
		TotalActive     sql.NullInt64 `db:"total_active"`
		TotalArchived   sql.NullInt64 `db:"total_archived"`
		Favorites       sql.NullInt64 `db:"favorites"`
		DistinctTypes   sql.NullInt64 `db:"distinct_types"`
		WithNotes       sql.NullInt64 `db:"with_notes"`
		WithTags        sql.NullInt64 `db:"with_tags"`
		SavedLast7Days  sql.NullInt64 `db:"saved_last_7_days"`
		SavedLast30Days sql.NullInt64 `db:"saved_last_30_days"`
	}
	if err := r.db.GetContext(ctx, &stats, q, ownerID); err != nil {
		return constellation.ItemStats{}, fmt.Errorf("error computing item stats: %s", err)
	}

	return constellation.ItemStats{
		TotalActive:     int(stats.TotalActive.Int64),
		TotalArchived:   int(stats.TotalArchived.Int64),
		Favorites:       int(stats.Favorites.Int64),
		DistinctTypes:   int(stats.DistinctTypes.Int64),
		WithNotes:       int(stats.WithNotes.Int64),
		WithTags:        int(stats.WithTags.Int64),
		SavedLast7Days:  int(stats.SavedLast7Days.Int64),
		SavedLast30Days: int(stats.SavedLast30Days.Int64),
	}, nil
}

// matchQuery quotes each token so user input can never be parsed as FTS5
// syntax. Tokens are implicitly ANDed.
func matchQuery(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}

	return strings.Join(quoted, " ")
}
