package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evanfuller/constellation/internal/constellation"
)

const collectionNamespace = "-col"

func (r CollectionRepo) List(ctx context.Context, ownerID string, args constellation.ListCollectionsArgs) (constellation.Page[constellation.CollectionSummary], error) {
	var page constellation.Page[constellation.CollectionSummary]
	if err := args.Validate(); err != nil {
		return page, err
	}

	var where sq.Sqlizer = sq.Eq{"c.owner_id": ownerID}
	if args.IncludePublic {
		where = sq.Or{sq.Eq{"c.owner_id": ownerID}, sq.Eq{"c.is_public": true}}
	}

	countQuery, countArgs, err := sq.Select("COUNT(*)").From("collections c").Where(where).ToSql()
	if err != nil {
		return page, fmt.Errorf("error constructing sql: %s", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return page, fmt.Errorf("error counting collections: %s", err)
	}

	// Item counts only consider live (non-archived) members.
	query, queryArgs, err := sq.Select("c.*", "COUNT(si.item_id) AS item_count").
		Column("(c.owner_id = ?) AS is_owner", ownerID).
		From("collections c").
		LeftJoin("collection_items ci ON ci.collection_id = c.id").
		LeftJoin("saved_items si ON si.owner_id = c.owner_id AND si.item_id = ci.item_id AND si.is_archived = 0").
		Where(where).
		GroupBy("c.id").
		OrderBy("c.updated_at DESC", "c.rowid DESC").
		Limit(uint64(args.Limit)).
		Offset(uint64(args.Offset())).
		ToSql()
	if err != nil {
		return page, fmt.Errorf("error constructing sql: %s", err)
	}

	summaries := []constellation.CollectionSummary{}
	if err := r.db.SelectContext(ctx, &summaries, query, queryArgs...); err != nil {
		return page, fmt.Errorf("error selecting collections: %s", err)
	}

	page.Items = summaries
	page.Meta = constellation.NewPageMeta(total, args.Page, args.Limit)

	return page, nil
}

func (r CollectionRepo) Create(ctx context.Context, ownerID string, args constellation.CreateCollectionArgs) (constellation.Collection, error) {
	if err := args.Validate(); err != nil {
		return constellation.Collection{}, err
	}

	id := fmt.Sprintf("%s%s", uuid.NewString(), collectionNamespace)
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var count int
		err := tx.GetContext(ctx, &count,
			`SELECT COUNT(*) FROM collections WHERE owner_id = ? AND name = ?;`, ownerID, args.Name)
		if err != nil {
			return fmt.Errorf("error checking collection name: %s", err)
		}
		if count > 0 {
			return fmt.Errorf("collection %q already exists: %w", args.Name, constellation.ErrAlreadyExists)
		}

		const q = `INSERT INTO collections (id, owner_id, name, description, is_public) VALUES (?, ?, ?, ?, ?);`
		_, err = tx.ExecContext(ctx, q, id, ownerID, args.Name, args.Description, args.IsPublic)
		if isUniqueViolation(err) {
			// Lost the race against a concurrent create with the same name.
			return fmt.Errorf("collection %q already exists: %w", args.Name, constellation.ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("error inserting collection: %s", err)
		}

		return nil
	})
	if err != nil {
		return constellation.Collection{}, err
	}

	return r.collectionByID(ctx, id)
}

func (r CollectionRepo) Update(ctx context.Context, ownerID, collectionID string, args constellation.UpdateCollectionArgs) (constellation.Collection, error) {
	if err := args.Validate(); err != nil {
		return constellation.Collection{}, err
	}

	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var owned int
		err := tx.GetContext(ctx, &owned,
			`SELECT COUNT(*) FROM collections WHERE id = ? AND owner_id = ?;`, collectionID, ownerID)
		if err != nil {
			return fmt.Errorf("error checking collection ownership: %s", err)
		}
		if owned == 0 {
			return constellation.ErrNotFound
		}

		if args.Name != nil {
			var count int
			err := tx.GetContext(ctx, &count,
				`SELECT COUNT(*) FROM collections WHERE owner_id = ? AND name = ? AND id != ?;`,
				ownerID, *args.Name, collectionID)
			if err != nil {
				return fmt.Errorf("error checking collection name: %s", err)
			}
			if count > 0 {
				return fmt.Errorf("collection %q already exists: %w", *args.Name, constellation.ErrAlreadyExists)
			}
		}

		q := sq.Update("collections").Set("updated_at", sq.Expr("CURRENT_TIMESTAMP"))
		if args.Name != nil {
			q = q.Set("name", *args.Name)
		}
		if args.Description != nil {
			q = q.Set("description", *args.Description)
		}
		if args.IsPublic != nil {
			q = q.Set("is_public", *args.IsPublic)
		}
		query, queryArgs, err := q.Where(sq.Eq{"id": collectionID, "owner_id": ownerID}).ToSql()
		if err != nil {
			return fmt.Errorf("error constructing sql: %s", err)
		}
		_, err = tx.ExecContext(ctx, query, queryArgs...)
		if isUniqueViolation(err) {
			return fmt.Errorf("collection name already exists: %w", constellation.ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("error updating collection: %s", err)
		}

		return nil
	})
	if err != nil {
		return constellation.Collection{}, err
	}

	return r.collectionByID(ctx, collectionID)
}

// Delete hard-deletes the collection and cascades its membership rows away
// in the same transaction.
func (r CollectionRepo) Delete(ctx context.Context, ownerID, collectionID string) (bool, error) {
	var found bool
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const deleteItems = `
		DELETE FROM collection_items
		WHERE collection_id IN (SELECT id FROM collections WHERE id = ? AND owner_id = ?);`
		if _, err := tx.ExecContext(ctx, deleteItems, collectionID, ownerID); err != nil {
			return fmt.Errorf("error deleting collection items: %s", err)
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM collections WHERE id = ? AND owner_id = ?;`, collectionID, ownerID)
		if err != nil {
			return fmt.Errorf("error deleting collection: %s", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("error reading rows affected: %s", err)
		}
		found = affected > 0

		return nil
	})
	if err != nil {
		return false, err
	}

	return found, nil
}

func (r CollectionRepo) AddItem(ctx context.Context, collectionID, itemID string, args constellation.AddCollectionItemArgs) (constellation.CollectionItem, error) {
	if err := args.Validate(); err != nil {
		return constellation.CollectionItem{}, err
	}
	if itemID == "" {
		return constellation.CollectionItem{}, fmt.Errorf("item_id is required: %w", constellation.ErrInvalidArgument)
	}

	var membership constellation.CollectionItem
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var coll constellation.Collection
		err := tx.GetContext(ctx, &coll, `SELECT * FROM collections WHERE id = ?;`, collectionID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("collection not found: %w", constellation.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("error fetching collection: %s", err)
		}

		var isArchived bool
		err = tx.GetContext(ctx, &isArchived,
			`SELECT is_archived FROM saved_items WHERE owner_id = ? AND item_id = ?;`, coll.OwnerID, itemID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && isArchived) {
			return fmt.Errorf("saved item not found: %w", constellation.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("error fetching saved item: %s", err)
		}

		var exists int
		err = tx.GetContext(ctx, &exists,
			`SELECT COUNT(*) FROM collection_items WHERE collection_id = ? AND item_id = ?;`, collectionID, itemID)
		if err != nil {
			return fmt.Errorf("error checking membership: %s", err)
		}
		if exists > 0 {
			return fmt.Errorf("item already in collection: %w", constellation.ErrAlreadyExists)
		}

		// The next position is computed inside the transaction so two
		// concurrent adds cannot both read the same stale maximum.
		position := 0
		if args.Position != nil {
			position = *args.Position
			// Make room: everything at or past the requested slot moves up
			// one, so the sequence stays free of duplicates.
			_, err := tx.ExecContext(ctx,
				`UPDATE collection_items SET position = position + 1 WHERE collection_id = ? AND position >= ?;`,
				collectionID, position)
			if err != nil {
				return fmt.Errorf("error shifting positions: %s", err)
			}
		} else {
			err := tx.GetContext(ctx, &position,
				`SELECT COALESCE(MAX(position) + 1, 0) FROM collection_items WHERE collection_id = ?;`, collectionID)
			if err != nil {
				return fmt.Errorf("error computing next position: %s", err)
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO collection_items (collection_id, item_id, position, notes) VALUES (?, ?, ?, ?);`,
			collectionID, itemID, position, args.Notes)
		if isUniqueViolation(err) {
			return fmt.Errorf("item already in collection: %w", constellation.ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("error inserting membership: %s", err)
		}

		if args.Position != nil {
			// A requested slot past the end would otherwise leave a gap.
			if err := compactPositions(ctx, tx, collectionID); err != nil {
				return err
			}
		}

		if err := touchCollection(ctx, tx, collectionID); err != nil {
			return err
		}

		err = tx.GetContext(ctx, &membership,
			`SELECT * FROM collection_items WHERE collection_id = ? AND item_id = ?;`, collectionID, itemID)
		if err != nil {
			return fmt.Errorf("error fetching membership: %s", err)
		}

		return nil
	})
	if err != nil {
		return constellation.CollectionItem{}, err
	}

	return membership, nil
}

func (r CollectionRepo) RemoveItem(ctx context.Context, collectionID, itemID string) (bool, error) {
	var found bool
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM collection_items WHERE collection_id = ? AND item_id = ?;`, collectionID, itemID)
		if err != nil {
			return fmt.Errorf("error deleting membership: %s", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("error reading rows affected: %s", err)
		}
		if affected == 0 {
			return nil
		}
		found = true

		if err := compactPositions(ctx, tx, collectionID); err != nil {
			return err
		}

		return touchCollection(ctx, tx, collectionID)
	})
	if err != nil {
		return false, err
	}

	return found, nil
}

func (r CollectionRepo) Reorder(ctx context.Context, ownerID, collectionID string, updates []constellation.PositionUpdate) error {
	if err := constellation.ValidateReorder(updates); err != nil {
		return err
	}

	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var owned int
		err := tx.GetContext(ctx, &owned,
			`SELECT COUNT(*) FROM collections WHERE id = ? AND owner_id = ?;`, collectionID, ownerID)
		if err != nil {
			return fmt.Errorf("error checking collection ownership: %s", err)
		}
		if owned == 0 {
			return constellation.ErrNotFound
		}

		// One set-based update covers the whole batch.
		var (
			caseExpr strings.Builder
			caseArgs []any
			itemIDs  []string
		)
		caseExpr.WriteString("CASE item_id")
		for _, u := range updates {
			caseExpr.WriteString(" WHEN ? THEN ?")
			caseArgs = append(caseArgs, u.ItemID, u.Position)
			itemIDs = append(itemIDs, u.ItemID)
		}
		caseExpr.WriteString(" END")

		query, queryArgs, err := sq.Update("collection_items").
			Set("position", sq.Expr(caseExpr.String(), caseArgs...)).
			Where(sq.Eq{"collection_id": collectionID, "item_id": itemIDs}).
			ToSql()
		if err != nil {
			return fmt.Errorf("error constructing sql: %s", err)
		}
		res, err := tx.ExecContext(ctx, query, queryArgs...)
		if err != nil {
			return fmt.Errorf("error reordering collection items: %s", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("error reading rows affected: %s", err)
		}
		if int(affected) != len(updates) {
			return fmt.Errorf("one or more items are not in the collection: %w", constellation.ErrNotFound)
		}

		// Compact afterwards so even a partial reorder leaves a dense
		// sequence behind.
		if err := compactPositions(ctx, tx, collectionID); err != nil {
			return err
		}

		return touchCollection(ctx, tx, collectionID)
	})
}

func (r CollectionRepo) ListItems(ctx context.Context, collectionID string, args constellation.ListCollectionItemsArgs) (constellation.Page[constellation.CollectionEntry], error) {
	var page constellation.Page[constellation.CollectionEntry]
	if err := args.Validate(); err != nil {
		return page, err
	}
	if _, err := r.collectionByID(ctx, collectionID); err != nil {
		return page, err
	}

	const countQ = `
	SELECT COUNT(*)
	FROM collection_items ci
	INNER JOIN collections c ON c.id = ci.collection_id
	INNER JOIN saved_items si ON si.owner_id = c.owner_id AND si.item_id = ci.item_id
	WHERE ci.collection_id = ? AND si.is_archived = 0;`
	var total int
	if err := r.db.GetContext(ctx, &total, countQ, collectionID); err != nil {
		return page, fmt.Errorf("error counting collection items: %s", err)
	}

	orderBy := "ci.position ASC"
	switch args.SortBy {
	case constellation.SortByAddedAt:
		orderBy = "ci.added_at ASC, ci.rowid ASC"
	case constellation.SortByTitle:
		orderBy = "si.title ASC"
	case constellation.SortBySavedAt:
		orderBy = "si.saved_at DESC, si.rowid DESC"
	}

	query, queryArgs, err := sq.Select("si.*", "ci.position", "ci.notes", "ci.added_at").
		From("collection_items ci").
		InnerJoin("collections c ON c.id = ci.collection_id").
		InnerJoin("saved_items si ON si.owner_id = c.owner_id AND si.item_id = ci.item_id").
		Where(sq.Eq{"ci.collection_id": collectionID, "si.is_archived": false}).
		OrderBy(orderBy).
		Limit(uint64(args.Limit)).
		Offset(uint64(args.Offset())).
		ToSql()
	if err != nil {
		return page, fmt.Errorf("error constructing sql: %s", err)
	}

	entries := []constellation.CollectionEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, queryArgs...); err != nil {
		return page, fmt.Errorf("error selecting collection items: %s", err)
	}

	page.Items = entries
	page.Meta = constellation.NewPageMeta(total, args.Page, args.Limit)

	return page, nil
}

func (r CollectionRepo) Stats(ctx context.Context, ownerID string) (constellation.CollectionStats, error) {
	const countsQ = `
	SELECT
		COUNT(*) AS total_collections,
		SUM(CASE WHEN is_public = 1 THEN 1 ELSE 0 END) AS public_collections
	FROM collections
	WHERE owner_id = ?;`

	var counts struct {
		TotalCollections  int           `db:"total_collections"`
		PublicCollections sql.NullInt64 `db:"public_collections"`
	}
	if err := r.db.GetContext(ctx, &counts, countsQ, ownerID); err != nil {
		return constellation.CollectionStats{}, fmt.Errorf("error computing collection counts: %s", err)
	}

	const sizesQ = `
	SELECT
		COALESCE(SUM(cnt), 0) AS total_items,
		COALESCE(AVG(cnt), 0) AS avg_items,
		COALESCE(MAX(cnt), 0) AS max_items
	FROM (
		SELECT COUNT(ci.item_id) AS cnt
		FROM collections c
		LEFT JOIN collection_items ci ON ci.collection_id = c.id
		WHERE c.owner_id = ?
		GROUP BY c.id
	);`

	var sizes struct {
		TotalItems int     `db:"total_items"`
		AvgItems   float64 `db:"avg_items"`
		MaxItems   int     `db:"max_items"`
	}
	if err := r.db.GetContext(ctx, &sizes, sizesQ, ownerID); err != nil {
		return constellation.CollectionStats{}, fmt.Errorf("error computing collection sizes: %s", err)
	}

	public := int(counts.PublicCollections.Int64)

	return constellation.CollectionStats{
		TotalCollections:   counts.TotalCollections,
		PublicCollections:  public,
		PrivateCollections: counts.TotalCollections - public,
		TotalItems:         sizes.TotalItems,
		AvgItemsPerColl:    sizes.AvgItems,
		MaxCollectionSize:  sizes.MaxItems,
	}, nil
}

// bm25 weights: name, description.
const collectionRankExpr = "bm25(collections_fts, 5.0, 1.0)"

func (r CollectionRepo) ListPublic(ctx context.Context, args constellation.ListPublicArgs) (constellation.Page[constellation.CollectionSummary], error) {
	var page constellation.Page[constellation.CollectionSummary]
	if err := args.Validate(); err != nil {
		return page, err
	}

	applyFilters := func(b sq.SelectBuilder) sq.SelectBuilder {
		b = b.From("collections c")
		if args.Search != "" {
			b = b.Join("collections_fts ON collections_fts.rowid = c.rowid").
				Where("collections_fts MATCH ?", matchQuery(args.Search))
		}
		return b.Where(sq.Eq{"c.is_public": true})
	}

	countQuery, countArgs, err := applyFilters(sq.Select("COUNT(*)")).ToSql()
	if err != nil {
		return page, fmt.Errorf("error constructing sql: %s", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return page, fmt.Errorf("error counting public collections: %s", err)
	}

	orderBy := "c.updated_at DESC, c.rowid DESC"
	if args.Search != "" {
		orderBy = collectionRankExpr
	}

	query, queryArgs, err := applyFilters(sq.Select("c.*", "COUNT(si.item_id) AS item_count", "0 AS is_owner")).
		LeftJoin("collection_items ci ON ci.collection_id = c.id").
		LeftJoin("saved_items si ON si.owner_id = c.owner_id AND si.item_id = ci.item_id AND si.is_archived = 0").
		GroupBy("c.id").
		OrderBy(orderBy).
		Limit(uint64(args.Limit)).
		Offset(uint64(args.Offset())).
		ToSql()
	if err != nil {
		return page, fmt.Errorf("error constructing sql: %s", err)
	}

	summaries := []constellation.CollectionSummary{}
	if err := r.db.SelectContext(ctx, &summaries, query, queryArgs...); err != nil {
		return page, fmt.Errorf("error selecting public collections: %s", err)
	}

	page.Items = summaries
	page.Meta = constellation.NewPageMeta(total, args.Page, args.Limit)

	return page, nil
}

func (r CollectionRepo) collectionByID(ctx context.Context, id string) (constellation.Collection, error) {
	const q = `SELECT * FROM collections WHERE id = ?;`

	var coll constellation.Collection
	err := r.db.GetContext(ctx, &coll, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return constellation.Collection{}, constellation.ErrNotFound
	}
	if err != nil {
		return constellation.Collection{}, fmt.Errorf("error fetching collection: %s", err)
	}

	return coll, nil
}

// compactPositions renumbers the collection's members to a dense 0..n-1
// sequence ordered by their prior position, ties broken by added_at. One
// set-based statement, so no gap is observable once the transaction commits.
func compactPositions(ctx context.Context, tx *sqlx.Tx, collectionID string) error {
	const q = `
	WITH ranked AS (
		SELECT item_id, ROW_NUMBER() OVER (ORDER BY position, added_at, rowid) - 1 AS new_position
		FROM collection_items
		WHERE collection_id = ?
	)
	UPDATE collection_items
	SET position = (SELECT new_position FROM ranked WHERE ranked.item_id = collection_items.item_id)
	WHERE collection_id = ?;`

	if _, err := tx.ExecContext(ctx, q, collectionID, collectionID); err != nil {
		return fmt.Errorf("error compacting positions: %s", err)
	}

	return nil
}

func touchCollection(ctx context.Context, tx *sqlx.Tx, collectionID string) error {
	const q = `UPDATE collections SET updated_at = CURRENT_TIMESTAMP WHERE id = ?;`

	if _, err := tx.ExecContext(ctx, q, collectionID); err != nil {
		return fmt.Errorf("error touching collection: %s", err)
	}

	return nil
}
