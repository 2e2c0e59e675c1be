// Package sqlite implements the saved-item and collection stores on SQLite.
package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"github.com/evanfuller/constellation/internal/constellation"
)

// Ensure the repos implement their store interfaces
var (
	_ constellation.ItemStore       = (*ItemRepo)(nil)
	_ constellation.CollectionStore = (*CollectionRepo)(nil)
)

// ItemRepo persists saved items.
type ItemRepo struct {
	db *sqlx.DB
}

func NewItemRepo(db *sqlx.DB) ItemRepo {
	return ItemRepo{db: db}
}

// CollectionRepo persists collections and their memberships.
type CollectionRepo struct {
	db *sqlx.DB
}

func NewCollectionRepo(db *sqlx.DB) CollectionRepo {
	return CollectionRepo{db: db}
}

// inTx runs fn inside a single transaction, rolling back on any error so a
// failed multi-step mutation never leaves partial writes behind.
func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %s", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %s", err)
	}

	return nil
}

// SQLite extended result codes for uniqueness violations.
const (
	codeConstraintPrimaryKey = 1555
	codeConstraintUnique     = 2067
)

// isUniqueViolation reports whether err is a primary-key or unique-index
// constraint failure. Races lost against a concurrent insert surface this
// way and get remapped to [constellation.ErrAlreadyExists] by callers.
func isUniqueViolation(err error) bool {
	sqliteErr := (&sqlite.Error{})
	if !errors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.Code() == codeConstraintPrimaryKey || sqliteErr.Code() == codeConstraintUnique
}
