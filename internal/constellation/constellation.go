// Package constellation holds the domain types and store interfaces for the
// saved-item and collection subsystem.
package constellation

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("resource not found")
	ErrAlreadyExists   = errors.New("resource already exists")
	ErrInvalidArgument = errors.New("invalid argument")
)

// PageArgs are the common pagination inputs for every list/search operation.
type PageArgs struct {
	Page  int
	Limit int
}

func (p PageArgs) Validate() error {
	if p.Page < 1 {
		return fmt.Errorf("page must be >= 1: %w", ErrInvalidArgument)
	}
	if p.Limit < 1 || p.Limit > 100 {
		return fmt.Errorf("limit must be between 1 and 100: %w", ErrInvalidArgument)
	}

	return nil
}

// Offset converts the 1-based page into a row offset.
func (p PageArgs) Offset() int {
	return (p.Page - 1) * p.Limit
}

// PageMeta is the pagination envelope returned by every list/search call.
type PageMeta struct {
	Total       int  `json:"total"`
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	TotalPages  int  `json:"total_pages"`
	HasNextPage bool `json:"has_next_page"`
	HasPrevPage bool `json:"has_prev_page"`
}

func NewPageMeta(total, page, limit int) PageMeta {
	totalPages := (total + limit - 1) / limit

	return PageMeta{
		Total:       total,
		Page:        page,
		Limit:       limit,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1 && total > 0,
	}
}

// Page is a slice of results plus its pagination envelope.
type Page[T any] struct {
	Items []T      `json:"items"`
	Meta  PageMeta `json:"pagination"`
}

// Tags is a set of user-supplied tag strings, stored as a JSON array.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		t = Tags{}
	}
	byts, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("error marshaling tags: %s", err)
	}

	return string(byts), nil
}

func (t *Tags) Scan(src any) error {
	switch src := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case string:
		return json.Unmarshal([]byte(src), t)
	case []byte:
		return json.Unmarshal(src, t)
	default:
		return fmt.Errorf("cannot scan %T into tags", src)
	}
}

// Metadata is the open key/value bag carried on a saved item.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		m = Metadata{}
	}
	byts, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error marshaling metadata: %s", err)
	}

	return string(byts), nil
}

func (m *Metadata) Scan(src any) error {
	switch src := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case string:
		return json.Unmarshal([]byte(src), m)
	case []byte:
		return json.Unmarshal(src, m)
	default:
		return fmt.Errorf("cannot scan %T into metadata", src)
	}
}
