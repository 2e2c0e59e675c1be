package api

import (
	"net/http"
	"strconv"

	"github.com/evanfuller/constellation/internal/constellation"
)

const defaultPageLimit = 20

// parsePageArgs reads page-based pagination from the query string
// (?page=2&limit=20). Bounds are enforced by the stores, not here, so an
// out-of-range value surfaces as the store's invalid-argument error.
func parsePageArgs(r *http.Request) constellation.PageArgs {
	query := r.URL.Query()

	page := 1
	if raw := query.Get("page"); raw != "" {
		page, _ = strconv.Atoi(raw)
	}

	limit := defaultPageLimit
	if raw := query.Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	return constellation.PageArgs{Page: page, Limit: limit}
}
