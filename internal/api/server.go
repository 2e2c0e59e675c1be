// Package api is the thin HTTP surface over the stores. Authentication
// happens upstream; the owner id arrives on a trusted header.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/evanfuller/constellation/internal/constellation"
	cerrs "github.com/evanfuller/constellation/internal/errors"
	"github.com/evanfuller/constellation/internal/serverutil"
	"github.com/evanfuller/constellation/logger"
)

const ownerHeader = "X-Owner-ID"

type (
	// Server handles requests against the favorites and collections stores.
	Server struct {
		*http.Server

		items       constellation.ItemStore
		collections constellation.CollectionStore
	}

	ServerConfig struct {
		Port       int
		CorsOrigin string
	}
)

func NewServer(config ServerConfig, items constellation.ItemStore, collections constellation.CollectionStore) *Server {
	r := serverutil.ErrRouter{Router: mux.NewRouter()}

	srvr := Server{
		items:       items,
		collections: collections,
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{config.CorsOrigin}),
				handlers.AllowedMethods([]string{
					http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions,
				}),
				handlers.AllowedHeaders([]string{"content-type", ownerHeader}),
			)(r),
		},
	}

	r.Use(serverutil.AccessLogMiddleware)

	// Public browsing needs no owner.
	r.HandleFuncE("/api/collections/public", srvr.getPublicCollections).Methods(http.MethodGet)

	authed := serverutil.ErrRouter{Router: r.NewRoute().Subrouter()}
	authed.Use(requireOwnerMiddleware)

	authed.HandleFuncE("/api/favorites", srvr.getFavorites).Methods(http.MethodGet)
	authed.HandleFuncE("/api/favorites", srvr.postFavorite).Methods(http.MethodPost)
	authed.HandleFuncE("/api/favorites/search", srvr.searchFavorites).Methods(http.MethodGet)
	authed.HandleFuncE("/api/favorites/stats", srvr.getFavoriteStats).Methods(http.MethodGet)
	authed.HandleFuncE("/api/favorites/{itemID}", srvr.getFavorite).Methods(http.MethodGet)
	authed.HandleFuncE("/api/favorites/{itemID}", srvr.patchFavorite).Methods(http.MethodPatch)
	authed.HandleFuncE("/api/favorites/{itemID}", srvr.deleteFavorite).Methods(http.MethodDelete)

	authed.HandleFuncE("/api/collections", srvr.getCollections).Methods(http.MethodGet)
	authed.HandleFuncE("/api/collections", srvr.postCollection).Methods(http.MethodPost)
	authed.HandleFuncE("/api/collections/stats", srvr.getCollectionStats).Methods(http.MethodGet)
	authed.HandleFuncE("/api/collections/{collectionID}", srvr.patchCollection).Methods(http.MethodPatch)
	authed.HandleFuncE("/api/collections/{collectionID}", srvr.deleteCollection).Methods(http.MethodDelete)
	authed.HandleFuncE("/api/collections/{collectionID}/items", srvr.getCollectionItems).Methods(http.MethodGet)
	authed.HandleFuncE("/api/collections/{collectionID}/items", srvr.postCollectionItem).Methods(http.MethodPost)
	authed.HandleFuncE("/api/collections/{collectionID}/items/{itemID}", srvr.deleteCollectionItem).Methods(http.MethodDelete)
	authed.HandleFuncE("/api/collections/{collectionID}/positions", srvr.putPositions).Methods(http.MethodPut)

	slog.Debug("configured server", "port", config.Port)

	return &srvr
}

type ownerKey struct{}

// requireOwnerMiddleware pulls the upstream-authenticated owner id off the
// request. The core trusts but does not validate it.
func requireOwnerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get(ownerHeader)
		if owner == "" {
			serverutil.HandlerFuncE(func(w http.ResponseWriter, r *http.Request) error {
				return cerrs.E("missing owner", http.StatusUnauthorized)
			}).ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), ownerKey{}, owner)
		ctx = logger.Ctx(ctx, slog.String("owner_id", owner))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFrom(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey{}).(string)
	return owner
}
