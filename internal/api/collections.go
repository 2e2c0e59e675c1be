package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/evanfuller/constellation/internal/constellation"
	cerrs "github.com/evanfuller/constellation/internal/errors"
	"github.com/evanfuller/constellation/internal/serverutil"
)

type CollectionResp struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func apiCollection(coll constellation.Collection) CollectionResp {
	return CollectionResp{
		ID:          coll.ID,
		Name:        coll.Name,
		Description: coll.Description,
		IsPublic:    coll.IsPublic,
		CreatedAt:   coll.CreatedAt,
		UpdatedAt:   coll.UpdatedAt,
	}
}

type CollectionSummaryResp struct {
	CollectionResp

	ItemCount int  `json:"item_count"`
	IsOwner   bool `json:"is_owner"`
}

type CollectionListResp struct {
	Collections []CollectionSummaryResp `json:"collections"`
	Pagination  constellation.PageMeta  `json:"pagination"`
}

func apiCollectionList(page constellation.Page[constellation.CollectionSummary]) CollectionListResp {
	resp := CollectionListResp{
		Collections: make([]CollectionSummaryResp, 0, len(page.Items)),
		Pagination:  page.Meta,
	}
	for _, summary := range page.Items {
		resp.Collections = append(resp.Collections, CollectionSummaryResp{
			CollectionResp: apiCollection(summary.Collection),
			ItemCount:      summary.ItemCount,
			IsOwner:        summary.IsOwner,
		})
	}

	return resp
}

func (s Server) getCollections(w http.ResponseWriter, r *http.Request) error {
	args := constellation.ListCollectionsArgs{
		PageArgs:      parsePageArgs(r),
		IncludePublic: r.URL.Query().Get("include_public") == "true",
	}
	page, err := s.collections.List(r.Context(), ownerFrom(r), args)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, apiCollectionList(page))
}

type CreateCollectionReq struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	IsPublic    bool    `json:"is_public"`
}

func (req CreateCollectionReq) args() constellation.CreateCollectionArgs {
	return constellation.CreateCollectionArgs{
		Name:        req.Name,
		Description: req.Description,
		IsPublic:    req.IsPublic,
	}
}

func (req CreateCollectionReq) Validate() error {
	return req.args().Validate()
}

func (s Server) postCollection(w http.ResponseWriter, r *http.Request) error {
	req, err := serverutil.DecodeValid[CreateCollectionReq](r.Body)
	if err != nil {
		return err
	}

	coll, err := s.collections.Create(r.Context(), ownerFrom(r), req.args())
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusCreated, apiCollection(coll))
}

type UpdateCollectionReq struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"is_public"`
}

func (req UpdateCollectionReq) args() constellation.UpdateCollectionArgs {
	return constellation.UpdateCollectionArgs{
		Name:        req.Name,
		Description: req.Description,
		IsPublic:    req.IsPublic,
	}
}

func (req UpdateCollectionReq) Validate() error {
	return req.args().Validate()
}

func (s Server) patchCollection(w http.ResponseWriter, r *http.Request) error {
	collectionID := mux.Vars(r)["collectionID"]

	req, err := serverutil.DecodeValid[UpdateCollectionReq](r.Body)
	if err != nil {
		return err
	}

	coll, err := s.collections.Update(r.Context(), ownerFrom(r), collectionID, req.args())
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, apiCollection(coll))
}

func (s Server) deleteCollection(w http.ResponseWriter, r *http.Request) error {
	collectionID := mux.Vars(r)["collectionID"]

	found, err := s.collections.Delete(r.Context(), ownerFrom(r), collectionID)
	if err != nil {
		return err
	}
	if !found {
		return cerrs.E("collection not found", http.StatusNotFound)
	}

	return serverutil.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type CollectionEntryResp struct {
	ItemResp

	Position int       `json:"position"`
	Notes    *string   `json:"notes,omitempty"`
	AddedAt  time.Time `json:"added_at"`
}

type CollectionItemsResp struct {
	Items      []CollectionEntryResp  `json:"items"`
	Pagination constellation.PageMeta `json:"pagination"`
}

func (s Server) getCollectionItems(w http.ResponseWriter, r *http.Request) error {
	collectionID := mux.Vars(r)["collectionID"]

	args := constellation.ListCollectionItemsArgs{
		PageArgs: parsePageArgs(r),
		SortBy:   r.URL.Query().Get("sort_by"),
	}
	page, err := s.collections.ListItems(r.Context(), collectionID, args)
	if err != nil {
		return err
	}

	resp := CollectionItemsResp{
		Items:      make([]CollectionEntryResp, 0, len(page.Items)),
		Pagination: page.Meta,
	}
	for _, entry := range page.Items {
		resp.Items = append(resp.Items, CollectionEntryResp{
			ItemResp: apiItem(entry.SavedItem),
			Position: entry.Position,
			Notes:    entry.Notes,
			AddedAt:  entry.AddedAt,
		})
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

type AddCollectionItemReq struct {
	ItemID   string  `json:"item_id"`
	Position *int    `json:"position"`
	Notes    *string `json:"notes"`
}

func (req AddCollectionItemReq) Validate() error {
	if req.ItemID == "" {
		return cerrs.E("item_id is required", http.StatusBadRequest)
	}

	return constellation.AddCollectionItemArgs{Position: req.Position, Notes: req.Notes}.Validate()
}

type MembershipResp struct {
	CollectionID string    `json:"collection_id"`
	ItemID       string    `json:"item_id"`
	Position     int       `json:"position"`
	Notes        *string   `json:"notes,omitempty"`
	AddedAt      time.Time `json:"added_at"`
}

func (s Server) postCollectionItem(w http.ResponseWriter, r *http.Request) error {
	collectionID := mux.Vars(r)["collectionID"]

	req, err := serverutil.DecodeValid[AddCollectionItemReq](r.Body)
	if err != nil {
		return err
	}

	membership, err := s.collections.AddItem(r.Context(), collectionID, req.ItemID, constellation.AddCollectionItemArgs{
		Position: req.Position,
		Notes:    req.Notes,
	})
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusCreated, MembershipResp{
		CollectionID: membership.CollectionID,
		ItemID:       membership.ItemID,
		Position:     membership.Position,
		Notes:        membership.Notes,
		AddedAt:      membership.AddedAt,
	})
}

func (s Server) deleteCollectionItem(w http.ResponseWriter, r *http.Request) error {
	vars := mux.Vars(r)

	found, err := s.collections.RemoveItem(r.Context(), vars["collectionID"], vars["itemID"])
	if err != nil {
		return err
	}
	if !found {
		return cerrs.E("item is not in the collection", http.StatusNotFound)
	}

	return serverutil.WriteJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

type ReorderReq struct {
	Positions []constellation.PositionUpdate `json:"positions"`
}

func (req ReorderReq) Validate() error {
	return constellation.ValidateReorder(req.Positions)
}

func (s Server) putPositions(w http.ResponseWriter, r *http.Request) error {
	collectionID := mux.Vars(r)["collectionID"]

	req, err := serverutil.DecodeValid[ReorderReq](r.Body)
	if err != nil {
		return err
	}

	if err := s.collections.Reorder(r.Context(), ownerFrom(r), collectionID, req.Positions); err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, map[string]bool{"reordered": true})
}

func (s Server) getCollectionStats(w http.ResponseWriter, r *http.Request) error {
	stats, err := s.collections.Stats(r.Context(), ownerFrom(r))
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, stats)
}

func (s Server) getPublicCollections(w http.ResponseWriter, r *http.Request) error {
	args := constellation.ListPublicArgs{
		PageArgs: parsePageArgs(r),
		Search:   r.URL.Query().Get("q"),
	}
	page, err := s.collections.ListPublic(r.Context(), args)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, apiCollectionList(page))
}
