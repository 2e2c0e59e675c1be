package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/evanfuller/constellation/internal/constellation"
	cerrs "github.com/evanfuller/constellation/internal/errors"
	"github.com/evanfuller/constellation/internal/serverutil"
)

type ItemResp struct {
	ItemID      string         `json:"item_id"`
	ItemType    string         `json:"item_type"`
	Title       string         `json:"title"`
	URL         string         `json:"url"`
	HDURL       *string        `json:"hd_url,omitempty"`
	MediaKind   *string        `json:"media_kind,omitempty"`
	Category    *string        `json:"category,omitempty"`
	Description *string        `json:"description,omitempty"`
	Copyright   *string        `json:"copyright,omitempty"`
	ContentDate *string        `json:"content_date,omitempty"`
	SavedAt     time.Time      `json:"saved_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	UserNote    *string        `json:"user_note,omitempty"`
	UserTags    []string       `json:"user_tags"`
	IsFavorite  bool           `json:"is_favorite"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func apiItem(item constellation.SavedItem) ItemResp {
	return ItemResp{
		ItemID:      item.ItemID,
		ItemType:    string(item.ItemType),
		Title:       item.Title,
		URL:         item.URL,
		HDURL:       item.HDURL,
		MediaKind:   item.MediaKind,
		Category:    item.Category,
		Description: item.Description,
		Copyright:   item.Copyright,
		ContentDate: item.ContentDate,
		SavedAt:     item.SavedAt,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
		UserNote:    item.UserNote,
		UserTags:    item.UserTags,
		IsFavorite:  item.IsFavorite,
		Metadata:    item.Metadata,
	}
}

type AnnotatedItemResp struct {
	ItemResp

	CollectionCount int      `json:"collection_count"`
	CollectionNames []string `json:"collection_names"`
}

type ItemListResp struct {
	Items      []AnnotatedItemResp    `json:"items"`
	Pagination constellation.PageMeta `json:"pagination"`
}

func (s Server) getFavorites(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx   = r.Context()
		query = r.URL.Query()
	)

	args := constellation.ListItemsArgs{
		PageArgs:        parsePageArgs(r),
		Type:            constellation.ItemType(query.Get("type")),
		IncludeArchived: query.Get("include_archived") == "true",
	}
	page, err := s.items.List(ctx, ownerFrom(r), args)
	if err != nil {
		return err
	}

	resp := ItemListResp{
		Items:      make([]AnnotatedItemResp, 0, len(page.Items)),
		Pagination: page.Meta,
	}
	for _, item := range page.Items {
		resp.Items = append(resp.Items, AnnotatedItemResp{
			ItemResp:        apiItem(item.SavedItem),
			CollectionCount: item.CollectionCount,
			CollectionNames: item.CollectionNames,
		})
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

type AddFavoriteReq struct {
	ItemID      string         `json:"item_id"`
	ItemType    string         `json:"item_type"`
	Title       string         `json:"title"`
	URL         string         `json:"url"`
	HDURL       *string        `json:"hd_url"`
	MediaKind   *string        `json:"media_kind"`
	Category    *string        `json:"category"`
	Description *string        `json:"description"`
	Copyright   *string        `json:"copyright"`
	ContentDate *string        `json:"content_date"`
	Metadata    map[string]any `json:"metadata"`
}

func (req AddFavoriteReq) args() constellation.AddItemArgs {
	return constellation.AddItemArgs{
		ItemID:      req.ItemID,
		ItemType:    constellation.ItemType(req.ItemType),
		Title:       req.Title,
		URL:         req.URL,
		HDURL:       req.HDURL,
		MediaKind:   req.MediaKind,
		Category:    req.Category,
		Description: req.Description,
		Copyright:   req.Copyright,
		ContentDate: req.ContentDate,
		Metadata:    req.Metadata,
	}
}

func (req AddFavoriteReq) Validate() error {
	return req.args().Validate()
}

func (s Server) postFavorite(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	req, err := serverutil.DecodeValid[AddFavoriteReq](r.Body)
	if err != nil {
		return err
	}

	item, err := s.items.Add(ctx, ownerFrom(r), req.args())
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusCreated, apiItem(item))
}

func (s Server) getFavorite(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx    = r.Context()
		itemID = mux.Vars(r)["itemID"]
	)

	item, err := s.items.Get(ctx, ownerFrom(r), itemID)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, apiItem(item))
}

type UpdateFavoriteReq struct {
	Note       *string             `json:"note"`
	Tags       *constellation.Tags `json:"tags"`
	IsFavorite *bool               `json:"is_favorite"`
}

func (req UpdateFavoriteReq) args() constellation.UpdateItemArgs {
	return constellation.UpdateItemArgs{
		Note:       req.Note,
		Tags:       req.Tags,
		IsFavorite: req.IsFavorite,
	}
}

func (req UpdateFavoriteReq) Validate() error {
	return req.args().Validate()
}

func (s Server) patchFavorite(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx    = r.Context()
		itemID = mux.Vars(r)["itemID"]
	)

	req, err := serverutil.DecodeValid[UpdateFavoriteReq](r.Body)
	if err != nil {
		return err
	}

	item, err := s.items.Update(ctx, ownerFrom(r), itemID, req.args())
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, apiItem(item))
}

func (s Server) deleteFavorite(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx    = r.Context()
		itemID = mux.Vars(r)["itemID"]
	)

	found, err := s.items.Remove(ctx, ownerFrom(r), itemID)
	if err != nil {
		return err
	}
	if !found {
		return cerrs.E("item not found", http.StatusNotFound)
	}

	return serverutil.WriteJSON(w, http.StatusOK, map[string]bool{"archived": true})
}

type SearchResultResp struct {
	ItemResp

	Rank float64 `json:"rank"`
}

type SearchResp struct {
	Items      []SearchResultResp     `json:"items"`
	Pagination constellation.PageMeta `json:"pagination"`
}

func (s Server) searchFavorites(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx   = r.Context()
		query = r.URL.Query()
	)

	args := constellation.SearchArgs{PageArgs: parsePageArgs(r)}
	for _, t := range query["type"] {
		args.Types = append(args.Types, constellation.ItemType(t))
	}
	args.Tags = query["tag"]

	page, err := s.items.Search(ctx, ownerFrom(r), query.Get("q"), args)
	if err != nil {
		return err
	}

	resp := SearchResp{
		Items:      make([]SearchResultResp, 0, len(page.Items)),
		Pagination: page.Meta,
	}
	for _, result := range page.Items {
		resp.Items = append(resp.Items, SearchResultResp{
			ItemResp: apiItem(result.SavedItem),
			Rank:     result.Rank,
		})
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

func (s Server) getFavoriteStats(w http.ResponseWriter, r *http.Request) error {
	stats, err := s.items.Stats(r.Context(), ownerFrom(r))
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, stats)
}
