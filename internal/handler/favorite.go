package handler

import (
	"net/http"

	"github.com/templui/cloudbox/internal/ctxkeys"
	"github.com/templui/cloudbox/internal/service"
)

type FavoriteHandler struct {
	favoriteService *service.FavoriteService
}

func NewFavoriteHandler(favoriteService *service.FavoriteService) *FavoriteHandler {
	return &FavoriteHandler{
		favoriteService: favoriteService,
	}
}

type createFavoriteFolderRequest struct {
	Name string `json:"name" validate:"required"`
}

type addFavoriteRequest struct {
	FileID   string  `json:"fileId" validate:"required"`
	FolderID *string `json:"folderId"`
}

// optionalQuery returns nil for an absent or empty query value.
func optionalQuery(r *http.Request, key string) *string {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	return &v
}

func (h *FavoriteHandler) Folders(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	folders, err := h.favoriteService.Folders(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

func (h *FavoriteHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req createFavoriteFolderRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	folder, err := h.favoriteService.CreateFolder(r.Context(), user.ID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"folder": folder})
}

func (h *FavoriteHandler) List(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	items, err := h.favoriteService.List(r.Context(), user.ID, optionalQuery(r, "folderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *FavoriteHandler) Add(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req addFavoriteRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	favorite, err := h.favoriteService.Add(r.Context(), user.ID, req.FileID, req.FolderID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"favorite": favorite})
}

// Remove unlinks a file from one favorite folder (?folderId=) or from all of them.
func (h *FavoriteHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	err := h.favoriteService.Remove(r.Context(), user.ID, r.PathValue("fileId"), optionalQuery(r, "folderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, nil)
}
