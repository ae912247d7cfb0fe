package handler

import (
	"net/http"

	"github.com/templui/cloudbox/internal/ctxkeys"
	"github.com/templui/cloudbox/internal/service"
)

type FolderHandler struct {
	fileService *service.FileService
}

func NewFolderHandler(fileService *service.FileService) *FolderHandler {
	return &FolderHandler{
		fileService: fileService,
	}
}

type createFolderRequest struct {
	Name     string   `json:"name" validate:"required"`
	ParentID *string  `json:"parentId"`
	Tags     []string `json:"tags" validate:"max=50"`
}

func (h *FolderHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req createFolderRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var parentID *string
	if req.ParentID != nil {
		parentID = service.ParentID(*req.ParentID)
	}

	folder, err := h.fileService.CreateFolder(r.Context(), user.ID, req.Name, parentID, req.Tags)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"folder": folder})
}

func (h *FolderHandler) Path(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	path, err := h.fileService.FolderPath(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"path": path})
}

// Contents lists a folder's direct children. The id "root" lists the top level.
func (h *FolderHandler) Contents(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	items, err := h.fileService.FolderContents(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
