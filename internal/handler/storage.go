package handler

import (
	"net/http"

	"github.com/templui/cloudbox/internal/ctxkeys"
	"github.com/templui/cloudbox/internal/service"
)

type StorageHandler struct {
	storageService *service.StorageService
}

func NewStorageHandler(storageService *service.StorageService) *StorageHandler {
	return &StorageHandler{
		storageService: storageService,
	}
}

func (h *StorageHandler) Quota(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	quota, err := h.storageService.Quota(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":      quota.Total,
		"used":       quota.Used,
		"available":  quota.Available,
		"percentage": quota.Percentage,
	})
}

func (h *StorageHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	stats, err := h.storageService.Stats(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalFiles":   stats.FileCount,
		"totalFolders": stats.FolderCount,
		"totalSize":    stats.UsedSize,
	})
}
