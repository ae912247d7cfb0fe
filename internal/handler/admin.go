package handler

import (
	"net/http"

	"github.com/templui/cloudbox/internal/service"
)

// AdminHandler exposes the maintenance tools to users with the admin role.
type AdminHandler struct {
	storageService  *service.StorageService
	favoriteService *service.FavoriteService
}

func NewAdminHandler(storageService *service.StorageService, favoriteService *service.FavoriteService) *AdminHandler {
	return &AdminHandler{
		storageService:  storageService,
		favoriteService: favoriteService,
	}
}

// Reconcile recomputes storage counters for one user (?userId=) or for everyone.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if userID := r.URL.Query().Get("userId"); userID != "" {
		result, err := h.storageService.Reconcile(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"usersScanned": 1,
			"usersFixed":   boolToInt(result.Before != result.After),
			"results":      []*service.ReconcileResult{result},
		})
		return
	}

	summary, err := h.storageService.ReconcileAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"usersScanned": summary.UsersScanned,
		"usersFixed":   summary.UsersFixed,
		"results":      summary.Results,
	})
}

func (h *AdminHandler) FixFavoriteDefaults(w http.ResponseWriter, r *http.Request) {
	result, err := h.favoriteService.FixDefaultFolders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"usersScanned": result.UsersScanned,
		"usersFixed":   result.UsersFixed,
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
