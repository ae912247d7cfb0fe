package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/templui/cloudbox/internal/service"
)

// CronHandler runs scheduled maintenance. Callers authenticate with
// "Authorization: Bearer <CRON_SECRET>"; with no secret configured every call is refused.
type CronHandler struct {
	cleanupService *service.CleanupService
	cronSecret     string
}

func NewCronHandler(cleanupService *service.CleanupService, cronSecret string) *CronHandler {
	return &CronHandler{
		cleanupService: cleanupService,
		cronSecret:     cronSecret,
	}
}

func (h *CronHandler) authorized(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) == 1
}

// Cleanup purges expired trash. ?dryRun=true reports without deleting.
func (h *CronHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		slog.Warn("unauthorized cron request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
		writeFail(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	dryRun := r.URL.Query().Get("dryRun") == "true"
	result, err := h.cleanupService.Run(r.Context(), dryRun)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deletedFiles":   result.DeletedFiles,
		"deletedFolders": result.DeletedFolders,
		"deletedRecords": result.DeletedRecords,
		"errorCount":     result.ErrorCount,
		"duration":       result.Duration,
		"dryRun":         result.DryRun,
	})
}
