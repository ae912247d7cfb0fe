package routes

import (
	"net/http"

	"github.com/templui/cloudbox/internal/app"
	"github.com/templui/cloudbox/internal/handler"
	"github.com/templui/cloudbox/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	health := handler.NewHealthHandler(app.DB)
	folders := handler.NewFolderHandler(app.FileService)
	files := handler.NewFileHandler(app.FileService, app.Cfg.MaxUploadSize)
	storage := handler.NewStorageHandler(app.StorageService)
	favorites := handler.NewFavoriteHandler(app.FavoriteService)
	admin := handler.NewAdminHandler(app.StorageService, app.FavoriteService)
	cron := handler.NewCronHandler(app.CleanupService, app.Cfg.CronSecret)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /healthz", health.Healthz)

	// Scheduler entry point, authenticated by CRON_SECRET
	mux.HandleFunc("GET /cron/cleanup", cron.Cleanup)

	// ============================================================================
	// PROTECTED ROUTES
	// ============================================================================

	// Folders
	mux.HandleFunc("POST /folders", middleware.RequireAuth(folders.Create))
	mux.HandleFunc("GET /folders/{id}/path", middleware.RequireAuth(folders.Path))
	mux.HandleFunc("GET /folders/{id}/contents", middleware.RequireAuth(folders.Contents))

	// Files
	mux.HandleFunc("GET /files", middleware.RequireAuth(files.List))
	mux.HandleFunc("POST /files", middleware.RequireAuth(files.Upload))
	mux.HandleFunc("GET /files/trash", middleware.RequireAuth(files.Trash))
	mux.HandleFunc("GET /files/{id}/content", middleware.RequireAuth(files.Content))
	mux.HandleFunc("POST /files/move", middleware.RequireAuth(files.Move))
	mux.HandleFunc("POST /files/delete", middleware.RequireAuth(files.Delete))
	mux.HandleFunc("POST /files/restore", middleware.RequireAuth(files.Restore))
	mux.HandleFunc("POST /files/{id}/rename", middleware.RequireAuth(files.Rename))

	// Storage
	mux.HandleFunc("GET /storage/quota", middleware.RequireAuth(storage.Quota))
	mux.HandleFunc("GET /storage/stats", middleware.RequireAuth(storage.Stats))
	mux.HandleFunc("POST /storage/files/check-name-conflicts", middleware.RequireAuth(files.CheckConflicts))

	// Favorites
	mux.HandleFunc("GET /favorites/folders", middleware.RequireAuth(favorites.Folders))
	mux.HandleFunc("POST /favorites/folders", middleware.RequireAuth(favorites.CreateFolder))
	mux.HandleFunc("GET /favorites", middleware.RequireAuth(favorites.List))
	mux.HandleFunc("POST /favorites", middleware.RequireAuth(favorites.Add))
	mux.HandleFunc("DELETE /favorites/{fileId}", middleware.RequireAuth(favorites.Remove))

	// ============================================================================
	// ADMIN ROUTES
	// ============================================================================

	mux.HandleFunc("POST /admin/storage/reconcile", middleware.RequireAdmin(admin.Reconcile))
	mux.HandleFunc("POST /admin/favorites/fix-defaults", middleware.RequireAdmin(admin.FixFavoriteDefaults))

	// ============================================================================
	// FALLBACK
	// ============================================================================

	mux.HandleFunc("/{path...}", handler.NotFound)

	// Global middleware - executed in order (top to bottom)
	return middleware.Chain(
		mux,
		middleware.RequestLogging,
		middleware.Config(app.Cfg),
		middleware.RateLimit(app.Counter, app.Cfg.RateLimitRequests, app.Cfg.RateLimitWindow),
		middleware.CSRFProtection, // Cookie sessions only; bearer clients and cron are exempt
		middleware.Auth(app.AuthService),
	)
}
