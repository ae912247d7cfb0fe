package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/templui/cloudbox/internal/cache"
	"github.com/templui/cloudbox/internal/config"
	"github.com/templui/cloudbox/internal/db"
	"github.com/templui/cloudbox/internal/repository"
	"github.com/templui/cloudbox/internal/service"
	"github.com/templui/cloudbox/internal/storage"
)

type App struct {
	Cfg             *config.Config
	DB              *sqlx.DB
	Store           *repository.Store
	Storage         storage.Storage
	Counter         *cache.Counter
	AuthService     *service.AuthService
	UserService     *service.UserService
	FileService     *service.FileService
	StorageService  *service.StorageService
	CleanupService  *service.CleanupService
	FavoriteService *service.FavoriteService
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Repositories
	store := repository.NewStore(database)

	// Storage
	fileStorage, err := storage.New(ctx, cfg)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Rate limit counters
	counter, err := cache.NewCounter(cfg.RateLimitPath)
	if err != nil {
		fileStorage.Close()
		database.Close()
		return nil, fmt.Errorf("failed to initialize rate limit store: %w", err)
	}

	// Services
	userService := service.NewUserService(store.Users)
	authService := service.NewAuthService(userService, cfg.JWTSecret, cfg.JWTExpiry)
	fileService := service.NewFileService(store, fileStorage, cfg.DefaultStorageLimit, cfg.MaxUploadSize, cfg.Retention())
	storageService := service.NewStorageService(store, cfg.DefaultStorageLimit)
	favoriteService := service.NewFavoriteService(store)
	cleanupService := service.NewCleanupService(store, fileStorage, service.CleanupOptions{
		Retention:        cfg.Retention(),
		MaxFilesPerRun:   cfg.CleanupMaxFilesPerRun,
		MaxFoldersPerRun: cfg.CleanupMaxFoldersPerRun,
		MaxPurgeAttempts: cfg.CleanupMaxPurgeAttempts,
		LogEnabled:       cfg.CleanupLogEnabled,
	})

	return &App{
		Cfg:             cfg,
		DB:              database,
		Store:           store,
		Storage:         fileStorage,
		Counter:         counter,
		AuthService:     authService,
		UserService:     userService,
		FileService:     fileService,
		StorageService:  storageService,
		CleanupService:  cleanupService,
		FavoriteService: favoriteService,
	}, nil
}

// Close releases the counter store, the blob store and the database.
func (a *App) Close() error {
	var errs []error
	if a.Counter != nil {
		errs = append(errs, a.Counter.Close())
	}
	if a.Storage != nil {
		errs = append(errs, a.Storage.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
