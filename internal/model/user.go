package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Role         string    `db:"role" json:"role"`
	StorageUsed  int64     `db:"storage_used" json:"storageUsed"`
	StorageLimit int64     `db:"storage_limit" json:"storageLimit"` // 0 = use the configured default
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// StorageStats are computed from live rows and are the source of truth for quota.
type StorageStats struct {
	FileCount   int64 `db:"file_count" json:"totalFiles"`
	FolderCount int64 `db:"folder_count" json:"totalFolders"`
	UsedSize    int64 `db:"used_size" json:"totalSize"`
}

type Quota struct {
	Total      int64   `json:"total"`
	Used       int64   `json:"used"`
	Available  int64   `json:"available"`
	Percentage float64 `json:"percentage"`
}
