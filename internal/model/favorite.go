package model

import "time"

const DefaultFavoriteFolderName = "Favorites"

type FavoriteFolder struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"ownerId"`
	Name      string    `db:"name" json:"name"`
	IsDefault bool      `db:"is_default" json:"isDefault"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type Favorite struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"ownerId"`
	FileID    string    `db:"file_id" json:"fileId"`
	FolderID  string    `db:"folder_id" json:"folderId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
