package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// FileNode is a file or a folder in a user's tree.
type FileNode struct {
	ID            string     `db:"id" json:"id"`
	OwnerID       string     `db:"owner_id" json:"ownerId"`
	ParentID      *string    `db:"parent_id" json:"parentId"` // nil = root
	Name          string     `db:"name" json:"name"`
	IsFolder      bool       `db:"is_folder" json:"isFolder"`
	Path          string     `db:"path" json:"path"`
	Size          int64      `db:"size" json:"size"`
	MimeType      string     `db:"mime_type" json:"mimeType,omitempty"`
	StorageKey    string     `db:"storage_key" json:"-"` // immutable once assigned
	Tags          Tags       `db:"tags" json:"tags"`
	IsDeleted     bool       `db:"is_deleted" json:"isDeleted"`
	DeletedAt     *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	PurgeAttempts int        `db:"purge_attempts" json:"-"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// IsRoot reports whether the node sits directly at the owner's root.
func (f *FileNode) IsRoot() bool {
	return f.ParentID == nil
}

// ParentKey returns the parent id, or "" for root nodes.
func (f *FileNode) ParentKey() string {
	if f.ParentID == nil {
		return ""
	}
	return *f.ParentID
}

// PathEntry is one hop of a resolved folder path.
type PathEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TrashItem is a soft-deleted node with the moment it becomes eligible for purge.
type TrashItem struct {
	*FileNode
	ExpiresAt time.Time `json:"expiresAt"`
}

// Tags is a set of free-form labels persisted as a JSON array.
type Tags []string

// NewTags trims, drops empties and de-duplicates. Order is not significant.
func NewTags(in []string) Tags {
	out := Tags{}
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *Tags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("tags: unsupported source type %T", src)
	}
	if len(raw) == 0 {
		*t = Tags{}
		return nil
	}
	var out []string
	err := json.Unmarshal(raw, &out)
	if err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	*t = out
	return nil
}
