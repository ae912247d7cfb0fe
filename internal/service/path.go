package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/templui/cloudbox/internal/model"
	"github.com/templui/cloudbox/internal/repository"
)

// maxPathDepth bounds ancestor walks so corrupt data cannot loop forever.
const maxPathDepth = 4096

// BuildPath returns the cached path of a child named name under parent.
// Paths always use forward slashes regardless of the host OS.
func BuildPath(parent *model.FileNode, name string) string {
	if parent == nil {
		return "/" + name
	}
	return joinPath(parent.Path, name)
}

func joinPath(parentPath, name string) string {
	return "/" + path.Join(strings.TrimPrefix(parentPath, "/"), name)
}

// ResolvePath walks from folderID up to the root and returns the chain root first.
func ResolvePath(ctx context.Context, files repository.FileRepository, ownerID, folderID string) ([]model.PathEntry, error) {
	folder, err := files.ByID(ctx, folderID)
	if errors.Is(err, repository.ErrFileNotFound) {
		return nil, newError(ErrNotFound, "folder not found")
	}
	if err != nil {
		return nil, err
	}
	if folder.OwnerID != ownerID || folder.IsDeleted || !folder.IsFolder {
		return nil, newError(ErrNotFound, "folder not found")
	}

	var chain []model.PathEntry
	visited := map[string]bool{}
	node := folder

	for {
		if visited[node.ID] || len(chain) >= maxPathDepth {
			return nil, fmt.Errorf("%w: cycle detected at folder %s", ErrInternal, node.ID)
		}
		visited[node.ID] = true
		chain = append(chain, model.PathEntry{ID: node.ID, Name: node.Name})

		if node.ParentID == nil {
			break
		}

		node, err = files.ByID(ctx, *node.ParentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load ancestor: %w", err)
		}
	}

	// Reverse so the root comes first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	return chain, nil
}
