package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/templui/cloudbox/internal/validation"
)

// FindConflicts reports which of names are already used by active children of
// parentID ("root" or "" for the top level). Matching is exact after NFC
// normalization, but the names come back as the caller sent them, in request order
// and without repeats. The answer is advisory; writes re-check inside their transaction.
func (s *FileService) FindConflicts(ctx context.Context, ownerID, parentID string, names []string) ([]string, error) {
	normalized := make([]string, 0, len(names))
	for _, name := range names {
		n := validation.NormalizeName(name)
		if n == "" || slices.Contains(normalized, n) {
			continue
		}
		normalized = append(normalized, n)
	}
	if len(normalized) == 0 {
		return []string{}, nil
	}

	taken, err := s.store.Files.ActiveNames(ctx, ownerID, ParentID(parentID), normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to check name conflicts: %w", err)
	}

	conflicts := []string{}
	for _, name := range names {
		if slices.Contains(conflicts, name) {
			continue
		}
		if slices.Contains(taken, validation.NormalizeName(name)) {
			conflicts = append(conflicts, name)
		}
	}
	return conflicts, nil
}
